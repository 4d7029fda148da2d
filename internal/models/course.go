package models

import "time"

// PlaceholderValue marks course fields the importer could not derive from
// the submitted metadata. Subsequent imports may overwrite it but never
// replace real values with it.
const PlaceholderValue = "TBD"

// Course represents one instructor's section of a course code. The same
// code may be taught by several instructors independently; the unique key
// is (course_code, instructor_id).
type Course struct {
	ID           string    `db:"id" json:"id"`
	CourseCode   string    `db:"course_code" json:"course_code"`
	CourseName   string    `db:"course_name" json:"course_name"`
	Schedule     string    `db:"schedule" json:"schedule"`
	Location     string    `db:"location" json:"location"`
	InstructorID int64     `db:"instructor_id" json:"assigned_teacher"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail combines a course with its roster.
type CourseDetail struct {
	Course
	InstructorName string             `json:"instructor_name"`
	EnrolledCount  int                `json:"enrolled_count"`
	TotalStudents  int                `json:"total_students"`
	Students       []EnrollmentRecord `json:"students"`
}
