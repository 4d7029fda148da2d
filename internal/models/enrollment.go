package models

import "time"

// RecordState describes the lifecycle position of an enrollment record.
type RecordState string

// Possible enrollment record states. Purged records are physically removed
// and therefore never observable through a loaded record.
const (
	RecordStateActive      RecordState = "ACTIVE"
	RecordStateSoftDeleted RecordState = "SOFT_DELETED"
)

// EnrollmentRecord captures one student's membership in one course section
// owned by one instructor. StudentID is not globally unique: the same
// student may appear under different instructors or different courses.
type EnrollmentRecord struct {
	ID           string     `db:"id" json:"id"`
	StudentID    int64      `db:"student_id" json:"student_id"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Program      string     `db:"program" json:"program"`
	CourseCode   string     `db:"course_code" json:"enrolled_course"`
	InstructorID int64      `db:"instructor_id" json:"enrolled_by_instructor"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// State derives the lifecycle state from the tombstone column.
func (r *EnrollmentRecord) State() RecordState {
	if r.DeletedAt != nil {
		return RecordStateSoftDeleted
	}
	return RecordStateActive
}

// FullName joins the student's name parts for display.
func (r *EnrollmentRecord) FullName() string {
	return r.FirstName + " " + r.LastName
}

// EnrollmentOwnership enriches a record with the owning instructor's name,
// used when reporting cross-instructor conflicts.
type EnrollmentOwnership struct {
	EnrollmentRecord
	OwnerName string `db:"owner_name" json:"owner_name"`
}

// EnrollmentFilter captures allowed search parameters for listing records.
type EnrollmentFilter struct {
	Search         string
	CourseCode     string
	IncludeDeleted bool
	OnlyDeleted    bool
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
