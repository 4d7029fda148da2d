package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classroster/roster-api/internal/models"
)

// CourseRepository handles persistence of course sections. The unique key
// is (course_code, instructor_id); one code may have sections under
// several instructors.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, course_code, course_name, schedule, location, instructor_id, created_at, updated_at`

// ListByOwner returns every section assigned to the instructor.
func (r *CourseRepository) ListByOwner(ctx context.Context, ownerID int64) ([]models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE instructor_id = $1 ORDER BY course_code", courseColumns)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, ownerID); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// FindByCodeAndOwner returns the instructor's section for a course code.
func (r *CourseRepository) FindByCodeAndOwner(ctx context.Context, courseCode string, ownerID int64) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE course_code = $1 AND instructor_id = $2", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, courseCode, ownerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// FindByCodeAndOwnerTx is the transactional variant used by the importer.
func (r *CourseRepository) FindByCodeAndOwnerTx(ctx context.Context, tx *sqlx.Tx, courseCode string, ownerID int64) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE course_code = $1 AND instructor_id = $2", courseColumns)
	var course models.Course
	if err := tx.GetContext(ctx, &course, query, courseCode, ownerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// CreateTx inserts a new section inside the import transaction.
func (r *CourseRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, course_code, course_name, schedule, location, instructor_id, created_at, updated_at)
        VALUES (:id, :course_code, :course_name, :schedule, :location, :instructor_id, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// UpdateDetailsTx overwrites the section's schedule and location.
func (r *CourseRepository) UpdateDetailsTx(ctx context.Context, tx *sqlx.Tx, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET course_name = :course_name, schedule = :schedule, location = :location, updated_at = :updated_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// DeleteTx removes the instructor's section for the course code.
func (r *CourseRepository) DeleteTx(ctx context.Context, tx *sqlx.Tx, courseCode string, ownerID int64) (bool, error) {
	const query = `DELETE FROM courses WHERE course_code = $1 AND instructor_id = $2`
	res, err := tx.ExecContext(ctx, query, courseCode, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete course: %w", err)
	}
	return affected > 0, nil
}
