package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/classroster/roster-api/internal/models"
)

const pqUniqueViolation = "23505"

// IsUniqueViolation reports whether the error is a Postgres unique
// constraint failure, surfaced when the active-uniqueness invariant on
// (student_id, course_code, instructor_id) would be broken.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

// EnrollmentRepository handles persistence of enrollment records. All
// lookups are scoped to an owning instructor; soft-deleted rows stay in
// the table until purged.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, first_name, last_name, program, course_code, instructor_id, created_at, updated_at, deleted_at`

// List returns the instructor's enrollment records filtered by the
// provided criteria, newest first by default.
func (r *EnrollmentRepository) List(ctx context.Context, ownerID int64, filter models.EnrollmentFilter) ([]models.EnrollmentRecord, int, error) {
	conditions := []string{"instructor_id = $1"}
	args := []interface{}{ownerID}

	switch {
	case filter.OnlyDeleted:
		conditions = append(conditions, "deleted_at IS NOT NULL")
	case !filter.IncludeDeleted:
		conditions = append(conditions, "deleted_at IS NULL")
	}

	if filter.CourseCode != "" {
		conditions = append(conditions, fmt.Sprintf("course_code = $%d", len(args)+1))
		args = append(args, filter.CourseCode)
	}
	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf(
			"(first_name ILIKE $%d OR last_name ILIKE $%d OR program ILIKE $%d OR course_code ILIKE $%d OR CAST(student_id AS TEXT) LIKE $%d)",
			idx, idx, idx, idx, idx))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"student_id": "student_id",
		"last_name":  "last_name",
		"created_at": "created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 15
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM enrollments%s ORDER BY %s %s LIMIT %d OFFSET %d",
		enrollmentColumns, clause, orderBy, order, size, offset)

	var records []models.EnrollmentRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM enrollments" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return records, total, nil
}

// FindByID returns one of the instructor's records by surrogate id,
// optionally including soft-deleted rows.
func (r *EnrollmentRepository) FindByID(ctx context.Context, ownerID int64, id string, includeDeleted bool) (*models.EnrollmentRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1 AND instructor_id = $2", enrollmentColumns)
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	var record models.EnrollmentRecord
	if err := r.db.GetContext(ctx, &record, query, id, ownerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &record, nil
}

// FindForOwnerTx looks up the caller's own record for (student, course)
// including soft-deleted rows, inside the import transaction. When both
// an active row and a stale tombstone exist for the key, the active row
// wins so the caller never mistakes a live enrollment for a restorable
// one.
func (r *EnrollmentRepository) FindForOwnerTx(ctx context.Context, tx *sqlx.Tx, ownerID, studentID int64, courseCode string) (*models.EnrollmentRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE student_id = $1 AND course_code = $2 AND instructor_id = $3 ORDER BY (deleted_at IS NULL) DESC LIMIT 1", enrollmentColumns)
	var record models.EnrollmentRecord
	if err := tx.GetContext(ctx, &record, query, studentID, courseCode, ownerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find own enrollment: %w", err)
	}
	return &record, nil
}

// FindOtherOwnerTx looks up a record for (student, course) held by any
// other instructor, active or soft-deleted, with the owner's name joined
// in for conflict reporting.
func (r *EnrollmentRepository) FindOtherOwnerTx(ctx context.Context, tx *sqlx.Tx, excludeOwnerID, studentID int64, courseCode string) (*models.EnrollmentOwnership, error) {
	const query = `SELECT e.id, e.student_id, e.first_name, e.last_name, e.program, e.course_code, e.instructor_id, e.created_at, e.updated_at, e.deleted_at,
        COALESCE(i.first_name || ' ' || i.last_name, 'another instructor') AS owner_name
        FROM enrollments e
        LEFT JOIN instructors i ON i.teacher_id = e.instructor_id
        WHERE e.student_id = $1 AND e.course_code = $2 AND e.instructor_id <> $3
        LIMIT 1`
	var owned models.EnrollmentOwnership
	if err := tx.GetContext(ctx, &owned, query, studentID, courseCode, excludeOwnerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find competing enrollment: %w", err)
	}
	return &owned, nil
}

// FindByStudentAndCourse looks up the instructor's own record for
// (student, course) including soft-deleted rows, preferring the active
// row when a stale tombstone also exists for the key.
func (r *EnrollmentRepository) FindByStudentAndCourse(ctx context.Context, ownerID, studentID int64, courseCode string) (*models.EnrollmentRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE student_id = $1 AND course_code = $2 AND instructor_id = $3 ORDER BY (deleted_at IS NULL) DESC LIMIT 1", enrollmentColumns)
	var record models.EnrollmentRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, courseCode, ownerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find own enrollment: %w", err)
	}
	return &record, nil
}

// FindOtherOwner looks up a record for (student, course) held by any
// other instructor, active or soft-deleted, with the owner's name joined
// in for conflict reporting.
func (r *EnrollmentRepository) FindOtherOwner(ctx context.Context, excludeOwnerID, studentID int64, courseCode string) (*models.EnrollmentOwnership, error) {
	const query = `SELECT e.id, e.student_id, e.first_name, e.last_name, e.program, e.course_code, e.instructor_id, e.created_at, e.updated_at, e.deleted_at,
        COALESCE(i.first_name || ' ' || i.last_name, 'another instructor') AS owner_name
        FROM enrollments e
        LEFT JOIN instructors i ON i.teacher_id = e.instructor_id
        WHERE e.student_id = $1 AND e.course_code = $2 AND e.instructor_id <> $3
        LIMIT 1`
	var owned models.EnrollmentOwnership
	if err := r.db.GetContext(ctx, &owned, query, studentID, courseCode, excludeOwnerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find competing enrollment: %w", err)
	}
	return &owned, nil
}

// Insert persists a fresh record outside of a batch transaction.
func (r *EnrollmentRepository) Insert(ctx context.Context, record *models.EnrollmentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_id, first_name, last_name, program, course_code, instructor_id, created_at, updated_at, deleted_at)
        VALUES (:id, :student_id, :first_name, :last_name, :program, :course_code, :instructor_id, :created_at, :updated_at, :deleted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

// InsertTx persists a fresh record within the import transaction.
func (r *EnrollmentRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, record *models.EnrollmentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_id, first_name, last_name, program, course_code, instructor_id, created_at, updated_at, deleted_at)
        VALUES (:id, :student_id, :first_name, :last_name, :program, :course_code, :instructor_id, :created_at, :updated_at, :deleted_at)`
	if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

// RestoreTx revives a soft-deleted record in place, overwriting its
// fields with the submitted values.
func (r *EnrollmentRepository) RestoreTx(ctx context.Context, tx *sqlx.Tx, record *models.EnrollmentRecord) error {
	record.UpdatedAt = time.Now().UTC()
	record.DeletedAt = nil
	const query = `UPDATE enrollments SET first_name = :first_name, last_name = :last_name, program = :program,
        course_code = :course_code, instructor_id = :instructor_id, updated_at = :updated_at, deleted_at = NULL
        WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("restore enrollment: %w", err)
	}
	return nil
}

// ExistsActive checks whether another active record holds the same
// (student, course, owner) key.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, ownerID, studentID int64, courseCode, excludeID string) (bool, error) {
	query := "SELECT 1 FROM enrollments WHERE student_id = $1 AND course_code = $2 AND instructor_id = $3 AND deleted_at IS NULL"
	args := []interface{}{studentID, courseCode, ownerID}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// Update modifies an existing record's mutable fields.
func (r *EnrollmentRepository) Update(ctx context.Context, record *models.EnrollmentRecord) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET student_id = :student_id, first_name = :first_name, last_name = :last_name,
        program = :program, course_code = :course_code, updated_at = :updated_at WHERE id = :id AND instructor_id = :instructor_id`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

// SoftDelete stamps the tombstone on an active record.
func (r *EnrollmentRepository) SoftDelete(ctx context.Context, ownerID int64, id string) (bool, error) {
	const query = `UPDATE enrollments SET deleted_at = $3, updated_at = $3 WHERE id = $1 AND instructor_id = $2 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, ownerID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("soft delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete enrollment: %w", err)
	}
	return affected > 0, nil
}

// Restore clears the tombstone on a soft-deleted record.
func (r *EnrollmentRepository) Restore(ctx context.Context, ownerID int64, id string) (bool, error) {
	const query = `UPDATE enrollments SET deleted_at = NULL, updated_at = $3 WHERE id = $1 AND instructor_id = $2 AND deleted_at IS NOT NULL`
	res, err := r.db.ExecContext(ctx, query, id, ownerID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("restore enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("restore enrollment: %w", err)
	}
	return affected > 0, nil
}

// ForceDelete permanently removes a record regardless of its state.
func (r *EnrollmentRepository) ForceDelete(ctx context.Context, ownerID int64, id string) (bool, error) {
	const query = `DELETE FROM enrollments WHERE id = $1 AND instructor_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("force delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("force delete enrollment: %w", err)
	}
	return affected > 0, nil
}

// ListByCourse returns the instructor's roster for one course code,
// soft-deleted rows included for audit display.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, ownerID int64, courseCode string) ([]models.EnrollmentRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE course_code = $1 AND instructor_id = $2 ORDER BY last_name, first_name", enrollmentColumns)
	var records []models.EnrollmentRecord
	if err := r.db.SelectContext(ctx, &records, query, courseCode, ownerID); err != nil {
		return nil, fmt.Errorf("list course roster: %w", err)
	}
	return records, nil
}

// DeleteByCourseTx removes every record the instructor holds for the
// course code, used by the course-deletion cascade.
func (r *EnrollmentRepository) DeleteByCourseTx(ctx context.Context, tx *sqlx.Tx, ownerID int64, courseCode string) (int64, error) {
	const query = `DELETE FROM enrollments WHERE course_code = $1 AND instructor_id = $2`
	res, err := tx.ExecContext(ctx, query, courseCode, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete course roster: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete course roster: %w", err)
	}
	return affected, nil
}
