package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroster/roster-api/internal/models"
)

func newEnrollmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func enrollmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "first_name", "last_name", "program", "course_code", "instructor_id", "created_at", "updated_at", "deleted_at"})
}

func TestEnrollmentRepositoryListDefaults(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := enrollmentRows().
		AddRow("rec-1", int64(1001), "Ana", "Cruz", "CS", "CS101", int64(7), time.Now(), time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, first_name, last_name, program, course_code, instructor_id, created_at, updated_at, deleted_at FROM enrollments WHERE instructor_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC LIMIT 15 OFFSET 0")).
		WithArgs(int64(7)).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE instructor_id = $1 AND deleted_at IS NULL")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), 7, models.EnrollmentFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListOnlyDeletedWithSearch(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, first_name, last_name, program, course_code, instructor_id, created_at, updated_at, deleted_at FROM enrollments WHERE instructor_id = $1 AND deleted_at IS NOT NULL AND (first_name ILIKE $2 OR last_name ILIKE $2 OR program ILIKE $2 OR course_code ILIKE $2 OR CAST(student_id AS TEXT) LIKE $2) ORDER BY last_name ASC LIMIT 20 OFFSET 20")).
		WithArgs(int64(7), "%cruz%").
		WillReturnRows(enrollmentRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE instructor_id = $1 AND deleted_at IS NOT NULL")).
		WithArgs(int64(7), "%cruz%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, total, err := repo.List(context.Background(), 7, models.EnrollmentFilter{
		OnlyDeleted: true,
		Search:      "cruz",
		SortBy:      "last_name",
		SortOrder:   "asc",
		Page:        2,
		PageSize:    20,
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByIDNoRows(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, first_name, last_name, program, course_code, instructor_id, created_at, updated_at, deleted_at FROM enrollments WHERE id = $1 AND instructor_id = $2 AND deleted_at IS NULL")).
		WithArgs("missing", int64(7)).
		WillReturnRows(enrollmentRows())

	record, err := repo.FindByID(context.Background(), 7, "missing", false)
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindOtherOwnerTx(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "student_id", "first_name", "last_name", "program", "course_code", "instructor_id", "created_at", "updated_at", "deleted_at", "owner_name"}).
		AddRow("rec-9", int64(1001), "Ana", "Cruz", "CS", "CS101", int64(9), time.Now(), time.Now(), nil, "Dr. Reyes")
	mock.ExpectQuery("SELECT e.id, e.student_id").
		WithArgs(int64(1001), "CS101", int64(7)).
		WillReturnRows(rows)

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	owned, err := repo.FindOtherOwnerTx(context.Background(), tx, 7, 1001, "CS101")
	require.NoError(t, err)
	require.NotNil(t, owned)
	assert.Equal(t, "Dr. Reyes", owned.OwnerName)
	assert.Equal(t, int64(9), owned.InstructorID)
}

func TestEnrollmentRepositoryInsertTxAssignsID(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	record := &models.EnrollmentRecord{StudentID: 1001, FirstName: "Ana", LastName: "Cruz", Program: "CS", CourseCode: "CS101", InstructorID: 7}
	require.NoError(t, repo.InsertTx(context.Background(), tx, record))
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestEnrollmentRepositoryRestoreTxClearsTombstone(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE enrollments SET first_name").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	deleted := time.Now().UTC()
	record := &models.EnrollmentRecord{ID: "rec-1", StudentID: 1001, FirstName: "Ana", LastName: "Cruz", Program: "CS", CourseCode: "CS101", InstructorID: 7, DeletedAt: &deleted}
	require.NoError(t, repo.RestoreTx(context.Background(), tx, record))
	assert.Nil(t, record.DeletedAt)
}

func TestEnrollmentRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND course_code = $2 AND instructor_id = $3 AND deleted_at IS NULL AND id <> $4 LIMIT 1")).
		WithArgs(int64(1001), "CS101", int64(7), "rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsActive(context.Background(), 7, 1001, "CS101", "rec-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestEnrollmentRepositoryExistsActiveNoRows(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND course_code = $2 AND instructor_id = $3 AND deleted_at IS NULL LIMIT 1")).
		WithArgs(int64(1001), "CS101", int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsActive(context.Background(), 7, 1001, "CS101", "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEnrollmentRepositorySoftDeleteAffectedRows(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET deleted_at = $3, updated_at = $3 WHERE id = $1 AND instructor_id = $2 AND deleted_at IS NULL")).
		WithArgs("rec-1", int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	done, err := repo.SoftDelete(context.Background(), 7, "rec-1")
	require.NoError(t, err)
	assert.True(t, done)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET deleted_at = $3, updated_at = $3 WHERE id = $1 AND instructor_id = $2 AND deleted_at IS NULL")).
		WithArgs("rec-1", int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	done, err = repo.SoftDelete(context.Background(), 7, "rec-1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestEnrollmentRepositoryDeleteByCourseTx(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE course_code = $1 AND instructor_id = $2")).
		WithArgs("CS101", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 12))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	removed, err := repo.DeleteByCourseTx(context.Background(), tx, 7, "CS101")
	require.NoError(t, err)
	assert.Equal(t, int64(12), removed)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(context.Canceled))
}

func TestEnrollmentRepositoryFindForOwnerTxPrefersActiveRow(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	rows := enrollmentRows().
		AddRow("rec-active", int64(1001), "Ana", "Cruz", "CS", "CS101", int64(7), time.Now(), time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, first_name, last_name, program, course_code, instructor_id, created_at, updated_at, deleted_at FROM enrollments WHERE student_id = $1 AND course_code = $2 AND instructor_id = $3 ORDER BY (deleted_at IS NULL) DESC LIMIT 1")).
		WithArgs(int64(1001), "CS101", int64(7)).
		WillReturnRows(rows)

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	record, err := repo.FindForOwnerTx(context.Background(), tx, 7, 1001, "CS101")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "rec-active", record.ID)
	assert.Equal(t, models.RecordStateActive, record.State())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByStudentAndCourse(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := enrollmentRows().
		AddRow("rec-1", int64(1001), "Ana", "Cruz", "CS", "CS101", int64(7), time.Now(), time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, first_name, last_name, program, course_code, instructor_id, created_at, updated_at, deleted_at FROM enrollments WHERE student_id = $1 AND course_code = $2 AND instructor_id = $3 ORDER BY (deleted_at IS NULL) DESC LIMIT 1")).
		WithArgs(int64(1001), "CS101", int64(7)).
		WillReturnRows(rows)

	record, err := repo.FindByStudentAndCourse(context.Background(), 7, 1001, "CS101")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "rec-1", record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByStudentAndCourseNoRows(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE student_id = $1 AND course_code = $2 AND instructor_id = $3")).
		WithArgs(int64(1002), "CS101", int64(7)).
		WillReturnRows(enrollmentRows())

	record, err := repo.FindByStudentAndCourse(context.Background(), 7, 1002, "CS101")
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindOtherOwner(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "first_name", "last_name", "program", "course_code", "instructor_id", "created_at", "updated_at", "deleted_at", "owner_name"}).
		AddRow("rec-9", int64(1001), "Ana", "Cruz", "CS", "CS101", int64(9), time.Now(), time.Now(), nil, "Dr. Reyes")
	mock.ExpectQuery("SELECT e.id, e.student_id").
		WithArgs(int64(1001), "CS101", int64(7)).
		WillReturnRows(rows)

	owned, err := repo.FindOtherOwner(context.Background(), 7, 1001, "CS101")
	require.NoError(t, err)
	require.NotNil(t, owned)
	assert.Equal(t, "Dr. Reyes", owned.OwnerName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryInsertAssignsID(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record := &models.EnrollmentRecord{StudentID: 1002, FirstName: "Ben", LastName: "Lim", Program: "CS", CourseCode: "CS101", InstructorID: 7}
	require.NoError(t, repo.Insert(context.Background(), record))
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
