package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroster/roster-api/internal/models"
)

func newCourseMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func courseRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "course_code", "course_name", "schedule", "location", "instructor_id", "created_at", "updated_at"})
}

func TestCourseRepositoryListByOwner(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	rows := courseRows().
		AddRow("c-1", "CS101", "Intro CS", "MWF 9:00", "Bldg A", int64(7), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, course_code, course_name, schedule, location, instructor_id, created_at, updated_at FROM courses WHERE instructor_id = $1 ORDER BY course_code")).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	courses, err := repo.ListByOwner(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "CS101", courses[0].CourseCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryFindByCodeAndOwnerNoRows(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, course_code, course_name, schedule, location, instructor_id, created_at, updated_at FROM courses WHERE course_code = $1 AND instructor_id = $2")).
		WithArgs("NOPE", int64(7)).
		WillReturnRows(courseRows())

	course, err := repo.FindByCodeAndOwner(context.Background(), "NOPE", 7)
	require.NoError(t, err)
	assert.Nil(t, course)
}

func TestCourseRepositoryCreateTxAssignsID(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO courses").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	course := &models.Course{CourseCode: "CS101", CourseName: "Intro CS", Schedule: "TBD", Location: "TBD", InstructorID: 7}
	require.NoError(t, repo.CreateTx(context.Background(), tx, course))
	assert.NotEmpty(t, course.ID)
}

func TestCourseRepositoryDeleteTx(t *testing.T) {
	db, mock, cleanup := newCourseMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM courses WHERE course_code = $1 AND instructor_id = $2")).
		WithArgs("CS101", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	done, err := repo.DeleteTx(context.Background(), tx, "CS101", 7)
	require.NoError(t, err)
	assert.True(t, done)
}
