package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroster/roster-api/internal/models"
)

func newInstructorMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "postgres")
	return db, mock, func() { db.Close() }
}

func TestInstructorRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newInstructorMock(t)
	defer cleanup()
	repo := NewInstructorRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO instructors`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	instructor := &models.Instructor{
		TeacherID:    4001,
		Email:        "maria.santos@school.edu",
		FirstName:    "Maria",
		LastName:     "Santos",
		PasswordHash: "hashed",
	}
	err := repo.Create(context.Background(), instructor)
	require.NoError(t, err)
	assert.False(t, instructor.CreatedAt.IsZero())
	assert.False(t, instructor.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstructorRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newInstructorMock(t)
	defer cleanup()
	repo := NewInstructorRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"teacher_id", "email", "first_name", "last_name", "password_hash", "last_login", "created_at", "updated_at"}).
		AddRow(int64(4001), "maria.santos@school.edu", "Maria", "Santos", "hashed", nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT teacher_id, email, first_name, last_name, password_hash, last_login, created_at, updated_at FROM instructors WHERE email = $1`)).
		WithArgs("maria.santos@school.edu").
		WillReturnRows(rows)

	instructor, err := repo.FindByEmail(context.Background(), "maria.santos@school.edu")
	require.NoError(t, err)
	assert.Equal(t, int64(4001), instructor.TeacherID)
	assert.Equal(t, "Maria", instructor.FirstName)
	assert.Nil(t, instructor.LastLogin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstructorRepositoryFindByEmailNoRows(t *testing.T) {
	db, mock, cleanup := newInstructorMock(t)
	defer cleanup()
	repo := NewInstructorRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM instructors WHERE email = $1`)).
		WithArgs("missing@school.edu").
		WillReturnError(sql.ErrNoRows)

	instructor, err := repo.FindByEmail(context.Background(), "missing@school.edu")
	assert.Nil(t, instructor)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstructorRepositoryUpdateLastLogin(t *testing.T) {
	db, mock, cleanup := newInstructorMock(t)
	defer cleanup()
	repo := NewInstructorRepository(db)

	ts := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE instructors SET last_login = $2, updated_at = $2 WHERE teacher_id = $1`)).
		WithArgs(int64(4001), ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateLastLogin(context.Background(), 4001, ts)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstructorRepositoryCreateRefreshTokenAssignsID(t *testing.T) {
	db, mock, cleanup := newInstructorMock(t)
	defer cleanup()
	repo := NewInstructorRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO refresh_tokens`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	token := &models.RefreshToken{
		TeacherID: 4001,
		Token:     "opaque-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	err := repo.CreateRefreshToken(context.Background(), token)
	require.NoError(t, err)
	assert.NotEmpty(t, token.ID)
	assert.False(t, token.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstructorRepositoryFindRefreshToken(t *testing.T) {
	db, mock, cleanup := newInstructorMock(t)
	defer cleanup()
	repo := NewInstructorRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "token", "expires_at", "created_at", "revoked", "revoked_at", "ip_address", "user_agent"}).
		AddRow("tok-1", int64(4001), "opaque-token", now.Add(time.Hour), now, false, nil, "10.0.0.1", "test-agent")
	mock.ExpectQuery(regexp.QuoteMeta(`FROM refresh_tokens WHERE token = $1`)).
		WithArgs("opaque-token").
		WillReturnRows(rows)

	stored, err := repo.FindRefreshToken(context.Background(), "opaque-token")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", stored.ID)
	assert.Equal(t, int64(4001), stored.TeacherID)
	assert.False(t, stored.Revoked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstructorRepositoryRevokeRefreshToken(t *testing.T) {
	db, mock, cleanup := newInstructorMock(t)
	defer cleanup()
	repo := NewInstructorRepository(db)

	ts := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`)).
		WithArgs("tok-1", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RevokeRefreshToken(context.Background(), "tok-1", ts)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstructorRepositoryRevokeAllForTeacher(t *testing.T) {
	db, mock, cleanup := newInstructorMock(t)
	defer cleanup()
	repo := NewInstructorRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE teacher_id = $1 AND revoked = FALSE`)).
		WithArgs(int64(4001), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := repo.RevokeAllForTeacher(context.Background(), 4001)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
