package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroster/roster-api/internal/models"
)

type fakeActivityRepo struct {
	entries   []models.ActivityLog
	createErr error
	lastLimit int
}

func (f *fakeActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeActivityRepo) ListByTeacher(ctx context.Context, teacherID int64, limit int) ([]models.ActivityLog, error) {
	f.lastLimit = limit
	return f.entries, nil
}

func TestActivityServiceRecord(t *testing.T) {
	repo := &fakeActivityRepo{}
	svc := NewActivityService(repo, 0, nil)

	svc.Record(context.Background(), 7, models.ActivityEntityStudent, models.ActivityActionRemoved, "rec-1", "Ana Cruz", "Ana Cruz was removed from CS101")

	require.Len(t, repo.entries, 1)
	assert.Equal(t, int64(7), repo.entries[0].TeacherID)
	assert.Equal(t, models.ActivityActionRemoved, repo.entries[0].Action)
}

func TestActivityServiceRecordSwallowsFailures(t *testing.T) {
	repo := &fakeActivityRepo{createErr: errors.New("db down")}
	svc := NewActivityService(repo, 0, nil)

	// Must not panic or propagate.
	svc.Record(context.Background(), 7, models.ActivityEntityRoster, models.ActivityActionImported, "CS101", "CS101", "import")
	assert.Empty(t, repo.entries)
}

func TestActivityServiceListUsesConfiguredLimit(t *testing.T) {
	repo := &fakeActivityRepo{entries: []models.ActivityLog{{TeacherID: 7}}}
	svc := NewActivityService(repo, 50, nil)

	entries, err := svc.List(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 50, repo.lastLimit)
}

func TestActivityServiceListDefaultLimit(t *testing.T) {
	repo := &fakeActivityRepo{}
	svc := NewActivityService(repo, 0, nil)

	_, err := svc.List(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1000, repo.lastLimit)
}
