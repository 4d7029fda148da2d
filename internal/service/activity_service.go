package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/classroster/roster-api/internal/models"
	appErrors "github.com/classroster/roster-api/pkg/errors"
)

type activityRepo interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	ListByTeacher(ctx context.Context, teacherID int64, limit int) ([]models.ActivityLog, error)
}

// ActivityService records and lists the instructor-scoped activity trail.
// Recording is best effort: a failed write never fails the operation that
// produced it.
type ActivityService struct {
	repo      activityRepo
	listLimit int
	logger    *zap.Logger
}

// NewActivityService constructs ActivityService.
func NewActivityService(repo activityRepo, listLimit int, logger *zap.Logger) *ActivityService {
	if listLimit <= 0 {
		listLimit = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{repo: repo, listLimit: listLimit, logger: logger}
}

// Record writes one activity entry.
func (s *ActivityService) Record(ctx context.Context, teacherID int64, entityType, action, entityID, entityName, description string) {
	entry := &models.ActivityLog{
		TeacherID:   teacherID,
		EntityType:  entityType,
		Action:      action,
		EntityID:    entityID,
		EntityName:  entityName,
		Description: description,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record activity",
			zap.Int64("teacher_id", teacherID),
			zap.String("action", action),
			zap.Error(err))
	}
}

// List returns the instructor's recent activity, newest first.
func (s *ActivityService) List(ctx context.Context, teacherID int64) ([]models.ActivityLog, error) {
	entries, err := s.repo.ListByTeacher(ctx, teacherID, s.listLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity logs")
	}
	return entries, nil
}
