package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classroster/roster-api/internal/models"
)

// ActivityRepository persists the instructor-scoped activity trail.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create stores one activity entry.
func (r *ActivityRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_logs (id, teacher_id, entity_type, action, entity_id, entity_name, description, created_at)
        VALUES (:id, :teacher_id, :entity_type, :action, :entity_id, :entity_name, :description, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	return nil
}

// ListByTeacher returns the instructor's activity, newest first.
func (r *ActivityRepository) ListByTeacher(ctx context.Context, teacherID int64, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 {
		limit = 1000
	}
	const query = `SELECT id, teacher_id, entity_type, action, entity_id, entity_name, description, created_at
        FROM activity_logs WHERE teacher_id = $1 ORDER BY created_at DESC LIMIT $2`
	var entries []models.ActivityLog
	if err := r.db.SelectContext(ctx, &entries, query, teacherID, limit); err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	return entries, nil
}
