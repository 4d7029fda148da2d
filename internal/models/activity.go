package models

import "time"

// Activity action constants recorded in the log.
const (
	ActivityActionImported = "IMPORTED"
	ActivityActionCreated  = "CREATED"
	ActivityActionUpdated  = "UPDATED"
	ActivityActionRemoved  = "REMOVED"
	ActivityActionRestored = "RESTORED"
	ActivityActionPurged   = "PURGED"
)

// Activity entity types.
const (
	ActivityEntityStudent = "student"
	ActivityEntityCourse  = "course"
	ActivityEntityRoster  = "roster"
)

// ActivityLog is one instructor-scoped entry in the activity trail.
type ActivityLog struct {
	ID          string    `db:"id" json:"id"`
	TeacherID   int64     `db:"teacher_id" json:"teacher_id"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	Action      string    `db:"action" json:"action"`
	EntityID    string    `db:"entity_id" json:"entity_id"`
	EntityName  string    `db:"entity_name" json:"entity_name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
