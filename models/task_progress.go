package models

import "time"

type TaskStatus string

const (
	TaskStatusIncomplete TaskStatus = "incomplete"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// TaskProgress tracks one-off (non-daily) quest tasks per user: social
// follows, first swap, contract deploys etc. One row per (user, task).
type TaskProgress struct {
	ID               string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID           string     `gorm:"uniqueIndex:idx_task_progress_user_task;index;not null" json:"user_id"`
	TaskID           string     `gorm:"uniqueIndex:idx_task_progress_user_task;not null" json:"task_id"` // e.g. "nitrodex-twitter"
	ProjectID        string     `gorm:"index;not null" json:"project_id"`
	Status           TaskStatus `gorm:"not null;default:'incomplete'" json:"status"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	VerificationData string     `gorm:"type:jsonb" json:"verification_data,omitempty"`

	Timestamps
}
