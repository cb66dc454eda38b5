package models

import "time"

// DailyCompletion = one accepted daily task completion (who, what project,
// what task type, when). Immutable once written; rows are only removed by
// the storage-hygiene prune job, never updated.
type DailyCompletion struct {
	ID               string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID           string    `gorm:"index:idx_daily_completions_key;not null" json:"user_id"`
	ProjectID        string    `gorm:"index:idx_daily_completions_key;not null" json:"project_id"`
	TaskType         string    `gorm:"index:idx_daily_completions_key;not null" json:"task_type"` // e.g. "dex_swap", "daily_checkin"
	CompletedAt      time.Time `gorm:"index:idx_daily_completions_key;not null" json:"completed_at"`
	VerificationData string    `gorm:"type:jsonb" json:"verification_data,omitempty"` // raw payload from the verifier, if any
}
