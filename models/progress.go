package models

import (
	"time"

	"gorm.io/gorm"
)

// DailyProgress is the per-(user, project) summary of daily task activity
// (denormalized for performance). One row per pair, created lazily on the
// first accepted completion and never deleted.
type DailyProgress struct {
	ID        string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID    string `gorm:"uniqueIndex:idx_daily_progress_user_project;not null" json:"user_id"` // lowercase wallet address
	ProjectID string `gorm:"uniqueIndex:idx_daily_progress_user_project;not null" json:"project_id"`

	// Counters
	TotalCompletions int64 `json:"total_completions" gorm:"default:0"`
	CurrentStreak    int   `json:"current_streak" gorm:"default:0"` // consecutive calendar days with ≥1 completion

	// Calendar date (UTC, no time component) of the most recent completion
	LastCompletionDate *time.Time `json:"last_completion_date,omitempty" gorm:"type:date"`

	// Badge claim — monotonic false→true, flipped exactly once
	BadgeClaimed bool       `json:"badge_claimed" gorm:"default:false"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
