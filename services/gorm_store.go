package services

import (
	"context"
	"fmt"
	"time"

	"quest-hunt-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProgressStore is the authoritative Postgres adapter. Each
// AppendAndUpdate runs in one transaction so a failure mid-sequence rolls
// everything back.
type GormProgressStore struct {
	DB *gorm.DB
}

func NewGormProgressStore(db *gorm.DB) *GormProgressStore {
	return &GormProgressStore{DB: db}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistenceUnavailable, op, err)
}

func (s *GormProgressStore) TodayCount(ctx context.Context, userID, projectID string, taskTypes []string, day time.Time) (int, error) {
	start := CalendarDate(day)
	end := start.AddDate(0, 0, 1)

	var count int64
	err := s.DB.WithContext(ctx).
		Model(&models.DailyCompletion{}).
		Where("user_id = ? AND project_id = ? AND task_type IN ?", userID, projectID, taskTypes).
		Where("completed_at >= ? AND completed_at < ?", start, end).
		Count(&count).Error
	if err != nil {
		return 0, storeErr("count completions", err)
	}
	return int(count), nil
}

func (s *GormProgressStore) Aggregate(ctx context.Context, userID, projectID string) (models.DailyProgress, bool, error) {
	var agg models.DailyProgress
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND project_id = ?", userID, projectID).
		First(&agg).Error
	if err == gorm.ErrRecordNotFound {
		return agg, false, nil
	}
	if err != nil {
		return agg, false, storeErr("fetch aggregate", err)
	}
	return agg, true, nil
}

func (s *GormProgressStore) AppendAndUpdate(ctx context.Context, event models.DailyCompletion, agg models.DailyProgress) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "project_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_completions",
				"current_streak",
				"last_completion_date",
				"updated_at",
			}),
		}).Create(&agg).Error
	})
	if err != nil {
		return storeErr("append completion", err)
	}
	return nil
}

func (s *GormProgressStore) SetClaimed(ctx context.Context, userID, projectID string, claimedAt time.Time) error {
	res := s.DB.WithContext(ctx).
		Model(&models.DailyProgress{}).
		Where("user_id = ? AND project_id = ? AND badge_claimed = false", userID, projectID).
		Updates(map[string]interface{}{
			"badge_claimed": true,
			"claimed_at":    claimedAt,
		})
	if res.Error != nil {
		return storeErr("set claimed", res.Error)
	}
	// The caller checks eligibility under the per-pair lock, so zero rows
	// here means a concurrent claim slipped in from another process.
	if res.RowsAffected == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

func (s *GormProgressStore) ClaimedSince(ctx context.Context, userID string, since time.Time) ([]models.DailyProgress, error) {
	var aggs []models.DailyProgress
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND badge_claimed = true AND claimed_at > ?", userID, since).
		Order("claimed_at ASC").
		Find(&aggs).Error
	if err != nil {
		return nil, storeErr("list claims", err)
	}
	return aggs, nil
}

func (s *GormProgressStore) TopAggregates(ctx context.Context, projectID string, limit int) ([]models.DailyProgress, error) {
	var aggs []models.DailyProgress
	err := s.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("total_completions DESC, current_streak DESC").
		Limit(limit).
		Find(&aggs).Error
	if err != nil {
		return nil, storeErr("leaderboard query", err)
	}
	return aggs, nil
}

// PruneCompletions deletes ledger rows older than the cutoff. Aggregates are
// untouched; only raw events are storage hygiene.
func (s *GormProgressStore) PruneCompletions(ctx context.Context, before time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("completed_at < ?", before).
		Delete(&models.DailyCompletion{})
	if res.Error != nil {
		return 0, storeErr("prune completions", res.Error)
	}
	return res.RowsAffected, nil
}
