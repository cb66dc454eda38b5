package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"quest-hunt-system/models"
)

// MemoryProgressStore keeps everything in process memory. Used in dev mode
// and tests; production deployments use the Postgres or Redis adapter.
// Ledger entries older than two days are pruned on each append, matching the
// rolling window the browser-local build of the platform kept.
type MemoryProgressStore struct {
	mu          sync.RWMutex
	completions map[string][]models.DailyCompletion // keyed by user|project
	aggregates  map[string]models.DailyProgress
}

func NewMemoryProgressStore() *MemoryProgressStore {
	return &MemoryProgressStore{
		completions: make(map[string][]models.DailyCompletion),
		aggregates:  make(map[string]models.DailyProgress),
	}
}

func (s *MemoryProgressStore) TodayCount(ctx context.Context, userID, projectID string, taskTypes []string, day time.Time) (int, error) {
	start := CalendarDate(day)
	end := start.AddDate(0, 0, 1)

	types := make(map[string]bool, len(taskTypes))
	for _, tt := range taskTypes {
		types[tt] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, ev := range s.completions[progressKey(userID, projectID)] {
		if !types[ev.TaskType] {
			continue
		}
		if !ev.CompletedAt.Before(start) && ev.CompletedAt.Before(end) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryProgressStore) Aggregate(ctx context.Context, userID, projectID string) (models.DailyProgress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, ok := s.aggregates[progressKey(userID, projectID)]
	return agg, ok, nil
}

func (s *MemoryProgressStore) AppendAndUpdate(ctx context.Context, event models.DailyCompletion, agg models.DailyProgress) error {
	key := progressKey(event.UserID, event.ProjectID)
	cutoff := event.CompletedAt.Add(-2 * 24 * time.Hour)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.completions[key][:0]
	for _, old := range s.completions[key] {
		if !old.CompletedAt.Before(cutoff) {
			kept = append(kept, old)
		}
	}
	s.completions[key] = append(kept, event)
	s.aggregates[key] = agg
	return nil
}

func (s *MemoryProgressStore) SetClaimed(ctx context.Context, userID, projectID string, claimedAt time.Time) error {
	key := progressKey(userID, projectID)

	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.aggregates[key]
	if !ok {
		return ErrNotEligible
	}
	agg.BadgeClaimed = true
	agg.ClaimedAt = &claimedAt
	s.aggregates[key] = agg
	return nil
}

func (s *MemoryProgressStore) ClaimedSince(ctx context.Context, userID string, since time.Time) ([]models.DailyProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var aggs []models.DailyProgress
	for _, agg := range s.aggregates {
		if agg.UserID == userID && agg.BadgeClaimed && agg.ClaimedAt != nil && agg.ClaimedAt.After(since) {
			aggs = append(aggs, agg)
		}
	}
	sort.Slice(aggs, func(i, j int) bool {
		return aggs[i].ClaimedAt.Before(*aggs[j].ClaimedAt)
	})
	return aggs, nil
}

func (s *MemoryProgressStore) TopAggregates(ctx context.Context, projectID string, limit int) ([]models.DailyProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var aggs []models.DailyProgress
	for _, agg := range s.aggregates {
		if agg.ProjectID == projectID {
			aggs = append(aggs, agg)
		}
	}
	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].TotalCompletions != aggs[j].TotalCompletions {
			return aggs[i].TotalCompletions > aggs[j].TotalCompletions
		}
		return aggs[i].CurrentStreak > aggs[j].CurrentStreak
	})
	if len(aggs) > limit {
		aggs = aggs[:limit]
	}
	return aggs, nil
}

func (s *MemoryProgressStore) PruneCompletions(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for key, events := range s.completions {
		kept := events[:0]
		for _, ev := range events {
			if ev.CompletedAt.Before(before) {
				pruned++
			} else {
				kept = append(kept, ev)
			}
		}
		s.completions[key] = kept
	}
	return pruned, nil
}
