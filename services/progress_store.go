package services

import (
	"context"
	"time"

	"quest-hunt-system/models"
)

// ProgressStore is the persistence capability behind the daily task tracker.
// Three adapters implement it: Postgres (GormProgressStore), Redis counters
// (RedisProgressStore) and an in-process map (MemoryProgressStore).
//
// Callers serialize operations per (userID, projectID), so adapters only need
// to make each individual call all-or-nothing; they never see two concurrent
// writes for the same pair.
type ProgressStore interface {
	// TodayCount counts accepted completions for any of taskTypes on the
	// calendar day containing day (UTC).
	TodayCount(ctx context.Context, userID, projectID string, taskTypes []string, day time.Time) (int, error)

	// Aggregate fetches the (user, project) summary. found=false when the
	// pair has no accepted completion yet.
	Aggregate(ctx context.Context, userID, projectID string) (models.DailyProgress, bool, error)

	// AppendAndUpdate atomically appends one completion event and upserts
	// the already-recomputed aggregate. No partial writes on error.
	AppendAndUpdate(ctx context.Context, event models.DailyCompletion, agg models.DailyProgress) error

	// SetClaimed flips the badge flag for the pair and stamps claimedAt.
	SetClaimed(ctx context.Context, userID, projectID string, claimedAt time.Time) error

	// ClaimedSince lists the user's aggregates whose badge was claimed after
	// the cursor, oldest first. Feeds the badge SSE stream.
	ClaimedSince(ctx context.Context, userID string, since time.Time) ([]models.DailyProgress, error)

	// TopAggregates returns up to limit aggregates for a project ordered by
	// total completions descending. Feeds the leaderboard.
	TopAggregates(ctx context.Context, projectID string, limit int) ([]models.DailyProgress, error)
}

// CompletionPruner is implemented by adapters that need explicit storage
// hygiene; the Redis adapter relies on key TTLs instead.
type CompletionPruner interface {
	PruneCompletions(ctx context.Context, before time.Time) (int64, error)
}

// CalendarDate truncates an instant to day granularity in the reference
// timezone (UTC). Every ceiling check and streak decision in one CompleteTask
// call derives from a single sample passed through here.
func CalendarDate(instant time.Time) time.Time {
	utc := instant.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}
