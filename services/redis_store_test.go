package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"quest-hunt-system/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisProgressStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisProgressStore(client)
}

func redisAppend(t *testing.T, store *RedisProgressStore, userID, projectID, taskType string, at time.Time, total int64) {
	t.Helper()
	day := CalendarDate(at)
	err := store.AppendAndUpdate(context.Background(),
		models.DailyCompletion{
			ID:          taskType + at.Format(time.RFC3339),
			UserID:      userID,
			ProjectID:   projectID,
			TaskType:    taskType,
			CompletedAt: at,
		},
		models.DailyProgress{
			ID:                 "agg-" + userID + "-" + projectID,
			UserID:             userID,
			ProjectID:          projectID,
			TotalCompletions:   total,
			CurrentStreak:      1,
			LastCompletionDate: &day,
		})
	if err != nil {
		t.Fatalf("AppendAndUpdate failed: %v", err)
	}
}

func TestRedisStoreTodayCount(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	redisAppend(t, store, "alice", "nitrodex", "dex_swap", at, 1)
	redisAppend(t, store, "alice", "nitrodex", "dex_swap", at.Add(time.Hour), 2)
	redisAppend(t, store, "alice", "nitrodex", "add_liquidity", at, 3)

	count, err := store.TodayCount(ctx, "alice", "nitrodex", []string{"dex_swap"}, at)
	if err != nil {
		t.Fatalf("TodayCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 dex_swap today, got %d", count)
	}

	count, _ = store.TodayCount(ctx, "alice", "nitrodex", []string{"dex_swap", "add_liquidity"}, at)
	if count != 3 {
		t.Errorf("expected 3 across both types, got %d", count)
	}

	// Different calendar day reads fresh counters.
	count, _ = store.TodayCount(ctx, "alice", "nitrodex", []string{"dex_swap"}, at.AddDate(0, 0, 1))
	if count != 0 {
		t.Errorf("expected 0 tomorrow, got %d", count)
	}
}

func TestRedisStoreAggregateRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	if _, found, err := store.Aggregate(ctx, "alice", "nitrodex"); err != nil || found {
		t.Fatalf("expected no aggregate yet: found=%v err=%v", found, err)
	}

	redisAppend(t, store, "alice", "nitrodex", "dex_swap", at, 7)

	agg, found, err := store.Aggregate(ctx, "alice", "nitrodex")
	if err != nil || !found {
		t.Fatalf("Aggregate: found=%v err=%v", found, err)
	}
	if agg.TotalCompletions != 7 || agg.CurrentStreak != 1 {
		t.Errorf("unexpected aggregate: %+v", agg)
	}
	if agg.LastCompletionDate == nil || !agg.LastCompletionDate.Equal(CalendarDate(at)) {
		t.Errorf("last completion date = %v, want %s", agg.LastCompletionDate, CalendarDate(at))
	}
}

func TestRedisStoreSetClaimedOnce(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	redisAppend(t, store, "alice", "nitrodex", "dex_swap", at, 20)

	if err := store.SetClaimed(ctx, "alice", "nitrodex", at.Add(time.Hour)); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}

	// A claim from another process must not overwrite the first. The service
	// layer can't arbitrate this one; the adapter has to refuse.
	err := store.SetClaimed(ctx, "alice", "nitrodex", at.Add(2*time.Hour))
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed on second claim, got %v", err)
	}

	agg, found, err := store.Aggregate(ctx, "alice", "nitrodex")
	if err != nil || !found {
		t.Fatalf("Aggregate: found=%v err=%v", found, err)
	}
	if !agg.BadgeClaimed {
		t.Error("badge not marked claimed")
	}
	if agg.ClaimedAt == nil || !agg.ClaimedAt.Equal(at.Add(time.Hour)) {
		t.Errorf("claimed_at = %v, want the first claim's timestamp", agg.ClaimedAt)
	}
}

func TestRedisStoreClaimedSince(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	redisAppend(t, store, "alice", "nitrodex", "dex_swap", at, 20)
	if err := store.SetClaimed(ctx, "alice", "nitrodex", at.Add(time.Hour)); err != nil {
		t.Fatalf("SetClaimed failed: %v", err)
	}

	claims, err := store.ClaimedSince(ctx, "alice", at)
	if err != nil {
		t.Fatalf("ClaimedSince failed: %v", err)
	}
	if len(claims) != 1 || claims[0].ProjectID != "nitrodex" {
		t.Fatalf("expected one nitrodex claim, got %+v", claims)
	}

	claims, _ = store.ClaimedSince(ctx, "alice", at.Add(2*time.Hour))
	if len(claims) != 0 {
		t.Errorf("expected no claims past cursor, got %d", len(claims))
	}
}

func TestRedisStoreTopAggregates(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	redisAppend(t, store, "alice", "nitrodex", "dex_swap", at, 5)
	redisAppend(t, store, "bob", "nitrodex", "dex_swap", at, 9)

	top, err := store.TopAggregates(ctx, "nitrodex", 10)
	if err != nil {
		t.Fatalf("TopAggregates failed: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	if top[0].UserID != "bob" || top[0].TotalCompletions != 9 {
		t.Errorf("expected bob on top with 9, got %s/%d", top[0].UserID, top[0].TotalCompletions)
	}
}
