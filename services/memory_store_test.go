package services

import (
	"context"
	"testing"
	"time"

	"quest-hunt-system/models"
)

func appendCompletion(t *testing.T, store *MemoryProgressStore, userID, projectID, taskType string, at time.Time, total int64) {
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

func TestMemoryStoreTodayCountFiltersDayAndType(t *testing.T) {
	store := NewMemoryProgressStore()
	ctx := context.Background()
	at := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	appendCompletion(t, store, "alice", "nitrodex", "dex_swap", at, 1)
	appendCompletion(t, store, "alice", "nitrodex", "add_liquidity", at.Add(time.Hour), 2)
	appendCompletion(t, store, "alice", "nitrodex", "dex_swap", at.AddDate(0, 0, -1), 3)

	count, err := store.TodayCount(ctx, "alice", "nitrodex", []string{"dex_swap"}, at)
	if err != nil {
		t.Fatalf("TodayCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 dex_swap today, got %d", count)
	}

	count, _ = store.TodayCount(ctx, "alice", "nitrodex", []string{"dex_swap", "add_liquidity"}, at)
	if count != 2 {
		t.Errorf("expected 2 across both types, got %d", count)
	}
}

func TestMemoryStorePrunesRollingWindowOnAppend(t *testing.T) {
	store := NewMemoryProgressStore()
	at := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	appendCompletion(t, store, "alice", "nitrodex", "dex_swap", at.AddDate(0, 0, -5), 1)
	appendCompletion(t, store, "alice", "nitrodex", "dex_swap", at, 2)

	store.mu.RLock()
	events := store.completions[progressKey("alice", "nitrodex")]
	store.mu.RUnlock()
	if len(events) != 1 {
		t.Errorf("expected the 5-day-old event pruned, have %d events", len(events))
	}
}

func TestMemoryStorePruneCompletions(t *testing.T) {
	store := NewMemoryProgressStore()
	at := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	appendCompletion(t, store, "alice", "nitrodex", "dex_swap", at.Add(-36*time.Hour), 1)
	appendCompletion(t, store, "alice", "nitrodex", "dex_swap", at, 2)

	pruned, err := store.PruneCompletions(context.Background(), at.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneCompletions failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned, got %d", pruned)
	}
}

func TestMemoryStoreClaimedSince(t *testing.T) {
	store := NewMemoryProgressStore()
	ctx := context.Background()
	at := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	appendCompletion(t, store, "alice", "nitrodex", "dex_swap", at, 1)
	appendCompletion(t, store, "alice", "kingdom", "daily_checkin", at, 1)

	if err := store.SetClaimed(ctx, "alice", "kingdom", at.Add(time.Hour)); err != nil {
		t.Fatalf("SetClaimed failed: %v", err)
	}

	claims, err := store.ClaimedSince(ctx, "alice", at)
	if err != nil {
		t.Fatalf("ClaimedSince failed: %v", err)
	}
	if len(claims) != 1 || claims[0].ProjectID != "kingdom" {
		t.Fatalf("expected one kingdom claim, got %+v", claims)
	}

	// Cursor past the claim returns nothing.
	claims, _ = store.ClaimedSince(ctx, "alice", at.Add(2*time.Hour))
	if len(claims) != 0 {
		t.Errorf("expected no claims past cursor, got %d", len(claims))
	}
}
