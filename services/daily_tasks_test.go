package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quest-hunt-system/models"
)

type stubCatalog struct {
	projects map[string]models.Project
}

func newStubCatalog(projects ...models.Project) *stubCatalog {
	c := &stubCatalog{projects: make(map[string]models.Project)}
	for _, p := range projects {
		c.projects[p.ID] = p
	}
	return c
}

func (c *stubCatalog) Project(id string) (models.Project, bool) {
	p, ok := c.projects[id]
	return p, ok
}

func (c *stubCatalog) Projects() []models.Project {
	var out []models.Project
	for _, p := range c.projects {
		out = append(out, p)
	}
	return out
}

func testProject() models.Project {
	return models.Project{
		ID:               "nitrodex",
		Name:             "NitroDex",
		BadgeRequirement: 3,
		TaskTypes: []models.DailyTaskConfig{
			{Type: "dex_swap", DisplayName: "Daily Swap", DailyCeiling: 2},
			{Type: "add_liquidity", DisplayName: "Daily Add Liquidity", DailyCeiling: 1},
		},
	}
}

func groupedProject() models.Project {
	return models.Project{
		ID:               "inarfi",
		Name:             "Inarfi",
		BadgeRequirement: 10,
		TaskTypes: []models.DailyTaskConfig{
			{Type: "deposit", DisplayName: "Daily Deposit", DailyCeiling: 3, GroupKey: "defi_actions"},
			{Type: "borrow", DisplayName: "Daily Borrow", DailyCeiling: 3, GroupKey: "defi_actions"},
			{Type: "repay", DisplayName: "Daily Repay", DailyCeiling: 3, GroupKey: "defi_actions"},
		},
	}
}

func newTestService(projects ...models.Project) (*DailyTaskService, *MemoryProgressStore) {
	store := NewMemoryProgressStore()
	svc := NewDailyTaskService(store, newStubCatalog(projects...), nil)
	return svc, store
}

var day1 = time.Date(2025, 6, 10, 14, 30, 0, 0, time.UTC)

func TestCompleteTaskFirstCompletion(t *testing.T) {
	svc, _ := newTestService(testProject())

	res, err := svc.CompleteTask(context.Background(), "alice", "nitrodex", "dex_swap", "", day1)
	if err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	if res.TotalCompletions != 1 {
		t.Errorf("expected total 1, got %d", res.TotalCompletions)
	}
	if res.CurrentStreak != 1 {
		t.Errorf("expected streak 1, got %d", res.CurrentStreak)
	}
}

func TestCompleteTaskUnknownProject(t *testing.T) {
	svc, _ := newTestService(testProject())

	if _, err := svc.CompleteTask(context.Background(), "alice", "nope", "dex_swap", "", day1); !errors.Is(err, ErrUnknownProject) {
		t.Fatalf("expected ErrUnknownProject, got %v", err)
	}
	if _, err := svc.CompleteTask(context.Background(), "alice", "nitrodex", "nope", "", day1); !errors.Is(err, ErrUnknownTaskType) {
		t.Fatalf("expected ErrUnknownTaskType, got %v", err)
	}
}

func TestDailyCeilingEnforced(t *testing.T) {
	svc, _ := newTestService(testProject())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.CompleteTask(ctx, "alice", "nitrodex", "dex_swap", "", day1); err != nil {
			t.Fatalf("completion %d failed: %v", i+1, err)
		}
	}

	// The third attempt on the same day must be rejected without touching
	// totals or the streak.
	_, err := svc.CompleteTask(ctx, "alice", "nitrodex", "dex_swap", "", day1.Add(time.Hour))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	stats, err := svc.GetDailyStats(ctx, "alice", "nitrodex", day1)
	if err != nil {
		t.Fatalf("GetDailyStats failed: %v", err)
	}
	if stats.TotalCompletions != 2 {
		t.Errorf("rejected attempt changed total: got %d, want 2", stats.TotalCompletions)
	}
	if stats.CurrentStreak != 1 {
		t.Errorf("rejected attempt changed streak: got %d, want 1", stats.CurrentStreak)
	}
}

func TestCeilingResetsNextDay(t *testing.T) {
	svc, _ := newTestService(testProject())
	ctx := context.Background()

	if _, err := svc.CompleteTask(ctx, "alice", "nitrodex", "add_liquidity", "", day1); err != nil {
		t.Fatalf("day 1 completion failed: %v", err)
	}
	if _, err := svc.CompleteTask(ctx, "alice", "nitrodex", "add_liquidity", "", day1.Add(time.Hour)); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on second same-day attempt, got %v", err)
	}

	res, err := svc.CompleteTask(ctx, "alice", "nitrodex", "add_liquidity", "", day1.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("next-day completion failed: %v", err)
	}
	if res.TotalCompletions != 2 {
		t.Errorf("expected total 2, got %d", res.TotalCompletions)
	}
}

func TestCeilingsIndependentPerTaskType(t *testing.T) {
	svc, _ := newTestService(testProject())
	ctx := context.Background()

	if _, err := svc.CompleteTask(ctx, "alice", "nitrodex", "add_liquidity", "", day1); err != nil {
		t.Fatalf("add_liquidity failed: %v", err)
	}
	// add_liquidity is maxed out but dex_swap still has room.
	if _, err := svc.CompleteTask(ctx, "alice", "nitrodex", "dex_swap", "", day1); err != nil {
		t.Fatalf("dex_swap blocked by unrelated type: %v", err)
	}
}

func TestGroupedCeilingShared(t *testing.T) {
	svc, _ := newTestService(groupedProject())
	ctx := context.Background()

	// Three completions spread across the group exhaust the shared ceiling.
	for _, taskType := range []string{"deposit", "borrow", "repay"} {
		if _, err := svc.CompleteTask(ctx, "alice", "inarfi", taskType, "", day1); err != nil {
			t.Fatalf("%s failed: %v", taskType, err)
		}
	}

	for _, taskType := range []string{"deposit", "borrow", "repay"} {
		if _, err := svc.CompleteTask(ctx, "alice", "inarfi", taskType, "", day1); !errors.Is(err, ErrRateLimited) {
			t.Fatalf("%s: expected ErrRateLimited after group exhausted, got %v", taskType, err)
		}
	}
}

func TestCeilingsIndependentPerUser(t *testing.T) {
	svc, _ := newTestService(testProject())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.CompleteTask(ctx, "alice", "nitrodex", "dex_swap", "", day1); err != nil {
			t.Fatalf("alice completion failed: %v", err)
		}
	}
	if _, err := svc.CompleteTask(ctx, "bob", "nitrodex", "dex_swap", "", day1); err != nil {
		t.Fatalf("bob blocked by alice's ceiling: %v", err)
	}
}

func TestStreakRules(t *testing.T) {
	svc, _ := newTestService(testProject())
	ctx := context.Background()

	// Day 1.
	res, err := svc.CompleteTask(ctx, "alice", "nitrodex", "dex_swap", "", day1)
	if err != nil {
		t.Fatalf("day 1 failed: %v", err)
	}
	if res.CurrentStreak != 1 {
		t.Errorf("day 1: expected streak 1, got %d", res.CurrentStreak)
	}

	// Same day again: unchanged.
	res, err = svc.CompleteTask(ctx, "alice", "nitrodex", "dex_swap", "", day1.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("same-day repeat failed: %v", err)
	}
	if res.CurrentStreak != 1 {
		t.Errorf("same-day repeat: expected streak 1, got %d", res.CurrentStreak)
	}

	// Next day: +1.
	res, err = svc.CompleteTask(ctx, "alice", "nitrodex", "dex_swap", "", day1.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("day 2 failed: %v", err)
	}
	if res.CurrentStreak != 2 {
		t.Errorf("day 2: expected streak 2, got %d", res.CurrentStreak)
	}

	// Skip a day: reset to 1, total keeps growing.
	res, err = svc.CompleteTask(ctx, "alice", "nitrodex", "dex_swap", "", day1.AddDate(0, 0, 4))
	if err != nil {
		t.Fatalf("day 5 failed: %v", err)
	}
	if res.CurrentStreak != 1 {
		t.Errorf("after gap: expected streak 1, got %d", res.CurrentStreak)
	}
	if res.TotalCompletions != 4 {
		t.Errorf("expected total 4, got %d", res.TotalCompletions)
	}
}

func TestNextStreakNormalizesStoredOffset(t *testing.T) {
	// A date column read back in a non-UTC zone still refers to the same
	// calendar day.
	loc := time.FixedZone("UTC+5", 5*3600)
	last := time.Date(2025, 6, 10, 0, 0, 0, 0, loc)
	today := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)

	if got := nextStreak(&last, 3, today); got != 4 {
		t.Errorf("expected streak 4, got %d", got)
	}
}

func TestCompleteTaskAcrossMidnight(t *testing.T) {
	svc, _ := newTestService(testProject())
	ctx := context.Background()

	lateNight := time.Date(2025, 6, 10, 23, 59, 30, 0, time.UTC)
	justAfter := time.Date(2025, 6, 11, 0, 0, 30, 0, time.UTC)

	if _, err := svc.CompleteTask(ctx, "alice", "nitrodex", "add_liquidity", "", lateNight); err != nil {
		t.Fatalf("late-night completion failed: %v", err)
	}
	res, err := svc.CompleteTask(ctx, "alice", "nitrodex", "add_liquidity", "", justAfter)
	if err != nil {
		t.Fatalf("post-midnight completion failed: %v", err)
	}
	if res.CurrentStreak != 2 {
		t.Errorf("expected streak 2 across midnight, got %d", res.CurrentStreak)
	}
}

type fixedVerifier struct {
	pass bool
	err  error
}

func (v fixedVerifier) Verify(ctx context.Context, req VerificationRequest) (bool, error) {
	return v.pass, v.err
}

type captureVerifier struct {
	got VerificationRequest
}

func (v *captureVerifier) Verify(ctx context.Context, req VerificationRequest) (bool, error) {
	v.got = req
	return true, nil
}

func TestCompleteTaskPassesVerifyDelayToVerifier(t *testing.T) {
	project := testProject()
	project.TaskTypes[0].VerifyDelayMs = 2000

	verifier := &captureVerifier{}
	svc := NewDailyTaskService(NewMemoryProgressStore(), newStubCatalog(project), verifier)

	if _, err := svc.CompleteTask(context.Background(), "alice", "nitrodex", "dex_swap", "0xdeadbeef", day1); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	if verifier.got.VerifyDelayMs != 2000 {
		t.Errorf("verifier saw delay %d, want 2000", verifier.got.VerifyDelayMs)
	}
	if verifier.got.Data != "0xdeadbeef" {
		t.Errorf("verifier saw data %q, want the caller's evidence", verifier.got.Data)
	}
}

func TestVerificationFailureLeavesStateUntouched(t *testing.T) {
	store := NewMemoryProgressStore()
	svc := NewDailyTaskService(store, newStubCatalog(testProject()), fixedVerifier{pass: false})
	ctx := context.Background()

	_, err := svc.CompleteTask(ctx, "alice", "nitrodex", "dex_swap", "", day1)
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}

	if _, found, _ := store.Aggregate(ctx, "alice", "nitrodex"); found {
		t.Error("failed verification created an aggregate")
	}
	count, _ := store.TodayCount(ctx, "alice", "nitrodex", []string{"dex_swap"}, day1)
	if count != 0 {
		t.Errorf("failed verification burned a slot: count=%d", count)
	}
}

func TestVerificationErrorPropagates(t *testing.T) {
	wantErr := errors.New("verifier offline")
	svc := NewDailyTaskService(NewMemoryProgressStore(), newStubCatalog(testProject()), fixedVerifier{err: wantErr})

	if _, err := svc.CompleteTask(context.Background(), "alice", "nitrodex", "dex_swap", "", day1); !errors.Is(err, wantErr) {
		t.Fatalf("expected verifier error, got %v", err)
	}
}

func TestCancelledVerificationIsNoOp(t *testing.T) {
	store := NewMemoryProgressStore()
	svc := NewDailyTaskService(store, newStubCatalog(testProject()), &SimulatedVerifier{Delay: time.Minute, PassRate: 1})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	if _, err := svc.CompleteTask(ctx, "alice", "nitrodex", "dex_swap", "", day1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, found, _ := store.Aggregate(context.Background(), "alice", "nitrodex"); found {
		t.Error("cancelled completion created an aggregate")
	}
}

func TestConcurrentCompletionsRespectCeiling(t *testing.T) {
	svc, _ := newTestService(testProject())
	ctx := context.Background()

	const attempts = 10
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CompleteTask(ctx, "alice", "nitrodex", "dex_swap", "", day1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, limited int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrRateLimited):
			limited++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 2 {
		t.Errorf("expected exactly 2 successes (ceiling), got %d", ok)
	}
	if limited != attempts-2 {
		t.Errorf("expected %d rate-limited attempts, got %d", attempts-2, limited)
	}

	stats, err := svc.GetDailyStats(ctx, "alice", "nitrodex", day1)
	if err != nil {
		t.Fatalf("GetDailyStats failed: %v", err)
	}
	if stats.TotalCompletions != 2 {
		t.Errorf("expected total 2 after concurrent burst, got %d", stats.TotalCompletions)
	}
}

func TestClaimBadge(t *testing.T) {
	svc, _ := newTestService(testProject())
	ctx := context.Background()

	// Not eligible with zero progress.
	if _, err := svc.ClaimBadge(ctx, "alice", "nitrodex", day1); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible with no progress, got %v", err)
	}

	// Two completions: still below the requirement of 3.
	for i := 0; i < 2; i++ {
		if _, err := svc.CompleteTask(ctx, "alice", "nitrodex", "dex_swap", "", day1.AddDate(0, 0, i)); err != nil {
			t.Fatalf("completion failed: %v", err)
		}
	}
	if _, err := svc.ClaimBadge(ctx, "alice", "nitrodex", day1); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible below requirement, got %v", err)
	}

	if _, err := svc.CompleteTask(ctx, "alice", "nitrodex", "dex_swap", "", day1.AddDate(0, 0, 2)); err != nil {
		t.Fatalf("completion failed: %v", err)
	}

	res, err := svc.ClaimBadge(ctx, "alice", "nitrodex", day1.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("ClaimBadge failed: %v", err)
	}
	if res.ClaimedAt.IsZero() {
		t.Error("expected a claim timestamp")
	}

	// Second claim must fail even though the requirement is still met.
	if _, err := svc.ClaimBadge(ctx, "alice", "nitrodex", day1.AddDate(0, 0, 3)); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestGetDailyStats(t *testing.T) {
	svc, _ := newTestService(testProject())
	ctx := context.Background()

	if _, err := svc.CompleteTask(ctx, "alice", "nitrodex", "dex_swap", "", day1); err != nil {
		t.Fatalf("completion failed: %v", err)
	}
	if _, err := svc.CompleteTask(ctx, "alice", "nitrodex", "add_liquidity", "", day1); err != nil {
		t.Fatalf("completion failed: %v", err)
	}

	stats, err := svc.GetDailyStats(ctx, "alice", "nitrodex", day1)
	if err != nil {
		t.Fatalf("GetDailyStats failed: %v", err)
	}
	if stats.TotalCompletions != 2 || stats.CurrentStreak != 1 {
		t.Errorf("unexpected aggregate: total=%d streak=%d", stats.TotalCompletions, stats.CurrentStreak)
	}
	if stats.BadgeEligible {
		t.Error("2 of 3 completions should not be badge-eligible")
	}

	byType := map[string]TaskStats{}
	for _, ts := range stats.Tasks {
		byType[ts.Type] = ts
	}
	swap := byType["dex_swap"]
	if swap.CompletedToday != 1 || !swap.CanCompleteToday {
		t.Errorf("dex_swap: completed=%d can=%v, want 1/true", swap.CompletedToday, swap.CanCompleteToday)
	}
	liq := byType["add_liquidity"]
	if liq.CompletedToday != 1 || liq.CanCompleteToday {
		t.Errorf("add_liquidity: completed=%d can=%v, want 1/false", liq.CompletedToday, liq.CanCompleteToday)
	}
}

func TestGetDailyStatsGroupGatesAllMembers(t *testing.T) {
	svc, _ := newTestService(groupedProject())
	ctx := context.Background()

	for _, taskType := range []string{"deposit", "deposit", "borrow"} {
		if _, err := svc.CompleteTask(ctx, "alice", "inarfi", taskType, "", day1); err != nil {
			t.Fatalf("%s failed: %v", taskType, err)
		}
	}

	stats, err := svc.GetDailyStats(ctx, "alice", "inarfi", day1)
	if err != nil {
		t.Fatalf("GetDailyStats failed: %v", err)
	}
	for _, ts := range stats.Tasks {
		if ts.CanCompleteToday {
			t.Errorf("%s: group ceiling exhausted but CanCompleteToday=true", ts.Type)
		}
	}
}

func TestLeaderboard(t *testing.T) {
	svc, _ := newTestService(testProject())
	ctx := context.Background()

	for day := 0; day < 2; day++ {
		if _, err := svc.CompleteTask(ctx, "alice", "nitrodex", "dex_swap", "", day1.AddDate(0, 0, day)); err != nil {
			t.Fatalf("alice completion failed: %v", err)
		}
	}
	if _, err := svc.CompleteTask(ctx, "bob", "nitrodex", "dex_swap", "", day1); err != nil {
		t.Fatalf("bob completion failed: %v", err)
	}

	top, err := svc.Leaderboard(ctx, "nitrodex", 10)
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	if top[0].UserID != "alice" || top[0].TotalCompletions != 2 {
		t.Errorf("expected alice on top with 2, got %s/%d", top[0].UserID, top[0].TotalCompletions)
	}

	if _, err := svc.Leaderboard(ctx, "nope", 10); !errors.Is(err, ErrUnknownProject) {
		t.Fatalf("expected ErrUnknownProject, got %v", err)
	}
}
