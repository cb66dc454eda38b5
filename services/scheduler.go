package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const (
	leaderboardRefreshEvery = 5 * time.Minute
	leaderboardCacheTTL     = 10 * time.Minute
	ledgerRetention         = 48 * time.Hour
)

// StartMaintenanceScheduler runs the periodic jobs: warming the per-project
// leaderboard cache and pruning old ledger rows on adapters that need it.
// Returns the scheduler so the caller can shut it down.
func StartMaintenanceScheduler(tasks *DailyTaskService, cache Cache, quests *QuestService) gocron.Scheduler {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(leaderboardRefreshEvery),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			for _, project := range quests.Projects() {
				aggs, err := tasks.Leaderboard(ctx, project.ID, 25)
				if err != nil {
					log.Printf("[Scheduler] Leaderboard refresh failed for %s: %v", project.ID, err)
					continue
				}
				if err := cache.Set(ctx, "leaderboard:"+project.ID, aggs, leaderboardCacheTTL); err != nil {
					log.Printf("[Scheduler] Leaderboard cache write failed for %s: %v", project.ID, err)
				}
			}
		}),
	)

	_, _ = sched.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			pruner, ok := tasks.Store.(CompletionPruner)
			if !ok {
				return // Redis counters expire via TTL
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			pruned, err := pruner.PruneCompletions(ctx, time.Now().UTC().Add(-ledgerRetention))
			if err != nil {
				log.Printf("[Scheduler] Ledger prune failed: %v", err)
				return
			}
			if pruned > 0 {
				log.Printf("🧹 Pruned %d completion event(s) older than %s", pruned, ledgerRetention)
			}
		}),
	)

	return sched
}
