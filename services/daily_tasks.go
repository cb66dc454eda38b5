package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"quest-hunt-system/models"

	"github.com/google/uuid"
)

// Catalog resolves project configuration. Must be fully loaded before any
// CompleteTask/ClaimBadge call.
type Catalog interface {
	Project(id string) (models.Project, bool)
	Projects() []models.Project
}

// CompleteResult is returned for each accepted completion.
type CompleteResult struct {
	TotalCompletions int64 `json:"total_completions"`
	CurrentStreak    int   `json:"current_streak"`
}

// ClaimResult is returned for a successful badge claim.
type ClaimResult struct {
	ClaimedAt time.Time `json:"claimed_at"`
}

// TaskStats is the per-task-type slice of DailyStats.
type TaskStats struct {
	Type             string `json:"type"`
	DisplayName      string `json:"display_name"`
	CompletedToday   int    `json:"completed_today"`
	DailyCeiling     int    `json:"daily_ceiling"`
	CanCompleteToday bool   `json:"can_complete_today"`
	Link             string `json:"link,omitempty"`
	Reward           string `json:"reward,omitempty"`
}

// DailyStats is the read-only projection served to UI/API consumers.
type DailyStats struct {
	ProjectID        string      `json:"project_id"`
	TotalCompletions int64       `json:"total_completions"`
	CurrentStreak    int         `json:"current_streak"`
	BadgeRequirement int         `json:"badge_requirement"`
	BadgeClaimed     bool        `json:"badge_claimed"`
	BadgeEligible    bool        `json:"badge_eligible"`
	Tasks            []TaskStats `json:"tasks"`
}

// DailyTaskService enforces per-day ceilings, keeps streaks, appends to the
// completion ledger and guards badge claims. All mutating operations for one
// (user, project) pair are serialized through a keyed mutex; different pairs
// proceed independently.
type DailyTaskService struct {
	Store    ProgressStore
	Catalog  Catalog
	Verifier Verifier // optional; nil skips the verification step

	locks *keyedMutex
}

func NewDailyTaskService(store ProgressStore, catalog Catalog, verifier Verifier) *DailyTaskService {
	return &DailyTaskService{
		Store:    store,
		Catalog:  catalog,
		Verifier: verifier,
		locks:    newKeyedMutex(),
	}
}

func progressKey(userID, projectID string) string {
	return userID + "|" + projectID
}

// CompleteTask records one accepted daily task completion.
//
// The calendar day is sampled once from now and reused for both the ceiling
// check and the streak decision, so a call straddling midnight can neither be
// double-counted nor mis-streaked. Failures (ErrRateLimited,
// ErrVerificationFailed, ErrPersistenceUnavailable) leave ledger and
// aggregate untouched.
func (s *DailyTaskService) CompleteTask(ctx context.Context, userID, projectID, taskType, verificationData string, now time.Time) (CompleteResult, error) {
	var res CompleteResult

	project, ok := s.Catalog.Project(projectID)
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrUnknownProject, projectID)
	}
	taskCfg, ok := project.TaskConfig(taskType)
	if !ok {
		return res, fmt.Errorf("%w: %s/%s", ErrUnknownTaskType, projectID, taskType)
	}

	unlock := s.locks.Lock(progressKey(userID, projectID))
	defer unlock()

	today := CalendarDate(now)

	// Ceiling check counts the whole group when the task shares a limit.
	counted := project.GroupMembers(taskType)
	count, err := s.Store.TodayCount(ctx, userID, projectID, counted, today)
	if err != nil {
		return res, err
	}
	if count >= taskCfg.DailyCeiling {
		return res, fmt.Errorf("%w: %s allows %d per day", ErrRateLimited, taskCfg.DisplayName, taskCfg.DailyCeiling)
	}

	// External verification happens after the ceiling check so a failed check
	// never burns a slot, and before any write so a cancelled wait is a
	// clean no-op.
	if s.Verifier != nil {
		verified, err := s.Verifier.Verify(ctx, VerificationRequest{
			UserID:        userID,
			ProjectID:     projectID,
			TaskType:      taskType,
			Data:          verificationData,
			VerifyDelayMs: taskCfg.VerifyDelayMs,
		})
		if err != nil {
			return res, err
		}
		if !verified {
			return res, fmt.Errorf("%w: %s", ErrVerificationFailed, taskCfg.DisplayName)
		}
	}

	agg, found, err := s.Store.Aggregate(ctx, userID, projectID)
	if err != nil {
		return res, err
	}
	if !found {
		agg = models.DailyProgress{
			ID:        uuid.NewString(),
			UserID:    userID,
			ProjectID: projectID,
		}
	}

	agg.TotalCompletions++
	agg.CurrentStreak = nextStreak(agg.LastCompletionDate, agg.CurrentStreak, today)
	agg.LastCompletionDate = &today

	event := models.DailyCompletion{
		ID:               uuid.NewString(),
		UserID:           userID,
		ProjectID:        projectID,
		TaskType:         taskType,
		CompletedAt:      now.UTC(),
		VerificationData: verificationData,
	}

	if err := s.Store.AppendAndUpdate(ctx, event, agg); err != nil {
		return res, err
	}

	log.Printf("✅ Daily task completed: %s %s/%s → total=%d streak=%d",
		userID, projectID, taskType, agg.TotalCompletions, agg.CurrentStreak)

	res.TotalCompletions = agg.TotalCompletions
	res.CurrentStreak = agg.CurrentStreak
	return res, nil
}

// nextStreak applies the streak rule: a same-day repeat leaves the streak
// unchanged, a completion on the day after the last one extends it, anything
// else (including the very first completion) resets it to 1.
func nextStreak(lastDate *time.Time, current int, today time.Time) int {
	if lastDate == nil {
		return 1
	}
	// Stores may hand the date back with a non-UTC offset; renormalize on
	// its own wall-clock day, not via CalendarDate, which would shift it.
	last := time.Date(lastDate.Year(), lastDate.Month(), lastDate.Day(), 0, 0, 0, 0, time.UTC)
	switch {
	case last.Equal(today):
		return current
	case last.Equal(today.AddDate(0, 0, -1)):
		return current + 1
	default:
		return 1
	}
}

// ClaimBadge flips the badge flag exactly once, after the project's
// completion requirement is met.
func (s *DailyTaskService) ClaimBadge(ctx context.Context, userID, projectID string, now time.Time) (ClaimResult, error) {
	var res ClaimResult

	project, ok := s.Catalog.Project(projectID)
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrUnknownProject, projectID)
	}

	unlock := s.locks.Lock(progressKey(userID, projectID))
	defer unlock()

	agg, found, err := s.Store.Aggregate(ctx, userID, projectID)
	if err != nil {
		return res, err
	}
	if !found {
		return res, fmt.Errorf("%w: no completions for %s yet", ErrNotEligible, projectID)
	}
	if agg.BadgeClaimed {
		return res, ErrAlreadyClaimed
	}
	if agg.TotalCompletions < int64(project.BadgeRequirement) {
		return res, fmt.Errorf("%w: %d of %d completions", ErrNotEligible, agg.TotalCompletions, project.BadgeRequirement)
	}

	claimedAt := now.UTC()
	if err := s.Store.SetClaimed(ctx, userID, projectID, claimedAt); err != nil {
		return res, err
	}

	log.Printf("🎖️ Badge claimed: %s → %s", projectID, userID)

	res.ClaimedAt = claimedAt
	return res, nil
}

// GetDailyStats builds the per-project projection for one user.
func (s *DailyTaskService) GetDailyStats(ctx context.Context, userID, projectID string, now time.Time) (DailyStats, error) {
	project, ok := s.Catalog.Project(projectID)
	if !ok {
		return DailyStats{}, fmt.Errorf("%w: %s", ErrUnknownProject, projectID)
	}

	today := CalendarDate(now)

	agg, found, err := s.Store.Aggregate(ctx, userID, projectID)
	if err != nil {
		return DailyStats{}, err
	}

	stats := DailyStats{
		ProjectID:        projectID,
		BadgeRequirement: project.BadgeRequirement,
	}
	if found {
		stats.TotalCompletions = agg.TotalCompletions
		stats.CurrentStreak = agg.CurrentStreak
		stats.BadgeClaimed = agg.BadgeClaimed
	}
	stats.BadgeEligible = stats.TotalCompletions >= int64(project.BadgeRequirement) && !stats.BadgeClaimed

	for _, tc := range project.TaskTypes {
		completed, err := s.Store.TodayCount(ctx, userID, projectID, []string{tc.Type}, today)
		if err != nil {
			return DailyStats{}, err
		}
		// The gate compares the group total, not the single type.
		groupCount, err := s.Store.TodayCount(ctx, userID, projectID, project.GroupMembers(tc.Type), today)
		if err != nil {
			return DailyStats{}, err
		}
		stats.Tasks = append(stats.Tasks, TaskStats{
			Type:             tc.Type,
			DisplayName:      tc.DisplayName,
			CompletedToday:   completed,
			DailyCeiling:     tc.DailyCeiling,
			CanCompleteToday: groupCount < tc.DailyCeiling,
			Link:             tc.Link,
			Reward:           tc.Reward,
		})
	}
	return stats, nil
}

// Projects exposes the catalog list for callers that iterate all projects.
func (s *DailyTaskService) Projects() []models.Project {
	return s.Catalog.Projects()
}

// Leaderboard returns the project's top aggregates by total completions.
func (s *DailyTaskService) Leaderboard(ctx context.Context, projectID string, limit int) ([]models.DailyProgress, error) {
	if _, ok := s.Catalog.Project(projectID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProject, projectID)
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}
	return s.Store.TopAggregates(ctx, projectID, limit)
}
