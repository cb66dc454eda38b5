package handlers

import (
	"errors"
	"strconv"
	"time"

	"quest-hunt-system/middleware"
	"quest-hunt-system/services"

	"github.com/gofiber/fiber/v2"
)

// statusForError maps the service error taxonomy onto HTTP responses. Every
// kind is a per-request failure with its own user-facing message.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrRateLimited):
		return fiber.StatusTooManyRequests, "Daily limit reached. Try again tomorrow."
	case errors.Is(err, services.ErrVerificationFailed):
		return fiber.StatusUnprocessableEntity, "Verification failed. Please try again."
	case errors.Is(err, services.ErrAlreadyClaimed):
		return fiber.StatusBadRequest, "Badge already claimed."
	case errors.Is(err, services.ErrNotEligible):
		return fiber.StatusBadRequest, "Badge requirement not met yet."
	case errors.Is(err, services.ErrUnknownProject), errors.Is(err, services.ErrUnknownTaskType):
		return fiber.StatusBadRequest, "Unknown project or task type."
	case errors.Is(err, services.ErrPersistenceUnavailable):
		return fiber.StatusServiceUnavailable, "Service temporarily unavailable."
	default:
		return fiber.StatusInternalServerError, "Something went wrong."
	}
}

func SetupDailyTaskRoutes(app *fiber.App, dailyTasks *services.DailyTaskService, authService *services.AuthService, cache services.Cache) {
	group := app.Group("/daily-tasks", middleware.AuthRequired(authService))

	// Complete a daily task
	group.Post("/complete", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			ProjectID        string `json:"project_id"`
			TaskType         string `json:"task_type"`
			VerificationData string `json:"verification_data"`
		}
		if err := c.BodyParser(&req); err != nil || req.ProjectID == "" || req.TaskType == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "task type and project ID are required",
			})
		}

		result, err := dailyTasks.CompleteTask(c.Context(), userID, req.ProjectID, req.TaskType, req.VerificationData, time.Now())
		if err != nil {
			status, msg := statusForError(err)
			return c.Status(status).JSON(fiber.Map{
				"error": msg,
				"cause": err.Error(),
			})
		}

		// Stats for this user changed; drop the cached projection.
		_ = cache.Del(c.Context(), "user_progress:"+userID)
		_ = cache.TrackActivity(c.Context(), userID, "completed_daily_task:"+req.TaskType+":"+req.ProjectID)

		return c.JSON(fiber.Map{
			"success":           true,
			"message":           "Daily task completed successfully",
			"total_completions": result.TotalCompletions,
			"current_streak":    result.CurrentStreak,
		})
	})

	// Per-project daily stats for the authenticated user
	group.Get("/stats/:projectId", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		stats, err := dailyTasks.GetDailyStats(c.Context(), userID, c.Params("projectId"), time.Now())
		if err != nil {
			status, msg := statusForError(err)
			return c.Status(status).JSON(fiber.Map{
				"error": msg,
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"stats": stats})
	})

	// All-project progress summary for the authenticated user
	group.Get("/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		cacheKey := "user_progress:" + userID

		var cached []services.DailyStats
		if found, err := cache.Get(c.Context(), cacheKey, &cached); err == nil && found {
			return c.JSON(fiber.Map{"progress": cached})
		}

		var progress []services.DailyStats
		now := time.Now()
		for _, project := range dailyTasks.Projects() {
			stats, err := dailyTasks.GetDailyStats(c.Context(), userID, project.ID, now)
			if err != nil {
				status, msg := statusForError(err)
				return c.Status(status).JSON(fiber.Map{
					"error": msg,
					"cause": err.Error(),
				})
			}
			progress = append(progress, stats)
		}

		_ = cache.Set(c.Context(), cacheKey, progress, 5*time.Minute)
		return c.JSON(fiber.Map{"progress": progress})
	})

	// Claim the project badge
	group.Post("/claim-badge", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			ProjectID string `json:"project_id"`
		}
		if err := c.BodyParser(&req); err != nil || req.ProjectID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "project ID is required",
			})
		}

		result, err := dailyTasks.ClaimBadge(c.Context(), userID, req.ProjectID, time.Now())
		if err != nil {
			status, msg := statusForError(err)
			return c.Status(status).JSON(fiber.Map{
				"error": msg,
				"cause": err.Error(),
			})
		}

		_ = cache.Del(c.Context(), "user_progress:"+userID)
		_ = cache.TrackActivity(c.Context(), userID, "claimed_badge:"+req.ProjectID)

		return c.JSON(fiber.Map{
			"success":    true,
			"message":    "Badge claimed successfully",
			"claimed_at": result.ClaimedAt,
		})
	})

	// Activity history
	group.Get("/activity", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		if limit < 1 || limit > 1000 {
			limit = 50
		}

		activities, err := cache.Activities(c.Context(), userID, limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get user activities",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"activities": activities})
	})

	// Badge claims as a live stream
	app.Get("/user/badges/stream", middleware.SSEAuth(authService), dailyTasks.StreamUserBadgesSSE)
}
