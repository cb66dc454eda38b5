package handlers

import (
	"time"

	"quest-hunt-system/middleware"
	"quest-hunt-system/models"
	"quest-hunt-system/services"

	"github.com/gofiber/fiber/v2"
)

const (
	pointsPerTask  = 10
	pointsPerBadge = 50
)

func SetupQuestRoutes(app *fiber.App, questService *services.QuestService, dailyTasks *services.DailyTaskService, authService *services.AuthService, cache services.Cache) {
	quests := app.Group("/quests")

	// Public catalog (cached for 5 minutes)
	quests.Get("/", middleware.CacheResponse(cache, 5*time.Minute), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"quests": questService.Projects()})
	})

	quests.Get("/:projectId", middleware.CacheResponse(cache, 5*time.Minute), func(c *fiber.Ctx) error {
		project, ok := questService.Project(c.Params("projectId"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "quest not found",
			})
		}
		return c.JSON(fiber.Map{"quest": project})
	})

	// Leaderboard — served from the cache warmed by the scheduler, falling
	// back to the store when cold.
	quests.Get("/:projectId/leaderboard", func(c *fiber.Ctx) error {
		projectID := c.Params("projectId")

		var cached []models.DailyProgress
		if found, err := cache.Get(c.Context(), "leaderboard:"+projectID, &cached); err == nil && found {
			return c.JSON(fiber.Map{"leaderboard": cached})
		}

		entries, err := dailyTasks.Leaderboard(c.Context(), projectID, 25)
		if err != nil {
			status, msg := statusForError(err)
			return c.Status(status).JSON(fiber.Map{
				"error": msg,
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"leaderboard": entries})
	})

	// One-off quest tasks (secured)
	quests.Post("/:projectId/tasks/:taskId/complete", middleware.AuthRequired(authService), func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			VerificationData string `json:"verification_data"`
		}
		_ = c.BodyParser(&req) // body is optional

		tp, err := questService.CompleteQuestTask(c.Context(), userID, c.Params("projectId"), c.Params("taskId"), req.VerificationData)
		if err != nil {
			status, msg := statusForError(err)
			return c.Status(status).JSON(fiber.Map{
				"error": msg,
				"cause": err.Error(),
			})
		}

		_ = cache.TrackActivity(c.Context(), userID, "completed_task:"+tp.TaskID)

		return c.JSON(fiber.Map{
			"success": true,
			"task":    tp,
		})
	})

	quests.Get("/:projectId/tasks", middleware.AuthRequired(authService), func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		records, err := questService.TaskProgressFor(c.Context(), userID, c.Params("projectId"))
		if err != nil {
			status, msg := statusForError(err)
			return c.Status(status).JSON(fiber.Map{
				"error": msg,
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"tasks": records})
	})

	// User projections
	user := app.Group("/user", middleware.AuthRequired(authService))

	user.Get("/profile", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		activities, err := cache.Activities(c.Context(), userID, 10)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get user profile",
				"cause": err.Error(),
			})
		}

		var lastActivity interface{}
		if len(activities) > 0 {
			lastActivity = activities[0].Timestamp
		}
		return c.JSON(fiber.Map{
			"profile": fiber.Map{
				"id":               userID,
				"address":          userID,
				"last_activity":    lastActivity,
				"total_activities": len(activities),
			},
		})
	})

	user.Get("/stats", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		completedTasks, err := questService.CompletedTaskCount(c.Context(), userID)
		if err != nil {
			status, msg := statusForError(err)
			return c.Status(status).JSON(fiber.Map{
				"error": msg,
				"cause": err.Error(),
			})
		}

		// Walk the catalog for badge counts and streaks.
		var badgesClaimed int
		var bestStreak int
		now := time.Now()
		for _, project := range questService.Projects() {
			stats, err := dailyTasks.GetDailyStats(c.Context(), userID, project.ID, now)
			if err != nil {
				status, msg := statusForError(err)
				return c.Status(status).JSON(fiber.Map{
					"error": msg,
					"cause": err.Error(),
				})
			}
			if stats.BadgeClaimed {
				badgesClaimed++
			}
			if stats.CurrentStreak > bestStreak {
				bestStreak = stats.CurrentStreak
			}
		}

		return c.JSON(fiber.Map{
			"stats": fiber.Map{
				"total_task_completions": completedTasks,
				"total_badges_claimed":   badgesClaimed,
				"best_streak":            bestStreak,
				"total_points":           completedTasks*pointsPerTask + int64(badgesClaimed)*pointsPerBadge,
			},
		})
	})
}
