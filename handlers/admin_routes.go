package handlers

import (
	"log"
	"strings"

	"quest-hunt-system/middleware"
	"quest-hunt-system/models"
	"quest-hunt-system/services"
	"quest-hunt-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func SetupAdminRoutes(app *fiber.App, questService *services.QuestService, authService *services.AuthService, cache services.Cache) {
	admin := app.Group("/admin", middleware.AuthRequired(authService), middleware.RequireRole("admin"))

	// Create or update a partner project
	admin.Post("/projects", func(c *fiber.Ctx) error {
		var req models.Project
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		if req.ID == "" {
			req.ID = slug.Make(req.Name)
		}
		titler := cases.Title(language.English)
		for i := range req.TaskTypes {
			if req.TaskTypes[i].DisplayName == "" {
				req.TaskTypes[i].DisplayName = titler.String(strings.ReplaceAll(req.TaskTypes[i].Type, "_", " "))
			}
		}

		if err := questService.UpsertProject(c.Context(), req); err != nil {
			status, msg := statusForError(err)
			if status == fiber.StatusInternalServerError {
				// Validation errors read better verbatim.
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
			return c.Status(status).JSON(fiber.Map{
				"error": msg,
				"cause": err.Error(),
			})
		}

		// Catalog responses are cached; a stale list confuses admins.
		_ = cache.Del(c.Context(), middleware.ResponseCacheKey("/quests"))
		_ = cache.Del(c.Context(), middleware.ResponseCacheKey("/quests/"+req.ID))

		log.Printf("📦 Project upserted by admin: %s", req.ID)
		return c.JSON(fiber.Map{
			"success": true,
			"project": req,
		})
	})

	// Upload badge artwork for a project
	admin.Post("/projects/:projectId/badge-image", func(c *fiber.Ctx) error {
		projectID := c.Params("projectId")

		fileHeader, err := c.FormFile("image")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "image file is required",
			})
		}

		key := utils.BadgeArtworkKey(projectID, fileHeader.Filename)

		var url string
		if utils.R2Ready() {
			url, err = utils.UploadBadgeArtwork(c.Context(), fileHeader, key)
		} else {
			url, err = utils.SaveBadgeArtworkLocal(fileHeader, key)
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to store badge image",
				"cause": err.Error(),
			})
		}

		if err := questService.SetBadgeImage(c.Context(), projectID, url); err != nil {
			status, msg := statusForError(err)
			return c.Status(status).JSON(fiber.Map{
				"error": msg,
				"cause": err.Error(),
			})
		}

		_ = cache.Del(c.Context(), middleware.ResponseCacheKey("/quests/"+projectID))

		return c.JSON(fiber.Map{
			"success":         true,
			"badge_image_url": url,
		})
	})
}
