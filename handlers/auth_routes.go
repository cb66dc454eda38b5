package handlers

import (
	"errors"

	"quest-hunt-system/middleware"
	"quest-hunt-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAuthRoutes(app *fiber.App, authService *services.AuthService) {
	auth := app.Group("/auth")

	// Get authentication challenge message
	auth.Post("/challenge", func(c *fiber.Ctx) error {
		var req struct {
			Address string `json:"address"`
		}
		if err := c.BodyParser(&req); err != nil || req.Address == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "address is required",
			})
		}

		message, err := authService.Challenge(c.Context(), req.Address)
		if err != nil {
			if errors.Is(err, services.ErrInvalidSignature) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "invalid wallet address",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to generate challenge",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"message": message})
	})

	// Verify wallet signature and issue a JWT
	auth.Post("/verify", func(c *fiber.Ctx) error {
		var req struct {
			Address   string `json:"address"`
			Signature string `json:"signature"`
			Message   string `json:"message"`
		}
		if err := c.BodyParser(&req); err != nil || req.Address == "" || req.Signature == "" || req.Message == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "address, signature, and message are required",
			})
		}

		token, user, err := authService.Verify(c.Context(), req.Address, req.Signature, req.Message)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrChallengeExpired):
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "challenge expired, request a new one",
				})
			case errors.Is(err, services.ErrInvalidSignature):
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "invalid signature",
				})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "authentication failed",
					"cause": err.Error(),
				})
			}
		}

		return c.JSON(fiber.Map{
			"success": true,
			"token":   token,
			"user":    user,
		})
	})

	// Refresh token (blacklists the old one)
	auth.Post("/refresh", middleware.AuthRequired(authService), func(c *fiber.Ctx) error {
		oldToken := c.Locals("access_token").(string)

		token, err := authService.Refresh(c.Context(), oldToken)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "token refresh failed",
			})
		}
		return c.JSON(fiber.Map{"token": token})
	})

	// Logout and blacklist token
	auth.Post("/logout", middleware.AuthRequired(authService), func(c *fiber.Ctx) error {
		token := c.Locals("access_token").(string)

		if err := authService.Logout(c.Context(), token); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "logout failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"success": true,
			"message": "Logged out successfully",
		})
	})
}
