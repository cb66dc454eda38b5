package middleware

import (
	"log"
	"strings"

	"quest-hunt-system/services"

	"github.com/gofiber/fiber/v2"
)

// SSEAuth validates the JWT passed as a `token` query parameter. Browsers
// cannot set headers on EventSource connections, so SSE routes authenticate
// through the query string instead.
//
// Usage:
//
//	app.Get("/user/badges/stream", middleware.SSEAuth(authService), dailyTaskService.StreamUserBadgesSSE)
func SSEAuth(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing token in query",
			})
		}

		if blacklisted, err := auth.IsBlacklisted(c.Context(), token); err != nil {
			log.Printf("❌ [SSE_AUTH] Blacklist check failed: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "authentication temporarily unavailable",
			})
		} else if blacklisted {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "token has been revoked",
			})
		}

		claims, err := auth.ParseToken(token)
		if err != nil {
			log.Printf("[SSE_AUTH] ❌ Invalid token (prefix: %.10s...) for %s", token, c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		c.Locals("user_id", claims.Subject)
		c.Locals("user_roles", claims.Roles)
		return c.Next()
	}
}
