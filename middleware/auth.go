package middleware

import (
	"fmt"
	"log"
	"strings"

	"quest-hunt-system/services"

	"github.com/gofiber/fiber/v2"
)

// AuthRequired validates the Bearer JWT, rejects blacklisted tokens and
// attaches the wallet identity to the request context.
func AuthRequired(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "access token required",
			})
		}

		blacklisted, err := auth.IsBlacklisted(c.Context(), token)
		if err != nil {
			log.Printf("❌ [AUTH] Blacklist check failed: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "authentication temporarily unavailable",
			})
		}
		if blacklisted {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "token has been revoked",
			})
		}

		claims, err := auth.ParseToken(token)
		if err != nil {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		c.Locals("user_id", claims.Subject)
		c.Locals("user_roles", claims.Roles)
		c.Locals("access_token", token)

		// Every authenticated request feeds the activity trail.
		if err := auth.Cache.TrackActivity(c.Context(), claims.Subject, fmt.Sprintf("%s %s", c.Method(), c.Path())); err != nil {
			log.Printf("⚠️ [AUTH] Activity tracking failed for %s: %v", claims.Subject, err)
		}

		return c.Next()
	}
}

// OptionalAuth attaches identity when a valid token is present but never
// rejects the request.
func OptionalAuth(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return c.Next()
		}
		if blacklisted, err := auth.IsBlacklisted(c.Context(), token); err != nil || blacklisted {
			return c.Next()
		}
		claims, err := auth.ParseToken(token)
		if err != nil {
			return c.Next()
		}
		c.Locals("user_id", claims.Subject)
		c.Locals("user_roles", claims.Roles)
		c.Locals("access_token", token)
		return c.Next()
	}
}

// RequireRole guards admin routes; run it after AuthRequired.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals("user_roles").([]string)
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		log.Printf("🚫 [AUTH] Missing role %q for %s on %s", role, c.Locals("user_id"), c.Path())
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient permissions",
		})
	}
}

func bearerToken(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return "" // no Bearer prefix
	}
	return strings.TrimSpace(token)
}
