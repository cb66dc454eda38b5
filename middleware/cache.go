package middleware

import (
	"encoding/json"
	"strings"
	"time"

	"quest-hunt-system/services"

	"github.com/gofiber/fiber/v2"
)

// ResponseCacheKey builds the cache key for a request URL. Trailing slashes
// are trimmed so /quests and /quests/ share one entry, and writers can
// invalidate with a single Del on the canonical form.
func ResponseCacheKey(url string) string {
	if len(url) > 1 {
		url = strings.TrimRight(url, "/")
	}
	return "cache:" + url
}

// CacheResponse serves GET responses from the shared cache for ttl. Only
// successful JSON responses are cached; the key includes the full original
// URL so query parameters produce distinct entries.
func CacheResponse(cache services.Cache, ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodGet {
			return c.Next()
		}

		key := ResponseCacheKey(c.OriginalURL())

		var cached json.RawMessage
		if found, err := cache.Get(c.Context(), key, &cached); err == nil && found {
			c.Set("Content-Type", "application/json")
			c.Set("X-Cache", "HIT")
			return c.Send(cached)
		}

		if err := c.Next(); err != nil {
			return err
		}

		if c.Response().StatusCode() == fiber.StatusOK {
			body := make([]byte, len(c.Response().Body()))
			copy(body, c.Response().Body())
			// Best effort — a failed cache write must not fail the request.
			_ = cache.Set(c.Context(), key, json.RawMessage(body), ttl)
		}
		return nil
	}
}
