package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
)

// StreamUserBadgesSSE streams badge claims for the authenticated user as
// server-sent events. The client sees every badge claimed after the stream
// opened, in claim order.
func (s *DailyTaskService) StreamUserBadgesSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	reqCtx := c.Context()
	reqCtx.SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		cursor := time.Now().UTC()

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case <-reqCtx.Done():
				return
			case <-ticker.C:
			}

			next, err := s.writeBadgeFrames(w, userID, cursor)
			if err != nil {
				// Client went away.
				return
			}
			cursor = next
		}
	})

	return nil
}

// writeBadgeFrames emits one poll's worth of badge events (or a keepalive
// comment when there is nothing to send) and flushes. A keepalive goes out
// even when the store query fails, so a gone client is still detected while
// the store is down. The returned error means the connection is dead.
func (s *DailyTaskService) writeBadgeFrames(w *bufio.Writer, userID string, cursor time.Time) (time.Time, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	claims, err := s.Store.ClaimedSince(ctx, userID, cursor)
	cancel()
	if err != nil {
		log.Printf("SSE badge query error for user %s: %v", userID, err)
		w.WriteString(":\n\n")
		return cursor, w.Flush()
	}
	if len(claims) == 0 {
		// Keepalive so intermediaries don't drop the connection.
		w.WriteString(":\n\n")
		return cursor, w.Flush()
	}

	cursor = claims[len(claims)-1].ClaimedAt.UTC()

	for _, agg := range claims {
		payload, _ := json.Marshal(agg)
		fmt.Fprintf(w, "event: badge\ndata: %s\n\n", payload)
	}
	return cursor, w.Flush()
}
