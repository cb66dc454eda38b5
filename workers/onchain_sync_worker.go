package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quest-hunt-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OnchainTaskEvent is one verified contract event reported by the indexer
// (swap, deploy, deposit, ...) that completes a one-off quest task.
type OnchainTaskEvent struct {
	UserAddress string    `json:"user_address"`
	ProjectID   string    `json:"project_id"`
	TaskID      string    `json:"task_id"`
	TxHash      string    `json:"tx_hash"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// IndexerClient polls the chain indexer for task-relevant events and records
// them as completed quest tasks.
type IndexerClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewIndexerClient(db *gorm.DB, baseURL, token string) *IndexerClient {
	return &IndexerClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetEventsSince fetches events verified after the cursor.
func (c *IndexerClient) GetEventsSince(ctx context.Context, since time.Time) ([]OnchainTaskEvent, error) {
	u, err := url.Parse(fmt.Sprintf("%s/api/v1/events", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse indexer URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call indexer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("indexer returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Events []OnchainTaskEvent `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode indexer response: %w", err)
	}
	return response.Events, nil
}

// PollOnchainEvents runs until ctx is cancelled, upserting completed task
// progress for every event the indexer reports. The cursor only advances
// after a successful batch so failures retry the same window.
func PollOnchainEvents(ctx context.Context, client *IndexerClient, pollInterval time.Duration) {
	log.Println("Starting onchain event polling...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Onchain event polling stopped.")
			return
		case <-ticker.C:
			batchTime := time.Now().UTC()

			events, err := client.GetEventsSince(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling indexer: %v", err)
				continue
			}
			if len(events) == 0 {
				continue
			}

			records := make([]models.TaskProgress, 0, len(events))
			for _, ev := range events {
				completedAt := ev.OccurredAt.UTC()
				verification, _ := json.Marshal(map[string]string{"tx_hash": ev.TxHash})
				records = append(records, models.TaskProgress{
					ID:               uuid.NewString(),
					UserID:           strings.ToLower(ev.UserAddress),
					TaskID:           ev.TaskID,
					ProjectID:        ev.ProjectID,
					Status:           models.TaskStatusCompleted,
					CompletedAt:      &completedAt,
					VerificationData: string(verification),
				})
			}

			if err := client.DB.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}, {Name: "task_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"status",
					"completed_at",
					"verification_data",
					"updated_at",
				}),
			}).Create(&records).Error; err != nil {
				log.Printf("❌ Failed to upsert %d task completion(s): %v", len(records), err)
				// Cursor stays put — retry the same window next tick.
				continue
			}

			lastSyncTime = batchTime
			log.Printf("✅ Recorded %d onchain task completion(s).", len(records))
		}
	}
}
