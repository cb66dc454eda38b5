package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"quest-hunt-system/models"

	"github.com/redis/go-redis/v9"
)

// RedisProgressStore keeps daily counters and aggregates in Redis. Counter
// keys carry the calendar date and expire on their own, so this adapter has
// no explicit prune job.
//
// Key layout:
//
//	daily_limit:{user}:{project}:{task}:{YYYY-MM-DD}  -> counter, 24h TTL
//	daily_progress:{user}:{project}                   -> aggregate hash
//	badge_claims:{user}                               -> zset project by claim time
//	daily_leaderboard:{project}                       -> zset user by total completions
type RedisProgressStore struct {
	Client *redis.Client
}

func NewRedisProgressStore(client *redis.Client) *RedisProgressStore {
	return &RedisProgressStore{Client: client}
}

const dayFormat = "2006-01-02"

func counterKey(userID, projectID, taskType string, day time.Time) string {
	return fmt.Sprintf("daily_limit:%s:%s:%s:%s", userID, projectID, taskType, day.Format(dayFormat))
}

func aggregateKey(userID, projectID string) string {
	return fmt.Sprintf("daily_progress:%s:%s", userID, projectID)
}

func claimsKey(userID string) string {
	return "badge_claims:" + userID
}

func leaderboardKey(projectID string) string {
	return "daily_leaderboard:" + projectID
}

func (s *RedisProgressStore) TodayCount(ctx context.Context, userID, projectID string, taskTypes []string, day time.Time) (int, error) {
	date := CalendarDate(day)
	keys := make([]string, len(taskTypes))
	for i, tt := range taskTypes {
		keys[i] = counterKey(userID, projectID, tt, date)
	}

	vals, err := s.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, storeErr("mget counters", err)
	}

	total := 0
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue // nil = no completions for that type today
		}
		n, err := strconv.Atoi(str)
		if err != nil {
			return 0, storeErr("parse counter", err)
		}
		total += n
	}
	return total, nil
}

func (s *RedisProgressStore) Aggregate(ctx context.Context, userID, projectID string) (models.DailyProgress, bool, error) {
	fields, err := s.Client.HGetAll(ctx, aggregateKey(userID, projectID)).Result()
	if err != nil {
		return models.DailyProgress{}, false, storeErr("fetch aggregate", err)
	}
	if len(fields) == 0 {
		return models.DailyProgress{}, false, nil
	}
	agg, err := aggregateFromHash(userID, projectID, fields)
	if err != nil {
		return models.DailyProgress{}, false, err
	}
	return agg, true, nil
}

func aggregateFromHash(userID, projectID string, fields map[string]string) (models.DailyProgress, error) {
	agg := models.DailyProgress{
		ID:        fields["id"],
		UserID:    userID,
		ProjectID: projectID,
	}
	var err error
	if agg.TotalCompletions, err = strconv.ParseInt(fields["total_completions"], 10, 64); err != nil {
		return agg, storeErr("parse aggregate", err)
	}
	if agg.CurrentStreak, err = strconv.Atoi(fields["current_streak"]); err != nil {
		return agg, storeErr("parse aggregate", err)
	}
	if v := fields["last_completion_date"]; v != "" {
		d, err := time.ParseInLocation(dayFormat, v, time.UTC)
		if err != nil {
			return agg, storeErr("parse aggregate", err)
		}
		agg.LastCompletionDate = &d
	}
	agg.BadgeClaimed = fields["badge_claimed"] == "1"
	if v := fields["claimed_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return agg, storeErr("parse aggregate", err)
		}
		agg.ClaimedAt = &t
	}
	return agg, nil
}

// AppendAndUpdate groups the counter bump, the aggregate hash rewrite and
// the leaderboard update in one MULTI/EXEC pipeline.
func (s *RedisProgressStore) AppendAndUpdate(ctx context.Context, event models.DailyCompletion, agg models.DailyProgress) error {
	date := CalendarDate(event.CompletedAt)
	ctr := counterKey(event.UserID, event.ProjectID, event.TaskType, date)

	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, ctr)
		pipe.Expire(ctx, ctr, 24*time.Hour)
		pipe.HSet(ctx, aggregateKey(agg.UserID, agg.ProjectID), map[string]interface{}{
			"id":                   agg.ID,
			"total_completions":    agg.TotalCompletions,
			"current_streak":       agg.CurrentStreak,
			"last_completion_date": agg.LastCompletionDate.Format(dayFormat),
		})
		pipe.ZAdd(ctx, leaderboardKey(agg.ProjectID), redis.Z{
			Score:  float64(agg.TotalCompletions),
			Member: agg.UserID,
		})
		return nil
	})
	if err != nil {
		return storeErr("append completion", err)
	}
	return nil
}

// setClaimedScript flips the claim exactly once. The check and the write run
// as one script, so claimers in other server processes see 0 instead of
// overwriting an existing claim — the counterpart of the Postgres adapter's
// badge_claimed = false guard.
var setClaimedScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "badge_claimed") == "1" then
	return 0
end
redis.call("HSET", KEYS[1], "badge_claimed", "1", "claimed_at", ARGV[1])
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[3])
return 1
`)

func (s *RedisProgressStore) SetClaimed(ctx context.Context, userID, projectID string, claimedAt time.Time) error {
	claimed, err := setClaimedScript.Run(ctx, s.Client,
		[]string{aggregateKey(userID, projectID), claimsKey(userID)},
		claimedAt.Format(time.RFC3339Nano),
		claimedAt.UnixNano(),
		projectID,
	).Int()
	if err != nil {
		return storeErr("set claimed", err)
	}
	if claimed == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

func (s *RedisProgressStore) ClaimedSince(ctx context.Context, userID string, since time.Time) ([]models.DailyProgress, error) {
	projectIDs, err := s.Client.ZRangeByScore(ctx, claimsKey(userID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(since.UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, storeErr("list claims", err)
	}

	var aggs []models.DailyProgress
	for _, projectID := range projectIDs {
		agg, found, err := s.Aggregate(ctx, userID, projectID)
		if err != nil {
			return nil, err
		}
		if found {
			aggs = append(aggs, agg)
		}
	}
	return aggs, nil
}

func (s *RedisProgressStore) TopAggregates(ctx context.Context, projectID string, limit int) ([]models.DailyProgress, error) {
	userIDs, err := s.Client.ZRevRange(ctx, leaderboardKey(projectID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, storeErr("leaderboard query", err)
	}

	var aggs []models.DailyProgress
	for _, userID := range userIDs {
		agg, found, err := s.Aggregate(ctx, userID, projectID)
		if err != nil {
			return nil, err
		}
		if found {
			aggs = append(aggs, agg)
		}
	}
	return aggs, nil
}
