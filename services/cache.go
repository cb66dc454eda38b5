package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL  = time.Hour
	activityCap      = 1000 // entries kept per user
	activityLifetime = 30 * 24 * time.Hour
)

// Activity is one tracked user action (login, task completion, badge claim).
type Activity struct {
	Activity  string    `json:"activity"`
	Timestamp int64     `json:"timestamp"` // unix millis
	Date      time.Time `json:"date"`
}

// Session data attached to a login.
type Session struct {
	UserID    string    `json:"user_id"`
	Address   string    `json:"address"`
	LoginTime time.Time `json:"login_time"`
}

// Cache abstracts the shared key-value layer: JSON values with TTL, login
// sessions, token blacklisting and the per-user activity feed. Backed by
// Redis in production and by process memory when no Redis is configured.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	SetSession(ctx context.Context, sessionID string, session Session) error
	GetSession(ctx context.Context, sessionID string) (Session, bool, error)
	DeleteSession(ctx context.Context, sessionID string) error

	TrackActivity(ctx context.Context, userID, activity string) error
	Activities(ctx context.Context, userID string, limit int) ([]Activity, error)
}

// --- Redis implementation ---

type RedisCache struct {
	Client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{Client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := c.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(val), dest)
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Client.SetEx(ctx, key, data, ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.Client.Exists(ctx, key).Result()
	return n == 1, err
}

func (c *RedisCache) SetSession(ctx context.Context, sessionID string, session Session) error {
	return c.Set(ctx, "session:"+sessionID, session, 24*time.Hour)
}

func (c *RedisCache) GetSession(ctx context.Context, sessionID string) (Session, bool, error) {
	var session Session
	found, err := c.Get(ctx, "session:"+sessionID, &session)
	return session, found, err
}

func (c *RedisCache) DeleteSession(ctx context.Context, sessionID string) error {
	return c.Del(ctx, "session:"+sessionID)
}

func (c *RedisCache) TrackActivity(ctx context.Context, userID, activity string) error {
	key := "user_activity:" + userID
	now := time.Now()
	entry, err := json.Marshal(Activity{
		Activity:  activity,
		Timestamp: now.UnixMilli(),
		Date:      now.UTC(),
	})
	if err != nil {
		return err
	}

	pipe := c.Client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: entry})
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-(activityCap + 1)))
	pipe.Expire(ctx, key, activityLifetime)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCache) Activities(ctx context.Context, userID string, limit int) ([]Activity, error) {
	entries, err := c.Client.ZRevRange(ctx, "user_activity:"+userID, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	activities := make([]Activity, 0, len(entries))
	for _, e := range entries {
		var a Activity
		if err := json.Unmarshal([]byte(e), &a); err != nil {
			continue // skip malformed entries rather than failing the feed
		}
		activities = append(activities, a)
	}
	return activities, nil
}

// --- In-memory implementation (dev mode, tests) ---

type memoryCacheEntry struct {
	data      []byte
	expiresAt time.Time
}

type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]memoryCacheEntry
	activities map[string][]Activity
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:    make(map[string]memoryCacheEntry),
		activities: make(map[string][]Activity),
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return false, nil
	}
	return true, json.Unmarshal(entry.data, dest)
}

func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key] = memoryCacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	return ok && time.Now().Before(entry.expiresAt), nil
}

func (c *MemoryCache) SetSession(ctx context.Context, sessionID string, session Session) error {
	return c.Set(ctx, "session:"+sessionID, session, 24*time.Hour)
}

func (c *MemoryCache) GetSession(ctx context.Context, sessionID string) (Session, bool, error) {
	var session Session
	found, err := c.Get(ctx, "session:"+sessionID, &session)
	return session, found, err
}

func (c *MemoryCache) DeleteSession(ctx context.Context, sessionID string) error {
	return c.Del(ctx, "session:"+sessionID)
}

func (c *MemoryCache) TrackActivity(ctx context.Context, userID, activity string) error {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	list := append(c.activities[userID], Activity{
		Activity:  activity,
		Timestamp: now.UnixMilli(),
		Date:      now.UTC(),
	})
	if len(list) > activityCap {
		list = list[len(list)-activityCap:]
	}
	c.activities[userID] = list
	return nil
}

func (c *MemoryCache) Activities(ctx context.Context, userID string, limit int) ([]Activity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := c.activities[userID]
	out := make([]Activity, len(list))
	copy(out, list)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
