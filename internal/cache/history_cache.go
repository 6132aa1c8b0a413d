// Package cache holds the Redis read-through cache for conversation history.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"ragchat/internal/model"
)

const (
	historyKeyPrefix = "chat:history:"
	dirtyKeyPrefix   = "chat:history:dirty:"

	defaultHistoryTTL = 60 * time.Second
	defaultDirtyTTL   = 5 * time.Second
)

type Config struct {
	// HistoryTTL bounds staleness when an invalidation is lost.
	HistoryTTL time.Duration
	// DirtyTTL covers the window between a message write and the next
	// database read.
	DirtyTTL time.Duration
}

// HistoryCache fronts the message table with a short-lived Redis copy of the
// recent window. A dirty marker set on every write keeps a concurrent reader
// from repopulating the cache with rows it read just before the write landed.
type HistoryCache struct {
	client *redisv9.Client
	cfg    Config
}

func NewHistoryCache(client *redisv9.Client, cfg Config) *HistoryCache {
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = defaultHistoryTTL
	}
	if cfg.DirtyTTL <= 0 {
		cfg.DirtyTTL = defaultDirtyTTL
	}
	return &HistoryCache{client: client, cfg: cfg}
}

func (c *HistoryCache) GetHistory(ctx context.Context, sessionID string) ([]model.Message, bool, error) {
	raw, err := c.client.Get(ctx, historyKeyPrefix+sessionID).Bytes()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var messages []model.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

func (c *HistoryCache) SetHistory(ctx context.Context, sessionID string, messages []model.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, historyKeyPrefix+sessionID, payload, c.cfg.HistoryTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

// Invalidate drops the cached window and raises the dirty marker in one
// round trip.
func (c *HistoryCache) Invalidate(ctx context.Context, sessionID string) error {
	pipe := c.client.Pipeline()
	pipe.Set(ctx, dirtyKeyPrefix+sessionID, "1", c.cfg.DirtyTTL)
	pipe.Del(ctx, historyKeyPrefix+sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context, sessionID string) (bool, error) {
	exists, err := c.client.Exists(ctx, dirtyKeyPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}
