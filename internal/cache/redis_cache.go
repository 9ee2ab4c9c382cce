package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "wa:msg:"

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type seenValue struct {
	ConversationID string    `json:"conversationId"`
	PersistedAt    time.Time `json:"persistedAt"`
}

func key(externalID string) string {
	return keyPrefix + externalID
}

func (c *RedisCache) Seen(ctx context.Context, externalID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key(externalID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkSeen keeps the first value written for an id; later calls only succeed.
func (c *RedisCache) MarkSeen(ctx context.Context, externalID, conversationID string, at time.Time) error {
	b, err := json.Marshal(seenValue{
		ConversationID: conversationID,
		PersistedAt:    at.UTC(),
	})
	if err != nil {
		return err
	}
	return c.rdb.SetNX(ctx, key(externalID), b, c.ttl).Err()
}
