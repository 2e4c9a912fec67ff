package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/wispberry-tech/wispy-guard/core"
)

const defaultBlacklistKey = "wispy_guard:blacklist"

var _ core.BlacklistCache = (*RedisBlacklistCache)(nil)

// RedisBlacklistCache keeps blacklisted addresses in a Redis set in front of the database.
// The set only grows, matching the blacklist table.
type RedisBlacklistCache struct {
	redis *redis.Client
	key   string
}

// NewRedisBlacklistCache creates a cache on the given client. An empty key uses the default.
func NewRedisBlacklistCache(client *redis.Client, key string) *RedisBlacklistCache {
	if key == "" {
		key = defaultBlacklistKey
	}
	return &RedisBlacklistCache{redis: client, key: key}
}

// Contains reports whether ip is in the cached set
func (c *RedisBlacklistCache) Contains(ctx context.Context, ip string) (bool, error) {
	ok, err := c.redis.SIsMember(ctx, c.key, ip).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist cache: %w", err)
	}
	return ok, nil
}

// Add puts ip into the cached set
func (c *RedisBlacklistCache) Add(ctx context.Context, ip string) error {
	if err := c.redis.SAdd(ctx, c.key, ip).Err(); err != nil {
		return fmt.Errorf("failed to add to blacklist cache: %w", err)
	}
	return nil
}
