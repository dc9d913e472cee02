// In file: internal/cache/cache.go

// Package cache stores JSON-encoded responses in redis under versioned keys.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pehance/pehance/internal/version"
)

const DefaultTTL = 24 * time.Hour

// Cache is a best-effort response cache. A nil redis client disables it, and
// redis errors are logged and treated as misses.
type Cache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

// Enabled reports whether a redis client is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Key derives the versioned key for the request parts.
func (c *Cache) Key(parts ...string) string {
	return version.GenerateVersionedCacheKey(c.prefix, parts...)
}

// Get decodes the entry under key into dst and reports whether it was found.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	if !c.Enabled() {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = c.rdb.Del(ctx, key).Err()
		return false
	}
	return true
}

// Set stores v under key for the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, v any) {
	if !c.Enabled() {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}
