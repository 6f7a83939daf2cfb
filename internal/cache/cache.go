// Package cache implements the analytics response cache (C2): an opaque
// byte-value store over Redis with TTLs and prefix-based invalidation. A
// down or unreachable Redis degrades to a miss rather than failing the
// caller — analytics and export routes always have the database as a
// fallback of record.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent, including when Redis
// itself is unreachable — callers cannot distinguish "not cached" from
// "cache unavailable", and shouldn't need to.
var ErrMiss = errors.New("cache miss")

// Cache is a thin, opaque-bytes wrapper over a Redis client.
type Cache struct {
	redis  *redis.Client
	logger *slog.Logger
}

// New creates a Cache over an already-connected Redis client.
func New(rdb *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{redis: rdb, logger: logger}
}

// Get fetches the raw bytes stored at key. Any Redis error, including
// unavailability, is reported as ErrMiss after a warning log.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "cache get degraded to miss", "key", key, "error", err)
		}
		return nil, ErrMiss
	}
	return val, nil
}

// SetTTL stores raw bytes at key with the given expiry. Failures are logged
// and swallowed — a cache write is never load-bearing for correctness.
func (c *Cache) SetTTL(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "cache set failed", "key", key, "error", err)
	}
}

// Delete removes one key. Failures are logged and swallowed.
func (c *Cache) Delete(ctx context.Context, key string) {
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		c.logger.WarnContext(ctx, "cache delete failed", "key", key, "error", err)
	}
}

// DeletePrefix removes every key matching prefix+"*", used by the admin
// mutation engine to invalidate analytics entries touched by a relabel or
// reassignment. Scans rather than KEYS to avoid blocking Redis on a large
// keyspace.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) {
	var cursor uint64
	pattern := prefix + "*"
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			c.logger.WarnContext(ctx, "cache prefix scan failed", "prefix", prefix, "error", err)
			return
		}
		if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				c.logger.WarnContext(ctx, "cache prefix delete failed", "prefix", prefix, "error", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
