// Package cache provides the cache abstraction used by the matching and
// pricing engine: get / set-with-TTL / invalidate over opaque string keys,
// plus a rolling counter for feedback-triggered recalibration.
//
// Two implementations exist: a Redis-backed one for production and an
// in-memory one for tests and single-node deployments. Values are replaced
// wholesale, never mutated in place, so concurrent readers always observe
// a fully-formed entry.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the narrow contract the engine depends on. Keys are opaque
// strings; values are pre-serialized bytes.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// Counter increments a named rolling counter and returns the new value.
// Counters expire after the given window from their first increment.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// ─── Redis client ───────────────────────────────────────────

// RedisOptions carries connection settings for NewRedisClient.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisClient creates a Redis client with connection pooling.
//
// Pool is sized for high concurrency (default PoolSize = 100).
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	// Verify connectivity.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}

	return client, nil
}

// HealthCheck pings the Redis client and returns nil if healthy.
func HealthCheck(ctx context.Context, client *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(pingCtx).Err()
}

// ─── Redis-backed Cache ─────────────────────────────────────

// RedisCache implements Cache and Counter on top of a Redis client.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached bytes for key, with a hit flag. A missing key is
// not an error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %q: %w", key, err)
	}
	return val, true, nil
}

// Set stores value under key with the given TTL. A zero TTL stores the
// entry without expiry.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// Invalidate removes the given keys. Missing keys are ignored.
func (c *RedisCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: invalidate: %w", err)
	}
	return nil
}

// Increment bumps the counter at key, setting the expiry window on first
// increment. INCR + EXPIRE are not atomic together; a crash between them
// leaves a counter without TTL, which the next window naturally replaces.
func (c *RedisCache) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: incr %q: %w", key, err)
	}
	if n == 1 && window > 0 {
		_ = c.client.Expire(ctx, key, window).Err()
	}
	return n, nil
}
