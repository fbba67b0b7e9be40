// Package ratelimit provides a Redis-backed fixed-window rate limiter.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a keyed action is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RedisLimiter counts requests per key in fixed windows using INCR + EXPIRE.
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter creates a limiter backed by the given Redis client.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow increments the counter for key and reports whether the count is within
// limit. EXPIRE NX sets the TTL only when the key has none, so the window
// starts at the first increment and is never extended by later requests.
// Errors fail open so a Redis outage does not take auth down with it; the
// caller decides whether to log them.
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("rate limit incr: %w", err)
	}

	return incr.Val() <= int64(limit), nil
}

type noLimiter struct{}

// NewNopLimiter returns a Limiter that allows everything.
func NewNopLimiter() Limiter { return noLimiter{} }

func (noLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}
