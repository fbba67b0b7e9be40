package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLimiter(client), mr
}

func TestAllow_WithinLimit(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "ratelimit:auth:10.0.0.1", 5, time.Minute)
		if err != nil {
			t.Fatalf("Allow %d: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("request %d denied under a limit of 5", i+1)
		}
	}
	if ok, _ := l.Allow(ctx, "ratelimit:auth:10.0.0.1", 5, time.Minute); ok {
		t.Error("request 6 in the same window should be denied")
	}
}

func TestAllow_WindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, err := l.Allow(ctx, "k", 3, time.Minute); err != nil || !ok {
			t.Fatalf("Allow %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	if ok, _ := l.Allow(ctx, "k", 3, time.Minute); ok {
		t.Fatal("request over the limit should be denied")
	}

	mr.FastForward(time.Minute + time.Second)
	if ok, err := l.Allow(ctx, "k", 3, time.Minute); err != nil || !ok {
		t.Errorf("request after window expiry: ok=%v err=%v, want allowed", ok, err)
	}
}

// Steady traffic below the limit must never be blocked: the TTL is anchored to
// the window's first increment, so later requests (including denied ones) must
// not extend it.
func TestAllow_SteadyTrafficBelowLimitNeverBlocked(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()

	// 2 requests/min against a 5/min limit, over 10 windows.
	for i := 0; i < 40; i++ {
		ok, err := l.Allow(ctx, "steady", 5, time.Minute)
		if err != nil {
			t.Fatalf("Allow %d: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("request %d blocked despite steady traffic below the limit", i+1)
		}
		mr.FastForward(30 * time.Second)
	}
}

func TestAllow_ZeroLimitAllows(t *testing.T) {
	l, _ := newTestLimiter(t)
	if ok, err := l.Allow(context.Background(), "k", 0, time.Minute); err != nil || !ok {
		t.Errorf("limit 0: ok=%v err=%v, want allowed (limit disabled)", ok, err)
	}
}

func TestAllow_RedisDownFailsOpen(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()

	ok, err := l.Allow(context.Background(), "k", 5, time.Minute)
	if !ok {
		t.Error("limiter must fail open when Redis is unreachable")
	}
	if err == nil {
		t.Error("limiter should surface the Redis error for logging")
	}
}

func TestNopLimiter(t *testing.T) {
	if ok, err := NewNopLimiter().Allow(context.Background(), "k", 1, time.Minute); err != nil || !ok {
		t.Errorf("nop limiter: ok=%v err=%v, want allowed", ok, err)
	}
}
