package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisFixedWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedis(rdb, "t:rl")
	ctx := context.Background()
	rule := Rule{Max: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		if err := l.Hit(ctx, "signin", "10.0.0.1", rule); err != nil {
			t.Fatalf("hit %d: unexpected error: %v", i, err)
		}
	}
	if err := l.Hit(ctx, "signin", "10.0.0.1", rule); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Hit(ctx, "signin", "10.0.0.2", rule); err != nil {
		t.Fatalf("other keys must not be affected: %v", err)
	}
	if ttl := mr.TTL("t:rl:signin:10.0.0.1"); ttl != time.Minute {
		t.Fatalf("expected window ttl 1m, got %v", ttl)
	}

	mr.FastForward(time.Minute)
	if err := l.Hit(ctx, "signin", "10.0.0.1", rule); err != nil {
		t.Fatalf("expected new window, got %v", err)
	}
}

func TestRedisDisabledRule(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedis(rdb, "")

	for i := 0; i < 10; i++ {
		if err := l.Hit(context.Background(), "signin", "ip", Rule{}); err != nil {
			t.Fatalf("disabled rule must never limit: %v", err)
		}
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("disabled rule must not write keys")
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedis(rdb, "")
	mr.Close()

	err := l.Hit(context.Background(), "signin", "ip", Rule{Max: 1, Window: time.Minute})
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestLocalTokenBucket(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := NewLocal(time.Hour, clock.Now)
	ctx := context.Background()
	rule := Rule{Max: 2, Window: time.Minute}

	for i := 0; i < 2; i++ {
		if err := l.Hit(ctx, "resend", "a@example.com", rule); err != nil {
			t.Fatalf("hit %d: unexpected error: %v", i, err)
		}
	}
	if err := l.Hit(ctx, "resend", "a@example.com", rule); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	clock.Advance(30 * time.Second)
	if err := l.Hit(ctx, "resend", "a@example.com", rule); err != nil {
		t.Fatalf("expected one token refilled, got %v", err)
	}
}

func TestLocalPrunesIdleBuckets(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := NewLocal(time.Minute, clock.Now)
	ctx := context.Background()
	rule := Rule{Max: 1, Window: time.Minute}

	_ = l.Hit(ctx, "signin", "a", rule)
	_ = l.Hit(ctx, "signin", "b", rule)
	if l.Len() != 2 {
		t.Fatalf("expected 2 buckets, got %d", l.Len())
	}

	clock.Advance(2 * time.Minute)
	_ = l.Hit(ctx, "signin", "c", rule)
	if l.Len() != 1 {
		t.Fatalf("expected idle buckets pruned, got %d", l.Len())
	}
}
