package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule allows at most Max hits per Window. A zero Max disables the rule.
type Rule struct {
	Max    int
	Window time.Duration
}

// Enabled reports whether the rule limits anything.
func (r Rule) Enabled() bool {
	return r.Max > 0 && r.Window > 0
}

// Limiter counts one hit for scope/key and returns ErrRateLimited once the
// rule is exceeded.
type Limiter interface {
	Hit(ctx context.Context, scope, key string, rule Rule) error
}

// Redis is a fixed-window Limiter shared through Redis.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedis creates a Redis limiter. prefix defaults to "za:rl".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "za:rl"
	}
	return &Redis{redis: client, prefix: prefix}
}

func (l *Redis) Hit(ctx context.Context, scope, key string, rule Rule) error {
	if !rule.Enabled() || key == "" {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.prefix+":"+scope+":"+key, rule.Window)
	if err != nil {
		return err
	}
	if count > int64(rule.Max) {
		return ErrRateLimited
	}
	return nil
}

func (l *Redis) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
