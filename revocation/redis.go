package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Registry shared through Redis. Each revocation is one key with a
// PX expiry equal to the token's remaining lifetime.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis returns a Redis registry. prefix defaults to "za:revoked".
func NewRedis(client redis.UniversalClient, prefix string, now func() time.Time) *Redis {
	if prefix == "" {
		prefix = "za:revoked"
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{redis: client, prefix: prefix, now: now}
}

func (r *Redis) key(token string) string {
	return r.prefix + ":" + Fingerprint(token)
}

func (r *Redis) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	if err := r.redis.Set(ctx, r.key(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.redis.Exists(ctx, r.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}
