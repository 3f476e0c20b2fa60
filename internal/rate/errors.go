package rate

import "errors"

var (
	// ErrRateLimited is returned when a key exceeded its rule.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
