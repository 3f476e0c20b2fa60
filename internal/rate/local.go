package rate

import (
	"context"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

type bucket struct {
	lim  *xrate.Limiter
	seen time.Time
}

// Local is an in-process token-bucket Limiter.
type Local struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	idle    time.Duration
	sweep   time.Time
}

// NewLocal creates a Local limiter. Buckets untouched for idle are dropped
// on a later call. now defaults to time.Now.
func NewLocal(idle time.Duration, now func() time.Time) *Local {
	if now == nil {
		now = time.Now
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &Local{buckets: make(map[string]*bucket), now: now, idle: idle}
}

func (l *Local) Hit(_ context.Context, scope, key string, rule Rule) error {
	if !rule.Enabled() || key == "" {
		return nil
	}
	now := l.now()
	id := scope + ":" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.sweep) > l.idle {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.idle {
				delete(l.buckets, k)
			}
		}
		l.sweep = now
	}

	b, ok := l.buckets[id]
	if !ok {
		every := rule.Window / time.Duration(rule.Max)
		b = &bucket{lim: xrate.NewLimiter(xrate.Every(every), rule.Max)}
		l.buckets[id] = b
	}
	b.seen = now
	if !b.lim.AllowN(now, 1) {
		return ErrRateLimited
	}
	return nil
}

// Len reports the number of live buckets.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
