package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mk070/zenauth/account"
)

// LockoutConfig holds the brute-force lockout policy.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

var (
	// ErrLockoutUnavailable indicates the store rejected a lockout update.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// Apply is the lockout rule on plain values. Stores implement the same rule
// atomically; Apply is the reference they are tested against.
//
// A lock that has already expired resets the counter to one. Otherwise the
// counter increments, and reaching the threshold while unlocked sets a fresh
// deadline.
func Apply(s account.LockoutState, p account.LockoutParams) account.LockoutState {
	if !s.LockedUntil.IsZero() && !s.LockedUntil.After(p.Now) {
		s.FailedAttempts = 1
		s.LockedUntil = time.Time{}
	} else {
		s.FailedAttempts++
	}
	if s.FailedAttempts >= p.Threshold && !s.Locked(p.Now) {
		s.LockedUntil = p.Now.Add(p.Window)
	}
	return s
}

// Lockout records sign-in outcomes through the store's atomic primitives.
type Lockout struct {
	store  account.Store
	config LockoutConfig
	now    func() time.Time
}

// NewLockout creates a lockout recorder. now defaults to time.Now.
func NewLockout(store account.Store, cfg LockoutConfig, now func() time.Time) *Lockout {
	if now == nil {
		now = time.Now
	}
	return &Lockout{store: store, config: cfg, now: now}
}

// IsLocked evaluates s at the current time.
func (l *Lockout) IsLocked(s account.LockoutState) bool {
	return s.Locked(l.now())
}

// RecordFailure counts one failed authentication and reports the new state.
func (l *Lockout) RecordFailure(ctx context.Context, accountID string) (account.LockoutState, error) {
	state, err := l.store.RecordLoginFailure(ctx, accountID, account.LockoutParams{
		Threshold: l.config.Threshold,
		Window:    l.config.Duration,
		Now:       l.now(),
	})
	if err != nil {
		return account.LockoutState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return state, nil
}

// RecordSuccess clears the counter and any lock unconditionally.
func (l *Lockout) RecordSuccess(ctx context.Context, accountID string) error {
	if err := l.store.ResetLoginFailures(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}
