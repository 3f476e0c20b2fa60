package account

import (
	"testing"
	"time"
)

func TestLockoutStateLocked(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if (LockoutState{}).Locked(now) {
		t.Fatal("zero state must not be locked")
	}
	if !(LockoutState{LockedUntil: now.Add(time.Second)}).Locked(now) {
		t.Fatal("future deadline must be locked")
	}
	if (LockoutState{LockedUntil: now}).Locked(now) {
		t.Fatal("deadline equal to now must not be locked")
	}
	if (LockoutState{LockedUntil: now.Add(-time.Minute)}).Locked(now) {
		t.Fatal("past deadline must not be locked")
	}
}

func TestChallengeExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var missing *OTPChallenge
	if !missing.Expired(now) {
		t.Fatal("nil challenge must read as expired")
	}
	if (&OTPChallenge{ExpiresAt: now.Add(time.Minute)}).Expired(now) {
		t.Fatal("future expiry must not be expired")
	}
	if !(&ResetChallenge{ExpiresAt: now}).Expired(now) {
		t.Fatal("expiry equal to now must be expired")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@X.COM "); got != "alice@x.com" {
		t.Fatalf("unexpected normalized email %q", got)
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleModerator, RoleAdmin} {
		if !r.Valid() {
			t.Fatalf("expected %q to be valid", r)
		}
	}
	if Role("root").Valid() {
		t.Fatal("unexpected role accepted")
	}
}
