package account

import (
	"crypto/subtle"
	"strings"
	"time"
)

// Role is the authorization tier asserted in access tokens.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}

// Record is the persisted state of one account.
type Record struct {
	ID            string
	Email         string
	PasswordHash  string
	EmailVerified bool
	Active        bool
	Role          Role

	Lockout LockoutState

	OTP           *OTPChallenge
	Reset         *ResetChallenge
	RefreshTokens []RefreshToken

	LastLoginAt time.Time
	LastLoginIP string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OTPChallenge is the live email verification challenge. Digest is the salted
// hash of the code; the code itself is never stored.
type OTPChallenge struct {
	Digest    string
	ExpiresAt time.Time
	Attempts  int
}

// Expired reports whether the challenge is past its expiry at now.
func (c *OTPChallenge) Expired(now time.Time) bool {
	return c == nil || !now.Before(c.ExpiresAt)
}

// OTPVerdict is the outcome of one atomic verification attempt.
type OTPVerdict int

const (
	// OTPVerified means the candidate matched; the account is now verified
	// and the challenge is cleared.
	OTPVerified OTPVerdict = iota
	// OTPMismatch means the candidate was wrong and the attempt was counted.
	OTPMismatch
	// OTPExhausted means the attempt cap was already reached; nothing was
	// compared or counted.
	OTPExhausted
	OTPExpired
	// OTPMissing means no challenge is live, or a newer one replaced the
	// challenge the candidate was derived against.
	OTPMissing
)

func (v OTPVerdict) String() string {
	switch v {
	case OTPVerified:
		return "verified"
	case OTPMismatch:
		return "mismatch"
	case OTPExhausted:
		return "exhausted"
	case OTPExpired:
		return "expired"
	case OTPMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// OTPAttempt is the input of Store.VerifyOTP. Candidate is the submitted code
// hashed with the salt of the challenge whose digest is Expected.
type OTPAttempt struct {
	Expected    string
	Candidate   string
	MaxAttempts int
	Now         time.Time
}

// OTPResult carries the verdict and the attempt count after the call.
type OTPResult struct {
	Verdict  OTPVerdict
	Attempts int
}

// Judge decides the verdict for ch before any state change. A mismatch is
// reported with the pre-increment state; the store counts it.
func (a OTPAttempt) Judge(ch *OTPChallenge) OTPVerdict {
	switch {
	case ch == nil || ch.Digest == "" || ch.Digest != a.Expected:
		return OTPMissing
	case ch.Attempts >= a.MaxAttempts:
		return OTPExhausted
	case ch.Expired(a.Now):
		return OTPExpired
	case subtle.ConstantTimeCompare([]byte(ch.Digest), []byte(a.Candidate)) != 1:
		return OTPMismatch
	default:
		return OTPVerified
	}
}

// ResetChallenge is the live password reset challenge. ID is the public lookup
// half of the reset token; Digest is the salted hash of the secret half.
type ResetChallenge struct {
	ID        string
	Digest    string
	ExpiresAt time.Time
}

// Expired reports whether the challenge is past its expiry at now.
func (c *ResetChallenge) Expired(now time.Time) bool {
	return c == nil || !now.Before(c.ExpiresAt)
}

// RefreshToken is one member of an account's bounded refresh-token set. Hash is
// the SHA-256 hex digest of the signed token.
type RefreshToken struct {
	Hash      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// LockoutState carries the consecutive failure counter and the lock deadline.
// A zero LockedUntil means no lock was ever set.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    time.Time
}

// Locked reports whether the lock deadline lies after now. A deadline in the
// past is equivalent to no lock.
func (s LockoutState) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && s.LockedUntil.After(now)
}

// LockoutParams are the inputs of an atomic failure record.
type LockoutParams struct {
	Threshold int
	Window    time.Duration
	Now       time.Time
}

// NormalizeEmail trims and lower-cases an address. Email uniqueness is
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
