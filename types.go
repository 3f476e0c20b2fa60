package zenauth

import (
	"time"

	"github.com/mk070/zenauth/account"
)

// TokenPair is a freshly minted access and refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AccountInfo is the caller-safe view of an account. It never carries the
// password digest or challenge material.
type AccountInfo struct {
	ID             string
	Email          string
	Role           account.Role
	EmailVerified  bool
	Active         bool
	FailedAttempts int
	LockedUntil    time.Time
	LastLoginAt    time.Time
	LastLoginIP    string
	CreatedAt      time.Time
}

// Session is returned by operations that sign the caller in.
type Session struct {
	Account AccountInfo
	Tokens  TokenPair
}

// SignupResult describes a created, unverified account.
type SignupResult struct {
	AccountID      string
	Email          string
	OTPExpiresAt   time.Time
	VerificationID string // message id returned by the mailer
}

// Identity is the caller asserted by a verified access token.
type Identity struct {
	AccountID     string
	Email         string
	Role          account.Role
	EmailVerified bool
	TokenID       string
	ExpiresAt     time.Time
}

func accountInfo(rec *account.Record) AccountInfo {
	return AccountInfo{
		ID:             rec.ID,
		Email:          rec.Email,
		Role:           rec.Role,
		EmailVerified:  rec.EmailVerified,
		Active:         rec.Active,
		FailedAttempts: rec.Lockout.FailedAttempts,
		LockedUntil:    rec.Lockout.LockedUntil,
		LastLoginAt:    rec.LastLoginAt,
		LastLoginIP:    rec.LastLoginIP,
		CreatedAt:      rec.CreatedAt,
	}
}
