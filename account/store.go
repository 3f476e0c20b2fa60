package account

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no account matches the lookup key.
	ErrNotFound = errors.New("account: not found")
	// ErrDuplicate is returned by Create when the email is already registered.
	ErrDuplicate = errors.New("account: duplicate email")
	// ErrRefreshNotFound is returned by RotateRefreshToken when the presented
	// token is not in the account's set.
	ErrRefreshNotFound = errors.New("account: refresh token not in set")
)

// Store persists account records. Implementations must be safe for concurrent
// use and must apply every method atomically with respect to one account.
type Store interface {
	// Create inserts rec, including any OTP challenge it carries.
	Create(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id string) (*Record, error)
	// GetByEmail looks up by normalized email.
	GetByEmail(ctx context.Context, email string) (*Record, error)
	GetByResetID(ctx context.Context, resetID string) (*Record, error)

	SetActive(ctx context.Context, id string, active bool) error
	SetRole(ctx context.Context, id string, role Role) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	RecordLogin(ctx context.Context, id string, at time.Time, ip string) error

	// SaveOTP replaces any prior challenge; Attempts is stored as given.
	SaveOTP(ctx context.Context, id string, ch OTPChallenge) error
	// VerifyOTP checks expiry and the attempt cap, compares the candidate
	// digest and either counts the failure or marks the email verified and
	// clears the challenge, all in one step. Concurrent calls for one account
	// never compare more than MaxAttempts candidates.
	VerifyOTP(ctx context.Context, id string, a OTPAttempt) (OTPResult, error)

	// SaveReset replaces any prior reset challenge.
	SaveReset(ctx context.Context, id string, ch ResetChallenge) error
	// ConsumeReset stores passwordHash, clears the reset challenge and clears
	// every refresh token, only if resetID is the live challenge.
	ConsumeReset(ctx context.Context, id, resetID, passwordHash string) (bool, error)

	// RecordLoginFailure applies the lockout rule atomically and returns the
	// resulting state.
	RecordLoginFailure(ctx context.Context, id string, p LockoutParams) (LockoutState, error)
	ResetLoginFailures(ctx context.Context, id string) error

	// AddRefreshToken inserts tok and evicts the oldest members beyond limit.
	AddRefreshToken(ctx context.Context, id string, tok RefreshToken, limit int) error
	// RotateRefreshToken removes oldHash and inserts next in one step.
	RotateRefreshToken(ctx context.Context, id, oldHash string, next RefreshToken, limit int) error
	RemoveRefreshToken(ctx context.Context, id, hash string) (bool, error)
	ClearRefreshTokens(ctx context.Context, id string) error
}
