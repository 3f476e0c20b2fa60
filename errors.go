package zenauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/mk070/zenauth/account"
	"github.com/mk070/zenauth/internal/rate"
)

var (
	// ErrDuplicateAccount is returned by Signup when the email is registered.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrAccountNotFound is returned when an id or email matches no account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountDeactivated is returned for operations on a deactivated account.
	ErrAccountDeactivated = errors.New("account deactivated")
	// ErrAccountLocked is matched by every *LockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrVerificationRequired is returned by SignIn when the secret matched but
	// the email is not verified yet.
	ErrVerificationRequired = errors.New("email verification required")
	// ErrAlreadyVerified is returned by VerifyOTP and ResendOTP for verified accounts.
	ErrAlreadyVerified = errors.New("email already verified")
	// ErrInvalidCredentials covers both unknown emails and wrong secrets.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidOrExpiredOTP is matched by every *OTPError.
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired otp")
	// ErrOTPAttemptsExhausted is returned once the challenge's failure budget is spent.
	ErrOTPAttemptsExhausted = errors.New("otp attempts exhausted")
	// ErrInvalidOrExpiredResetToken covers every reset token rejection.
	ErrInvalidOrExpiredResetToken = errors.New("invalid or expired reset token")

	// ErrNoToken is returned by Authenticate for an empty credential.
	ErrNoToken = errors.New("no token")
	// ErrTokenExpired is returned for signature-valid tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned for revoked access tokens and for refresh
	// tokens no longer in the account's set.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenInvalid is returned for bad signatures, wrong token types and
	// tokens naming an unknown account.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenMalformed is returned for input that is not a JWT.
	ErrTokenMalformed = errors.New("token malformed")

	// ErrInfrastructure wraps store, mailer and registry faults.
	ErrInfrastructure = errors.New("infrastructure failure")

	// ErrInvalidEmail is returned when an address fails syntax validation.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrPasswordPolicy is returned when a new password violates the policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrInvalidRole is returned by SetRole for a role outside account.Role.
	ErrInvalidRole = errors.New("invalid role")
	// ErrRateLimited is returned when a throttle rule rejects the request.
	ErrRateLimited = errors.New("rate limited")
	// ErrEngineNotReady is returned when the Engine was not built by a Builder.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrConfigInvalid wraps configuration validation failures.
	ErrConfigInvalid = errors.New("invalid configuration")
)

// LockedError reports a locked account and when the lock ends.
type LockedError struct {
	Until time.Time
	now   time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RetryAfter is the remaining lock duration at the time of the failure.
func (e *LockedError) RetryAfter() time.Duration {
	d := e.Until.Sub(e.now)
	if d < 0 {
		return 0
	}
	return d
}

// OTPError reports a wrong code and the attempts left on the challenge.
type OTPError struct {
	Remaining int
}

func (e *OTPError) Error() string {
	return fmt.Sprintf("invalid or expired otp (%d attempts remaining)", e.Remaining)
}

func (e *OTPError) Is(target error) bool {
	return target == ErrInvalidOrExpiredOTP
}

func infraError(err error) error {
	return fmt.Errorf("%w: %v", ErrInfrastructure, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, account.ErrNotFound)
}

func isRateLimited(err error) bool {
	return errors.Is(err, rate.ErrRateLimited)
}
