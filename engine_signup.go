package zenauth

import (
	"context"
	"crypto/rand"
	"errors"
	netmail "net/mail"
	"strconv"
	"time"

	"github.com/mk070/zenauth/account"
	"github.com/mk070/zenauth/mail"
	"github.com/oklog/ulid/v2"
)

// Signup creates an unverified account and emails its verification code.
// A failed email dispatch fails the call with ErrInfrastructure; the account
// remains and ResendOTP recovers it.
func (e *Engine) Signup(ctx context.Context, email, plaintext string) (*SignupResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.hit(ctx, "signup", clientIPFromContext(ctx), e.config.Throttle.SignupPerIP); err != nil {
		return nil, err
	}

	normalized, err := validateEmail(email)
	if err != nil {
		return nil, err
	}
	if err := e.checkPassword(plaintext); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return nil, e.infra(ctx, "signup", "", err)
	}
	code, otp, err := e.challenges.NewOTP()
	if err != nil {
		return nil, e.infra(ctx, "signup", "", err)
	}

	now := e.now()
	rec := &account.Record{
		ID:           newAccountID(now),
		Email:        normalized,
		PasswordHash: hash,
		Active:       true,
		Role:         e.config.Account.DefaultRole,
		OTP:          &otp,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.Create(ctx, rec); err != nil {
		if errors.Is(err, account.ErrDuplicate) {
			e.metricInc(MetricSignupDuplicate)
			e.emitAudit(ctx, auditEventSignupDuplicate, false, "", ErrDuplicateAccount, nil)
			return nil, ErrDuplicateAccount
		}
		e.metricInc(MetricSignupFailure)
		return nil, e.infra(ctx, "signup", rec.ID, err)
	}

	messageID, err := e.send(ctx, "signup", rec, mail.KindVerification, mail.Payload{
		mail.FieldCode:      code,
		mail.FieldExpiresIn: expiresIn(e.config.OTP.TTL),
	})
	if err != nil {
		e.metricInc(MetricSignupFailure)
		e.emitAudit(ctx, auditEventSignup, false, rec.ID, ErrInfrastructure, nil)
		return nil, e.infra(ctx, "signup", rec.ID, err)
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignup, true, rec.ID, nil, nil)

	return &SignupResult{
		AccountID:      rec.ID,
		Email:          rec.Email,
		OTPExpiresAt:   otp.ExpiresAt,
		VerificationID: messageID,
	}, nil
}

// VerifyOTP confirms the emailed code and signs the account in. A wrong code
// consumes one attempt and returns an *OTPError; once the attempts are spent
// only a fresh code from ResendOTP can verify the account. The comparison and
// the attempt count happen in one store step, so parallel guesses cannot
// exceed the attempt budget.
func (e *Engine) VerifyOTP(ctx context.Context, email, code string) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.hit(ctx, "verify", account.NormalizeEmail(email), e.config.Throttle.VerifyPerEmail); err != nil {
		return nil, err
	}

	rec, err := e.load(ctx, "verify_otp", email)
	if err != nil {
		return nil, err
	}
	if !rec.Active {
		return nil, ErrAccountDeactivated
	}
	if rec.EmailVerified {
		return nil, ErrAlreadyVerified
	}
	if rec.OTP == nil {
		return nil, e.otpFailure(ctx, rec.ID, ErrInvalidOrExpiredOTP)
	}

	attempt := e.challenges.OTPAttempt(rec.OTP, code)
	res, err := e.store.VerifyOTP(ctx, rec.ID, attempt)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, e.infra(ctx, "verify_otp", rec.ID, err)
	}
	switch res.Verdict {
	case account.OTPVerified:
	case account.OTPMismatch:
		return nil, e.otpFailure(ctx, rec.ID, &OTPError{Remaining: max(attempt.MaxAttempts-res.Attempts, 0)})
	case account.OTPExhausted:
		e.metricInc(MetricOTPAttemptsExhausted)
		return nil, e.otpFailure(ctx, rec.ID, ErrOTPAttemptsExhausted)
	default:
		// expired, or replaced by a newer code since the load
		return nil, e.otpFailure(ctx, rec.ID, ErrInvalidOrExpiredOTP)
	}
	rec.EmailVerified = true
	rec.OTP = nil

	now := e.now()
	ip := clientIPFromContext(ctx)
	if err := e.store.RecordLogin(ctx, rec.ID, now, ip); err != nil {
		return nil, e.infra(ctx, "verify_otp", rec.ID, err)
	}
	rec.LastLoginAt = now
	rec.LastLoginIP = ip

	tokens, err := e.issue(ctx, "verify_otp", rec)
	if err != nil {
		return nil, err
	}

	_, _ = e.send(ctx, "verify_otp", rec, mail.KindWelcome, mail.Payload{})

	e.metricInc(MetricOTPVerifySuccess)
	e.emitAudit(ctx, auditEventOTPVerifySuccess, true, rec.ID, nil, nil)

	return &Session{Account: accountInfo(rec), Tokens: tokens}, nil
}

func (e *Engine) otpFailure(ctx context.Context, accountID string, err error) error {
	e.metricInc(MetricOTPVerifyFailure)
	e.emitAudit(ctx, auditEventOTPVerifyFailure, false, accountID, err, func() map[string]string {
		var otpErr *OTPError
		if errors.As(err, &otpErr) {
			return map[string]string{"remaining": strconv.Itoa(otpErr.Remaining)}
		}
		return nil
	})
	return err
}

// ResendOTP replaces the verification challenge with a fresh code. Earlier
// codes stop working immediately.
func (e *Engine) ResendOTP(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.hit(ctx, "resend", account.NormalizeEmail(email), e.config.Throttle.ResendPerEmail); err != nil {
		return err
	}

	rec, err := e.load(ctx, "resend_otp", email)
	if err != nil {
		return err
	}
	if !rec.Active {
		return ErrAccountDeactivated
	}
	if rec.EmailVerified {
		return ErrAlreadyVerified
	}

	code, otp, err := e.challenges.NewOTP()
	if err != nil {
		return e.infra(ctx, "resend_otp", rec.ID, err)
	}
	if err := e.store.SaveOTP(ctx, rec.ID, otp); err != nil {
		return e.infra(ctx, "resend_otp", rec.ID, err)
	}

	_, _ = e.send(ctx, "resend_otp", rec, mail.KindOTP, mail.Payload{
		mail.FieldCode:      code,
		mail.FieldExpiresIn: expiresIn(e.config.OTP.TTL),
	})

	e.metricInc(MetricOTPResent)
	e.emitAudit(ctx, auditEventOTPResent, true, rec.ID, nil, nil)
	return nil
}

// validateEmail accepts a bare addr-spec and returns it normalized.
func validateEmail(email string) (string, error) {
	normalized := account.NormalizeEmail(email)
	if normalized == "" || len(normalized) > 254 {
		return "", ErrInvalidEmail
	}
	addr, err := netmail.ParseAddress(normalized)
	if err != nil || addr.Name != "" || addr.Address != normalized {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

func newAccountID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}
