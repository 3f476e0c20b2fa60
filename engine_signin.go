package zenauth

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/mk070/zenauth/account"
)

// SignIn authenticates email and password and issues a token pair.
//
// Checks run in a fixed order: account exists, account active, not locked,
// password matches, email verified. Unknown emails and wrong passwords both
// return ErrInvalidCredentials. A locked account is rejected before the
// password is compared. A wrong password counts toward the lockout threshold;
// the failure that reaches it already returns *LockedError.
// ErrVerificationRequired is only returned after the password matched and is
// not counted as a failure.
func (e *Engine) SignIn(ctx context.Context, email, plaintext string) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ip := clientIPFromContext(ctx)
	if err := e.hit(ctx, "signin", ip, e.config.Throttle.SignInPerIP); err != nil {
		return nil, err
	}

	rec, err := e.store.GetByEmail(ctx, account.NormalizeEmail(email))
	if err != nil {
		if !isNotFound(err) {
			return nil, e.infra(ctx, "signin", "", err)
		}
		_, _ = e.hasher.Verify(plaintext, e.dummyDigest)
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if !rec.Active {
		e.metricInc(MetricSignInDeactivated)
		e.emitAudit(ctx, auditEventLoginFailure, false, rec.ID, ErrAccountDeactivated, nil)
		return nil, ErrAccountDeactivated
	}

	now := e.now()
	if e.lockout.IsLocked(rec.Lockout) {
		e.metricInc(MetricSignInLocked)
		e.emitAudit(ctx, auditEventLoginFailure, false, rec.ID, ErrAccountLocked, nil)
		return nil, &LockedError{Until: rec.Lockout.LockedUntil, now: now}
	}

	ok, err := e.hasher.Verify(plaintext, rec.PasswordHash)
	if err != nil {
		return nil, e.infra(ctx, "signin", rec.ID, err)
	}
	if !ok {
		return nil, e.passwordFailure(ctx, "signin", rec.ID)
	}

	if !rec.EmailVerified {
		e.metricInc(MetricSignInUnverified)
		e.emitAudit(ctx, auditEventLoginFailure, false, rec.ID, ErrVerificationRequired, nil)
		return nil, ErrVerificationRequired
	}

	if err := e.lockout.RecordSuccess(ctx, rec.ID); err != nil {
		return nil, e.infra(ctx, "signin", rec.ID, err)
	}
	rec.Lockout = account.LockoutState{}

	if err := e.store.RecordLogin(ctx, rec.ID, now, ip); err != nil {
		return nil, e.infra(ctx, "signin", rec.ID, err)
	}
	rec.LastLoginAt = now
	rec.LastLoginIP = ip

	if e.config.Password.UpgradeOnLogin && e.hasher.NeedsUpgrade(rec.PasswordHash) {
		e.upgradeDigest(ctx, rec.ID, plaintext)
	}

	tokens, err := e.issue(ctx, "signin", rec)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, rec.ID, nil, nil)

	return &Session{Account: accountInfo(rec), Tokens: tokens}, nil
}

// passwordFailure records one failed password check and returns the outcome
// the caller should see.
func (e *Engine) passwordFailure(ctx context.Context, op, accountID string) error {
	state, err := e.lockout.RecordFailure(ctx, accountID)
	if err != nil {
		return e.infra(ctx, op, accountID, err)
	}

	e.metricInc(MetricSignInFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, accountID, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"failed_attempts": strconv.Itoa(state.FailedAttempts)}
	})

	if e.lockout.IsLocked(state) {
		now := e.now()
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventAccountLocked, true, accountID, nil, func() map[string]string {
			return map[string]string{"locked_until": state.LockedUntil.UTC().Format(time.RFC3339)}
		})
		return &LockedError{Until: state.LockedUntil, now: now}
	}
	return ErrInvalidCredentials
}

// upgradeDigest re-hashes with the current parameters. Failures are logged;
// the old digest keeps working.
func (e *Engine) upgradeDigest(ctx context.Context, accountID, plaintext string) {
	hash, err := e.hasher.Hash(plaintext)
	if err == nil {
		err = e.store.UpdatePasswordHash(ctx, accountID, hash)
	}
	if err != nil {
		e.logger.WarnContext(ctx, "zenauth: password digest upgrade failed",
			slog.String("account_id", accountID),
			slog.Any("error", err),
		)
	}
}
