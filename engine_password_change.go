package zenauth

import (
	"context"
)

// ChangePassword replaces the password of the authenticated caller. The old
// password must match; a mismatch counts toward the lockout threshold like a
// failed sign-in. On success every refresh token of the account is cleared.
func (e *Engine) ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) error {
	identity, err := e.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}
	rec, err := e.loadByID(ctx, "change_password", identity.AccountID)
	if err != nil {
		return err
	}

	now := e.now()
	if e.lockout.IsLocked(rec.Lockout) {
		return &LockedError{Until: rec.Lockout.LockedUntil, now: now}
	}

	ok, err := e.hasher.Verify(oldPassword, rec.PasswordHash)
	if err != nil {
		return e.infra(ctx, "change_password", rec.ID, err)
	}
	if !ok {
		return e.passwordFailure(ctx, "change_password", rec.ID)
	}
	if err := e.checkPassword(newPassword); err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.infra(ctx, "change_password", rec.ID, err)
	}
	if err := e.store.UpdatePasswordHash(ctx, rec.ID, hash); err != nil {
		return e.infra(ctx, "change_password", rec.ID, err)
	}
	if err := e.store.ClearRefreshTokens(ctx, rec.ID); err != nil {
		return e.infra(ctx, "change_password", rec.ID, err)
	}
	if err := e.lockout.RecordSuccess(ctx, rec.ID); err != nil {
		return e.infra(ctx, "change_password", rec.ID, err)
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChange, true, rec.ID, nil, nil)
	return nil
}
