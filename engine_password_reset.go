package zenauth

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/mk070/zenauth/account"
	"github.com/mk070/zenauth/internal/challenge"
	"github.com/mk070/zenauth/mail"
)

// ForgotPassword emails a reset token when email belongs to an active
// account. The result is nil whether or not it does, and throttled requests
// are dropped silently; only store faults are returned.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	normalized := account.NormalizeEmail(email)
	if err := e.hit(ctx, "forgot", normalized, e.config.Throttle.ForgotPerEmail); err != nil {
		return nil
	}
	e.metricInc(MetricPasswordResetRequest)

	rec, err := e.store.GetByEmail(ctx, normalized)
	if err != nil {
		if isNotFound(err) {
			e.emitAudit(ctx, auditEventResetRequest, false, "", ErrAccountNotFound, nil)
			return nil
		}
		return e.infra(ctx, "forgot_password", "", err)
	}
	if !rec.Active {
		e.emitAudit(ctx, auditEventResetRequest, false, rec.ID, ErrAccountDeactivated, nil)
		return nil
	}

	token, ch, err := e.challenges.NewResetToken()
	if err != nil {
		return e.infra(ctx, "forgot_password", rec.ID, err)
	}
	if err := e.store.SaveReset(ctx, rec.ID, ch); err != nil {
		return e.infra(ctx, "forgot_password", rec.ID, err)
	}

	payload := mail.Payload{
		mail.FieldToken:     token,
		mail.FieldExpiresIn: expiresIn(e.config.PasswordReset.TTL),
	}
	if link := e.resetLink(token); link != "" {
		payload[mail.FieldLink] = link
	}
	_, _ = e.send(ctx, "forgot_password", rec, mail.KindPasswordReset, payload)

	e.emitAudit(ctx, auditEventResetRequest, true, rec.ID, nil, nil)
	return nil
}

// ResetPassword sets a new password with a token from ForgotPassword. The
// token is single-use. Every refresh token of the account is cleared with
// it, and the lockout counter is reset.
func (e *Engine) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	resetID, secret, err := challenge.ParseResetToken(resetToken)
	if err != nil {
		return e.resetFailure(ctx, "", ErrInvalidOrExpiredResetToken)
	}
	rec, err := e.store.GetByResetID(ctx, resetID)
	if err != nil {
		if isNotFound(err) {
			return e.resetFailure(ctx, "", ErrInvalidOrExpiredResetToken)
		}
		return e.infra(ctx, "reset_password", "", err)
	}
	if !e.challenges.CheckReset(rec.Reset, resetID, secret) {
		return e.resetFailure(ctx, rec.ID, ErrInvalidOrExpiredResetToken)
	}
	if !rec.Active {
		return e.resetFailure(ctx, rec.ID, ErrAccountDeactivated)
	}
	if err := e.checkPassword(newPassword); err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.infra(ctx, "reset_password", rec.ID, err)
	}
	consumed, err := e.store.ConsumeReset(ctx, rec.ID, resetID, hash)
	if err != nil {
		return e.infra(ctx, "reset_password", rec.ID, err)
	}
	if !consumed {
		return e.resetFailure(ctx, rec.ID, ErrInvalidOrExpiredResetToken)
	}

	if err := e.lockout.RecordSuccess(ctx, rec.ID); err != nil {
		e.logger.WarnContext(ctx, "zenauth: lockout reset after password reset failed",
			slog.String("account_id", rec.ID),
			slog.Any("error", err),
		)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventResetConfirm, true, rec.ID, nil, nil)
	return nil
}

func (e *Engine) resetFailure(ctx context.Context, accountID string, err error) error {
	e.metricInc(MetricPasswordResetFailure)
	e.emitAudit(ctx, auditEventResetConfirm, false, accountID, err, nil)
	return err
}

// resetLink appends the token to the configured base URL, or returns "".
func (e *Engine) resetLink(token string) string {
	base := e.config.PasswordReset.LinkBaseURL
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
