package zenauth

import (
	"context"

	"github.com/mk070/zenauth/account"
)

// DeactivateAccount blocks sign-in and token use for the account and clears
// its refresh tokens. Access tokens already issued are rejected by
// Authenticate from now on.
func (e *Engine) DeactivateAccount(ctx context.Context, accountID string) error {
	err := e.setActive(ctx, accountID, false)
	if err == nil {
		e.metricInc(MetricAccountDeactivated)
	}
	e.emitAudit(ctx, auditEventAccountStatus, err == nil, accountID, err, func() map[string]string {
		return map[string]string{
			"action": "deactivate",
		}
	})
	return err
}

// ReactivateAccount reverses DeactivateAccount.
func (e *Engine) ReactivateAccount(ctx context.Context, accountID string) error {
	err := e.setActive(ctx, accountID, true)
	if err == nil {
		e.metricInc(MetricAccountReactivated)
	}
	e.emitAudit(ctx, auditEventAccountStatus, err == nil, accountID, err, func() map[string]string {
		return map[string]string{
			"action": "reactivate",
		}
	})
	return err
}

// UnlockAccount clears the failure counter and any lock.
func (e *Engine) UnlockAccount(ctx context.Context, accountID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.loadByID(ctx, "unlock", accountID); err != nil {
		return err
	}
	if err := e.lockout.RecordSuccess(ctx, accountID); err != nil {
		return e.infra(ctx, "unlock", accountID, err)
	}
	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountUnlocked, true, accountID, nil, nil)
	return nil
}

// SetRole changes the account's authorization tier. Access tokens issued
// earlier keep the old role until they expire; the next refresh carries the
// new one.
func (e *Engine) SetRole(ctx context.Context, accountID string, role account.Role) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !role.Valid() {
		return ErrInvalidRole
	}
	if accountID == "" {
		return ErrAccountNotFound
	}
	err := e.store.SetRole(ctx, accountID, role)
	switch {
	case err == nil:
	case isNotFound(err):
		err = ErrAccountNotFound
	default:
		err = e.infra(ctx, "set_role", accountID, err)
	}
	e.emitAudit(ctx, auditEventRoleChange, err == nil, accountID, err, func() map[string]string {
		return map[string]string{"role": string(role)}
	})
	return err
}

// GetAccount returns the caller-safe view of an account.
func (e *Engine) GetAccount(ctx context.Context, accountID string) (*AccountInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rec, err := e.loadByID(ctx, "get_account", accountID)
	if err != nil {
		return nil, err
	}
	info := accountInfo(rec)
	return &info, nil
}

func (e *Engine) setActive(ctx context.Context, accountID string, active bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if accountID == "" {
		return ErrAccountNotFound
	}
	if err := e.store.SetActive(ctx, accountID, active); err != nil {
		if isNotFound(err) {
			return ErrAccountNotFound
		}
		return e.infra(ctx, "set_active", accountID, err)
	}
	if active {
		return nil
	}
	if err := e.store.ClearRefreshTokens(ctx, accountID); err != nil {
		return e.infra(ctx, "set_active", accountID, err)
	}
	return nil
}
