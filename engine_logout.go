package zenauth

import (
	"context"

	"github.com/mk070/zenauth/internal/challenge"
)

// Logout revokes the access token and removes refreshToken from the caller's
// set. An unknown or already removed refresh token is not an error.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	identity, err := e.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}

	if err := e.revoke(ctx, "logout", bearerToken(accessToken), identity); err != nil {
		return err
	}

	removed := false
	if token := bearerToken(refreshToken); token != "" {
		removed, err = e.store.RemoveRefreshToken(ctx, identity.AccountID, challenge.TokenHash(token))
		if err != nil {
			return e.infra(ctx, "logout", identity.AccountID, err)
		}
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, identity.AccountID, nil, func() map[string]string {
		if removed {
			return map[string]string{"refresh_removed": "true"}
		}
		return nil
	})
	return nil
}

// LogoutAll revokes the access token and clears every refresh token of the
// account, signing out all devices.
func (e *Engine) LogoutAll(ctx context.Context, accessToken string) error {
	identity, err := e.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}

	if err := e.revoke(ctx, "logout_all", bearerToken(accessToken), identity); err != nil {
		return err
	}
	if err := e.store.ClearRefreshTokens(ctx, identity.AccountID); err != nil {
		return e.infra(ctx, "logout_all", identity.AccountID, err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, identity.AccountID, nil, nil)
	return nil
}
