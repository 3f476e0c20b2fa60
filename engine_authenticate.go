package zenauth

import (
	"context"
	"errors"
	"time"

	"github.com/mk070/zenauth/account"
)

// Authenticate verifies an access token, given raw or as "Bearer <token>",
// and returns the identity it asserts.
//
// The revocation registry is consulted before the signature, so a logged-out
// token is reported as ErrTokenRevoked for its whole remaining lifetime. The
// remaining outcomes are ErrNoToken, ErrTokenExpired, ErrTokenInvalid and
// ErrTokenMalformed, plus ErrAccountDeactivated for a valid token whose
// account was deactivated after issuance.
func (e *Engine) Authenticate(ctx context.Context, bearer string) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}()
	}

	token := bearerToken(bearer)
	if token == "" {
		return nil, ErrNoToken
	}

	revoked, err := e.revoked.IsRevoked(ctx, token)
	if err != nil {
		return nil, e.infra(ctx, "authenticate", "", err)
	}
	if revoked {
		e.metricInc(MetricTokenRevokedRejected)
		e.emitAudit(ctx, auditEventRevokedTokenDenied, false, "", ErrTokenRevoked, nil)
		return nil, ErrTokenRevoked
	}

	claims, err := e.tokens.VerifyAccess(token)
	if err != nil {
		return nil, mapTokenError(err)
	}

	rec, err := e.loadByID(ctx, "authenticate", claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if !rec.Active {
		return nil, ErrAccountDeactivated
	}

	return &Identity{
		AccountID:     rec.ID,
		Email:         claims.Email,
		Role:          account.Role(claims.Role),
		EmailVerified: claims.EmailVerified,
		TokenID:       claims.ID,
		ExpiresAt:     claims.ExpiresAtTime(),
	}, nil
}

// revoke records token in the registry until it would expire on its own.
func (e *Engine) revoke(ctx context.Context, op string, token string, id *Identity) error {
	until := id.ExpiresAt.Add(e.config.JWT.Leeway)
	if err := e.revoked.Revoke(ctx, token, until); err != nil {
		return e.infra(ctx, op, id.AccountID, err)
	}
	return nil
}
