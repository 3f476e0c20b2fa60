package zenauth

import (
	"context"
	"errors"

	"github.com/mk070/zenauth/account"
	"github.com/mk070/zenauth/internal/challenge"
	"github.com/mk070/zenauth/jwt"
)

// RefreshToken exchanges a refresh token for a new pair. The presented token
// leaves the account's set in the same store operation that adds its
// replacement, so a token can be exchanged at most once; a second exchange
// returns ErrTokenRevoked.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	token := bearerToken(refreshToken)
	if token == "" {
		return nil, ErrNoToken
	}

	claims, err := e.tokens.VerifyRefresh(token)
	if err != nil {
		err = mapTokenError(err)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshSuccess, false, "", err, nil)
		return nil, err
	}

	rec, err := e.loadByID(ctx, "refresh", claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricRefreshFailure)
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if !rec.Active {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrAccountDeactivated
	}

	pair, err := e.tokens.IssuePair(subjectOf(rec))
	if err != nil {
		return nil, e.infra(ctx, "refresh", rec.ID, err)
	}
	err = e.store.RotateRefreshToken(ctx, rec.ID, challenge.TokenHash(token), refreshRecord(pair), e.config.Refresh.MaxTokensPerAccount)
	if err != nil {
		if errors.Is(err, account.ErrRefreshNotFound) {
			e.metricInc(MetricRefreshReplay)
			e.emitAudit(ctx, auditEventRefreshReplay, false, rec.ID, ErrTokenRevoked, func() map[string]string {
				return map[string]string{"refresh_id": claims.ID}
			})
			return nil, ErrTokenRevoked
		}
		return nil, e.infra(ctx, "refresh", rec.ID, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, rec.ID, nil, nil)

	out := tokenPair(pair)
	return &out, nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrMalformed):
		return ErrTokenMalformed
	default:
		return ErrTokenInvalid
	}
}
