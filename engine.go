package zenauth

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mk070/zenauth/account"
	internalaudit "github.com/mk070/zenauth/internal/audit"
	"github.com/mk070/zenauth/internal/challenge"
	"github.com/mk070/zenauth/internal/limiters"
	internalmetrics "github.com/mk070/zenauth/internal/metrics"
	"github.com/mk070/zenauth/internal/rate"
	"github.com/mk070/zenauth/jwt"
	"github.com/mk070/zenauth/mail"
	"github.com/mk070/zenauth/password"
	"github.com/mk070/zenauth/revocation"
)

// Engine sequences the account lifecycle: signup, OTP verification, sign-in,
// refresh rotation, logout and password recovery. Build one with a Builder;
// it is safe for concurrent use and holds no per-request state.
type Engine struct {
	config     Config
	store      account.Store
	hasher     password.Hasher
	challenges *challenge.Generator
	tokens     *jwt.Manager
	revoked    revocation.Registry
	lockout    *limiters.Lockout
	throttle   rate.Limiter
	mailer     mail.Sender
	audit      *internalaudit.Dispatcher
	metrics    *internalmetrics.Registry
	logger     *slog.Logger
	clock      clockwork.Clock

	// digest verified against on unknown emails so both sign-in branches pay
	// one hash comparison.
	dummyDigest string
}

// Close flushes pending audit events and stops the dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters. It is empty when metrics are
// disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID]HistogramSnapshot{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.tokens == nil || e.hasher == nil || e.challenges == nil {
		return ErrEngineNotReady
	}
	return nil
}

// infra logs a store, mailer or registry fault and wraps it.
func (e *Engine) infra(ctx context.Context, op, accountID string, err error) error {
	e.logger.ErrorContext(ctx, "zenauth: infrastructure failure",
		slog.String("op", op),
		slog.String("account_id", accountID),
		slog.Any("error", err),
	)
	return infraError(err)
}

// load fetches an account by email, mapping a miss to ErrAccountNotFound.
func (e *Engine) load(ctx context.Context, op, email string) (*account.Record, error) {
	rec, err := e.store.GetByEmail(ctx, account.NormalizeEmail(email))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, e.infra(ctx, op, "", err)
	}
	return rec, nil
}

func (e *Engine) loadByID(ctx context.Context, op, id string) (*account.Record, error) {
	if id == "" {
		return nil, ErrAccountNotFound
	}
	rec, err := e.store.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, e.infra(ctx, op, id, err)
	}
	return rec, nil
}

// hit applies one throttle rule. Backend faults fail open and are logged.
func (e *Engine) hit(ctx context.Context, scope, key string, rule ThrottleRule) error {
	if e.throttle == nil || key == "" {
		return nil
	}
	err := e.throttle.Hit(ctx, scope, key, rate.Rule{Max: rule.Max, Window: rule.Window})
	switch {
	case err == nil:
		return nil
	case isRateLimited(err):
		e.metricInc(MetricRateLimited)
		e.emitAudit(ctx, auditEventRateLimited, false, "", ErrRateLimited, func() map[string]string {
			return map[string]string{"scope": scope}
		})
		return ErrRateLimited
	default:
		e.logger.WarnContext(ctx, "zenauth: throttle unavailable",
			slog.String("scope", scope),
			slog.Any("error", err),
		)
		return nil
	}
}

// issue mints a pair for rec and appends its refresh token to the set.
func (e *Engine) issue(ctx context.Context, op string, rec *account.Record) (TokenPair, error) {
	pair, err := e.tokens.IssuePair(subjectOf(rec))
	if err != nil {
		return TokenPair{}, e.infra(ctx, op, rec.ID, err)
	}
	tok := refreshRecord(pair)
	if err := e.store.AddRefreshToken(ctx, rec.ID, tok, e.config.Refresh.MaxTokensPerAccount); err != nil {
		return TokenPair{}, e.infra(ctx, op, rec.ID, err)
	}
	return tokenPair(pair), nil
}

// send delivers one email. Failures are logged and counted; the caller
// decides whether they are fatal.
func (e *Engine) send(ctx context.Context, op string, rec *account.Record, kind mail.Kind, payload mail.Payload) (string, error) {
	if e.mailer == nil {
		return "", nil
	}
	id, err := e.mailer.Send(ctx, rec.Email, kind, payload)
	if err != nil {
		e.metricInc(MetricEmailDispatchFailure)
		e.logger.WarnContext(ctx, "zenauth: email dispatch failed",
			slog.String("op", op),
			slog.String("account_id", rec.ID),
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
		return "", err
	}
	return id, nil
}

func (e *Engine) checkPassword(plaintext string) error {
	n := len(plaintext)
	if n < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}
	if e.config.Password.MaxLength > 0 && n > e.config.Password.MaxLength {
		return ErrPasswordPolicy
	}
	return nil
}

func subjectOf(rec *account.Record) jwt.Subject {
	return jwt.Subject{
		ID:            rec.ID,
		Email:         rec.Email,
		Role:          string(rec.Role),
		EmailVerified: rec.EmailVerified,
	}
}

func refreshRecord(pair jwt.Pair) account.RefreshToken {
	return account.RefreshToken{
		Hash:      challenge.TokenHash(pair.RefreshToken),
		IssuedAt:  pair.IssuedAt,
		ExpiresAt: pair.RefreshExpiresAt,
	}
}

func tokenPair(pair jwt.Pair) TokenPair {
	return TokenPair{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func bearerToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "bearer") {
		return ""
	}
	if scheme, rest, ok := strings.Cut(raw, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(rest)
	}
	return raw
}

func expiresIn(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes == 1 {
		return "1 minute"
	}
	return strconv.Itoa(minutes) + " minutes"
}
