package zenauth

import (
	"errors"
	"log/slog"
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
	"github.com/mk070/zenauth/store/redisstore"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     account.Store
	mailer    mail.Sender
	registry  revocation.Registry
	auditSink AuditSink
	logger    *slog.Logger
	clock     clockwork.Clock

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the default credential store, the
// revocation registry and the throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore overrides the credential store, e.g. with a pgstore.Store.
func (b *Builder) WithStore(store account.Store) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithMailer(sender mail.Sender) *Builder {
	b.mailer = sender
	return b
}

func (b *Builder) WithRevocationRegistry(registry revocation.Registry) *Builder {
	b.registry = registry
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces the wall clock. Every expiry, lock deadline and token
// timestamp derives from it.
func (b *Builder) WithClock(clock clockwork.Clock) *Builder {
	b.clock = clock
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine. Without WithStore
// a Redis client is required.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	now := func() time.Time { return clock.Now().UTC() }

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- CREDENTIAL STORE --------
	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or account store required")
		}
		store = redisstore.New(b.redis,
			redisstore.WithPrefix(cfg.Account.RedisPrefix),
			redisstore.WithClock(now),
		)
	}

	// -------- REVOCATION --------
	registry := b.registry
	if registry == nil {
		switch cfg.Revocation.Backend {
		case RevocationRedis:
			if b.redis == nil {
				return nil, errors.New("redis revocation backend requires redis client")
			}
			registry = revocation.NewRedis(b.redis, cfg.Revocation.RedisPrefix, now)
		case RevocationMemory:
			registry = revocation.NewMemory(cfg.JWT.AccessTTL+cfg.JWT.Leeway, now)
		default:
			if b.redis != nil {
				registry = revocation.NewRedis(b.redis, cfg.Revocation.RedisPrefix, now)
			} else {
				registry = revocation.NewMemory(cfg.JWT.AccessTTL+cfg.JWT.Leeway, now)
			}
		}
	}

	// -------- THROTTLE --------
	var throttle rate.Limiter
	if b.redis != nil {
		throttle = rate.NewRedis(b.redis, cfg.Throttle.RedisPrefix)
	} else {
		throttle = rate.NewLocal(cfg.Throttle.LocalIdleDuration, now)
	}

	// -------- CRYPTO --------
	hasher, err := password.New(password.Options{
		Algorithm:  cfg.Password.Algorithm,
		BcryptCost: cfg.Password.BcryptCost,
		Argon2:     cfg.Password.Argon2,
	})
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash("zenauth-timing-equalizer")
	if err != nil {
		return nil, err
	}

	challenges, err := challenge.New(challenge.Config{
		OTPDigits:      cfg.OTP.Digits,
		OTPTTL:         cfg.OTP.TTL,
		MaxOTPAttempts: cfg.OTP.MaxAttempts,
		ResetTTL:       cfg.PasswordReset.TTL,
	}, now)
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Access: jwt.Keys{
			PrivateKey: cloneBytes(cfg.JWT.AccessSecret),
			PublicKey:  cloneBytes(cfg.JWT.AccessPublicKey),
		},
		Refresh: jwt.Keys{
			PrivateKey: cloneBytes(cfg.JWT.RefreshSecret),
			PublicKey:  cloneBytes(cfg.JWT.RefreshPublicKey),
		},
		Issuer: cfg.JWT.Issuer,
		Leeway: cfg.JWT.Leeway,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}

	mailer := b.mailer
	if mailer == nil {
		mailer = &mail.LogSender{Logger: logger, Now: now}
	}

	engine := &Engine{
		config:     cfg,
		store:      store,
		hasher:     hasher,
		challenges: challenges,
		tokens:     tokens,
		revoked:    registry,
		lockout: limiters.NewLockout(store, limiters.LockoutConfig{
			Threshold: cfg.Lockout.Threshold,
			Duration:  cfg.Lockout.Duration,
		}, now),
		throttle: throttle,
		mailer:   mailer,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: internalmetrics.New(internalmetrics.Config{
			Enabled:                 cfg.Metrics.Enabled,
			EnableLatencyHistograms: cfg.Metrics.EnableLatencyHistograms,
		}),
		logger:      logger,
		clock:       clock,
		dummyDigest: dummy,
	}

	b.built = true

	return engine, nil
}
