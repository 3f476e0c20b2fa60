package zenauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/mk070/zenauth/account"
	"github.com/mk070/zenauth/password"
)

// Config holds every tunable of the Engine. Start from [DefaultConfig] and
// override fields; [Builder.Build] validates the result.
type Config struct {
	JWT           JWTConfig
	Password      PasswordConfig
	OTP           OTPConfig
	PasswordReset PasswordResetConfig
	Lockout       LockoutConfig
	Refresh       RefreshConfig
	Revocation    RevocationConfig
	Throttle      ThrottleConfig
	Account       AccountConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Security      SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token issuance. Access and refresh tokens are signed
// with distinct keys.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"

	// HS256 secrets, or Ed25519 private keys (raw or PEM).
	AccessSecret  []byte
	RefreshSecret []byte

	// Ed25519 public keys. Unused for HS256.
	AccessPublicKey  []byte
	RefreshPublicKey []byte

	Issuer string
	Leeway time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hashing algorithm and the minimum policy.
type PasswordConfig struct {
	Algorithm  password.Algorithm
	BcryptCost int
	Argon2     password.Argon2Params
	MinLength  int
	MaxLength  int
	// UpgradeOnLogin re-hashes on successful sign-in when the stored digest
	// uses another algorithm or weaker parameters.
	UpgradeOnLogin bool
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// OTPConfig configures email verification codes.
type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
	Digits      int
}

// PasswordResetConfig configures reset tokens. When LinkBaseURL is set the
// reset email carries LinkBaseURL?token=<token>.
type PasswordResetConfig struct {
	TTL         time.Duration
	LinkBaseURL string
}

/*
====================================
ACCOUNT PROTECTION
====================================
*/

// LockoutConfig locks an account for Duration after Threshold consecutive
// failed sign-ins.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// RefreshConfig bounds the per-account refresh-token set.
type RefreshConfig struct {
	MaxTokensPerAccount int
}

// RevocationBackend selects where revoked access tokens are recorded.
type RevocationBackend string

const (
	RevocationAuto   RevocationBackend = ""
	RevocationRedis  RevocationBackend = "redis"
	RevocationMemory RevocationBackend = "memory"
)

// RevocationConfig selects the revocation registry. Auto uses Redis when a
// client is configured, memory otherwise.
type RevocationConfig struct {
	Backend     RevocationBackend
	RedisPrefix string
}

// ThrottleRule allows Max requests per Window. Zero Max disables the rule.
type ThrottleRule struct {
	Max    int
	Window time.Duration
}

// ThrottleConfig rate-limits the unauthenticated entry points.
type ThrottleConfig struct {
	SignInPerIP       ThrottleRule
	SignupPerIP       ThrottleRule
	ResendPerEmail    ThrottleRule
	VerifyPerEmail    ThrottleRule
	ForgotPerEmail    ThrottleRule
	RedisPrefix       string
	LocalIdleDuration time.Duration
}

// AccountConfig configures new accounts.
type AccountConfig struct {
	DefaultRole account.Role
	RedisPrefix string
}

/*
====================================
OBSERVABILITY
====================================
*/

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig holds deployment-wide switches.
type SecurityConfig struct {
	// ProductionMode rejects development shortcuts such as short secrets or a
	// low bcrypt cost.
	ProductionMode bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the documented defaults. Signing secrets are left
// empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "zenauth",
		},
		Password: PasswordConfig{
			Algorithm:      password.AlgorithmBcrypt,
			BcryptCost:     password.DefaultBcryptCost,
			Argon2:         password.DefaultArgon2Params(),
			MinLength:      8,
			MaxLength:      72,
			UpgradeOnLogin: true,
		},
		OTP: OTPConfig{
			TTL:         10 * time.Minute,
			MaxAttempts: 3,
			Digits:      6,
		},
		PasswordReset: PasswordResetConfig{
			TTL: 30 * time.Minute,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		Refresh: RefreshConfig{
			MaxTokensPerAccount: 5,
		},
		Revocation: RevocationConfig{
			Backend:     RevocationAuto,
			RedisPrefix: "za:revoked",
		},
		Throttle: ThrottleConfig{
			SignInPerIP:       ThrottleRule{Max: 20, Window: time.Minute},
			SignupPerIP:       ThrottleRule{Max: 10, Window: time.Hour},
			ResendPerEmail:    ThrottleRule{Max: 3, Window: 15 * time.Minute},
			VerifyPerEmail:    ThrottleRule{Max: 10, Window: 15 * time.Minute},
			ForgotPerEmail:    ThrottleRule{Max: 3, Window: 15 * time.Minute},
			RedisPrefix:       "za:rl",
			LocalIdleDuration: 10 * time.Minute,
		},
		Account: AccountConfig{
			DefaultRole: account.RoleUser,
			RedisPrefix: "za",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.JWT.AccessPublicKey = cloneBytes(cfg.JWT.AccessPublicKey)
	out.JWT.RefreshPublicKey = cloneBytes(cfg.JWT.RefreshPublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting, wrapped in ErrConfigInvalid.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return nil
}

func (c *Config) validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must exceed AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.AccessSecret) == 0 || len(c.JWT.RefreshSecret) == 0 {
			return errors.New("hs256 requires AccessSecret and RefreshSecret")
		}
		if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
			return errors.New("AccessSecret and RefreshSecret must differ")
		}
	case "ed25519":
		if len(c.JWT.AccessSecret) == 0 || len(c.JWT.RefreshSecret) == 0 {
			return errors.New("ed25519 requires access and refresh private keys")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	switch c.Password.Algorithm {
	case password.AlgorithmBcrypt, password.AlgorithmArgon2id:
	default:
		return errors.New("Password Algorithm must be bcrypt or argon2id")
	}
	if c.Password.Algorithm == password.AlgorithmArgon2id {
		if err := c.Password.Argon2.Validate(); err != nil {
			return err
		}
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength != 0 && c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Challenges
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 6 and 10")
	}
	if c.PasswordReset.TTL <= 0 {
		return errors.New("PasswordReset TTL must be > 0")
	}

	// Account protection
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	if c.Refresh.MaxTokensPerAccount <= 0 {
		return errors.New("Refresh MaxTokensPerAccount must be > 0")
	}
	switch c.Revocation.Backend {
	case RevocationAuto, RevocationRedis, RevocationMemory:
	default:
		return errors.New("Revocation Backend must be redis or memory")
	}
	for name, rule := range map[string]ThrottleRule{
		"SignInPerIP":    c.Throttle.SignInPerIP,
		"SignupPerIP":    c.Throttle.SignupPerIP,
		"ResendPerEmail": c.Throttle.ResendPerEmail,
		"VerifyPerEmail": c.Throttle.VerifyPerEmail,
		"ForgotPerEmail": c.Throttle.ForgotPerEmail,
	} {
		if rule.Max < 0 || (rule.Max > 0 && rule.Window <= 0) {
			return fmt.Errorf("Throttle %s must have Max >= 0 and a positive Window", name)
		}
	}
	if !c.Account.DefaultRole.Valid() {
		return errors.New("Account DefaultRole must be user, moderator or admin")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Production hardening
	if c.Security.ProductionMode {
		if c.JWT.SigningMethod == "hs256" && (len(c.JWT.AccessSecret) < 32 || len(c.JWT.RefreshSecret) < 32) {
			return errors.New("ProductionMode requires JWT secrets of at least 32 bytes")
		}
		if c.Password.Algorithm == password.AlgorithmBcrypt && c.Password.BcryptCost != 0 && c.Password.BcryptCost < password.DefaultBcryptCost {
			return errors.New("ProductionMode requires bcrypt cost >= 12")
		}
		if c.Lockout.Threshold > 10 {
			return errors.New("ProductionMode requires Lockout Threshold <= 10")
		}
	}

	return nil
}
