package zenauth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mk070/zenauth/password"
)

// Environment knobs read by LoadConfig.
const (
	EnvBcryptCost        = "ZENAUTH_BCRYPT_COST"
	EnvPasswordAlgorithm = "ZENAUTH_PASSWORD_ALGORITHM"
	EnvAccessTTL         = "ZENAUTH_ACCESS_TTL"
	EnvRefreshTTL        = "ZENAUTH_REFRESH_TTL"
	EnvAccessSecret      = "ZENAUTH_ACCESS_SECRET"
	EnvRefreshSecret     = "ZENAUTH_REFRESH_SECRET"
	EnvIssuer            = "ZENAUTH_ISSUER"
	EnvOTPTTL            = "ZENAUTH_OTP_TTL"
	EnvOTPMaxAttempts    = "ZENAUTH_OTP_MAX_ATTEMPTS"
	EnvResetTTL          = "ZENAUTH_RESET_TTL"
	EnvResetLinkBaseURL  = "ZENAUTH_RESET_LINK_BASE_URL"
	EnvLockoutThreshold  = "ZENAUTH_LOCKOUT_THRESHOLD"
	EnvLockoutDuration   = "ZENAUTH_LOCKOUT_DURATION"
	EnvRefreshCap        = "ZENAUTH_REFRESH_CAP"
	EnvProduction        = "ZENAUTH_PRODUCTION"
)

// LookupFunc resolves one environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadConfig overlays the knobs found through lookup onto DefaultConfig.
// Durations use time.ParseDuration syntax. The result is not validated;
// Builder.Build does that.
func LoadConfig(lookup LookupFunc) (Config, error) {
	cfg := DefaultConfig()
	if lookup == nil {
		return cfg, nil
	}

	p := envParser{lookup: lookup}
	p.int(EnvBcryptCost, &cfg.Password.BcryptCost)
	if v, ok := lookup(EnvPasswordAlgorithm); ok && v != "" {
		cfg.Password.Algorithm = password.Algorithm(v)
	}
	p.duration(EnvAccessTTL, &cfg.JWT.AccessTTL)
	p.duration(EnvRefreshTTL, &cfg.JWT.RefreshTTL)
	if v, ok := lookup(EnvAccessSecret); ok && v != "" {
		cfg.JWT.AccessSecret = []byte(v)
	}
	if v, ok := lookup(EnvRefreshSecret); ok && v != "" {
		cfg.JWT.RefreshSecret = []byte(v)
	}
	if v, ok := lookup(EnvIssuer); ok && v != "" {
		cfg.JWT.Issuer = v
	}
	p.duration(EnvOTPTTL, &cfg.OTP.TTL)
	p.int(EnvOTPMaxAttempts, &cfg.OTP.MaxAttempts)
	p.duration(EnvResetTTL, &cfg.PasswordReset.TTL)
	if v, ok := lookup(EnvResetLinkBaseURL); ok {
		cfg.PasswordReset.LinkBaseURL = v
	}
	p.int(EnvLockoutThreshold, &cfg.Lockout.Threshold)
	p.duration(EnvLockoutDuration, &cfg.Lockout.Duration)
	p.int(EnvRefreshCap, &cfg.Refresh.MaxTokensPerAccount)
	p.bool(EnvProduction, &cfg.Security.ProductionMode)

	if p.err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigInvalid, p.err)
	}
	return cfg, nil
}

// ConfigFromEnv reads the given dotenv files (missing files are skipped),
// then the process environment, which takes precedence.
func ConfigFromEnv(files ...string) (Config, error) {
	fileVars := map[string]string{}
	for _, name := range files {
		vars, err := godotenv.Read(name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, name, err)
		}
		for k, v := range vars {
			fileVars[k] = v
		}
	}

	return LoadConfig(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	})
}

type envParser struct {
	lookup LookupFunc
	err    error
}

func (p *envParser) int(key string, dst *int) {
	v, ok := p.lookup(key)
	if !ok || v == "" || p.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %v", key, err)
		return
	}
	*dst = n
}

func (p *envParser) duration(key string, dst *time.Duration) {
	v, ok := p.lookup(key)
	if !ok || v == "" || p.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %v", key, err)
		return
	}
	*dst = d
}

func (p *envParser) bool(key string, dst *bool) {
	v, ok := p.lookup(key)
	if !ok || v == "" || p.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %v", key, err)
		return
	}
	*dst = b
}
