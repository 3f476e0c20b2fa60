// Package challenge produces OTP codes and opaque reset tokens and verifies
// candidates against their stored salted digests.
//
// Only digests are ever handed to the store. A digest has the form
// hex(salt) ":" hex(sha256(salt || value)).
package challenge

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/mk070/zenauth/account"
)

const (
	saltSize          = 16
	resetIDSize       = 16
	resetSecretSize   = 32
	resetTokenRawSize = resetIDSize + resetSecretSize
)

// ErrMalformedToken is returned by ParseResetToken for undecodable input.
var ErrMalformedToken = errors.New("challenge: malformed token")

// Config sets challenge lifetimes and the OTP shape.
type Config struct {
	OTPDigits      int
	OTPTTL         time.Duration
	MaxOTPAttempts int
	ResetTTL       time.Duration
}

// Generator issues and checks challenges against an injected clock.
type Generator struct {
	cfg Config
	now func() time.Time
}

// New validates cfg. now defaults to time.Now.
func New(cfg Config, now func() time.Time) (*Generator, error) {
	if cfg.OTPDigits < 6 || cfg.OTPDigits > 10 {
		return nil, errors.New("invalid otp digits")
	}
	if cfg.OTPTTL <= 0 || cfg.ResetTTL <= 0 {
		return nil, errors.New("challenge TTLs must be > 0")
	}
	if cfg.MaxOTPAttempts <= 0 {
		return nil, errors.New("otp max attempts must be > 0")
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{cfg: cfg, now: now}, nil
}

// NewOTP returns a uniformly random numeric code and the challenge to persist.
func (g *Generator) NewOTP() (string, account.OTPChallenge, error) {
	code, err := newNumericCode(g.cfg.OTPDigits)
	if err != nil {
		return "", account.OTPChallenge{}, err
	}
	digest, err := Digest([]byte(code))
	if err != nil {
		return "", account.OTPChallenge{}, err
	}
	return code, account.OTPChallenge{
		Digest:    digest,
		ExpiresAt: g.now().Add(g.cfg.OTPTTL),
		Attempts:  0,
	}, nil
}

// OTPAttempt binds candidate to the salt of ch so the store can compare it
// against the live digest without seeing the code.
func (g *Generator) OTPAttempt(ch *account.OTPChallenge, candidate string) account.OTPAttempt {
	a := account.OTPAttempt{MaxAttempts: g.cfg.MaxOTPAttempts, Now: g.now()}
	if ch != nil {
		a.Expected = ch.Digest
		a.Candidate = Rehash(ch.Digest, []byte(strings.TrimSpace(candidate)))
	}
	return a
}

// NewResetToken returns the transport token base64url(id || secret) and the
// challenge to persist.
func (g *Generator) NewResetToken() (string, account.ResetChallenge, error) {
	var raw [resetTokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", account.ResetChallenge{}, err
	}

	digest, err := Digest(raw[resetIDSize:])
	if err != nil {
		return "", account.ResetChallenge{}, err
	}

	return base64.RawURLEncoding.EncodeToString(raw[:]), account.ResetChallenge{
		ID:        base64.RawURLEncoding.EncodeToString(raw[:resetIDSize]),
		Digest:    digest,
		ExpiresAt: g.now().Add(g.cfg.ResetTTL),
	}, nil
}

// ParseResetToken splits a transport token into its lookup id and secret.
func ParseResetToken(token string) (string, []byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil || len(raw) != resetTokenRawSize {
		return "", nil, ErrMalformedToken
	}
	return base64.RawURLEncoding.EncodeToString(raw[:resetIDSize]), raw[resetIDSize:], nil
}

// CheckReset reports whether secret answers the live challenge ch for resetID.
func (g *Generator) CheckReset(ch *account.ResetChallenge, resetID string, secret []byte) bool {
	if ch == nil || ch.ID == "" || ch.Digest == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(ch.ID), []byte(resetID)) != 1 {
		return false
	}
	if ch.Expired(g.now()) {
		return false
	}
	return Matches(ch.Digest, secret)
}

// Digest salts and hashes value with a fresh random salt.
func Digest(value []byte) (string, error) {
	var salt [saltSize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return "", err
	}
	return digestWithSalt(salt[:], value), nil
}

// Rehash hashes value with the salt embedded in digest. It returns "" for a
// malformed digest.
func Rehash(digest string, value []byte) string {
	saltHex, _, ok := strings.Cut(digest, ":")
	if !ok {
		return ""
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return ""
	}
	return digestWithSalt(salt, value)
}

// Matches reports whether value hashes to digest, in constant time.
func Matches(digest string, value []byte) bool {
	expected := Rehash(digest, value)
	return expected != "" && subtle.ConstantTimeCompare([]byte(expected), []byte(digest)) == 1
}

// TokenHash is the unsalted SHA-256 hex digest used to index signed tokens.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func digestWithSalt(salt, value []byte) string {
	h := sha256.New()
	h.Write(salt)
	h.Write(value)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(h.Sum(nil))
}

func newNumericCode(digits int) (string, error) {
	var b strings.Builder
	b.Grow(digits)

	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
