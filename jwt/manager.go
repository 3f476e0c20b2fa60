package jwt

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the signature algorithm for both token types.
type SigningMethod string

const (
	// MethodHS256 signs with per-type HMAC secrets.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with per-type Ed25519 key pairs.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrExpired marks a token whose signature is valid but whose lifetime has ended.
	ErrExpired = errors.New("jwt: token expired")
	// ErrInvalid marks a token with a bad signature, algorithm, issuer or type.
	ErrInvalid = errors.New("jwt: token invalid")
	// ErrMalformed marks input that is not a structurally valid JWT.
	ErrMalformed = errors.New("jwt: token malformed")
)

// Keys holds the material for one token type. For HS256 PrivateKey is the
// shared secret and PublicKey is unused. Ed25519 keys may be raw or PEM.
type Keys struct {
	PrivateKey []byte
	PublicKey  []byte
}

// Config configures a Manager.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	Access        Keys
	Refresh       Keys
	Issuer        string
	Leeway        time.Duration
	Now           func() time.Time
}

type keyset struct {
	sign   interface{}
	verify interface{}
}

// Manager issues and verifies token pairs. It is safe for concurrent use.
type Manager struct {
	config  Config
	method  jwt.SigningMethod
	access  keyset
	refresh keyset
}

// NewManager validates cfg and resolves key material.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Access.PrivateKey) == 0 || len(cfg.Refresh.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires access and refresh secrets")
		}
		if bytes.Equal(cfg.Access.PrivateKey, cfg.Refresh.PrivateKey) {
			return nil, errors.New("access and refresh secrets must differ")
		}
		m.method = jwt.SigningMethodHS256
		m.access = keyset{sign: cfg.Access.PrivateKey, verify: cfg.Access.PrivateKey}
		m.refresh = keyset{sign: cfg.Refresh.PrivateKey, verify: cfg.Refresh.PrivateKey}
	case MethodEd25519:
		access, err := edKeyset(cfg.Access)
		if err != nil {
			return nil, fmt.Errorf("access key: %w", err)
		}
		refresh, err := edKeyset(cfg.Refresh)
		if err != nil {
			return nil, fmt.Errorf("refresh key: %w", err)
		}
		if access.verify.(ed25519.PublicKey).Equal(refresh.verify) {
			return nil, errors.New("access and refresh keys must differ")
		}
		m.method = jwt.SigningMethodEdDSA
		m.access = access
		m.refresh = refresh
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// AccessTTL reports the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// RefreshTTL reports the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration {
	return m.config.RefreshTTL
}

// IssuePair mints a fresh access and refresh token for s. Every call yields a
// new refresh id; tokens are never reissued or mutated.
func (m *Manager) IssuePair(s Subject) (Pair, error) {
	if s.ID == "" {
		return Pair{}, errors.New("subject id required")
	}

	now := m.config.Now()
	accessExp := now.Add(m.config.AccessTTL)
	refreshExp := now.Add(m.config.RefreshTTL)

	access := AccessClaims{
		Email:         s.Email,
		Role:          s.Role,
		EmailVerified: s.EmailVerified,
		Type:          TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ID,
			Issuer:    m.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	}
	refresh := RefreshClaims{
		Email: s.Email,
		Type:  TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ID,
			Issuer:    m.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
		},
	}

	accessToken, err := jwt.NewWithClaims(m.method, access).SignedString(m.access.sign)
	if err != nil {
		return Pair{}, err
	}
	refreshToken, err := jwt.NewWithClaims(m.method, refresh).SignedString(m.refresh.sign)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessID:         access.ID,
		RefreshID:        refresh.ID,
		IssuedAt:         access.IssuedAt.Time,
		AccessExpiresAt:  access.ExpiresAt.Time,
		RefreshExpiresAt: refresh.ExpiresAt.Time,
	}, nil
}

// VerifyAccess checks an access token. On ErrExpired the decoded claims are
// still returned so callers can inspect the subject.
func (m *Manager) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(token, claims, m.access); err != nil {
		if errors.Is(err, ErrExpired) && claims.Type == TypeAccess {
			return claims, err
		}
		return nil, err
	}
	if claims.Type != TypeAccess {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalid, claims.Type)
	}
	return claims, nil
}

// VerifyRefresh checks a refresh token with the same contract as VerifyAccess.
func (m *Manager) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(token, claims, m.refresh); err != nil {
		if errors.Is(err, ErrExpired) && claims.Type == TypeRefresh {
			return claims, err
		}
		return nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalid, claims.Type)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing token id", ErrInvalid)
	}
	return claims, nil
}

func (m *Manager) parse(token string, claims jwt.Claims, keys keyset) error {
	if token == "" {
		return ErrMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return keys.verify, nil
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
}

func edKeyset(k Keys) (keyset, error) {
	priv, err := parseEdPrivateKey(k.PrivateKey)
	if err != nil {
		return keyset{}, err
	}
	pub := priv.Public().(ed25519.PublicKey)
	if len(k.PublicKey) > 0 {
		pub, err = parseEdPublicKey(k.PublicKey)
		if err != nil {
			return keyset{}, err
		}
		if !pub.Equal(priv.Public()) {
			return keyset{}, errors.New("ed25519 public key does not match private key")
		}
	}
	return keyset{sign: priv, verify: pub}, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
