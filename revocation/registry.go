package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrUnavailable is returned when the backing store cannot be reached.
var ErrUnavailable = errors.New("revocation: backend unavailable")

// Registry is the set of revoked access tokens.
type Registry interface {
	// Revoke records token until expiresAt. Tokens already past expiresAt are
	// not stored.
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// Fingerprint returns the hex SHA-256 of token.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
