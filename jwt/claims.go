package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType is carried in the "type" claim.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// Subject is the identity a pair is minted for.
type Subject struct {
	ID            string
	Email         string
	Role          string
	EmailVerified bool
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	Type          TokenType `json:"type"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. RegisteredClaims.ID is the
// per-token unique id.
type RefreshClaims struct {
	Email string    `json:"email"`
	Type  TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Pair is the result of IssuePair.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessID         string
	RefreshID        string
	IssuedAt         time.Time
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// ExpiresAtTime returns the exp claim, or the zero time when absent.
func (c *AccessClaims) ExpiresAtTime() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
