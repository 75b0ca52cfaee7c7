package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the signed payload carried by a session token. The wire
// format is the standard three-segment compact JWS: header, claims, signature.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// Subject returns the sub claim, the owning username.
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// Expires returns the exp claim, zero when absent.
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the iat claim, zero when absent.
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
