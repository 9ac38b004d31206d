package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the JWT payload issued for an identity. Extension claims mirror
// the identity at issue time, so any change to email, provider or credits
// requires a fresh token.
type Claims struct {
	jwt.RegisteredClaims
	UID      string       `json:"uid,omitempty"`
	Email    string       `json:"email,omitempty"`
	Provider AuthProvider `json:"provider,omitempty"`
	Credits  int          `json:"credits"`
}

// UserID returns the identity id
func (c *Claims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}

// IdentityID parses the subject into a uuid
func (c *Claims) IdentityID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Expires returns the expiration time
func (c *Claims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedAtTime returns the issue time
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}
