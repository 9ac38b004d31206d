package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is the lifetime of server side sessions
const DefaultSessionTTL = 24 * time.Hour

// Session is a server side login created by the federated callback. It only
// points at an identity and never carries credentials.
type Session struct {
	ID         string    `json:"id"`
	IdentityID uuid.UUID `json:"identity_id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Active reports whether the session is usable at now
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.ID != "" && s.IdentityID != uuid.Nil && now.Before(s.ExpiresAt)
}

// SessionStore persists sessions. Get returns nil, nil for unknown ids.
type SessionStore interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}
