package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "identity:session:"

// RedisStore implements identity.SessionStore on top of Redis. Keys expire
// with the session so Redis drops stale entries on its own.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

var _ identity.SessionStore = (*RedisStore)(nil)

// Option configures a RedisStore
type Option func(*RedisStore)

// WithPrefix overrides the key prefix
func WithPrefix(prefix string) Option {
	return func(r *RedisStore) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithTTL overrides the session lifetime used by Start
func WithTTL(ttl time.Duration) Option {
	return func(r *RedisStore) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *RedisStore) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	r := &RedisStore{
		client: client,
		prefix: defaultPrefix,
		ttl:    identity.DefaultSessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

// TTL returns the session lifetime
func (r *RedisStore) TTL() time.Duration {
	return r.ttl
}

// Start creates a new session for identityID with a random id
func (r *RedisStore) Start(ctx context.Context, identityID uuid.UUID) (*identity.Session, error) {
	if identityID == uuid.Nil {
		return nil, goerrors.New("session: missing identity id", goerrors.CategoryBadInput)
	}

	id, err := GenerateID()
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	s := identity.Session{
		ID:         id,
		IdentityID: identityID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(r.ttl),
	}

	if err := r.Create(ctx, s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Create implements identity.SessionStore
func (r *RedisStore) Create(ctx context.Context, s identity.Session) error {
	if s.ID == "" {
		return goerrors.New("session: missing session id", goerrors.CategoryBadInput)
	}

	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return goerrors.New("session: expires_at must be in the future", goerrors.CategoryBadInput)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "session: failed to marshal")
	}

	if err := r.client.Set(ctx, r.key(s.ID), data, ttl).Err(); err != nil {
		return identity.Upstream(err, "session_create")
	}
	return nil
}

// Get implements identity.SessionStore
func (r *RedisStore) Get(ctx context.Context, id string) (*identity.Session, error) {
	if id == "" {
		return nil, nil
	}

	val, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, identity.Upstream(err, "session_get")
	}

	var s identity.Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "session: failed to unmarshal")
	}
	return &s, nil
}

// Delete implements identity.SessionStore
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return identity.Upstream(err, "session_delete")
	}
	return nil
}

// GenerateID generates a cryptographically secure session ID with 256 bits
// of entropy.
func GenerateID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "session: failed to generate id")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
