package identity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]identity.Session
	err      error
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: map[string]identity.Session{}}
}

func (m *memorySessions) Create(_ context.Context, s identity.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memorySessions) Get(_ context.Context, id string) (*identity.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memorySessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func TestHybridAuthenticator_SessionWinsOverBearer(t *testing.T) {
	sessions := newMemorySessions()
	tokens := newTestTokens()

	sessionOwner := uuid.New()
	require.NoError(t, sessions.Create(context.Background(), identity.Session{
		ID:         "sess-1",
		IdentityID: sessionOwner,
		ExpiresAt:  time.Now().Add(time.Hour),
	}))

	bearerOwner := sampleIdentity()
	token, err := tokens.Issue(bearerOwner)
	require.NoError(t, err)

	auth := identity.NewHybridAuthenticator(sessions, tokens)
	res := auth.Resolve(context.Background(), identity.RequestCredentials{
		SessionID:     "sess-1",
		Authorization: "Bearer " + token,
	})

	require.True(t, res.OK())
	assert.Equal(t, identity.SourceSession, res.Principal.Source)
	assert.Equal(t, sessionOwner, res.Principal.IdentityID)
}

func TestHybridAuthenticator_FallsBackToBearer(t *testing.T) {
	sessions := newMemorySessions()
	tokens := newTestTokens()
	owner := sampleIdentity()
	token, err := tokens.Issue(owner)
	require.NoError(t, err)

	require.NoError(t, sessions.Create(context.Background(), identity.Session{
		ID:         "expired",
		IdentityID: uuid.New(),
		ExpiresAt:  time.Now().Add(-time.Minute),
	}))

	auth := identity.NewHybridAuthenticator(sessions, tokens)

	for _, sid := range []string{"", "unknown", "expired"} {
		res := auth.Resolve(context.Background(), identity.RequestCredentials{
			SessionID:     sid,
			Authorization: "Bearer " + token,
		})
		require.True(t, res.OK(), "session %q", sid)
		assert.Equal(t, identity.SourceBearer, res.Principal.Source)
		assert.Equal(t, owner.ID, res.Principal.IdentityID)
		assert.Equal(t, owner.Email, res.Principal.Claims.Email)
	}
}

func TestHybridAuthenticator_SessionStoreFailureFallsThrough(t *testing.T) {
	sessions := newMemorySessions()
	sessions.err = errBoom
	tokens := newTestTokens()
	owner := sampleIdentity()
	token, err := tokens.Issue(owner)
	require.NoError(t, err)

	auth := identity.NewHybridAuthenticator(sessions, tokens, identity.WithStrategies(
		identity.SessionResolver{Sessions: sessions, Logger: quietLogger{}},
		identity.BearerResolver{Tokens: tokens},
	))
	res := auth.Resolve(context.Background(), identity.RequestCredentials{
		SessionID:     "sess-1",
		Authorization: "Bearer " + token,
	})
	require.True(t, res.OK())
	assert.Equal(t, identity.SourceBearer, res.Principal.Source)
}

func TestHybridAuthenticator_Rejects(t *testing.T) {
	tokens := newTestTokens()
	auth := identity.NewHybridAuthenticator(newMemorySessions(), tokens)

	cases := []identity.RequestCredentials{
		{},
		{Authorization: "Bearer garbage"},
		{Authorization: "Basic dXNlcjpwYXNz"},
		{Authorization: "Bearer "},
		{SessionID: "missing"},
	}
	for _, c := range cases {
		res := auth.Resolve(context.Background(), c)
		assert.Equal(t, identity.Rejected, res.State, "credentials %+v", c)
		assert.Nil(t, res.Principal)
		assert.Equal(t, "authentication required", res.Reason)
	}
}

func TestHybridAuthenticator_ResolveOnly(t *testing.T) {
	sessions := newMemorySessions()
	tokens := newTestTokens()
	token, err := tokens.Issue(sampleIdentity())
	require.NoError(t, err)

	auth := identity.NewHybridAuthenticator(sessions, tokens)
	res := auth.ResolveOnly(context.Background(), identity.SourceSession, identity.RequestCredentials{
		Authorization: "Bearer " + token,
	})
	assert.False(t, res.OK())
}

func TestBearerToken(t *testing.T) {
	token, ok := identity.BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	token, ok = identity.BearerToken("bearer   xyz ")
	assert.True(t, ok)
	assert.Equal(t, "xyz", token)

	_, ok = identity.BearerToken("abc")
	assert.False(t, ok)
}
