package federated

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name     string
	verifier string
	nonce    string
	code     string
	err      error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) AuthCodeURL(state, nonce, challenge string) string {
	q := url.Values{}
	q.Set("state", state)
	q.Set("nonce", nonce)
	q.Set("code_challenge", challenge)
	return "https://idp.example.com/authorize?" + q.Encode()
}

func (f *fakeProvider) Exchange(_ context.Context, code, verifier, nonce string) (*identity.Assertion, error) {
	f.code, f.verifier, f.nonce = code, verifier, nonce
	if f.err != nil {
		return nil, f.err
	}
	return &identity.Assertion{SubjectID: "g-1", Email: "jane@example.com"}, nil
}

func TestFlow_BeginComplete(t *testing.T) {
	provider := &fakeProvider{name: "google"}
	flow := NewFlow(provider, newTestStates(t), WithFlowLogger(quiet{}))

	redirect, err := flow.Begin("/dashboard")
	require.NoError(t, err)
	require.NotEmpty(t, redirect.State)

	u, err := url.Parse(redirect.URL)
	require.NoError(t, err)
	assert.Equal(t, redirect.State, u.Query().Get("state"))
	challenge := u.Query().Get("code_challenge")
	nonce := u.Query().Get("nonce")

	assertion, state, err := flow.Complete(context.Background(), redirect.State, "code-1")
	require.NoError(t, err)
	assert.Equal(t, "g-1", assertion.SubjectID)
	assert.Equal(t, "/dashboard", state.RedirectURL)
	assert.Equal(t, "code-1", provider.code)
	assert.Equal(t, nonce, provider.nonce)
	assert.Equal(t, challenge, computeCodeChallenge(provider.verifier))
}

func TestFlow_CompleteRejectsBadState(t *testing.T) {
	provider := &fakeProvider{name: "google"}
	states := newTestStates(t)
	flow := NewFlow(provider, states, WithFlowLogger(quiet{}))
	ctx := context.Background()

	_, _, err := flow.Complete(ctx, "garbage", "code")
	assert.ErrorIs(t, err, ErrInvalidState)

	foreign, err := states.Encode(&OAuthState{Provider: "github"})
	require.NoError(t, err)
	_, _, err = flow.Complete(ctx, foreign, "code")
	assert.ErrorIs(t, err, ErrInvalidState)

	redirect, err := flow.Begin("")
	require.NoError(t, err)
	issued := time.Now()
	states.WithClock(func() time.Time { return issued.Add(time.Hour) })
	_, _, err = flow.Complete(ctx, redirect.State, "code")
	assert.ErrorIs(t, err, ErrStateExpired)

	assert.Empty(t, provider.code, "exchange never reached")
}

func TestFlow_CompletePropagatesExchangeError(t *testing.T) {
	provider := &fakeProvider{name: "google", err: ErrEmailNotVerified}
	flow := NewFlow(provider, newTestStates(t), WithFlowLogger(quiet{}))

	redirect, err := flow.Begin("")
	require.NoError(t, err)

	_, _, err = flow.Complete(context.Background(), redirect.State, "code")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}

func TestFlow_Cancelled(t *testing.T) {
	flow := NewFlow(&fakeProvider{name: "google"}, newTestStates(t), WithFlowLogger(quiet{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := flow.Complete(ctx, "whatever", "code")
	assert.Error(t, err)
}

func TestFlow_Misconfigured(t *testing.T) {
	flow := NewFlow(nil, nil)
	_, err := flow.Begin("")
	assert.ErrorIs(t, err, ErrProviderMisconfigured)
}

type quiet struct{}

func (quiet) Debug(string, ...any) {}
func (quiet) Info(string, ...any)  {}
func (quiet) Warn(string, ...any)  {}
func (quiet) Error(string, ...any) {}
