package federated

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
)

// Redirect is the provider authorization URL plus the state token bound to it
type Redirect struct {
	URL   string
	State string
}

// Flow runs the authorization code flow with PKCE against one provider and
// hands back a verified assertion.
type Flow struct {
	provider Provider
	states   StateManager
	ttl      time.Duration
	logger   identity.Logger
	now      func() time.Time
}

// FlowOption configures a Flow
type FlowOption func(*Flow)

// WithFlowLogger sets the logger
func WithFlowLogger(logger identity.Logger) FlowOption {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFlowStateTTL overrides how long a state token stays valid
func WithFlowStateTTL(ttl time.Duration) FlowOption {
	return func(f *Flow) {
		if ttl > 0 {
			f.ttl = ttl
		}
	}
}

// WithFlowClock overrides the time source
func WithFlowClock(now func() time.Time) FlowOption {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFlow creates a Flow
func NewFlow(provider Provider, states StateManager, opts ...FlowOption) *Flow {
	f := &Flow{
		provider: provider,
		states:   states,
		ttl:      DefaultStateTTL,
		logger:   identity.DefaultLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// ProviderName returns the name of the underlying provider
func (f *Flow) ProviderName() string {
	if f.provider == nil {
		return ""
	}
	return f.provider.Name()
}

// StateTTL returns how long a state token stays valid
func (f *Flow) StateTTL() time.Duration {
	return f.ttl
}

// Begin starts a login and returns where to send the browser.
func (f *Flow) Begin(redirectURL string) (*Redirect, error) {
	if f.provider == nil || f.states == nil {
		return nil, ErrProviderMisconfigured
	}

	verifier, err := generateCodeVerifier()
	if err != nil {
		return nil, err
	}

	nonce, err := randomToken(16)
	if err != nil {
		return nil, err
	}

	now := f.now()
	state := &OAuthState{
		Nonce:        nonce,
		Provider:     f.provider.Name(),
		CodeVerifier: verifier,
		RedirectURL:  redirectURL,
		IssuedAt:     now.Unix(),
		ExpiresAt:    now.Add(f.ttl).Unix(),
	}

	token, err := f.states.Encode(state)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode state")
	}

	return &Redirect{
		URL:   f.provider.AuthCodeURL(token, nonce, computeCodeChallenge(verifier)),
		State: token,
	}, nil
}

// Complete validates the returned state, exchanges the code and returns the
// provider's assertion along with the decoded state.
func (f *Flow) Complete(ctx context.Context, stateToken, code string) (*identity.Assertion, *OAuthState, error) {
	if f.provider == nil || f.states == nil {
		return nil, nil, ErrProviderMisconfigured
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryOperation, "federated login cancelled")
	}

	state, err := f.states.Decode(stateToken)
	if err != nil {
		if errors.Is(err, ErrStateExpired) {
			return nil, nil, ErrStateExpired
		}
		return nil, nil, ErrInvalidState
	}

	if state.Provider != f.provider.Name() {
		f.logger.Warn("federated callback provider mismatch: state=%s provider=%s", state.Provider, f.provider.Name())
		return nil, nil, ErrInvalidState
	}

	if f.now().Unix() > state.ExpiresAt {
		return nil, nil, ErrStateExpired
	}

	assertion, err := f.provider.Exchange(ctx, code, state.CodeVerifier, state.Nonce)
	if err != nil {
		f.logger.Error("federated exchange failed: %v", err)
		return nil, nil, err
	}

	return assertion, state, nil
}
