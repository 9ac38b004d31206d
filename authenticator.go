package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PrincipalSource names the strategy that authenticated a request
type PrincipalSource string

const (
	SourceSession PrincipalSource = "session"
	SourceBearer  PrincipalSource = "bearer"
)

// Principal is the authenticated caller of a request
type Principal struct {
	IdentityID uuid.UUID
	Source     PrincipalSource
	SessionID  string
	Claims     *Claims
}

// ResolutionState is the outcome of request authentication
type ResolutionState int

const (
	Rejected ResolutionState = iota
	Authenticated
)

func (s ResolutionState) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "rejected"
}

// Resolution is returned by HybridAuthenticator.Resolve
type Resolution struct {
	State     ResolutionState
	Principal *Principal
	Reason    string
}

// OK reports whether a principal was resolved
func (r Resolution) OK() bool {
	return r.State == Authenticated && r.Principal != nil
}

// RequestCredentials are the credential carriers extracted from a request
type RequestCredentials struct {
	SessionID     string
	Authorization string
}

// ResolveStrategy resolves a principal from request credentials. A strategy
// that cannot resolve returns false and never an error: failures fall
// through to the next strategy.
type ResolveStrategy interface {
	Name() PrincipalSource
	Resolve(ctx context.Context, creds RequestCredentials) (*Principal, bool)
}

// SessionResolver resolves active server side sessions
type SessionResolver struct {
	Sessions SessionStore
	Logger   Logger
	Now      func() time.Time
}

// Name implements ResolveStrategy
func (SessionResolver) Name() PrincipalSource { return SourceSession }

// Resolve implements ResolveStrategy
func (s SessionResolver) Resolve(ctx context.Context, creds RequestCredentials) (*Principal, bool) {
	if s.Sessions == nil || creds.SessionID == "" {
		return nil, false
	}

	session, err := s.Sessions.Get(ctx, creds.SessionID)
	if err != nil {
		normalizeLogger(s.Logger).Warn("session lookup failed: %v", err)
		return nil, false
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if !session.Active(now()) {
		return nil, false
	}

	return &Principal{
		IdentityID: session.IdentityID,
		Source:     SourceSession,
		SessionID:  session.ID,
	}, true
}

// BearerResolver resolves "Authorization: Bearer <token>" headers
type BearerResolver struct {
	Tokens *TokenService
}

// Name implements ResolveStrategy
func (BearerResolver) Name() PrincipalSource { return SourceBearer }

// Resolve implements ResolveStrategy
func (b BearerResolver) Resolve(_ context.Context, creds RequestCredentials) (*Principal, bool) {
	if b.Tokens == nil {
		return nil, false
	}

	token, ok := BearerToken(creds.Authorization)
	if !ok {
		return nil, false
	}

	claims, err := b.Tokens.Verify(token)
	if err != nil {
		return nil, false
	}

	id, err := claims.IdentityID()
	if err != nil {
		return nil, false
	}

	return &Principal{
		IdentityID: id,
		Source:     SourceBearer,
		Claims:     claims,
	}, true
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// HybridAuthenticator tries each strategy in priority order
type HybridAuthenticator struct {
	strategies []ResolveStrategy
	observer   Observer
	now        func() time.Time
}

// AuthenticatorOption configures a HybridAuthenticator
type AuthenticatorOption func(*HybridAuthenticator)

// WithAuthenticatorObserver sets the observer
func WithAuthenticatorObserver(o Observer) AuthenticatorOption {
	return func(h *HybridAuthenticator) { h.observer = normalizeObserver(o) }
}

// WithStrategies replaces the strategy chain
func WithStrategies(strategies ...ResolveStrategy) AuthenticatorOption {
	return func(h *HybridAuthenticator) { h.strategies = strategies }
}

// NewHybridAuthenticator resolves sessions first and bearer tokens second.
// A nil session store disables the session strategy.
func NewHybridAuthenticator(sessions SessionStore, tokens *TokenService, opts ...AuthenticatorOption) *HybridAuthenticator {
	h := &HybridAuthenticator{
		observer: noopObserver{},
		now:      time.Now,
	}
	if sessions != nil {
		h.strategies = append(h.strategies, SessionResolver{Sessions: sessions})
	}
	if tokens != nil {
		h.strategies = append(h.strategies, BearerResolver{Tokens: tokens})
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Resolve runs the strategy chain; the first success wins
func (h *HybridAuthenticator) Resolve(ctx context.Context, creds RequestCredentials) Resolution {
	start := h.now()
	for _, strategy := range h.strategies {
		if principal, ok := strategy.Resolve(ctx, creds); ok {
			h.observer.AuthAttempt(string(strategy.Name()), "success")
			h.observer.AuthDuration(string(strategy.Name()), h.now().Sub(start))
			return Resolution{State: Authenticated, Principal: principal}
		}
	}
	h.observer.AuthAttempt("hybrid", "rejected")
	return Resolution{State: Rejected, Reason: ErrUnauthenticated.Message}
}

// ResolveOnly runs a single named strategy
func (h *HybridAuthenticator) ResolveOnly(ctx context.Context, source PrincipalSource, creds RequestCredentials) Resolution {
	for _, strategy := range h.strategies {
		if strategy.Name() != source {
			continue
		}
		if principal, ok := strategy.Resolve(ctx, creds); ok {
			return Resolution{State: Authenticated, Principal: principal}
		}
	}
	return Resolution{State: Rejected, Reason: ErrUnauthenticated.Message}
}
