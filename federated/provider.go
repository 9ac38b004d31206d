package federated

import (
	"context"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/goliatone/go-identity"
	"golang.org/x/oauth2"
)

// DefaultIssuer is the Google OpenID Connect issuer
const DefaultIssuer = "https://accounts.google.com"

// Provider drives one OpenID Connect identity provider.
type Provider interface {
	Name() string
	// AuthCodeURL builds the authorization redirect carrying state, the ID
	// token nonce and the PKCE S256 challenge.
	AuthCodeURL(state, nonce, codeChallenge string) string
	// Exchange trades the callback code for a verified assertion. The nonce
	// must match the one sent with AuthCodeURL.
	Exchange(ctx context.Context, code, codeVerifier, nonce string) (*identity.Assertion, error)
}

// ProviderConfig holds the client registration for an OIDC provider
type ProviderConfig struct {
	Name         string
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// AllowUnverifiedEmail accepts ID tokens whose email_verified claim is
	// false. Email based merging trusts the address, so leave this off for
	// public providers.
	AllowUnverifiedEmail bool
}

func (c ProviderConfig) validate() error {
	missing := make([]string, 0, 3)
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if c.RedirectURL == "" {
		missing = append(missing, "redirect_url")
	}
	if len(missing) == 0 {
		return nil
	}
	clone := ErrProviderMisconfigured.Clone()
	if clone == nil {
		return ErrProviderMisconfigured
	}
	clone.WithMetadata(map[string]any{"missing": strings.Join(missing, ",")})
	return clone
}

// OIDCProvider implements Provider with go-oidc and x/oauth2.
type OIDCProvider struct {
	name       string
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	unverified bool
	logger     identity.Logger
}

var _ Provider = (*OIDCProvider)(nil)

// ProviderOption configures an OIDCProvider
type ProviderOption func(*OIDCProvider)

// WithProviderLogger sets the logger
func WithProviderLogger(logger identity.Logger) ProviderOption {
	return func(p *OIDCProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewOIDCProvider runs discovery against cfg.IssuerURL and builds a provider
// from the advertised endpoints and keys.
func NewOIDCProvider(ctx context.Context, cfg ProviderConfig, opts ...ProviderOption) (*OIDCProvider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.IssuerURL == "" {
		cfg.IssuerURL = DefaultIssuer
	}

	discovered, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, wrapProviderError(ErrProviderMisconfigured, cfg.providerName(), "discovery", err)
	}

	verifier := discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return newOIDCProvider(cfg, discovered.Endpoint(), verifier, opts...), nil
}

// NewStaticOIDCProvider builds a provider without discovery, from a known
// endpoint and key set.
func NewStaticOIDCProvider(cfg ProviderConfig, endpoint oauth2.Endpoint, keys oidc.KeySet, opts ...ProviderOption) (*OIDCProvider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.IssuerURL == "" {
		cfg.IssuerURL = DefaultIssuer
	}
	verifier := oidc.NewVerifier(cfg.IssuerURL, keys, &oidc.Config{ClientID: cfg.ClientID})
	return newOIDCProvider(cfg, endpoint, verifier, opts...), nil
}

func newOIDCProvider(cfg ProviderConfig, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier, opts ...ProviderOption) *OIDCProvider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	p := &OIDCProvider{
		name: cfg.providerName(),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		verifier:   verifier,
		unverified: cfg.AllowUnverifiedEmail,
		logger:     identity.DefaultLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (c ProviderConfig) providerName() string {
	if c.Name != "" {
		return c.Name
	}
	return "google"
}

// Name returns the provider identifier
func (p *OIDCProvider) Name() string {
	return p.name
}

// AuthCodeURL implements Provider
func (p *OIDCProvider) AuthCodeURL(state, nonce, codeChallenge string) string {
	return p.oauth.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

type idTokenClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// Exchange implements Provider
func (p *OIDCProvider) Exchange(ctx context.Context, code, codeVerifier, nonce string) (*identity.Assertion, error) {
	if code == "" {
		return nil, ErrAuthorizationDenied
	}

	token, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, wrapProviderError(ErrTokenExchangeFailed, p.name, "exchange", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, wrapProviderError(ErrTokenExchangeFailed, p.name, "id_token", nil)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, wrapProviderError(ErrTokenExchangeFailed, p.name, "verify", err)
	}

	if nonce != "" && idToken.Nonce != nonce {
		return nil, wrapProviderError(ErrTokenExchangeFailed, p.name, "nonce", nil)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, wrapProviderError(ErrTokenExchangeFailed, p.name, "claims", err)
	}

	if claims.Subject == "" || claims.Email == "" {
		return nil, wrapProviderError(ErrTokenExchangeFailed, p.name, "claims", nil)
	}

	if !claims.EmailVerified && !p.unverified {
		return nil, wrapProviderError(ErrEmailNotVerified, p.name, "claims", nil)
	}

	p.logger.Debug("%s id_token verified issuer=%s email_verified=%t", p.name, idToken.Issuer, claims.EmailVerified)

	return &identity.Assertion{
		SubjectID:  claims.Subject,
		Email:      claims.Email,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		AvatarURL:  claims.Picture,
	}, nil
}
