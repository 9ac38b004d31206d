package federated

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidState       = "federated_invalid_state"
	TextCodeStateExpired       = "federated_state_expired"
	TextCodeTokenExchangeFail  = "federated_token_exchange_failed"
	TextCodeEmailNotVerified   = "federated_email_not_verified"
	TextCodeProviderMisconfig  = "federated_provider_misconfigured"
	TextCodeAuthorizationError = "federated_authorization_denied"
)

// ErrInvalidState is returned when the OAuth state is invalid or tampered.
var ErrInvalidState = goerrors.New("invalid oauth state", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(goerrors.CodeBadRequest)

// ErrStateExpired is returned when the OAuth state has expired.
var ErrStateExpired = goerrors.New("oauth state expired", goerrors.CategoryBadInput).
	WithTextCode(TextCodeStateExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExchangeFailed is returned when the code exchange or ID token
// verification fails.
var ErrTokenExchangeFailed = goerrors.New("token exchange failed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExchangeFail).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailNotVerified is returned when the provider reports an unverified email.
var ErrEmailNotVerified = goerrors.New("email not verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(goerrors.CodeForbidden)

// ErrProviderMisconfigured is returned when provider settings are incomplete.
var ErrProviderMisconfigured = goerrors.New("identity provider misconfigured", goerrors.CategoryInternal).
	WithTextCode(TextCodeProviderMisconfig).
	WithCode(goerrors.CodeInternal)

// ErrAuthorizationDenied is returned when the provider redirects back with an
// error instead of a code.
var ErrAuthorizationDenied = goerrors.New("authorization denied", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthorizationError).
	WithCode(goerrors.CodeUnauthorized)

func wrapProviderError(base *goerrors.Error, provider, stage string, err error) error {
	if base == nil {
		return err
	}
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Source = err
	clone.WithMetadata(map[string]any{
		"provider": provider,
		"stage":    stage,
	})
	return clone
}
