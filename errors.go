package identity

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidation          = "identity_validation_failed"
	TextCodeDuplicateIdentity   = "identity_duplicate"
	TextCodeInvalidCredentials  = "identity_invalid_credentials"
	TextCodeInvalidToken        = "identity_invalid_token"
	TextCodeNotFound            = "identity_not_found"
	TextCodeInsufficientCredits = "identity_insufficient_credits"
	TextCodeUpstreamUnavailable = "identity_upstream_unavailable"
	TextCodeUnauthenticated     = "identity_unauthenticated"
	TextCodeNoCredentials       = "identity_no_credentials"
)

// ErrValidation is returned when input fails shape or enum checks.
var ErrValidation = goerrors.New("invalid input", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrDuplicateIdentity is returned when the email or federated id is taken.
var ErrDuplicateIdentity = goerrors.New("identity already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateIdentity).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials is returned for wrong passwords and unknown accounts.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInsufficientCredits is returned when a subtract exceeds the balance.
var ErrInsufficientCredits = goerrors.New("insufficient credits", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInsufficientCredits).
	WithCode(goerrors.CodeBadRequest)

// ErrUpstreamUnavailable hides storage and provider failures from callers.
var ErrUpstreamUnavailable = goerrors.New("service temporarily unavailable", goerrors.CategoryInternal).
	WithTextCode(TextCodeUpstreamUnavailable).
	WithCode(goerrors.CodeInternal)

// ErrUnauthenticated is returned when no session or token resolves a principal.
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoCredentials is returned for records carrying neither a password hash
// nor a federated id.
var ErrNoCredentials = goerrors.New("identity has no credentials", goerrors.CategoryValidation).
	WithTextCode(TextCodeNoCredentials).
	WithCode(goerrors.CodeBadRequest)

// ValidationError returns a copy of ErrValidation carrying field details.
func ValidationError(message string, fields map[string]any) *goerrors.Error {
	clone := ErrValidation.Clone()
	if clone == nil {
		clone = ErrValidation
	}
	if message != "" {
		clone.Message = message
	}
	if len(fields) > 0 {
		clone.WithMetadata(fields)
	}
	return clone
}

// Upstream wraps a collaborator failure so that callers only see the generic
// ErrUpstreamUnavailable message while the source is kept for logging.
func Upstream(err error, operation string) *goerrors.Error {
	clone := ErrUpstreamUnavailable.Clone()
	if clone == nil {
		clone = ErrUpstreamUnavailable
	}
	clone.Source = err
	clone.WithMetadata(map[string]any{"operation": operation})
	return clone
}

// HasTextCode reports whether err is a rich error carrying the given text code.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	return richErr.TextCode == code
}

// IsNotFound reports whether err signals a missing identity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrIdentityNotFound) || HasTextCode(err, TextCodeNotFound)
}

// IsDuplicate reports whether err signals a uniqueness collision.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateIdentity) || HasTextCode(err, TextCodeDuplicateIdentity)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}
