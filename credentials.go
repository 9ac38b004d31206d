package identity

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Credentials is the login capability of an identity. The concrete type is
// one of LocalCredentials, FederatedCredentials or MergedCredentials.
type Credentials interface {
	CanUsePassword() bool
	CanUseFederated() bool
	credentials()
}

// LocalCredentials belong to password only identities
type LocalCredentials struct {
	PasswordHash string
}

// FederatedCredentials belong to identities created from a provider callback
type FederatedCredentials struct {
	SubjectID string
}

// MergedCredentials belong to local identities later linked to a provider
type MergedCredentials struct {
	PasswordHash string
	SubjectID    string
}

func (LocalCredentials) CanUsePassword() bool      { return true }
func (LocalCredentials) CanUseFederated() bool     { return false }
func (LocalCredentials) credentials()              {}
func (FederatedCredentials) CanUsePassword() bool  { return false }
func (FederatedCredentials) CanUseFederated() bool { return true }
func (FederatedCredentials) credentials()          {}
func (MergedCredentials) CanUsePassword() bool     { return true }
func (MergedCredentials) CanUseFederated() bool    { return true }
func (MergedCredentials) credentials()             {}

// CredentialsOf returns the credential variant carried by record
func CredentialsOf(record *Identity) (Credentials, error) {
	if record == nil {
		return nil, ErrNoCredentials
	}
	switch {
	case record.PasswordHash != "" && record.FederatedID != "":
		return MergedCredentials{PasswordHash: record.PasswordHash, SubjectID: record.FederatedID}, nil
	case record.FederatedID != "":
		return FederatedCredentials{SubjectID: record.FederatedID}, nil
	case record.PasswordHash != "":
		return LocalCredentials{PasswordHash: record.PasswordHash}, nil
	default:
		return nil, ErrNoCredentials
	}
}

// ValidateForWrite checks the record invariants that must hold before any
// create or save reaches the store.
func ValidateForWrite(record *Identity, engine ProfileEngine) error {
	if record == nil {
		return ValidationError("identity is required", nil)
	}

	creds, err := CredentialsOf(record)
	if err != nil {
		return err
	}

	err = validation.ValidateStruct(record,
		validation.Field(&record.Email, validation.Required, is.Email),
		validation.Field(&record.Credits, validation.Min(0)),
		validation.Field(&record.AuthProvider, validation.Required, validation.In(ProviderLocal, ProviderFederated)),
		validation.Field(&record.Level, validation.By(oneOf(engine.ValidLevel))),
		validation.Field(&record.Track, validation.By(oneOf(engine.ValidTrack))),
	)
	if err != nil {
		return validationErrorFrom(err)
	}

	switch record.AuthProvider {
	case ProviderLocal:
		if _, ok := creds.(LocalCredentials); !ok {
			return ValidationError("local identity must carry only a password", map[string]any{
				"auth_provider": record.AuthProvider,
			})
		}
	case ProviderFederated:
		if !creds.CanUseFederated() {
			return ValidationError("federated identity must carry a subject id", map[string]any{
				"auth_provider": record.AuthProvider,
			})
		}
	}

	if record.ProfileCompleted != engine.IsComplete(record) {
		return ValidationError("profile completion flag is stale", nil)
	}

	return nil
}

func oneOf(valid func(string) bool) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" || valid(s) {
			return nil
		}
		return errors.New("must be a valid value")
	}
}

func validationErrorFrom(err error) error {
	fields := map[string]any{}
	if errs, ok := err.(validation.Errors); ok {
		for k, v := range errs {
			fields[k] = v.Error()
		}
	} else {
		fields["error"] = err.Error()
	}
	return ValidationError("", fields)
}
