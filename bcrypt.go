package identity

import (
	"errors"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted at registration
const MinPasswordLength = 6

// BcryptVault hashes passwords with bcrypt
type BcryptVault struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

var _ PasswordVault = (*BcryptVault)(nil)

// NewBcryptVault returns a vault using cost, or the build default when cost
// is outside the bcrypt range.
func NewBcryptVault(cost int) *BcryptVault {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}
	return &BcryptVault{cost: cost}
}

// Hash will generate a password hash
func (v *BcryptVault) Hash(password string) (string, error) {
	if password == "" {
		return "", ValidationError("password is required", map[string]any{"password": "cannot be blank"})
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return string(h), nil
}

// Compare will validate the given cleartext password matches the hashed
// password. An empty hash is compared against a throwaway hash so that the
// call costs the same as a real comparison, and always fails.
func (v *BcryptVault) Compare(password, hash string) error {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(v.dummy(), []byte(password))
		return ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compare password hash")
	}
	return nil
}

func (v *BcryptVault) dummy() []byte {
	v.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), v.cost)
		if err != nil {
			h = []byte("$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinv")
		}
		v.dummyHash = h
	})
	return v.dummyHash
}

// VerifyPassword checks password against the credentials of record. Federated
// only identities always fail with ErrInvalidCredentials.
func VerifyPassword(vault PasswordVault, record *Identity, password string) error {
	creds, err := CredentialsOf(record)
	if err != nil || !creds.CanUsePassword() {
		_ = vault.Compare(password, "")
		return ErrInvalidCredentials
	}

	hash := record.PasswordHash
	if err := vault.Compare(password, hash); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return ErrInvalidCredentials
		}
		return err
	}
	return nil
}
