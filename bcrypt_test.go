package identity_test

import (
	"testing"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptVault_Hash(t *testing.T) {
	vault := newTestVault()

	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
			wantErr:  false,
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := vault.Hash(tt.password)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NoError(t, vault.Compare(tt.password, hash))
		})
	}
}

func TestBcryptVault_Compare(t *testing.T) {
	vault := newTestVault()
	hash := mustHash(t, vault, "testPassword123!")

	assert.NoError(t, vault.Compare("testPassword123!", hash))
	assert.ErrorIs(t, vault.Compare("wrongPassword", hash), identity.ErrInvalidCredentials)
	assert.ErrorIs(t, vault.Compare("testPassword123!", ""), identity.ErrInvalidCredentials)
	assert.Error(t, vault.Compare("testPassword123!", "not-a-bcrypt-hash"))
}

func TestNewBcryptVault_CostOutOfRange(t *testing.T) {
	vault := identity.NewBcryptVault(bcrypt.MaxCost + 1)
	hash, err := vault.Hash("password")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cost, bcrypt.DefaultCost)
}

func TestVerifyPassword(t *testing.T) {
	vault := newTestVault()
	hash := mustHash(t, vault, "secret1")

	t.Run("local identity", func(t *testing.T) {
		record := &identity.Identity{PasswordHash: hash, AuthProvider: identity.ProviderLocal}
		assert.NoError(t, identity.VerifyPassword(vault, record, "secret1"))
		assert.ErrorIs(t, identity.VerifyPassword(vault, record, "nope"), identity.ErrInvalidCredentials)
	})

	t.Run("merged identity keeps password login", func(t *testing.T) {
		record := &identity.Identity{PasswordHash: hash, FederatedID: "g-42", AuthProvider: identity.ProviderFederated}
		assert.NoError(t, identity.VerifyPassword(vault, record, "secret1"))
	})

	t.Run("federated only identity always fails", func(t *testing.T) {
		record := &identity.Identity{FederatedID: "g-42", AuthProvider: identity.ProviderFederated}
		assert.ErrorIs(t, identity.VerifyPassword(vault, record, ""), identity.ErrInvalidCredentials)
		assert.ErrorIs(t, identity.VerifyPassword(vault, record, "secret1"), identity.ErrInvalidCredentials)
	})

	t.Run("missing identity", func(t *testing.T) {
		assert.ErrorIs(t, identity.VerifyPassword(vault, nil, "secret1"), identity.ErrInvalidCredentials)
	})
}
