package identity_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestAccounts(store identity.IdentityStore, opts ...identity.AccountsOption) *identity.Accounts {
	opts = append([]identity.AccountsOption{identity.WithAccountsLogger(quietLogger{})}, opts...)
	return identity.NewAccounts(store, newTestVault(), newTestTokens(), identity.NewProfileEngine(nil, nil), opts...)
}

func registerJane(t *testing.T, accounts *identity.Accounts) *identity.AuthResult {
	t.Helper()
	res, err := accounts.Register(context.Background(), identity.RegisterMessage{
		Email:      "jane@example.com",
		Password:   "secret1",
		FamilyName: "Doe",
		GivenName:  "Jane",
	})
	require.NoError(t, err)
	return res
}

func TestAccounts_Register(t *testing.T) {
	store := newMemoryStore()
	notifier := &MockNotifier{}
	notifier.On("Welcome", mock.Anything, mock.Anything).Return(nil)
	accounts := newTestAccounts(store, identity.WithNotifier(notifier))

	res := registerJane(t, accounts)

	assert.NotEmpty(t, res.Token)
	assert.Equal(t, identity.ProviderLocal, res.Identity.AuthProvider)
	assert.Equal(t, identity.DefaultStartingCredits, res.Identity.Credits)
	assert.False(t, res.Identity.ProfileCompleted)
	assert.NotEqual(t, "secret1", res.Identity.PasswordHash)
	notifier.AssertExpectations(t)
}

func TestAccounts_RegisterWithCompleteProfile(t *testing.T) {
	accounts := newTestAccounts(newMemoryStore())

	res, err := accounts.Register(context.Background(), identity.RegisterMessage{
		Email:      "kim@example.com",
		Password:   "secret1",
		FamilyName: "Kim",
		GivenName:  "Lee",
		Level:      "collège",
		Track:      "3ème",
	})
	require.NoError(t, err)
	assert.True(t, res.Identity.ProfileCompleted)
}

func TestAccounts_RegisterDuplicate(t *testing.T) {
	store := newMemoryStore()
	accounts := newTestAccounts(store)
	registerJane(t, accounts)

	_, err := accounts.Register(context.Background(), identity.RegisterMessage{
		Email:      "JANE@example.com",
		Password:   "another1",
		FamilyName: "Doe",
		GivenName:  "Janet",
	})
	assert.ErrorIs(t, err, identity.ErrDuplicateIdentity)
	assert.Equal(t, 1, store.count())
}

func TestAccounts_RegisterValidation(t *testing.T) {
	accounts := newTestAccounts(newMemoryStore())

	tests := map[string]identity.RegisterMessage{
		"short password": {Email: "a@example.com", Password: "12345", FamilyName: "A", GivenName: "B"},
		"bad email":      {Email: "nope", Password: "123456", FamilyName: "A", GivenName: "B"},
		"missing name":   {Email: "a@example.com", Password: "123456", GivenName: "B"},
		"bad level":      {Email: "a@example.com", Password: "123456", FamilyName: "A", GivenName: "B", Level: "fac"},
	}
	for name, msg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := accounts.Register(context.Background(), msg)
			assert.True(t, identity.HasTextCode(err, identity.TextCodeValidation), "got %v", err)
		})
	}
}

func TestAccounts_RegisterNotifierFailureIsNotFatal(t *testing.T) {
	notifier := &MockNotifier{}
	notifier.On("Welcome", mock.Anything, mock.Anything).Return(errBoom)
	accounts := newTestAccounts(newMemoryStore(), identity.WithNotifier(notifier))

	res := registerJane(t, accounts)
	assert.NotEmpty(t, res.Token)
	notifier.AssertExpectations(t)
}

func TestAccounts_Login(t *testing.T) {
	store := newMemoryStore()
	sink := &recordingSink{}
	accounts := newTestAccounts(store, identity.WithAccountsActivity(sink))
	registered := registerJane(t, accounts)

	res, err := accounts.Login(context.Background(), identity.LoginMessage{Email: "Jane@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, registered.Identity.ID, res.Identity.ID)
	assert.NotEmpty(t, res.Token)

	_, err = accounts.Login(context.Background(), identity.LoginMessage{Email: "jane@example.com", Password: "wrong1"})
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	_, err = accounts.Login(context.Background(), identity.LoginMessage{Email: "ghost@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	assert.Len(t, sink.ofType(identity.ActivityEventLoginSuccess), 1)
	assert.Len(t, sink.ofType(identity.ActivityEventLoginFailure), 2)
}

func TestAccounts_LoginFederatedOnly(t *testing.T) {
	store := newMemoryStore()
	store.put(identity.Identity{
		ID:           uuid.New(),
		Email:        "fed@example.com",
		FederatedID:  "g-1",
		AuthProvider: identity.ProviderFederated,
	})
	accounts := newTestAccounts(store)

	_, err := accounts.Login(context.Background(), identity.LoginMessage{Email: "fed@example.com", Password: "anything"})
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
}

func TestAccounts_MeAndProfileStatus(t *testing.T) {
	accounts := newTestAccounts(newMemoryStore())
	registered := registerJane(t, accounts)

	me, err := accounts.Me(context.Background(), registered.Identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", me.Email)

	status, err := accounts.ProfileStatus(context.Background(), registered.Identity.ID)
	require.NoError(t, err)
	assert.False(t, status.ProfileCompleted)
	assert.Equal(t, []string{identity.FieldLevel, identity.FieldTrack}, status.MissingFields)

	_, err = accounts.Me(context.Background(), uuid.New())
	assert.ErrorIs(t, err, identity.ErrIdentityNotFound)
}

func TestAccounts_UpdateProfile(t *testing.T) {
	store := newMemoryStore()
	accounts := newTestAccounts(store)
	registered := registerJane(t, accounts)

	updated, err := accounts.UpdateProfile(context.Background(), registered.Identity.ID, identity.ProfileUpdateMessage{
		GivenName: "Janine",
		Level:     "lycée",
		Track:     "Terminale",
	})
	require.NoError(t, err)
	assert.Equal(t, "Janine", updated.GivenName)
	assert.Equal(t, "Doe", updated.FamilyName)
	assert.True(t, updated.ProfileCompleted)

	stored, _ := store.get(registered.Identity.ID)
	assert.True(t, stored.ProfileCompleted)

	_, err = accounts.UpdateProfile(context.Background(), registered.Identity.ID, identity.ProfileUpdateMessage{Track: "CP"})
	assert.True(t, identity.HasTextCode(err, identity.TextCodeValidation))
}

func TestAccounts_UpdateProfileKeepsConcurrentMerge(t *testing.T) {
	store := newMemoryStore()
	accounts := newTestAccounts(store)
	registered := registerJane(t, accounts)
	reconciler := newTestReconciler(store)

	// the merge lands between the profile read and its write
	store.afterFind = func() {
		_, err := reconciler.Reconcile(context.Background(), identity.Assertion{
			SubjectID: "g-42",
			Email:     "jane@example.com",
		})
		require.NoError(t, err)
	}

	updated, err := accounts.UpdateProfile(context.Background(), registered.Identity.ID, identity.ProfileUpdateMessage{
		GivenName: "Janet",
	})
	require.NoError(t, err)
	assert.Equal(t, "Janet", updated.GivenName)

	stored, ok := store.get(registered.Identity.ID)
	require.True(t, ok)
	assert.Equal(t, "g-42", stored.FederatedID)
	assert.Equal(t, identity.ProviderFederated, stored.AuthProvider)
	assert.Equal(t, "Janet", stored.GivenName)
}

func TestAccounts_UpdatePasswordKeepsConcurrentProfileChange(t *testing.T) {
	store := newMemoryStore()
	accounts := newTestAccounts(store)
	registered := registerJane(t, accounts)

	store.afterFind = func() {
		_, err := accounts.UpdateProfile(context.Background(), registered.Identity.ID, identity.ProfileUpdateMessage{
			FamilyName: "Dorsey",
		})
		require.NoError(t, err)
	}

	require.NoError(t, accounts.UpdatePassword(context.Background(), registered.Identity.ID, identity.PasswordUpdateMessage{
		CurrentPassword: "secret1",
		NewPassword:     "secret2",
	}))

	stored, ok := store.get(registered.Identity.ID)
	require.True(t, ok)
	assert.Equal(t, "Dorsey", stored.FamilyName)
	assert.NoError(t, newTestVault().Compare("secret2", stored.PasswordHash))
}

func TestAccounts_UpdateEmail(t *testing.T) {
	store := newMemoryStore()
	accounts := newTestAccounts(store)
	registered := registerJane(t, accounts)

	_, err := accounts.Register(context.Background(), identity.RegisterMessage{
		Email: "taken@example.com", Password: "secret2", FamilyName: "T", GivenName: "K",
	})
	require.NoError(t, err)

	_, err = accounts.UpdateEmail(context.Background(), registered.Identity.ID, identity.EmailUpdateMessage{
		Email: "taken@example.com", Password: "secret1",
	})
	assert.ErrorIs(t, err, identity.ErrDuplicateIdentity)

	_, err = accounts.UpdateEmail(context.Background(), registered.Identity.ID, identity.EmailUpdateMessage{
		Email: "new@example.com", Password: "wrong1",
	})
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	res, err := accounts.UpdateEmail(context.Background(), registered.Identity.ID, identity.EmailUpdateMessage{
		Email: "New@Example.com", Password: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", res.Identity.Email)

	claims, err := newTestTokens().Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", claims.Email)
}

func TestAccounts_HashedIDsAfterEmailChange(t *testing.T) {
	store := newMemoryStore()
	accounts := newTestAccounts(store, identity.WithAccountsHashedIDs(true))

	first := registerJane(t, accounts)
	again, err := accounts.Register(context.Background(), identity.RegisterMessage{
		Email:      "jane2@example.com",
		Password:   "secret1",
		FamilyName: "Doe",
		GivenName:  "Jane",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.Identity.ID, again.Identity.ID)

	_, err = accounts.UpdateEmail(context.Background(), first.Identity.ID, identity.EmailUpdateMessage{
		Email:    "jane.doe@example.com",
		Password: "secret1",
	})
	require.NoError(t, err)

	// the freed email registers even though its derived id is taken
	reused := registerJane(t, accounts)
	assert.NotEqual(t, first.Identity.ID, reused.Identity.ID)
	assert.Equal(t, 3, store.count())

	res, err := newTestReconciler(store, identity.WithHashedIDs(true)).Reconcile(context.Background(), identity.Assertion{
		SubjectID: "g-jane",
		Email:     "jane.doe.fed@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, identity.OutcomeCreated, res.Outcome)
	assert.Equal(t, 4, store.count())
}

func TestAccounts_UpdatePassword(t *testing.T) {
	accounts := newTestAccounts(newMemoryStore())
	registered := registerJane(t, accounts)
	id := registered.Identity.ID

	err := accounts.UpdatePassword(context.Background(), id, identity.PasswordUpdateMessage{CurrentPassword: "wrong1", NewPassword: "newsecret"})
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	err = accounts.UpdatePassword(context.Background(), id, identity.PasswordUpdateMessage{CurrentPassword: "secret1", NewPassword: "123"})
	assert.True(t, identity.HasTextCode(err, identity.TextCodeValidation))

	require.NoError(t, accounts.UpdatePassword(context.Background(), id, identity.PasswordUpdateMessage{CurrentPassword: "secret1", NewPassword: "newsecret"}))

	_, err = accounts.Login(context.Background(), identity.LoginMessage{Email: "jane@example.com", Password: "newsecret"})
	assert.NoError(t, err)
}

func TestAccounts_DeleteAccount(t *testing.T) {
	store := newMemoryStore()
	accounts := newTestAccounts(store)
	registered := registerJane(t, accounts)
	id := registered.Identity.ID

	assert.True(t, identity.HasTextCode(accounts.DeleteAccount(context.Background(), id, ""), identity.TextCodeValidation))
	assert.ErrorIs(t, accounts.DeleteAccount(context.Background(), id, "wrong1"), identity.ErrInvalidCredentials)
	assert.Equal(t, 1, store.count())

	require.NoError(t, accounts.DeleteAccount(context.Background(), id, "secret1"))
	assert.Equal(t, 0, store.count())

	assert.ErrorIs(t, accounts.DeleteAccount(context.Background(), id, "secret1"), identity.ErrIdentityNotFound)
}

func TestAccounts_CompleteProfile(t *testing.T) {
	store := newMemoryStore()
	fedID := uuid.New()
	store.put(identity.Identity{
		ID:           fedID,
		Email:        "fed@example.com",
		FederatedID:  "g-3",
		FamilyName:   "Fed",
		GivenName:    "Erated",
		AuthProvider: identity.ProviderFederated,
		Credits:      5,
	})
	accounts := newTestAccounts(store)

	_, err := accounts.CompleteProfile(context.Background(), fedID, identity.CompleteProfileMessage{Level: "lycée"})
	assert.True(t, identity.HasTextCode(err, identity.TextCodeValidation))

	_, err = accounts.CompleteProfile(context.Background(), fedID, identity.CompleteProfileMessage{Level: "lycée", Track: "7ème"})
	assert.True(t, identity.HasTextCode(err, identity.TextCodeValidation))

	res, err := accounts.CompleteProfile(context.Background(), fedID, identity.CompleteProfileMessage{Level: "lycée", Track: "1ère"})
	require.NoError(t, err)
	assert.True(t, res.Identity.ProfileCompleted)
	assert.NotEmpty(t, res.Token)

	claims, err := newTestTokens().Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, identity.ProviderFederated, claims.Provider)
}
