package identity

import (
	goerrors "github.com/goliatone/go-errors"
)

// Dependencies are the collaborators shared by every service
type Dependencies struct {
	Store    IdentityStore
	Vault    PasswordVault
	Sessions SessionStore
	Logger   Logger
	Activity ActivitySink
	Observer Observer
	Notifier Notifier
}

// Services bundles the components built from a single Config
type Services struct {
	Tokens        *TokenService
	Profiles      ProfileEngine
	Accounts      *Accounts
	Reconciler    *Reconciler
	Ledger        *Ledger
	Authenticator *HybridAuthenticator
}

// NewServices wires the token issuer, profile engine, accounts, reconciler,
// ledger and hybrid authenticator from cfg.
func NewServices(cfg Config, deps Dependencies) (*Services, error) {
	if cfg == nil {
		return nil, goerrors.New("identity: config is required", goerrors.CategoryBadInput)
	}
	if deps.Store == nil {
		return nil, goerrors.New("identity: store is required", goerrors.CategoryBadInput)
	}
	if cfg.GetSigningKey() == "" {
		return nil, goerrors.New("identity: signing key is required", goerrors.CategoryBadInput)
	}

	logger := normalizeLogger(deps.Logger)
	vault := deps.Vault
	if vault == nil {
		vault = NewBcryptVault(0)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}

	tokens := NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetTokenTTL(), cfg.GetIssuer(), WithTokenLogger(logger))
	profiles := NewProfileEngine(cfg.GetLevels(), cfg.GetTracks())

	return &Services{
		Tokens:   tokens,
		Profiles: profiles,
		Accounts: NewAccounts(deps.Store, vault, tokens, profiles,
			WithAccountsLogger(logger),
			WithAccountsActivity(deps.Activity),
			WithAccountsObserver(deps.Observer),
			WithNotifier(notifier),
			WithAccountsStartingCredits(cfg.GetStartingCredits()),
			WithAccountsHashedIDs(cfg.GetUseHashedIDs()),
		),
		Reconciler: NewReconciler(deps.Store, tokens, profiles,
			WithReconcilerLogger(logger),
			WithReconcilerActivity(deps.Activity),
			WithReconcilerObserver(deps.Observer),
			WithStartingCredits(cfg.GetStartingCredits()),
			WithHashedIDs(cfg.GetUseHashedIDs()),
		),
		Ledger: NewLedger(deps.Store, tokens,
			WithLedgerLogger(logger),
			WithLedgerActivity(deps.Activity),
			WithLedgerObserver(deps.Observer),
			WithRequiredCreditOperation(cfg.GetRequireCreditOperation()),
		),
		Authenticator: NewHybridAuthenticator(deps.Sessions, tokens,
			WithAuthenticatorObserver(deps.Observer),
		),
	}, nil
}
