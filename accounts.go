package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AuthResult pairs an identity with a token minted for it
type AuthResult struct {
	Identity *Identity `json:"identity"`
	Token    string    `json:"token"`
}

// ProfileStatus reports completeness for an identity
type ProfileStatus struct {
	ProfileCompleted bool      `json:"profile_completed"`
	MissingFields    []string  `json:"missing_fields"`
	Identity         *Identity `json:"user"`
}

// RegisterMessage creates a local identity
type RegisterMessage struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FamilyName string `json:"family_name"`
	GivenName  string `json:"given_name"`
	Level      string `json:"level"`
	Track      string `json:"track"`
}

func (m RegisterMessage) Type() string { return "identity.register" }

// Validate will validate the message
func (m RegisterMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&m.Password, validation.Required, validation.Length(MinPasswordLength, 128)),
		validation.Field(&m.FamilyName, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.GivenName, validation.Required, validation.Length(1, 200)),
	)
}

// LoginMessage authenticates a local identity
type LoginMessage struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (m LoginMessage) Type() string { return "identity.login" }

// Validate will validate the message
func (m LoginMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Password, validation.Required),
	)
}

// ProfileUpdateMessage changes profile fields; empty fields are left untouched
type ProfileUpdateMessage struct {
	FamilyName string `json:"family_name"`
	GivenName  string `json:"given_name"`
	AvatarURL  string `json:"avatar_url"`
	Level      string `json:"level"`
	Track      string `json:"track"`
}

func (m ProfileUpdateMessage) Type() string { return "identity.profile.update" }

// Validate will validate the message
func (m ProfileUpdateMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.FamilyName, validation.Length(1, 200)),
		validation.Field(&m.GivenName, validation.Length(1, 200)),
		validation.Field(&m.AvatarURL, is.URL),
	)
}

// EmailUpdateMessage changes the email after password re-verification
type EmailUpdateMessage struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (m EmailUpdateMessage) Type() string { return "identity.email.update" }

// Validate will validate the message
func (m EmailUpdateMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Password, validation.Required),
	)
}

// PasswordUpdateMessage changes the password
type PasswordUpdateMessage struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (m PasswordUpdateMessage) Type() string { return "identity.password.update" }

// Validate will validate the message
func (m PasswordUpdateMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.CurrentPassword, validation.Required),
		validation.Field(&m.NewPassword, validation.Required, validation.Length(MinPasswordLength, 128)),
	)
}

// CompleteProfileMessage sets the fields gating application access
type CompleteProfileMessage struct {
	Level string `json:"level"`
	Track string `json:"track"`
}

func (m CompleteProfileMessage) Type() string { return "identity.profile.complete" }

// Validate will validate the message
func (m CompleteProfileMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Level, validation.Required),
		validation.Field(&m.Track, validation.Required),
	)
}

// Accounts implements the identity lifecycle operations
type Accounts struct {
	store           IdentityStore
	vault           PasswordVault
	tokens          *TokenService
	engine          ProfileEngine
	startingCredits int
	hashedIDs       bool
	logger          Logger
	activity        ActivitySink
	observer        Observer
	notifier        Notifier
}

// AccountsOption configures Accounts
type AccountsOption func(*Accounts)

// WithAccountsLogger sets the logger
func WithAccountsLogger(logger Logger) AccountsOption {
	return func(a *Accounts) { a.logger = normalizeLogger(logger) }
}

// WithAccountsActivity sets the activity sink
func WithAccountsActivity(sink ActivitySink) AccountsOption {
	return func(a *Accounts) { a.activity = normalizeActivitySink(sink) }
}

// WithAccountsObserver sets the observer
func WithAccountsObserver(o Observer) AccountsOption {
	return func(a *Accounts) { a.observer = normalizeObserver(o) }
}

// WithNotifier sets the notifier used for welcome messages
func WithNotifier(n Notifier) AccountsOption {
	return func(a *Accounts) { a.notifier = normalizeNotifier(n) }
}

// WithAccountsStartingCredits overrides the grant for new identities
func WithAccountsStartingCredits(n int) AccountsOption {
	return func(a *Accounts) {
		if n >= 0 {
			a.startingCredits = n
		}
	}
}

// WithAccountsHashedIDs derives new identity ids from the email
func WithAccountsHashedIDs(enabled bool) AccountsOption {
	return func(a *Accounts) { a.hashedIDs = enabled }
}

// NewAccounts creates an Accounts service
func NewAccounts(store IdentityStore, vault PasswordVault, tokens *TokenService, engine ProfileEngine, opts ...AccountsOption) *Accounts {
	a := &Accounts{
		store:           store,
		vault:           vault,
		tokens:          tokens,
		engine:          engine,
		startingCredits: DefaultStartingCredits,
		logger:          defLogger{},
		activity:        noopActivitySink{},
		observer:        noopObserver{},
		notifier:        LogNotifier{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Engine returns the profile engine in use
func (a *Accounts) Engine() ProfileEngine {
	return a.engine
}

func cancelled(ctx context.Context, operation string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during "+operation,
		)
	default:
		return nil
	}
}

// Register creates a local identity and returns a token for it
func (a *Accounts) Register(ctx context.Context, msg RegisterMessage) (*AuthResult, error) {
	if err := cancelled(ctx, "registration"); err != nil {
		return nil, err
	}

	msg.Email = NormalizeEmail(msg.Email)
	if err := msg.Validate(); err != nil {
		return nil, validationErrorFrom(err)
	}
	if err := a.checkEnums(msg.Level, msg.Track); err != nil {
		return nil, err
	}

	if _, err := a.store.FindByEmail(ctx, msg.Email); err == nil {
		return nil, ErrDuplicateIdentity
	} else if !IsNotFound(err) {
		return nil, err
	}

	hash, err := a.vault.Hash(msg.Password)
	if err != nil {
		return nil, err
	}

	id, err := newIdentityID(ctx, a.store, msg.Email, a.hashedIDs)
	if err != nil {
		return nil, err
	}

	record := &Identity{
		ID:           id,
		Email:        msg.Email,
		PasswordHash: hash,
		FamilyName:   msg.FamilyName,
		GivenName:    msg.GivenName,
		AuthProvider: ProviderLocal,
		Level:        msg.Level,
		Track:        msg.Track,
		Credits:      a.startingCredits,
	}
	a.engine.Apply(record)

	if err := ValidateForWrite(record, a.engine); err != nil {
		return nil, err
	}

	if err := a.store.Create(ctx, record); err != nil {
		return nil, err
	}

	token, err := a.tokens.Issue(record)
	if err != nil {
		return nil, err
	}

	if err := a.notifier.Welcome(ctx, record); err != nil {
		a.logger.Warn("welcome notification failed for %s: %v", record.ID, err)
	}

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType:  ActivityEventRegistered,
		IdentityID: record.ID.String(),
		Metadata:   map[string]any{"auth_provider": string(record.AuthProvider)},
	})

	return &AuthResult{Identity: record, Token: token}, nil
}

// Login verifies an email and password pair
func (a *Accounts) Login(ctx context.Context, msg LoginMessage) (*AuthResult, error) {
	if err := cancelled(ctx, "login"); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		a.observer.AuthDuration("local", time.Since(start))
	}()

	msg.Email = NormalizeEmail(msg.Email)
	if err := msg.Validate(); err != nil {
		a.observer.AuthAttempt("local", "invalid")
		return nil, validationErrorFrom(err)
	}

	record, err := a.store.FindByEmail(ctx, msg.Email)
	if err != nil {
		if !IsNotFound(err) {
			a.observer.AuthAttempt("local", "error")
			return nil, err
		}
		record = nil
	}

	if err := VerifyPassword(a.vault, record, msg.Password); err != nil {
		a.observer.AuthAttempt("local", "failure")
		meta := map[string]any{"reason": "invalid_credentials"}
		id := ""
		if record != nil {
			id = record.ID.String()
		}
		recordActivity(ctx, a.activity, a.logger, ActivityEvent{
			EventType:  ActivityEventLoginFailure,
			IdentityID: id,
			Metadata:   meta,
		})
		return nil, err
	}

	token, err := a.tokens.Issue(record)
	if err != nil {
		return nil, err
	}

	a.observer.AuthAttempt("local", "success")
	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType:  ActivityEventLoginSuccess,
		IdentityID: record.ID.String(),
	})

	return &AuthResult{Identity: record, Token: token}, nil
}

// Me returns the identity for id
func (a *Accounts) Me(ctx context.Context, id uuid.UUID) (*Identity, error) {
	if err := cancelled(ctx, "identity lookup"); err != nil {
		return nil, err
	}
	return a.store.FindByID(ctx, id)
}

// ProfileStatus reports which profile fields still need a value
func (a *Accounts) ProfileStatus(ctx context.Context, id uuid.UUID) (*ProfileStatus, error) {
	record, err := a.Me(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProfileStatus{
		ProfileCompleted: record.ProfileCompleted,
		MissingFields:    a.engine.Missing(record),
		Identity:         record,
	}, nil
}

// UpdateProfile applies non empty fields of msg
func (a *Accounts) UpdateProfile(ctx context.Context, id uuid.UUID, msg ProfileUpdateMessage) (*Identity, error) {
	if err := cancelled(ctx, "profile update"); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, validationErrorFrom(err)
	}
	if err := a.checkEnums(msg.Level, msg.Track); err != nil {
		return nil, err
	}

	record, err := a.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	columns := []string{ColumnProfileCompleted}
	if msg.FamilyName != "" {
		record.FamilyName = msg.FamilyName
		columns = append(columns, ColumnFamilyName)
	}
	if msg.GivenName != "" {
		record.GivenName = msg.GivenName
		columns = append(columns, ColumnGivenName)
	}
	if msg.AvatarURL != "" {
		record.AvatarURL = msg.AvatarURL
		columns = append(columns, ColumnAvatarURL)
	}
	if msg.Level != "" {
		record.Level = msg.Level
		columns = append(columns, ColumnLevel)
	}
	if msg.Track != "" {
		record.Track = msg.Track
		columns = append(columns, ColumnTrack)
	}

	if err := a.save(ctx, record, columns...); err != nil {
		return nil, err
	}

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType:  ActivityEventProfileUpdated,
		IdentityID: record.ID.String(),
		Metadata:   map[string]any{"profile_completed": record.ProfileCompleted},
	})

	return record, nil
}

// UpdateEmail changes the email after re-verifying the password. The
// returned token carries the new email.
func (a *Accounts) UpdateEmail(ctx context.Context, id uuid.UUID, msg EmailUpdateMessage) (*AuthResult, error) {
	if err := cancelled(ctx, "email update"); err != nil {
		return nil, err
	}

	msg.Email = NormalizeEmail(msg.Email)
	if err := msg.Validate(); err != nil {
		return nil, validationErrorFrom(err)
	}

	record, err := a.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := VerifyPassword(a.vault, record, msg.Password); err != nil {
		return nil, err
	}

	if other, err := a.store.FindByEmail(ctx, msg.Email); err == nil {
		if other.ID != record.ID {
			return nil, ErrDuplicateIdentity
		}
	} else if !IsNotFound(err) {
		return nil, err
	}

	previous := record.Email
	record.Email = msg.Email
	if err := a.save(ctx, record, ColumnEmail); err != nil {
		return nil, err
	}

	token, err := a.tokens.Issue(record)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType:  ActivityEventEmailChanged,
		IdentityID: record.ID.String(),
		Metadata:   map[string]any{"previous": previous},
	})

	return &AuthResult{Identity: record, Token: token}, nil
}

// UpdatePassword replaces the password after verifying the current one
func (a *Accounts) UpdatePassword(ctx context.Context, id uuid.UUID, msg PasswordUpdateMessage) error {
	if err := cancelled(ctx, "password update"); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return validationErrorFrom(err)
	}

	record, err := a.store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := VerifyPassword(a.vault, record, msg.CurrentPassword); err != nil {
		return err
	}

	hash, err := a.vault.Hash(msg.NewPassword)
	if err != nil {
		return err
	}
	record.PasswordHash = hash

	if err := a.save(ctx, record, ColumnPasswordHash); err != nil {
		return err
	}

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType:  ActivityEventPasswordChanged,
		IdentityID: record.ID.String(),
	})
	return nil
}

// DeleteAccount removes the identity after re-verifying the password
func (a *Accounts) DeleteAccount(ctx context.Context, id uuid.UUID, password string) error {
	if err := cancelled(ctx, "account deletion"); err != nil {
		return err
	}
	if password == "" {
		return ValidationError("password is required", map[string]any{"password": "cannot be blank"})
	}

	record, err := a.store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := VerifyPassword(a.vault, record, password); err != nil {
		return err
	}

	if err := a.store.Delete(ctx, record.ID); err != nil {
		return err
	}

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType:  ActivityEventDeleted,
		IdentityID: record.ID.String(),
	})
	return nil
}

// CompleteProfile sets level and track and returns a fresh token
func (a *Accounts) CompleteProfile(ctx context.Context, id uuid.UUID, msg CompleteProfileMessage) (*AuthResult, error) {
	if err := cancelled(ctx, "profile completion"); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, validationErrorFrom(err)
	}
	if err := a.checkEnums(msg.Level, msg.Track); err != nil {
		return nil, err
	}

	record, err := a.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	record.Level = msg.Level
	record.Track = msg.Track
	if err := a.save(ctx, record, ColumnLevel, ColumnTrack, ColumnProfileCompleted); err != nil {
		return nil, err
	}

	token, err := a.tokens.Issue(record)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType:  ActivityEventProfileCompleted,
		IdentityID: record.ID.String(),
		Metadata:   map[string]any{"profile_completed": record.ProfileCompleted},
	})

	return &AuthResult{Identity: record, Token: token}, nil
}

func (a *Accounts) checkEnums(level, track string) error {
	fields := map[string]any{}
	if level != "" && !a.engine.ValidLevel(level) {
		fields[FieldLevel] = "must be one of the accepted levels"
	}
	if track != "" && !a.engine.ValidTrack(track) {
		fields[FieldTrack] = "must be one of the accepted tracks"
	}
	if len(fields) > 0 {
		return ValidationError("invalid profile values", fields)
	}
	return nil
}

// save persists only columns; the rest of the stored row is left as is.
func (a *Accounts) save(ctx context.Context, record *Identity, columns ...string) error {
	a.engine.Apply(record)
	if err := ValidateForWrite(record, a.engine); err != nil {
		return err
	}
	return a.store.Save(ctx, record, columns...)
}
