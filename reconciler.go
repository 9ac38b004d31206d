package identity

import (
	"context"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// ReconcileOutcome describes what a reconciliation did to the store
type ReconcileOutcome string

const (
	OutcomeCreated  ReconcileOutcome = "created"
	OutcomeMerged   ReconcileOutcome = "merged"
	OutcomeExisting ReconcileOutcome = "existing"
)

// Assertion is the verified identity statement returned by the provider
type Assertion struct {
	SubjectID  string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	AvatarURL  string `json:"picture"`
}

// Validate will validate the assertion
func (a Assertion) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.SubjectID, validation.Required, validation.Length(1, 255)),
		validation.Field(&a.Email, validation.Required, is.Email),
	)
}

// ReconcileResult is the identity resolved for an assertion plus a fresh token
type ReconcileResult struct {
	Identity *Identity
	Token    string
	Outcome  ReconcileOutcome
}

// Reconciler links federated assertions to identities
type Reconciler struct {
	store           IdentityStore
	tokens          *TokenService
	engine          ProfileEngine
	startingCredits int
	hashedIDs       bool
	logger          Logger
	activity        ActivitySink
	observer        Observer
}

// ReconcilerOption configures a Reconciler
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger sets the logger
func WithReconcilerLogger(logger Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = normalizeLogger(logger) }
}

// WithReconcilerActivity sets the activity sink
func WithReconcilerActivity(sink ActivitySink) ReconcilerOption {
	return func(r *Reconciler) { r.activity = normalizeActivitySink(sink) }
}

// WithReconcilerObserver sets the observer
func WithReconcilerObserver(o Observer) ReconcilerOption {
	return func(r *Reconciler) { r.observer = normalizeObserver(o) }
}

// WithStartingCredits overrides the grant for newly created identities
func WithStartingCredits(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n >= 0 {
			r.startingCredits = n
		}
	}
}

// WithHashedIDs derives new identity ids from the federated subject
func WithHashedIDs(enabled bool) ReconcilerOption {
	return func(r *Reconciler) { r.hashedIDs = enabled }
}

// NewReconciler creates a Reconciler
func NewReconciler(store IdentityStore, tokens *TokenService, engine ProfileEngine, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:           store,
		tokens:          tokens,
		engine:          engine,
		startingCredits: DefaultStartingCredits,
		logger:          defLogger{},
		activity:        noopActivitySink{},
		observer:        noopObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// errLostRace signals that a concurrent callback created or linked the
// identity between our lookup and write.
var errLostRace = errors.New("identity changed concurrently")

// Reconcile resolves the assertion to exactly one identity, creating or
// merging as needed, and mints a token for it.
func (r *Reconciler) Reconcile(ctx context.Context, assertion Assertion) (*ReconcileResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during identity reconciliation",
		)
	default:
	}

	assertion.Email = NormalizeEmail(assertion.Email)
	if err := assertion.Validate(); err != nil {
		return nil, validationErrorFrom(err)
	}

	record, outcome, err := r.resolve(ctx, assertion, true)
	if errors.Is(err, errLostRace) {
		r.logger.Debug("reconcile raced for subject %s, retrying lookup", assertion.SubjectID)
		record, outcome, err = r.resolve(ctx, assertion, false)
		if errors.Is(err, errLostRace) {
			err = ErrDuplicateIdentity
		}
	}
	if err != nil {
		return nil, err
	}

	token, err := r.tokens.Issue(record)
	if err != nil {
		return nil, err
	}

	r.observer.Reconciled(outcome)

	eventType := ActivityEventFederatedLogin
	if outcome == OutcomeMerged {
		eventType = ActivityEventFederatedMerged
	}
	recordActivity(ctx, r.activity, r.logger, ActivityEvent{
		EventType:  eventType,
		IdentityID: record.ID.String(),
		Metadata: map[string]any{
			"outcome":           string(outcome),
			"profile_completed": record.ProfileCompleted,
		},
	})

	return &ReconcileResult{
		Identity: record,
		Token:    token,
		Outcome:  outcome,
	}, nil
}

func (r *Reconciler) resolve(ctx context.Context, a Assertion, allowCreate bool) (*Identity, ReconcileOutcome, error) {
	existing, err := r.store.FindFederated(ctx, a.SubjectID, a.Email)
	switch {
	case err == nil:
	case IsNotFound(err):
		if !allowCreate {
			return nil, "", ErrDuplicateIdentity
		}
		record, err := r.create(ctx, a)
		return record, OutcomeCreated, err
	default:
		return nil, "", err
	}

	switch existing.FederatedID {
	case "":
		record, err := r.merge(ctx, existing, a)
		return record, OutcomeMerged, err
	case a.SubjectID:
		if r.engine.Apply(existing) {
			if err := r.save(ctx, existing, ColumnProfileCompleted); err != nil {
				return nil, "", err
			}
		}
		return existing, OutcomeExisting, nil
	default:
		// email matched a record already linked to a different subject
		r.logger.Warn("reconcile rejected: email linked to another federated subject")
		return nil, "", ErrDuplicateIdentity
	}
}

func (r *Reconciler) create(ctx context.Context, a Assertion) (*Identity, error) {
	id, err := newIdentityID(ctx, r.store, federatedIDKey(a.SubjectID), r.hashedIDs)
	if err != nil {
		return nil, err
	}

	record := &Identity{
		ID:           id,
		Email:        a.Email,
		FederatedID:  a.SubjectID,
		FamilyName:   a.FamilyName,
		GivenName:    a.GivenName,
		AvatarURL:    a.AvatarURL,
		AuthProvider: ProviderFederated,
		Credits:      r.startingCredits,
	}
	r.engine.Apply(record)

	if err := ValidateForWrite(record, r.engine); err != nil {
		return nil, err
	}

	if err := r.store.Create(ctx, record); err != nil {
		if IsDuplicate(err) {
			return nil, errLostRace
		}
		return nil, err
	}
	return record, nil
}

func (r *Reconciler) merge(ctx context.Context, record *Identity, a Assertion) (*Identity, error) {
	record.FederatedID = a.SubjectID
	record.AuthProvider = ProviderFederated
	if record.FamilyName == "" {
		record.FamilyName = a.FamilyName
	}
	if record.GivenName == "" {
		record.GivenName = a.GivenName
	}
	if record.AvatarURL == "" {
		record.AvatarURL = a.AvatarURL
	}
	r.engine.Apply(record)

	if err := ValidateForWrite(record, r.engine); err != nil {
		return nil, err
	}
	if err := r.store.LinkFederated(ctx, record); err != nil {
		if IsDuplicate(err) {
			return nil, errLostRace
		}
		return nil, err
	}
	return record, nil
}

func (r *Reconciler) save(ctx context.Context, record *Identity, columns ...string) error {
	if err := ValidateForWrite(record, r.engine); err != nil {
		return err
	}
	return r.store.Save(ctx, record, columns...)
}
