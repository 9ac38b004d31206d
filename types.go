package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds identity options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetTokenTTL() time.Duration
	GetStartingCredits() int
	GetLevels() []string
	GetTracks() []string
	GetRequireCreditOperation() bool
	GetUseHashedIDs() bool
}

// CreditFunc computes the next balance from the current one. Returning an
// error aborts the mutation without side effects.
type CreditFunc func(current int) (int, error)

// IdentityStore persists identity records.
//
// Lookups return ErrIdentityNotFound when no record matches. Writes that
// collide with the email or federated id uniqueness constraints return
// ErrDuplicateIdentity. Any other storage failure is reported as
// ErrUpstreamUnavailable.
type IdentityStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	// FindFederated runs a single lookup matching either the federated
	// subject or the email. A subject match wins when both exist.
	FindFederated(ctx context.Context, subjectID, email string) (*Identity, error)
	Create(ctx context.Context, record *Identity) error
	// Save writes the named columns of record. With no columns it writes
	// every profile column. It never writes the credit balance or the
	// federated link.
	Save(ctx context.Context, record *Identity, columns ...string) error
	// LinkFederated attaches record.FederatedID and the backfilled profile
	// fields to an identity that has no federated id yet. It returns
	// ErrDuplicateIdentity when the identity was linked in the meantime.
	LinkFederated(ctx context.Context, record *Identity) error
	// MutateCredits reads the balance, applies fn and writes the result with a
	// conditional update. It returns the updated record and the previous balance.
	MutateCredits(ctx context.Context, id uuid.UUID, fn CreditFunc) (*Identity, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PasswordVault hashes and verifies passwords
type PasswordVault interface {
	Hash(password string) (string, error)
	Compare(password, hash string) error
}

// Notifier delivers user facing messages. Failures never abort the
// operation that triggered them.
type Notifier interface {
	Welcome(ctx context.Context, record *Identity) error
}

// Observer receives authentication outcomes and timings.
type Observer interface {
	AuthAttempt(method, outcome string)
	AuthDuration(method string, d time.Duration)
	CreditMutation(operation, outcome string)
	Reconciled(outcome ReconcileOutcome)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

// DefaultLogger returns the stdout logger used when none is configured
func DefaultLogger() Logger {
	return defLogger{}
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}

type noopObserver struct{}

func (noopObserver) AuthAttempt(string, string)         {}
func (noopObserver) AuthDuration(string, time.Duration) {}
func (noopObserver) CreditMutation(string, string)      {}
func (noopObserver) Reconciled(ReconcileOutcome)        {}

func normalizeObserver(o Observer) Observer {
	if o == nil {
		return noopObserver{}
	}
	return o
}

// LogNotifier writes notifications to the logger instead of delivering them.
type LogNotifier struct {
	Logger Logger
}

// Welcome implements Notifier.
func (n LogNotifier) Welcome(_ context.Context, record *Identity) error {
	if record == nil {
		return nil
	}
	normalizeLogger(n.Logger).Info("welcome message queued for %s", record.Email)
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return LogNotifier{}
	}
	return n
}
