package identity

import (
	"context"
	"errors"
	"math"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// CreditOperation is a balance mutation kind
type CreditOperation string

const (
	CreditAdd      CreditOperation = "add"
	CreditSubtract CreditOperation = "subtract"
	CreditSet      CreditOperation = "set"
)

// CreditMutation is a requested balance change
type CreditMutation struct {
	Operation CreditOperation `json:"operation"`
	Amount    int             `json:"amount"`
}

// CreditMessage is a credit mutation request as received from clients. A
// missing amount is rejected instead of being read as zero.
type CreditMessage struct {
	Operation CreditOperation `json:"operation"`
	Amount    *int            `json:"amount"`
}

func (m CreditMessage) Type() string { return "identity.credits.update" }

// Validate will validate the message
func (m CreditMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Amount, validation.NotNil),
	)
}

// Mutation returns the mutation carried by a valid message
func (m CreditMessage) Mutation() (CreditMutation, error) {
	if err := m.Validate(); err != nil {
		return CreditMutation{}, validationErrorFrom(err)
	}
	return CreditMutation{Operation: m.Operation, Amount: *m.Amount}, nil
}

// CreditReceipt reports a committed mutation. Token carries the new balance.
type CreditReceipt struct {
	Identity  *Identity
	Operation CreditOperation
	Previous  int
	Current   int
	Token     string
}

// Ledger applies credit mutations
type Ledger struct {
	store     IdentityStore
	tokens    *TokenService
	requireOp bool
	locks     *keyedMutex
	logger    Logger
	activity  ActivitySink
	observer  Observer
}

// LedgerOption configures a Ledger
type LedgerOption func(*Ledger)

// WithLedgerLogger sets the logger
func WithLedgerLogger(logger Logger) LedgerOption {
	return func(l *Ledger) { l.logger = normalizeLogger(logger) }
}

// WithLedgerActivity sets the activity sink
func WithLedgerActivity(sink ActivitySink) LedgerOption {
	return func(l *Ledger) { l.activity = normalizeActivitySink(sink) }
}

// WithLedgerObserver sets the observer
func WithLedgerObserver(o Observer) LedgerOption {
	return func(l *Ledger) { l.observer = normalizeObserver(o) }
}

// WithRequiredCreditOperation rejects mutations that omit the operation
// instead of treating them as set.
func WithRequiredCreditOperation(required bool) LedgerOption {
	return func(l *Ledger) { l.requireOp = required }
}

// NewLedger creates a Ledger
func NewLedger(store IdentityStore, tokens *TokenService, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:    store,
		tokens:   tokens,
		locks:    newKeyedMutex(),
		logger:   defLogger{},
		activity: noopActivitySink{},
		observer: noopObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// ApplyMessage validates msg and applies its mutation
func (l *Ledger) ApplyMessage(ctx context.Context, id uuid.UUID, msg CreditMessage) (*CreditReceipt, error) {
	m, err := msg.Mutation()
	if err != nil {
		l.observer.CreditMutation(string(msg.Operation), "invalid")
		return nil, err
	}
	return l.Apply(ctx, id, m)
}

// Apply validates and commits m against the balance of id. Mutations on the
// same identity are serialized; a rejected mutation leaves the balance intact.
func (l *Ledger) Apply(ctx context.Context, id uuid.UUID, m CreditMutation) (*CreditReceipt, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during credit mutation",
		)
	default:
	}

	op, err := l.normalize(m)
	if err != nil {
		l.observer.CreditMutation(string(m.Operation), "invalid")
		return nil, err
	}

	unlock := l.locks.Lock(id)
	defer unlock()

	record, previous, err := l.store.MutateCredits(ctx, id, func(current int) (int, error) {
		return nextBalance(op, m.Amount, current)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			l.observer.CreditMutation(string(op), "insufficient")
			recordActivity(ctx, l.activity, l.logger, ActivityEvent{
				EventType:  ActivityEventCreditsRejected,
				IdentityID: id.String(),
				Metadata: map[string]any{
					"operation": string(op),
					"amount":    m.Amount,
				},
			})
		} else if HasTextCode(err, TextCodeValidation) {
			l.observer.CreditMutation(string(op), "invalid")
		} else {
			l.observer.CreditMutation(string(op), "error")
		}
		return nil, err
	}

	token, err := l.tokens.Issue(record)
	if err != nil {
		return nil, err
	}

	l.observer.CreditMutation(string(op), "ok")
	recordActivity(ctx, l.activity, l.logger, ActivityEvent{
		EventType:  ActivityEventCreditsMutated,
		IdentityID: id.String(),
		Metadata: map[string]any{
			"operation": string(op),
			"amount":    m.Amount,
			"previous":  previous,
			"current":   record.Credits,
		},
	})

	return &CreditReceipt{
		Identity:  record,
		Operation: op,
		Previous:  previous,
		Current:   record.Credits,
		Token:     token,
	}, nil
}

func (l *Ledger) normalize(m CreditMutation) (CreditOperation, error) {
	op := m.Operation
	if op == "" {
		if l.requireOp {
			return "", ValidationError("credit operation is required", map[string]any{
				"operation": "cannot be blank",
			})
		}
		op = CreditSet
	}

	switch op {
	case CreditAdd, CreditSubtract:
		if m.Amount <= 0 {
			return "", ValidationError("amount must be strictly positive", map[string]any{
				"amount": m.Amount,
			})
		}
	case CreditSet:
		if m.Amount < 0 {
			return "", ValidationError("amount cannot be negative", map[string]any{
				"amount": m.Amount,
			})
		}
	default:
		return "", ValidationError("unknown credit operation", map[string]any{
			"operation": string(op),
		})
	}
	return op, nil
}

func nextBalance(op CreditOperation, amount, current int) (int, error) {
	switch op {
	case CreditAdd:
		if amount > math.MaxInt-current {
			return current, ValidationError("amount exceeds the maximum balance", map[string]any{
				"amount": amount,
			})
		}
		return current + amount, nil
	case CreditSubtract:
		if current < amount {
			return current, ErrInsufficientCredits
		}
		return current - amount, nil
	default:
		return amount, nil
	}
}
