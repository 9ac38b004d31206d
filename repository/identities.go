package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// IdentityRepository implements identity.IdentityStore using Bun.
type IdentityRepository struct {
	db  *bun.DB
	now func() time.Time
}

var _ identity.IdentityStore = (*IdentityRepository)(nil)

// NewIdentityRepository creates a new repository.
func NewIdentityRepository(db *bun.DB) *IdentityRepository {
	return &IdentityRepository{db: db, now: time.Now}
}

// FindByID implements identity.IdentityStore.
func (r *IdentityRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Identity, error) {
	record := &identity.Identity{}
	err := r.db.NewSelect().
		Model(record).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, "find_by_id")
	}
	return record, nil
}

// FindByEmail implements identity.IdentityStore.
func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	record := &identity.Identity{}
	err := r.db.NewSelect().
		Model(record).
		Where("email = ?", identity.NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, "find_by_email")
	}
	return record, nil
}

// FindFederated implements identity.IdentityStore.
func (r *IdentityRepository) FindFederated(ctx context.Context, subjectID, email string) (*identity.Identity, error) {
	record := &identity.Identity{}
	err := r.db.NewSelect().
		Model(record).
		Where("federated_id = ? OR email = ?", subjectID, identity.NormalizeEmail(email)).
		OrderExpr("CASE WHEN federated_id = ? THEN 0 ELSE 1 END", subjectID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, "find_federated")
	}
	return record, nil
}

// Create implements identity.IdentityStore.
func (r *IdentityRepository) Create(ctx context.Context, record *identity.Identity) error {
	now := r.now().UTC()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = now
	record.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(record).
		Exec(ctx)
	return mapError(err, "create")
}

// Save implements identity.IdentityStore. The credit balance is owned by
// MutateCredits and the federated link by LinkFederated; neither is written
// here.
func (r *IdentityRepository) Save(ctx context.Context, record *identity.Identity, columns ...string) error {
	q := r.db.NewUpdate().
		Model(record).
		WherePK()

	if len(columns) == 0 {
		q = q.ExcludeColumn("id", "credits", "created_at", "federated_id", "auth_provider")
	} else {
		cols := make([]string, 0, len(columns)+1)
		for _, col := range columns {
			if _, ok := saveColumns[col]; !ok {
				return identity.ValidationError("column cannot be saved", map[string]any{
					"column": col,
				})
			}
			cols = append(cols, col)
		}
		q = q.Column(append(cols, "updated_at")...)
	}

	record.UpdatedAt = r.now().UTC()
	res, err := q.Exec(ctx)
	if err != nil {
		return mapError(err, "save")
	}
	return expectAffected(res, "save")
}

// LinkFederated implements identity.IdentityStore. The update only matches
// identities without a federated id, so concurrent merges cannot overwrite
// each other.
func (r *IdentityRepository) LinkFederated(ctx context.Context, record *identity.Identity) error {
	if record.FederatedID == "" {
		return identity.ValidationError("federated id is required", map[string]any{
			"federated_id": "cannot be blank",
		})
	}

	record.UpdatedAt = r.now().UTC()
	res, err := r.db.NewUpdate().
		Model(record).
		Column(linkColumns...).
		WherePK().
		Where("federated_id IS NULL").
		Exec(ctx)
	if err != nil {
		return mapError(err, "link_federated")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return identity.Upstream(err, "link_federated")
	}
	if n == 0 {
		return identity.ErrDuplicateIdentity
	}
	return nil
}

// MutateCredits implements identity.IdentityStore.
func (r *IdentityRepository) MutateCredits(ctx context.Context, id uuid.UUID, fn identity.CreditFunc) (*identity.Identity, int, error) {
	record := &identity.Identity{}
	previous := 0

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().
			Model(record).
			Where("id = ?", id).
			Limit(1)
		if r.db.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			return mapError(err, "credits_read")
		}

		previous = record.Credits
		next, err := fn(previous)
		if err != nil {
			return err
		}
		if next < 0 {
			return identity.ErrInsufficientCredits
		}

		now := r.now().UTC()
		res, err := tx.NewUpdate().
			Model((*identity.Identity)(nil)).
			Set("credits = ?", next).
			Set("updated_at = ?", now).
			Where("id = ?", id).
			Where("credits = ?", previous).
			Exec(ctx)
		if err != nil {
			return mapError(err, "credits_write")
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return identity.Upstream(errCreditConflict, "credits_write")
		}

		record.Credits = next
		record.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, previous, mapError(err, "credits")
	}
	return record, previous, nil
}

// Delete implements identity.IdentityStore.
func (r *IdentityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*identity.Identity)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return mapError(err, "delete")
	}
	return expectAffected(res, "delete")
}

var saveColumns = map[string]struct{}{
	identity.ColumnEmail:            {},
	identity.ColumnPasswordHash:     {},
	identity.ColumnFamilyName:       {},
	identity.ColumnGivenName:        {},
	identity.ColumnAvatarURL:        {},
	identity.ColumnLevel:            {},
	identity.ColumnTrack:            {},
	identity.ColumnProfileCompleted: {},
}

var linkColumns = []string{
	"federated_id",
	"auth_provider",
	identity.ColumnFamilyName,
	identity.ColumnGivenName,
	identity.ColumnAvatarURL,
	identity.ColumnProfileCompleted,
	"updated_at",
}

var errCreditConflict = errors.New("credit balance changed concurrently")

func expectAffected(res sql.Result, operation string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return identity.Upstream(err, operation)
	}
	if n == 0 {
		return identity.ErrIdentityNotFound
	}
	return nil
}
