package repository

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/uptrace/bun"
)

const federatedIndexName = "identities_federated_id_uidx"

// Migrate creates the identities table and its indexes if missing. Email is
// unique; federated_id is unique only among non null values.
func Migrate(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*identity.Identity)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create identities table")
	}

	_, err = db.NewCreateIndex().
		Model((*identity.Identity)(nil)).
		Index(federatedIndexName).
		Unique().
		IfNotExists().
		Column("federated_id").
		Where("federated_id IS NOT NULL").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create federated id index")
	}

	return nil
}
