package identity

import (
	"context"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

const federatedIDKeyPrefix = "federated:"

// newIdentityID returns a random id, or an id derived from key when hashed
// ids are enabled. A derived id that is already taken, as happens after the
// identity it was derived for changed its email, is replaced by a random one.
func newIdentityID(ctx context.Context, store IdentityStore, key string, hashed bool) (uuid.UUID, error) {
	if !hashed || key == "" {
		return uuid.New(), nil
	}

	id, err := hashid.NewUUID(key)
	if err != nil {
		return uuid.New(), nil
	}

	if _, err := store.FindByID(ctx, id); err == nil {
		return uuid.New(), nil
	} else if !IsNotFound(err) {
		return uuid.Nil, err
	}
	return id, nil
}

// federatedIDKey derives the hashed id key from the provider subject, which
// never changes for the identity.
func federatedIDKey(subjectID string) string {
	return federatedIDKeyPrefix + subjectID
}
