package repository

import (
	"database/sql"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// mapError translates driver errors into the identity error taxonomy. Rich
// errors raised by callbacks pass through untouched.
func mapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return identity.ErrIdentityNotFound
	case isUniqueViolation(err):
		return identity.ErrDuplicateIdentity
	default:
		return identity.Upstream(err, operation)
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
