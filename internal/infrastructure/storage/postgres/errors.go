package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"storeledger/internal/core/apperror"
)

// SQLSTATE codes treated as a lost race.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
)

// mapError turns serialization failures, deadlocks and a concurrent first
// insert of the same key into an apperror conflict. Anything else is
// returned as is.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateUniqueViolation:
		return apperror.NewConflict("concurrent transaction conflict").
			WithDetail("sqlstate", pgErr.Code).
			WithCause(err)
	}
	return err
}
