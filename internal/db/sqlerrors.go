package db

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrRetriesExceeded is returned when a transaction was retried the max
// number of times without committing.
var ErrRetriesExceeded = errors.New("db tx retries exceeded")

// MapSQLError classifies a raw driver error into one of the typed errors
// below. Errors that are not sqlite errors pass through unchanged so
// sentinel errors from transaction bodies survive the mapping.
func MapSQLError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return parseSqliteError(sqliteErr)
	}

	return err
}

func parseSqliteError(sqliteErr sqlite3.Error) error {
	switch sqliteErr.Code {
	case sqlite3.ErrConstraint:
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {

			return &ErrSQLUniqueConstraintViolation{
				DBError: sqliteErr,
			}
		}

		return fmt.Errorf("sqlite constraint error: %w", sqliteErr)

	// The database is busy under another writer; the executor retries
	// these.
	case sqlite3.ErrBusy:
		return &ErrSerializationError{
			DBError: sqliteErr,
		}

	// A write conflicted with another operation on the same
	// connection; also retryable.
	case sqlite3.ErrLocked:
		return &ErrDeadlockError{
			DBError: sqliteErr,
		}

	default:
		return fmt.Errorf("unknown sqlite error: %w", sqliteErr)
	}
}

// ErrSQLUniqueConstraintViolation reports a violated unique or primary
// key constraint, such as an id collision on insert.
type ErrSQLUniqueConstraintViolation struct {
	DBError error
}

// Error returns the error message.
func (e ErrSQLUniqueConstraintViolation) Error() string {
	return fmt.Sprintf("sql unique constraint violation: %v", e.DBError)
}

// IsUniqueConstraintError returns true if the given error is a unique
// constraint violation.
func IsUniqueConstraintError(err error) bool {
	var uniqueErr *ErrSQLUniqueConstraintViolation
	return errors.As(err, &uniqueErr)
}

// ErrSerializationError reports a transaction that could not be
// serialized against concurrent transactions.
type ErrSerializationError struct {
	DBError error
}

// Unwrap returns the wrapped error.
func (e ErrSerializationError) Unwrap() error {
	return e.DBError
}

// Error returns the error message.
func (e ErrSerializationError) Error() string {
	return e.DBError.Error()
}

// ErrDeadlockError reports transactions whose lock acquisition became
// cyclic.
type ErrDeadlockError struct {
	DBError error
}

// Unwrap returns the wrapped error.
func (e ErrDeadlockError) Unwrap() error {
	return e.DBError
}

// Error returns the error message.
func (e ErrDeadlockError) Error() string {
	return e.DBError.Error()
}

// IsSerializationOrDeadlockError returns true if the given error is
// retryable: either a serialization failure or a deadlock.
func IsSerializationOrDeadlockError(err error) bool {
	var (
		serializationErr *ErrSerializationError
		deadlockErr      *ErrDeadlockError
	)
	return errors.As(err, &serializationErr) ||
		errors.As(err, &deadlockErr)
}
