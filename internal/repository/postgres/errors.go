package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/jwalitptl/appointment-engine/internal/repository"
)

const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

// classify maps driver errors onto the repository sentinels, keeping the
// original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", repository.ErrNotFound, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w (%s): %w", repository.ErrDuplicate, pqErr.Constraint, err)
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
			return fmt.Errorf("%w: %w", repository.ErrTransient, err)
		}
	}
	return err
}

// constraintOf returns the violated constraint name, if any.
func constraintOf(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}
