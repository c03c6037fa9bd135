package repository

import (
	"errors"

	apperrors "github.com/jwalitptl/appointment-engine/pkg/errors"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("duplicate record")
	ErrStaleVersion = errors.New("record was modified concurrently")
	ErrExhausted    = errors.New("sequence exhausted")

	// ErrIdempotencyKeyUsed accompanies ErrDuplicate when the clash is on
	// the beneficiary's idempotency key rather than the slot.
	ErrIdempotencyKeyUsed = errors.New("idempotency key already used")

	// ErrTransient marks lock timeouts, deadlocks and serialization
	// failures; the operation may be retried as a whole.
	ErrTransient = errors.New("transient storage error")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// ToAppError translates storage sentinels for the API layer. Errors that
// already carry an AppError pass through unchanged.
func ToAppError(resource string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, ErrNotFound):
		return apperrors.NewNotFound(resource, err)
	case errors.Is(err, ErrStaleVersion):
		return apperrors.NewConflict(resource+" was modified concurrently", err)
	case errors.Is(err, ErrDuplicate):
		return apperrors.NewConflict(resource+" already exists", err)
	case errors.Is(err, ErrTransient):
		return apperrors.NewUnavailable(err)
	}
	return apperrors.NewInternal(err)
}
