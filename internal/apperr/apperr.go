// Package apperr defines the error kinds shared by the ledger and cart engines.
//
// Callers match kinds with errors.Is. Wrapped causes stay reachable through errors.As,
// so a persistence error still exposes the underlying *pgconn.PgError.
package apperr

import (
	"errors"
	"fmt"

	"license-commerce/pkg/utils"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence failure")
	ErrConflict    = errors.New("concurrency conflict")
)

// Validation builds an ErrValidation with a caller-facing reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound builds an ErrNotFound naming the missing entity.
func NotFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

// FromStore classifies an error returned by a repository call.
// Errors that already carry a kind pass through untouched.
func FromStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsKnown(err) {
		return err
	}
	if errors.Is(err, utils.ErrRetriesExhausted) || utils.IsRetryable(err) || utils.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// IsKnown reports whether err already carries one of the kinds above.
func IsKnown(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPersistence) ||
		errors.Is(err, ErrConflict)
}
