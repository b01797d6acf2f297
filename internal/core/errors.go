package core

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrUnauthenticated = errors.New("no authenticated user")
	ErrPersistence     = errors.New("persistence error")
	ErrRecalculation   = errors.New("recalculation error")
)

// ValidationError describes which field broke the write contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFound reports a missing event or user record.
func NotFound(what, id string) error {
	return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
}

// Persistence wraps a store failure. Not-found and validation errors pass
// through untouched so callers still see the precise kind.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// Recalculation wraps a failure of the recompute boundary.
func Recalculation(err error) error {
	if err == nil || errors.Is(err, ErrRecalculation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRecalculation, err)
}

// KindOf names the error kind for structured logs.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthenticated):
		return "auth"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrRecalculation):
		return "recalculation"
	default:
		return "internal"
	}
}

// RequireUser fails with ErrUnauthenticated when no user id is present.
func RequireUser(userID string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	return nil
}
