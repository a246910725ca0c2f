package app

import (
	"errors"
	"fmt"
)

// Domain error sentinels for the application layer. The HTTP layer maps them
// to status codes via errors.Is().

var (
	// ErrNotFound indicates the addressed session or task does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input from the caller.
	ErrValidation = errors.New("validation error")

	// ErrUnavailable indicates a required collaborator is not configured.
	ErrUnavailable = errors.New("service unavailable")

	// ErrConflict indicates the session is in the wrong state for the
	// requested operation, supplement before the run finished for example.
	ErrConflict = errors.New("conflict")
)

// NotFoundError wraps ErrNotFound with a descriptive message.
func NotFoundError(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// ValidationError wraps ErrValidation with a descriptive message.
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// UnavailableError wraps ErrUnavailable with a descriptive message.
func UnavailableError(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrUnavailable)
}

// ConflictError wraps ErrConflict with a descriptive message.
func ConflictError(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}
