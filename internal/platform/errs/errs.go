// Package errs defines the error taxonomy shared by the workflow engine.
// Callers classify failures with errors.Is against the sentinel values; the
// surrounding web/CLI layer decides user messaging.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing required input, such as an
	// empty recipient set.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a referenced entity that does not exist or does not
	// belong to the claimed parent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks an illegal state transition, such as resolving an
	// already-resolved review.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrStorage marks a record-store failure. The enclosing operation is
	// aborted; no partial writes survive.
	ErrStorage = errors.New("storage failure")

	// ErrNotification marks a failed recipient send. It is recorded in the
	// audit log at the point of sending and never propagates past it.
	ErrNotification = errors.New("notification failure")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// InvalidStatef wraps ErrInvalidState with a formatted message.
func InvalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// Storagef wraps ErrStorage with a formatted message and an optional cause.
func Storagef(cause error, format string, args ...any) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrStorage, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, fmt.Sprintf(format, args...), cause)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a missing-entity failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidState reports whether err is an illegal transition.
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }

// IsStorage reports whether err is a record-store failure.
func IsStorage(err error) bool { return errors.Is(err, ErrStorage) }
