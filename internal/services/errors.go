// Package services implements the case orchestration state-machine
// handlers: intake, PDF processing, Room-2/3 posting, doctor/scheduler
// decisions, reactions, and cleanup.
package services

import (
	"errors"

	"github.com/carlosapgomes/caseflow/internal/db"
)

// Sentinel errors returned by repository and service methods, classified
// by the API layer's mapServiceError into HTTP outcomes. ErrNotFound is
// the same value db.ErrNotFound uses, so repository lookups and service
// logic can be compared against one name regardless of which package
// raised it.
var (
	ErrNotFound               = db.ErrNotFound
	ErrAlreadyExists          = errors.New("resource already exists")
	ErrInvalidInput           = errors.New("invalid input")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// ValidationError carries a single field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
