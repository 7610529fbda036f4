package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidationFailed indicates that validation checks have failed
	ErrValidationFailed = errors.New("validation failed")

	// ErrDigestConflict indicates a concurrent writer already created a
	// digest for the same date (unique constraint violation).
	ErrDigestConflict = errors.New("digest already exists for date")

	// ErrUnknownSetting indicates a settings key has no registered default.
	ErrUnknownSetting = errors.New("unknown setting key")

	// ErrBadValue indicates a settings value doesn't match its key's type
	// or enum constraint.
	ErrBadValue = errors.New("bad setting value")

	// ErrNoUnprocessedArticles indicates a digest generation run found
	// nothing to include, either because no article is undigested or
	// because none of the undigested articles fall in an enabled section.
	ErrNoUnprocessedArticles = errors.New("no unprocessed articles")
)

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}
