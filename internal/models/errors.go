package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a patient, alert, config or sample is missing.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would overwrite an existing key.
	ErrConflict = errors.New("already exists")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// DependencyError wraps a failed record store or sink call.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// Dependency wraps err as a DependencyError unless it is nil or already
// carries a caller-facing kind (not found, validation, conflict).
func Dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) || IsValidation(err) || IsConflict(err) {
		return err
	}
	var de *DependencyError
	if errors.As(err, &de) {
		return err
	}
	return &DependencyError{Op: op, Err: err}
}

// ClassificationError describes why a sample could not be classified.
type ClassificationError struct {
	Vital  VitalType
	Reason string
}

func (e *ClassificationError) Error() string {
	if e.Vital == "" {
		return "classification: " + e.Reason
	}
	return fmt.Sprintf("classification: %s %s", e.Vital, e.Reason)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is or wraps ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDependency reports whether err is or wraps a DependencyError.
func IsDependency(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}
