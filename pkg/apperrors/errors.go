package apperrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrUnsupported  = errors.New("unsupported connection type")
	ErrExecution    = errors.New("execution failed")
	ErrValidation   = errors.New("validation failed")
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when input fails shape or value checks.
// Cause, when set, is the check that failed.
type ValidationError struct {
	Fields []FieldError
	Cause  error
}

// NewValidationError builds a ValidationError for one field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// InvalidInput reports err against field. err stays reachable through errors.Is.
func InvalidInput(field string, err error) *ValidationError {
	return &ValidationError{
		Fields: []FieldError{{Field: field, Message: err.Error()}},
		Cause:  err,
	}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Cause }

// UnsupportedTypeError is returned for a connection type outside the supported set.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported connection type: %q", e.Type)
}

func (e *UnsupportedTypeError) Is(target error) bool { return target == ErrUnsupported }

// ConnectionNotFoundError is returned when a dataset references a connection
// that no longer exists.
type ConnectionNotFoundError struct {
	ID uuid.UUID
}

func (e *ConnectionNotFoundError) Error() string {
	return fmt.Sprintf("connection %s not found", e.ID)
}

func (e *ConnectionNotFoundError) Is(target error) bool { return target == ErrNotFound }

// ExecutionError wraps a failure while talking to an external source.
// Err carries the driver detail for logs; it is never shown to callers.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: execution failed", e.Op)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }
