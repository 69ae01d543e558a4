package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create a duplicate entity
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition is returned when a status change is not allowed
	// by the case state machine
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrWrongState is returned when an operation requires the case to be in
	// a specific status and it is not
	ErrWrongState = errors.New("case not in required state")

	// ErrMissingActivePrompt is returned when a prompt name has no active
	// version; pipeline stages treat it as retriable
	ErrMissingActivePrompt = errors.New("missing active prompt template")

	// ErrInvalidCredentials is returned when login fails on email or password
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountInactive is returned when a blocked or removed account
	// attempts to authenticate
	ErrAccountInactive = errors.New("account is not active")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
