package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeCapacity   ErrorType = "capacity"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeExternal   ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Message == t.Message
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// ErrModelNotFound indicates the named model is not in the catalog
	ErrModelNotFound = NewDomainError(ErrorTypeNotFound, "model not found", nil)

	// ErrCapacityExhausted indicates no enabled model has remaining quota
	// for the task. Surfaced to the caller; never retried.
	ErrCapacityExhausted = NewDomainError(ErrorTypeCapacity, "all model quotas exhausted", nil)

	// ErrNoProvidersAvailable indicates even the emergency fallback found
	// no usable model. Fatal for the task, not for the process.
	ErrNoProvidersAvailable = NewDomainError(ErrorTypeCapacity, "no providers available", nil)

	// ErrProviderNotConfigured indicates an origin has no usable credentials.
	// Its models are excluded from candidate sets; other origins unaffected.
	ErrProviderNotConfigured = NewDomainError(ErrorTypeExternal, "provider not configured", nil)

	// ErrDecisionUnparseable indicates the oracle answer was missing required
	// fields or unparseable. Absorbed by the selector's deterministic
	// fallback, never surfaced.
	ErrDecisionUnparseable = NewDomainError(ErrorTypeValidation, "oracle decision unparseable", nil)

	// ErrProviderTimeout distinguishes a timed-out provider call from a
	// provider-reported failure
	ErrProviderTimeout = NewDomainError(ErrorTypeExternal, "provider call timed out", nil)

	// ErrInvalidInput indicates a malformed request
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)

	// ErrInternal indicates an unexpected internal failure
	ErrInternal = NewDomainError(ErrorTypeInternal, "internal error", nil)
)

// IsCapacityError checks if an error is a capacity/availability error
func IsCapacityError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeCapacity
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeValidation
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeNotFound
	}
	return false
}
