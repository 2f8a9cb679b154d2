package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeModel        ErrorType = "model_error"
	ErrorTypeModelTimeout ErrorType = "model_timeout"
	ErrorTypeModelQuota   ErrorType = "model_quota"
	ErrorTypeUnavailable  ErrorType = "unavailable"
	ErrorTypeTelemetry    ErrorType = "telemetry_emission_failure"
	ErrorTypeConfig       ErrorType = "config"
	ErrorTypeInternal     ErrorType = "internal"
)

// DomainError represents a structured error with additional context.
// Message is safe to show to callers; Err may carry raw upstream detail
// and is only ever logged.
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
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Wrap returns a copy of e carrying cause. A non-empty message replaces
// e's public message; the type, and so errors.Is, is preserved.
func (e *DomainError) Wrap(message string, cause error) *DomainError {
	if message == "" {
		message = e.Message
	}
	wrapped := NewDomainError(e.Type, message, cause)
	for k, v := range e.Details {
		wrapped.Details[k] = v
	}
	return wrapped
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
	// Validation Errors
	ErrInvalidInput       = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidRequestBody = NewDomainError(ErrorTypeValidation, "invalid request body", nil)

	// Model Errors
	ErrModelError       = NewDomainError(ErrorTypeModel, "model service returned an error", nil)
	ErrModelTimeout     = NewDomainError(ErrorTypeModelTimeout, "model call timed out", nil)
	ErrModelQuota       = NewDomainError(ErrorTypeModelQuota, "model quota exceeded", nil)
	ErrModelUnavailable = NewDomainError(ErrorTypeUnavailable, "model service unavailable", nil)

	// Telemetry Errors
	ErrTelemetryEmission = NewDomainError(ErrorTypeTelemetry, "telemetry emission failed", nil)

	// Configuration Errors
	ErrUnsupportedProvider = NewDomainError(ErrorTypeConfig, "unsupported model provider", nil)

	// Internal Errors
	ErrInternal = NewDomainError(ErrorTypeInternal, "an unexpected error occurred", nil)
)

// Error type checking helper functions

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsModelError checks if an error is a generic model failure
func IsModelError(err error) bool {
	return hasType(err, ErrorTypeModel)
}

// IsModelTimeoutError checks if an error is a model timeout
func IsModelTimeoutError(err error) bool {
	return hasType(err, ErrorTypeModelTimeout)
}

// IsModelQuotaError checks if an error is a model quota or rate limit error
func IsModelQuotaError(err error) bool {
	return hasType(err, ErrorTypeModelQuota)
}

// IsUnavailableError checks if an error is an unavailable error
func IsUnavailableError(err error) bool {
	return hasType(err, ErrorTypeUnavailable)
}

// IsTelemetryError checks if an error is a telemetry emission failure
func IsTelemetryError(err error) bool {
	return hasType(err, ErrorTypeTelemetry)
}

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	return hasType(err, ErrorTypeConfig)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// PublicMessage returns the caller-safe message of a domain error.
// Non-domain errors never leak their text.
func PublicMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		return domainErr.Message
	}
	return ErrInternal.Message
}
