// Package huberrors provides sentinel and custom error types for the application.
package huberrors

// ErrValidation represents a validation error.
// Use when client input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrUnavailable is the sentinel for a required upstream (e.g. the language model) being unreachable.
// Handlers map it to 503 Service Unavailable.
var ErrUnavailable = &UnavailableError{}

// UnavailableError is a sentinel error for upstream outages.
type UnavailableError struct {
	Upstream string
	Message  string
}

// NewUnavailableError creates an UnavailableError for the named upstream.
func NewUnavailableError(upstream, message string) *UnavailableError {
	return &UnavailableError{Upstream: upstream, Message: message}
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Upstream != "" {
		return e.Upstream + " unavailable"
	}

	return "service unavailable"
}

// Is implements the error interface for error comparison.
func (e *UnavailableError) Is(target error) bool {
	_, ok := target.(*UnavailableError)

	return ok
}
