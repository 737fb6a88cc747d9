// Package errors provides structured error handling with a small taxonomy
// used across the fallback boundary and the development server.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error for metrics and response
// formatting.
type ErrorType string

const (
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeTimeout indicates an operation that gave up waiting (HTTP 504)
	TypeTimeout ErrorType = "timeout"
	// TypeInternal indicates a local failure (HTTP 500)
	TypeInternal ErrorType = "internal"
	// TypeExternal indicates a backend service failure (HTTP 502)
	TypeExternal ErrorType = "external"
)

// Error represents a structured error with type, message, and cause.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeTimeout:
		return http.StatusGatewayTimeout
	case TypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error {
	return &Error{Type: TypeValidation, Message: message}
}

// TimeoutError creates a new timeout error.
func TimeoutError(message string) *Error {
	return &Error{Type: TypeTimeout, Message: message}
}

// InternalError creates a new internal error with a cause.
func InternalError(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Message: message, Cause: cause}
}

// ExternalError creates a new backend service error with a cause.
func ExternalError(message string, cause error) *Error {
	return &Error{Type: TypeExternal, Message: message, Cause: cause}
}

// TypeOf returns the ErrorType of err, or TypeInternal for plain errors.
func TypeOf(err error) ErrorType {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Type
	}
	return TypeInternal
}
