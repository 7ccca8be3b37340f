// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrBackendWarmingUp = errors.New("backend is warming up")
	ErrConnectionFailed = errors.New("connection failed")
	ErrTimeout          = errors.New("operation timed out")
	ErrNotFound         = errors.New("not found")
	ErrInputValidation  = errors.New("input validation failed")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrDatabaseError    = errors.New("database error")
	ErrStaleResponse    = errors.New("stale response discarded")
	ErrAlertTriggered   = errors.New("alert already triggered")
)

// APIError represents a non-2xx response from the dashboard backend.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("api error [%d] %s %s: %s", e.StatusCode, e.Method, e.Path, e.Body)
	}
	return fmt.Sprintf("api error [%d] %s %s", e.StatusCode, e.Method, e.Path)
}

// Unwrap maps well-known status codes onto sentinel errors so callers can
// use errors.Is without inspecting the status.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrNotAuthenticated
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return ErrTimeout
	}
	return nil
}

// NewAPIError creates a new APIError.
func NewAPIError(method, path string, statusCode int, body string) *APIError {
	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: statusCode,
		Body:       body,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// MutationError represents a failed create/update/delete against the backend.
type MutationError struct {
	Entity string
	Action string
	ID     string
	Err    error
}

func (e *MutationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s [%s]: %v", e.Action, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Action, e.Entity, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError creates a new MutationError.
func NewMutationError(entity, action, id string, err error) *MutationError {
	return &MutationError{
		Entity: entity,
		Action: action,
		ID:     id,
		Err:    err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// UserMessage returns a short, human readable description of err suitable
// for a one-line banner.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInputValidation):
		var ve *ValidationError
		if errors.As(err, &ve) {
			return ve.Message
		}
		return "invalid input"
	case errors.Is(err, ErrBackendWarmingUp):
		return "The server is warming up, please try again in a moment"
	case errors.Is(err, ErrNotAuthenticated):
		return "Please sign in again"
	case errors.Is(err, ErrConnectionFailed):
		return "Unable to reach the server"
	case errors.Is(err, ErrTimeout):
		return "The request timed out"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	}
	return err.Error()
}
