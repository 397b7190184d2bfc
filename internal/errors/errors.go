// Package errors provides the sentinel errors and upstream error type shared by buffr packages.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common failure modes.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConflict      = errors.New("resource already exists")
	ErrNotConfigured = errors.New("integration not configured")
	ErrUnknownTool   = errors.New("unknown tool")
	ErrTimeout       = errors.New("operation timed out")
	ErrAuthFailure   = errors.New("authentication failed")
	ErrRateLimit     = errors.New("rate limit exceeded")
	ErrUnavailable   = errors.New("service unavailable")
)

// APIError represents a failed call to an upstream service (GitHub, Jira, Notion, the LLM).
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error. Auth and rate limit statuses wrap the
// matching sentinel so callers can use errors.Is.
func NewAPIError(service string, statusCode int, message string) *APIError {
	e := &APIError{Service: service, StatusCode: statusCode, Message: message}
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Err = ErrAuthFailure
	case http.StatusNotFound:
		e.Err = ErrNotFound
	case http.StatusTooManyRequests:
		e.Err = ErrRateLimit
	}
	return e
}

// Invalid wraps ErrInvalidInput with a field-level message.
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the kind and id of the missing entity.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}
