// Package apperror defines the error kinds shared by every layer of the service.
//
// The service layer returns one of these kinds instead of a bare "nothing happened":
//
//	ErrValidation   → a rule on email/name/password/amount failed
//	ErrConflict     → the email is already registered
//	ErrNotFound     → user, email or announcement id unknown
//	ErrUnauthorized → login with the wrong password
//	ErrInternal     → a collaborator (storage, hasher) failed
//
// Handlers pick status codes with errors.Is against the sentinels below.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying collaborator error (Internal only)
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports that a unique value (e.g. an email) is already taken.
func Conflict(resource, value string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with %s", resource, value),
	}
}

// Unauthorized returns an AppError for failed credential checks.
// HTTP handlers map this to 401 Unauthorized.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Internal wraps an unexpected collaborator failure. The cause stays reachable
// through errors.Is / errors.As so logs can show it.
func Internal(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Message: op,
		Cause:   cause,
	}
}

// Kind returns a short machine-readable name for err's kind, for log attributes.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal_error"
	}
}
