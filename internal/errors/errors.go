// Package errors defines the coded error type shared by the stores, the auth
// backends and the session coordinator. The Message of an AppError is what a
// signed-in user gets to see; the Cause is for logs only.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode classifies an AppError.
type ErrorCode string

const (
	ErrCodeNotFound   ErrorCode = "not_found"
	ErrCodeConflict   ErrorCode = "conflict"
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeUnauthorized covers rejected credentials and expired or revoked tokens.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeUnavailable means the auth or data backend could not be reached.
	ErrCodeUnavailable ErrorCode = "unavailable"
	ErrCodeInternal    ErrorCode = "internal"
	ErrCodeTimeout     ErrorCode = "timeout"
	ErrCodeCanceled    ErrorCode = "canceled"
)

// AppError carries a code, a user-facing message and an optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field names the offending input for validation failures.
	Field string
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *AppError) Unwrap() error { return e.Cause }

func newError(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

func NotFound(msg string) *AppError { return newError(ErrCodeNotFound, msg) }

func NotFoundf(format string, args ...any) *AppError {
	return newError(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

func Conflict(msg string) *AppError { return newError(ErrCodeConflict, msg) }

func Validation(msg string) *AppError { return newError(ErrCodeValidation, msg) }

// ValidationField reports invalid input for a named field such as "email".
func ValidationField(field, msg string) *AppError {
	e := newError(ErrCodeValidation, msg)
	e.Field = field
	return e
}

// Unauthorized reports a rejection by the auth backend. Backends pass their own
// wording through so it reaches the user unchanged.
func Unauthorized(msg string) *AppError { return newError(ErrCodeUnauthorized, msg) }

func Internal(msg string) *AppError { return newError(ErrCodeInternal, msg) }

// Wrap attaches a code and user message to err. A nil err stays nil.
func Wrap(err error, code ErrorCode, msg string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: msg, Cause: err}
}

func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr) && appErr != nil
	return appErr, ok
}

func hasCode(err error, code ErrorCode) bool {
	appErr, ok := asAppError(err)
	return ok && appErr.Code == code
}

func IsNotFound(err error) bool     { return hasCode(err, ErrCodeNotFound) }
func IsConflict(err error) bool     { return hasCode(err, ErrCodeConflict) }
func IsValidation(err error) bool   { return hasCode(err, ErrCodeValidation) }
func IsUnauthorized(err error) bool { return hasCode(err, ErrCodeUnauthorized) }
func IsUnavailable(err error) bool  { return hasCode(err, ErrCodeUnavailable) }
func IsTimeout(err error) bool      { return hasCode(err, ErrCodeTimeout) }
func IsCanceled(err error) bool     { return hasCode(err, ErrCodeCanceled) }

// GetCode returns the code of the outermost AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	if appErr, ok := asAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// GetField returns the offending field of a validation error, or "".
func GetField(err error) string {
	if appErr, ok := asAppError(err); ok {
		return appErr.Field
	}
	return ""
}

// UserMessage is the text shown in Snapshot.Error and notifications: the
// AppError message without its cause, or err.Error() for any other error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := asAppError(err); ok && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

// FromContext converts a context deadline or cancellation in err's chain into a
// Timeout or Canceled AppError. It returns nil for any other error.
func FromContext(err error) *AppError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &AppError{Code: ErrCodeTimeout, Message: "Request timed out. Please try again.", Cause: err}
	case errors.Is(err, context.Canceled):
		return &AppError{Code: ErrCodeCanceled, Message: "Request was canceled.", Cause: err}
	default:
		return nil
	}
}
