// Package errors provides the application error taxonomy used across mindmux.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

// Error codes as constants. These are the string codes stable across versions
// at the façade boundary.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAccessDenied  = "ACCESS_DENIED"
	ErrCodeAlreadyInUse  = "ALREADY_IN_USE"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeAuthorization = "AUTHORIZATION_ERROR"
	ErrCodeDecryption    = "DECRYPTION_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeUnavailable   = "EXTERNAL_UNAVAILABLE"
)

// AppError represents an application-specific error with additional context.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not-found error for a missing agent/task/session id.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s %q not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// Validation creates a validation error naming the violated rule; never retried.
func Validation(field, message string) *AppError {
	msg := message
	if field != "" {
		msg = fmt.Sprintf("validation failed for field '%s': %s", field, message)
	}
	return &AppError{Code: ErrCodeValidation, Message: msg, HTTPStatus: http.StatusBadRequest}
}

// AlreadyInUse creates a conflict error (duplicate name, already-running session).
func AlreadyInUse(message string) *AppError {
	return &AppError{Code: ErrCodeAlreadyInUse, Message: message, HTTPStatus: http.StatusConflict}
}

// Timeout creates a timeout error; the caller decides whether it is retryable.
func Timeout(message string) *AppError {
	return &AppError{Code: ErrCodeTimeout, Message: message, HTTPStatus: http.StatusGatewayTimeout}
}

// AccessDenied creates an authorization-boundary error.
func AccessDenied(message string) *AppError {
	return &AppError{Code: ErrCodeAccessDenied, Message: message, HTTPStatus: http.StatusForbidden}
}

// Unavailable creates an external-collaborator-missing error (multiplexer, CLI binary).
func Unavailable(service string) *AppError {
	return &AppError{
		Code:       ErrCodeUnavailable,
		Message:    fmt.Sprintf("%s is unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// Internal wraps an unexpected underlying error (store failure, corrupt record).
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Wrap attaches additional context to err, preserving its code and status if
// err is already an AppError, otherwise wrapping as an internal error.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}

	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsNotFound reports whether err is a not-found AppError.
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

// IsValidation reports whether err is a validation AppError.
func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeValidation
}

// IsAlreadyInUse reports whether err is an already-in-use AppError.
func IsAlreadyInUse(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeAlreadyInUse
}

// Code extracts the stable error code, defaulting to INTERNAL_ERROR for plain errors.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// GetHTTPStatus returns the HTTP status code for an error.
// Returns 500 Internal Server Error if the error is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

var lowLevelPatterns = []struct {
	pattern *regexp.Regexp
	generic string
}{
	{regexp.MustCompile(`(?i)no such file or directory|ENOENT`), "a required file or path was not found"},
	{regexp.MustCompile(`(?i)address already in use|EADDRINUSE`), "the requested resource is already in use"},
	{regexp.MustCompile(`(?i)i/o timeout|ETIMEDOUT|context deadline exceeded`), "the operation timed out"},
	{regexp.MustCompile(`(?i)permission denied|EACCES`), "access was denied"},
	{regexp.MustCompile(`/[A-Za-z0-9_./-]{4,}`), "[path]"},
}

// Sanitize produces a user-facing message for err: known low-level patterns
// (missing files, timeouts, addresses in use) are replaced with generic text
// and raw filesystem paths are redacted. It never includes a stack trace.
func Sanitize(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, p := range lowLevelPatterns {
		msg = p.pattern.ReplaceAllString(msg, p.generic)
	}
	return msg
}
