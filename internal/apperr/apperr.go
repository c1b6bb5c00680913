// Package apperr defines the application error carried from business logic
// to the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced in the response envelope.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeIdempotencyKeyRequired = "IDEMPOTENCY_KEY_REQUIRED"
	CodeMaxActiveAlerts        = "MAX_ACTIVE_ALERTS_EXCEEDED"
	CodeMaxDailyAlerts         = "MAX_DAILY_ALERTS_EXCEEDED"
	CodeAlertNotFound          = "ALERT_NOT_FOUND"
	CodeNotFound               = "NOT_FOUND"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeAdminConfig            = "ADMIN_CONFIG_ERROR"
	CodeCheckInProgress        = "CHECK_IN_PROGRESS"
	CodeRateLimited            = "RATE_LIMIT_EXCEEDED"
	CodeInternal               = "INTERNAL_ERROR"
)

// Error is a typed application error with an HTTP status.
type Error struct {
	Code    string
	Message string
	Status  int
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithDetails returns a copy carrying details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// New builds an error with an explicit status.
func New(status int, code, message string) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

// Wrap builds an error that keeps cause for logging; cause is never serialised.
func Wrap(cause error, status int, code, message string) *Error {
	return &Error{Code: code, Message: message, Status: status, cause: cause}
}

func Validation(message string, details any) *Error {
	return &Error{Code: CodeValidation, Message: message, Status: http.StatusBadRequest, Details: details}
}

func IdempotencyKeyRequired() *Error {
	return New(http.StatusBadRequest, CodeIdempotencyKeyRequired, "Idempotency-Key header is required")
}

func MaxActiveAlerts(limit int) *Error {
	return New(http.StatusBadRequest, CodeMaxActiveAlerts,
		fmt.Sprintf("Maximum of %d active rate alerts per email reached", limit))
}

func MaxDailyAlerts(limit int) *Error {
	return New(http.StatusBadRequest, CodeMaxDailyAlerts,
		fmt.Sprintf("Maximum of %d rate alerts per email per day reached", limit))
}

func AlertNotFound() *Error {
	return New(http.StatusNotFound, CodeAlertNotFound, "Rate alert not found")
}

func NotFound() *Error {
	return New(http.StatusNotFound, CodeNotFound, "Resource not found")
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

func AdminConfig() *Error {
	return New(http.StatusInternalServerError, CodeAdminConfig, "Admin authentication is not configured")
}

func CheckInProgress() *Error {
	return New(http.StatusConflict, CodeCheckInProgress, "A rate check is already running")
}

func TooManyRequests() *Error {
	return New(http.StatusTooManyRequests, CodeRateLimited, "Too many requests, please try again later")
}

func Internal(cause error) *Error {
	return Wrap(cause, http.StatusInternalServerError, CodeInternal, "An unexpected error occurred")
}

// As extracts an *Error from err. Anything else becomes INTERNAL_ERROR.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return Internal(err), false
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
