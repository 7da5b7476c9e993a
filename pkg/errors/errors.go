// Package errors defines the coded errors returned by the call service.
// Handlers render them with response.FromError; the code picks the HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the machine-readable code clients switch on
type ErrorCode string

const (
	ErrCodeValidation       ErrorCode = "VALIDATION_ERROR"
	ErrCodeMissingField     ErrorCode = "MISSING_FIELD"
	ErrCodeForbidden        ErrorCode = "FORBIDDEN"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeCallNotFound     ErrorCode = "CALL_NOT_FOUND"
	ErrCodeConflict         ErrorCode = "CONFLICT"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase         ErrorCode = "DATABASE_ERROR"
	ErrCodeRelayUnavailable ErrorCode = "RELAY_UNAVAILABLE"
)

var statusByCode = map[ErrorCode]int{
	ErrCodeValidation:       http.StatusBadRequest,
	ErrCodeMissingField:     http.StatusBadRequest,
	ErrCodeForbidden:        http.StatusForbidden,
	ErrCodeNotFound:         http.StatusNotFound,
	ErrCodeCallNotFound:     http.StatusNotFound,
	ErrCodeConflict:         http.StatusConflict,
	ErrCodeDatabase:         http.StatusInternalServerError,
	ErrCodeRelayUnavailable: http.StatusServiceUnavailable,
}

// AppError pairs a code with a client-safe message and an optional cause
type AppError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, cause error) *AppError {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &AppError{Code: code, Message: message, StatusCode: status, Err: cause}
}

func ValidationError(message string) *AppError {
	return newError(ErrCodeValidation, message, nil)
}

func MissingFieldError(field string) *AppError {
	return newError(ErrCodeMissingField, "Missing required field: "+field, nil)
}

func ForbiddenError(message string) *AppError {
	return newError(ErrCodeForbidden, message, nil)
}

// NotFoundError names the missing resource, e.g. NotFoundError("Group call")
func NotFoundError(resource string) *AppError {
	return newError(ErrCodeNotFound, resource+" not found", nil)
}

func CallNotFoundError() *AppError {
	return newError(ErrCodeCallNotFound, "Call not found", nil)
}

// ConflictError covers busy participants and lost optimistic updates
func ConflictError(message string) *AppError {
	return newError(ErrCodeConflict, message, nil)
}

// DatabaseError hides err from clients but keeps it for logging
func DatabaseError(err error) *AppError {
	return newError(ErrCodeDatabase, "Database error", err)
}

// RelayUnavailableError reports that the counterpart of a relay event is unreachable.
// It is logged by the relay and never surfaced by orchestration calls.
func RelayUnavailableError(userID string) *AppError {
	return newError(ErrCodeRelayUnavailable, fmt.Sprintf("user %s is not reachable", userID), nil)
}

// HasCode reports whether err is an AppError carrying the given code
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// GetAppError unwraps err to its AppError, treating anything else as internal
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return newError(ErrCodeInternal, "Internal server error", err)
}
