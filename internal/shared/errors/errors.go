package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types
var (
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")
	ErrValidation = errors.New("validation error")
)

// Validation codes for rejected state transitions. Callers branch on these,
// so they are part of the API contract and must stay stable.
const (
	CodeMissingClosureReason      = "MISSING_CLOSURE_REASON"
	CodeMissingRiskPlan           = "MISSING_RISK_PLAN"
	CodeMissingFundingSource      = "MISSING_FUNDING_SOURCE"
	CodeMissingOutcome            = "MISSING_OUTCOME"
	CodeMissingNoShowReason       = "MISSING_NO_SHOW_REASON"
	CodeMissingCancellationReason = "MISSING_CANCELLATION_REASON"
	CodeInvalidTransition         = "INVALID_TRANSITION"
	CodeInvalidPriorityCode       = "INVALID_PRIORITY_CODE"
	CodeClosedCase                = "CLOSED_CASE"
	CodePastDate                  = "PAST_DATE"
	CodeInvalidTime               = "INVALID_TIME"
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       "BAD_REQUEST",
		HTTPStatus: http.StatusBadRequest,
	}
}

// Validation creates a recoverable validation error with a stable code.
// No partial mutation occurs when one of these is returned.
func Validation(code, message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       code,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Message:    message,
		Code:       "CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// Internal creates an internal error
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	if appErr, ok := err.(*AppError); ok {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// CodeOf extracts the machine-readable code from an error, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
