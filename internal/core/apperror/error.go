// Package apperror provides structured error handling for the ledger.
// All business errors crossing package boundaries use AppError so that the
// HTTP layer and callers can classify them without string matching.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeSequence = "SEQUENCE_ERROR"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Precondition failures (422)
	CodePrecondition   = "PRECONDITION_FAILED"
	CodeAlreadyCounted = "ALREADY_COUNTED"
	CodeNotEditable    = "DOCUMENT_NOT_EDITABLE"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409). The only retryable code.
	CodeConflict = "CONFLICT"
)

// AppError is the standard error type for the platform.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400).
// Raised before any transaction is started.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewSequence creates an allocator failure. The commit that needed the
// number has not touched stock or storage.
func NewSequence(counter string, err error) *AppError {
	return &AppError{
		Code:       CodeSequence,
		Message:    "sequence allocation failed",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"counter": counter},
		Err:        err,
	}
}

// NewConflict creates an optimistic concurrency failure (409).
// The whole operation may be re-run from its read phase.
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewPrecondition creates a non-retryable state error that must be shown
// to the operator.
func NewPrecondition(code, message string) *AppError {
	if code == "" {
		code = CodePrecondition
	}
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewAlreadyCounted is returned when an inventory count with no counted
// lines still has count detail records in storage.
func NewAlreadyCounted(countID any) *AppError {
	return NewPrecondition(CodeAlreadyCounted, "count detail records already exist").
		WithDetail("count_id", countID)
}

// NewNotEditable is returned for line edits on a committed document.
func NewNotEditable(state string) *AppError {
	return NewPrecondition(CodeNotEditable, "document is not open for editing").
		WithDetail("state", state)
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func hasCode(err error, codes ...string) bool {
	appErr, ok := AsAppError(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if appErr.Code == c {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the caller may re-run the failed operation
// from scratch. Only conflicts qualify.
func IsRetryable(err error) bool {
	return hasCode(err, CodeConflict)
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsSequence checks if error is CodeSequence
func IsSequence(err error) bool {
	return hasCode(err, CodeSequence)
}

// IsValidation checks if error is CodeValidation
func IsValidation(err error) bool {
	return hasCode(err, CodeValidation)
}

// IsPrecondition checks for any precondition failure, including
// ALREADY_COUNTED and DOCUMENT_NOT_EDITABLE.
func IsPrecondition(err error) bool {
	return hasCode(err, CodePrecondition, CodeAlreadyCounted, CodeNotEditable)
}
