// Package errors provides the structured application error used at the
// HTTP boundary of the production service.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common failure scenarios.
var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
)

// AppError is a structured application error with HTTP status and error code.
type AppError struct {
	// Code is a machine-readable error code (e.g., "INSUFFICIENT_CREDITS").
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// HTTPStatus is the corresponding HTTP status code.
	HTTPStatus int `json:"-"`

	// Params carries structured context for the client.
	Params map[string]interface{} `json:"params,omitempty"`

	// FieldErrors carries field-level validation details.
	FieldErrors []FieldError `json:"field_errors,omitempty"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// FieldError describes a field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error into an AppError.
func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// WithParams attaches structured parameters to the error.
func (e *AppError) WithParams(params map[string]interface{}) *AppError {
	if e == nil || len(params) == 0 {
		return e
	}
	e.Params = params
	return e
}

// WithFieldErrors attaches field-level errors to the AppError.
func (e *AppError) WithFieldErrors(fieldErrors []FieldError) *AppError {
	if e == nil || len(fieldErrors) == 0 {
		return e
	}
	e.FieldErrors = fieldErrors
	return e
}

// Common error constructors.

func NotFound(code, message string) *AppError {
	return New(code, message, http.StatusNotFound)
}

func BadRequest(code, message string) *AppError {
	return New(code, message, http.StatusBadRequest)
}

func Unauthorized(code, message string) *AppError {
	return New(code, message, http.StatusUnauthorized)
}

// PaymentRequired creates a 402 error, used when a user lacks credits.
func PaymentRequired(code, message string) *AppError {
	return New(code, message, http.StatusPaymentRequired)
}

func Forbidden(code, message string) *AppError {
	return New(code, message, http.StatusForbidden)
}

func Conflict(code, message string) *AppError {
	return New(code, message, http.StatusConflict)
}

// TooManyRequests creates a 429 error.
func TooManyRequests(code, message string) *AppError {
	return New(code, message, http.StatusTooManyRequests)
}

func Internal(code, message string) *AppError {
	return New(code, message, http.StatusInternalServerError)
}

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(code, message string) *AppError {
	return New(code, message, http.StatusServiceUnavailable)
}

// IsAppError checks if an error is an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
