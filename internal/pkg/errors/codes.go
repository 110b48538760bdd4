package errors

import (
	"math"
	"net/http"
	"time"
)

// Error code constants. Messages stay generic; clients key off the code.

// General error codes.
const (
	CodeInternal = "INTERNAL_ERROR"
	CodeNotFound = "NOT_FOUND"
)

// Credit error codes.
const (
	CodeInsufficientCredits  = "INSUFFICIENT_CREDITS"
	CodeDBUnavailable        = "DB_UNAVAILABLE"
	CodeInvalidAmount        = "INVALID_AMOUNT"
	CodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	CodeDuplicateTransaction = "DUPLICATE_TRANSACTION"
)

// Rate limit error codes.
const (
	CodeRateLimited = "RATE_LIMITED"
)

// Generation and production error codes.
const (
	CodeGenerationFailed     = "GENERATION_FAILED"
	CodeGenerationTimeout    = "GENERATION_TIMEOUT"
	CodeProviderUnavailable  = "PROVIDER_UNAVAILABLE"
	CodePredictionNotFound   = "PREDICTION_NOT_FOUND"
	CodeProductionNotFound   = "PRODUCTION_NOT_FOUND"
	CodeProductionFailed     = "PRODUCTION_FAILED"
	CodeProfileNotFound      = "PROFILE_NOT_FOUND"
	CodeAsyncUnavailable     = "ASYNC_UNAVAILABLE"
	CodeUnsupportedMediaKind = "UNSUPPORTED_MEDIA_KIND"
)

// Auth error codes.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeAuthFailed   = "AUTH_FAILED"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
	CodeCSRFInvalid  = "CSRF_INVALID"
	CodeAdminOnly    = "ADMIN_REQUIRED"
)

// Validation error codes.
const (
	CodeInvalidRequestField = "INVALID_REQUEST_FIELD"
	CodeValidationFailed    = "VALIDATION_FAILED"
)

// ErrInsufficientCreditsf creates the 402 returned when a user cannot pay.
// The remaining balance is reported as given; callers pass 0 when the
// ledger refused a deduction after generation.
func ErrInsufficientCreditsf(required, remaining int64) *AppError {
	return (&AppError{
		Code:       CodeInsufficientCredits,
		Message:    "insufficient credits",
		HTTPStatus: http.StatusPaymentRequired,
	}).WithParams(map[string]interface{}{
		"required":         required,
		"creditsRemaining": remaining,
	})
}

// ErrRateLimitedf creates a 429 carrying the retry delay in whole seconds.
func ErrRateLimitedf(retryAfter time.Duration) *AppError {
	secs := int64(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return (&AppError{
		Code:       CodeRateLimited,
		Message:    "too many requests, please slow down",
		HTTPStatus: http.StatusTooManyRequests,
	}).WithParams(map[string]interface{}{"retry_after_seconds": secs})
}

// ErrValidationf creates a 400 for a rejected request field.
func ErrValidationf(field, message string) *AppError {
	return (&AppError{
		Code:       CodeValidationFailed,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}).WithFieldErrors([]FieldError{{Field: field, Code: CodeValidationFailed, Message: message}})
}
