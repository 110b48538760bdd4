package credits

import (
	"errors"
	"fmt"
)

// Code classifies a ledger failure.
type Code string

const (
	CodeInsufficientCredits Code = "INSUFFICIENT_CREDITS"
	CodeDBUnavailable       Code = "DB_UNAVAILABLE"
	CodeInvalidAmount       Code = "INVALID_AMOUNT"
	CodeDuplicate           Code = "DUPLICATE_TRANSACTION"
	CodeAccountNotFound     Code = "ACCOUNT_NOT_FOUND"
)

// CreditError is the typed failure every Ledger operation returns.
type CreditError struct {
	Code    Code
	Message string
	// Remaining is the balance observed when the error was raised, when known.
	Remaining *int64
	Err       error
}

func (e *CreditError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CreditError) Unwrap() error { return e.Err }

// Insufficient reports a deduction larger than the balance.
func Insufficient(remaining int64) *CreditError {
	return &CreditError{Code: CodeInsufficientCredits, Message: "insufficient credits", Remaining: &remaining}
}

// Unavailable wraps a storage failure.
func Unavailable(err error) *CreditError {
	return &CreditError{Code: CodeDBUnavailable, Message: "credit ledger unavailable", Err: err}
}

// Duplicate reports a transaction whose reference was already applied.
func Duplicate(referenceID string, remaining int64) *CreditError {
	return &CreditError{
		Code:      CodeDuplicate,
		Message:   "transaction " + referenceID + " already applied",
		Remaining: &remaining,
	}
}

// NotFound reports a user without a credit account.
func NotFound(userID string) *CreditError {
	return &CreditError{Code: CodeAccountNotFound, Message: "no credit account for user " + userID}
}

func invalidAmount(msg string) *CreditError {
	return &CreditError{Code: CodeInvalidAmount, Message: msg}
}

// CodeOf returns the CreditError code in err's chain, or "".
func CodeOf(err error) Code {
	var ce *CreditError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
