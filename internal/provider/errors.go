package provider

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Sentinel causes carried by failed outcomes.
var (
	// ErrValidation: the request was rejected before any provider call.
	ErrValidation = errors.New("invalid generation request")
	// ErrTimeout: the provider did not answer within the call budget.
	ErrTimeout = errors.New("generation timed out")
	// ErrProvider: the provider answered with a failure.
	ErrProvider = errors.New("generation provider failed")
	// ErrTransient: the failure was throttling or a 5xx and may succeed later.
	ErrTransient = errors.New("generation provider temporarily failed")
	// ErrNotConfigured: the provider has no credentials configured.
	ErrNotConfigured = errors.New("generation provider not configured")
)

// ValidationError names the rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// GenerationError is a provider failure with a message safe to show users.
type GenerationError struct {
	Kind string
	// Public is already sanitized.
	Public string
	Err    error
}

func (e *GenerationError) Error() string {
	return e.Kind + ": " + e.Public
}

func (e *GenerationError) Unwrap() error { return e.Err }

func failure(kind string, cause error) error {
	if cause == nil {
		cause = ErrProvider
	}
	if errors.Is(cause, ErrValidation) {
		return cause
	}
	return &GenerationError{Kind: kind, Public: SanitizeGenerationError(cause.Error()), Err: cause}
}

// PublicMessage returns the user-facing message for a generation failure.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return TimedOutMessage
	case errors.Is(err, context.Canceled):
		return InterruptedMessage
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Public
	}
	return SanitizeGenerationError(err.Error())
}

// GenericGenerationError replaces provider messages that must not reach users.
const GenericGenerationError = "Generation service is temporarily unavailable. Please try again later."

// User-facing messages for runs cut short by their deadline or by shutdown.
const (
	TimedOutMessage    = "Generation took too long and was stopped. Please try again."
	InterruptedMessage = "Generation was interrupted before it finished. Please try again."
)

const maxPublicErrorRunes = 200

var (
	// Upstream billing, quota and credential problems are ours, not the user's.
	sensitiveErrorPattern = regexp.MustCompile(`(?i)(billing|credit|quota|insufficient[_ ]?funds|payment|api[_ -]?key|unauthori[sz]ed|authenticat|permission denied|forbidden|invalid[_ ]token|bearer|(^|[^0-9])40[123]([^0-9]|$))`)
	urlPattern            = regexp.MustCompile(`(?i)\b(https?|wss?)://\S+`)
)

// SanitizeGenerationError turns a raw provider error message into one
// safe to show users: billing, quota and credential errors become a
// generic message, URLs are removed and the text is bounded in length.
// Applying it twice gives the same result as applying it once.
func SanitizeGenerationError(msg string) string {
	msg = strings.Join(strings.Fields(msg), " ")
	if msg == "" || sensitiveErrorPattern.MatchString(msg) {
		return GenericGenerationError
	}
	msg = urlPattern.ReplaceAllString(msg, "[link removed]")
	if utf8.RuneCountInString(msg) > maxPublicErrorRunes {
		r := []rune(msg)
		msg = string(r[:maxPublicErrorRunes-3]) + "..."
	}
	// Cutting can leave a status code at the boundary.
	if sensitiveErrorPattern.MatchString(msg) {
		return GenericGenerationError
	}
	return msg
}
