package errors

import (
	"errors"
	"fmt"
)

// AskError carries a stable error code plus enough context to log it, show
// it to the user, and decide whether to retry.
type AskError struct {
	// Code is the stable identifier, e.g. "ERR_303_RATE_LIMITED".
	Code string

	// Message is the human-readable description.
	Message string

	// Category groups codes for coarse handling decisions.
	Category Category

	// Severity is fatal or recoverable.
	Severity Severity

	// Details holds extra key-value context.
	Details map[string]string

	// Cause is the wrapped underlying error, if any.
	Cause error

	// Retryable marks transient failures worth retrying.
	Retryable bool

	// Suggestion tells the user what to do about it.
	Suggestion string
}

func (e *AskError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AskError) Unwrap() error {
	return e.Cause
}

// Is matches two AskErrors by code, so errors.Is works across instances.
func (e *AskError) Is(target error) bool {
	t, ok := target.(*AskError)
	return ok && e.Code == t.Code
}

// WithDetail attaches a key-value pair and returns e for chaining.
func (e *AskError) WithDetail(key, value string) *AskError {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the user-facing hint and returns e for chaining.
func (e *AskError) WithSuggestion(suggestion string) *AskError {
	e.Suggestion = suggestion
	return e
}

// New builds an AskError; category, severity, and retryability follow from
// the code.
func New(code string, message string, cause error) *AskError {
	return &AskError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap lifts an existing error under a code, reusing its message.
func Wrap(code string, err error) *AskError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError marks a configuration problem.
func ConfigError(message string, cause error) *AskError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ExtractionError marks a failure to pull text out of a document.
func ExtractionError(message string, cause error) *AskError {
	return New(ErrCodeExtractionFailed, message, cause)
}

// RateLimited marks a provider rate limit. Always retryable.
func RateLimited(message string, cause error) *AskError {
	return New(ErrCodeRateLimited, message, cause)
}

// ProviderUnavailable marks provider connectivity failure. Retryable.
func ProviderUnavailable(message string, cause error) *AskError {
	return New(ErrCodeProviderUnavailable, message, cause)
}

// ValidationError marks rejected input.
func ValidationError(message string, cause error) *AskError {
	return New(ErrCodeInvalidInput, message, cause)
}

// NamespaceMismatch marks a query routed to a vector namespace whose
// embedder does not match. Never retryable.
func NamespaceMismatch(message string) *AskError {
	return New(ErrCodeNamespaceMismatch, message, nil)
}

// IndexWriteError marks an index persistence failure.
func IndexWriteError(message string, cause error) *AskError {
	return New(ErrCodeIndexWrite, message, cause)
}

// InternalError marks an unexpected internal failure.
func InternalError(message string, cause error) *AskError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err, or anything it wraps, is a retryable
// AskError.
func IsRetryable(err error) bool {
	var ae *AskError
	return errors.As(err, &ae) && ae.Retryable
}

// IsFatal reports whether err carries fatal severity.
func IsFatal(err error) bool {
	var ae *AskError
	return errors.As(err, &ae) && ae.Severity == SeverityFatal
}

// GetCode returns the code of the first AskError in the chain, or "".
func GetCode(err error) string {
	var ae *AskError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// GetCategory returns the category of the first AskError in the chain,
// or "".
func GetCategory(err error) Category {
	var ae *AskError
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ""
}
