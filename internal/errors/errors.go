package errors

import (
	stderrors "errors"
	"fmt"
)

// NoteError is the structured error type used across notemesh.
// It carries enough context to log, map to an MCP error, or show to a user.
type NoteError struct {
	// Code is the unique error code (e.g., "ERR_505_INDEX_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is derived from the code range.
	Category Category

	// Severity is derived from the code.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *NoteError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *NoteError) Unwrap() error {
	return e.Cause
}

// Is matches another NoteError by code, so errors.Is(err, errors.New(code, "", nil)) works.
func (e *NoteError) Is(target error) bool {
	if t, ok := target.(*NoteError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *NoteError) WithDetail(key, value string) *NoteError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *NoteError) WithSuggestion(suggestion string) *NoteError {
	e.Suggestion = suggestion
	return e
}

// New creates a NoteError. Category, severity and the retryable flag
// are derived from the code.
func New(code string, message string, cause error) *NoteError {
	return &NoteError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a NoteError from an existing error, reusing its message.
// Returns nil for a nil error.
func Wrap(code string, err error) *NoteError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *NoteError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *NoteError {
	return New(ErrCodeInvalidInput, message, cause)
}

// NotFoundError reports that a note title or path is unknown.
func NotFoundError(what string) *NoteError {
	return New(ErrCodeNoteNotFound, fmt.Sprintf("note not found: %s", what), nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *NoteError {
	return New(ErrCodeInternal, message, cause)
}

// as finds the first NoteError in err's chain.
func as(err error) (*NoteError, bool) {
	var ne *NoteError
	if stderrors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}

// IsRetryable reports whether any NoteError in the chain is retryable.
func IsRetryable(err error) bool {
	if ne, ok := as(err); ok {
		return ne.Retryable
	}
	return false
}

// IsFatal reports whether the first NoteError in the chain has fatal severity.
func IsFatal(err error) bool {
	if ne, ok := as(err); ok {
		return ne.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the code of the first NoteError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	if ne, ok := as(err); ok {
		return ne.Code
	}
	return ""
}

// GetCategory extracts the category of the first NoteError in the chain.
func GetCategory(err error) Category {
	if ne, ok := as(err); ok {
		return ne.Category
	}
	return ""
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code string) bool {
	return stderrors.Is(err, &NoteError{Code: code})
}
