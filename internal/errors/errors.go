package errors

import (
	"fmt"
)

// EngineError is the structured error type for the retrieval engine.
// It provides rich context for error handling, logging, and report rows.
type EngineError struct {
	// Code is the unique error code (e.g., "ERR_205_CORRUPT_INDEX").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Model, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Recoverable indicates the caller may degrade gracefully.
	Recoverable bool
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with EngineError.
func (e *EngineError) Is(target error) bool {
	if t, ok := target.(*EngineError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *EngineError) WithDetail(key, value string) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new EngineError with the given code and message.
// Category, severity, and recoverable flag are derived from the code.
func New(code string, message string, cause error) *EngineError {
	return &EngineError{
		Code:        code,
		Message:     message,
		Category:    categoryFromCode(code),
		Severity:    severityFromCode(code),
		Cause:       cause,
		Recoverable: isRecoverableCode(code),
	}
}

// Newf creates a new EngineError with a formatted message.
func Newf(code string, format string, args ...any) *EngineError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an EngineError from an existing error.
// The error's message becomes the EngineError message.
func Wrap(code string, err error) *EngineError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error. Config errors are
// fatal for the current build/search call and must never be defaulted away.
func ConfigError(message string, cause error) *EngineError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ConfigErrorf creates a configuration error with a formatted message.
func ConfigErrorf(format string, args ...any) *EngineError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf(format, args...), nil)
}

// CorruptIndex creates an index corruption error. The caller must rebuild.
func CorruptIndex(message string, cause error) *EngineError {
	return New(ErrCodeCorruptIndex, message, cause)
}

// RerankUnavailable creates the recoverable rerank degradation signal.
func RerankUnavailable(cause error) *EngineError {
	msg := "cross-encoder unavailable, keeping retrieval order"
	return New(ErrCodeRerankUnavailable, msg, cause)
}

// IsConfigError reports whether err carries a config-category code.
func IsConfigError(err error) bool {
	if ee, ok := err.(*EngineError); ok {
		return ee.Category == CategoryConfig
	}
	return false
}

// IsRecoverable checks if an error is recoverable.
// Returns true if the error is an EngineError with Recoverable flag set.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if ee, ok := err.(*EngineError); ok {
		return ee.Recoverable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ee, ok := err.(*EngineError); ok {
		return ee.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an EngineError.
// Returns empty string if not an EngineError.
func GetCode(err error) string {
	if ee, ok := err.(*EngineError); ok {
		return ee.Code
	}
	return ""
}
