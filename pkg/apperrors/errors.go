// Package apperrors defines the single structured error type used across
// AutomatosX's core packages, plus the code-family ranges every component
// draws from. Components construct errors with New/Newf and add context with
// WithContext/WithSuggestions rather than wrapping ad-hoc fmt.Errorf chains,
// so the JSON-RPC boundary can map any error back to a stable code without
// string sniffing.
package apperrors

import (
	"errors"
	"fmt"
)

// Code is a stable, numeric error identifier. Ranges are grouped by family;
// see the Family* constants below.
type Code int

const (
	// Configuration errors: 1000-1099.
	CodeConfigInvalid Code = 1000 + iota
	CodeConfigMissing
)

const (
	// Path / workspace errors: 1100-1199.
	CodePathTraversal Code = 1100 + iota
	CodePathOutsideRoot
	CodePathInvalid
	CodePathTooLarge
	CodePathSymlinkEscape
)

const (
	// Memory store errors: 1200-1299.
	CodeMemoryNotInitialized Code = 1200 + iota
	CodeMemoryDatabaseError
	CodeMemoryQueryError
	CodeMemoryImportError
	CodeMemoryExportError
	CodeMemoryNotFound
)

const (
	// Provider errors: 1300-1399.
	CodeProviderNotFound Code = 1300 + iota
	CodeProviderUnavailable
	CodeProviderTimeout
	CodeProviderRateLimit
	CodeProviderAuthError
	CodeProviderExecError
	CodeNoAvailableProviders
)

const (
	// Agent / profile / delegation / stage errors: 1400-1499.
	CodeAgentNotFound Code = 1400 + iota
	CodeAbilityNotFound
	CodeAgentExecutionFailed
	CodeDelegationNotConfigured
	CodeMaxDepthExceeded
	CodeCycleDetected
	CodeDelegationExecutionFailed
	CodeSessionNotFound
	CodeSessionNotActive
	CodeStageDependencyCycle
	CodeStageNotFound
	CodeCheckpointNotFound
)

const (
	// Validation errors: 1500-1599.
	CodeInvalidParams Code = 1500 + iota
	CodeInvalidAgentName
	CodeInvalidInput
)

const (
	// Filesystem errors: 1600-1699.
	CodeFilesystemError Code = 1600 + iota
)

const (
	// CLI/RPC surface errors: 1700-1799.
	CodeNotInitialized Code = 1700 + iota
	CodeToolNotFound
	CodeMethodNotFound
	CodeParseError
	CodeInternalError
)

// CodeUnknown is the catch-all for errors the core did not classify.
const CodeUnknown Code = 9999

// Family returns the human-readable family name for a code's range.
func (c Code) Family() string {
	switch {
	case c >= 1000 && c < 1100:
		return "configuration"
	case c >= 1100 && c < 1200:
		return "path"
	case c >= 1200 && c < 1300:
		return "memory"
	case c >= 1300 && c < 1400:
		return "provider"
	case c >= 1400 && c < 1500:
		return "agent"
	case c >= 1500 && c < 1600:
		return "validation"
	case c >= 1600 && c < 1700:
		return "filesystem"
	case c >= 1700 && c < 1800:
		return "cli"
	default:
		return "unknown"
	}
}

// Error is the single base error type used across the core. It carries a
// stable code, a user-visible message, optional remediation suggestions,
// optional structured context, and an isOperational flag distinguishing
// expected failure modes (bad input, unavailable backend) from bugs.
type Error struct {
	Code          Code
	Message       string
	Suggestions   []string
	Context       map[string]any
	IsOperational bool
	cause         error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates an operational Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, IsOperational: true}
}

// Newf creates an operational Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates an operational Error that records cause as its wrapped error.
// If cause is already an *Error, its code is preserved unless code is set
// explicitly to something other than CodeUnknown.
func Wrap(code Code, cause error, message string) *Error {
	if code == CodeUnknown {
		if inner, ok := As(cause); ok {
			code = inner.Code
		}
	}
	return &Error{Code: code, Message: message, IsOperational: true, cause: cause}
}

// WithSuggestions returns a copy of e with suggestions attached.
func (e *Error) WithSuggestions(suggestions ...string) *Error {
	clone := *e
	clone.Suggestions = append(append([]string{}, e.Suggestions...), suggestions...)
	return &clone
}

// WithContext returns a copy of e with a context key/value accreted. Existing
// keys are preserved; context never rewrites a prior key silently.
func (e *Error) WithContext(key string, value any) *Error {
	clone := *e
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	clone.Context = ctx
	return &clone
}

// NonOperational marks e as a bug/invariant violation rather than an expected
// failure; callers should log these unchanged rather than present them as
// user-facing remediation text.
func (e *Error) NonOperational() *Error {
	clone := *e
	clone.IsOperational = false
	return &clone
}

// As extracts an *Error from err, following the Unwrap chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the Code of err if it is (or wraps) an *Error, otherwise
// CodeUnknown.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeUnknown
}
