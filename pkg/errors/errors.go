// Package errors provides structured error types for pget.
//
// This package defines error codes and types that enable:
//   - Distinct user-facing messages for each failure category
//   - Machine-readable error codes for programmatic handling
//   - Distinct process exit codes per category
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures
//   - *_NOT_FOUND: Resource not found
//   - NETWORK_*, TIMEOUT, RETRIES_EXHAUSTED: Registry transport failures
//   - UNRESOLVABLE, VERSION_CONFLICT: Resolution failures
//   - INTERNAL_*: Unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeUnresolvable, "no version of %s satisfies %s", name, rng)
//	if errors.Is(err, errors.ErrCodeUnresolvable) {
//	    // Handle resolution failure
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeNetwork, origErr, "failed to fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidPackage  Code = "INVALID_PACKAGE"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeInvalidPath     Code = "INVALID_PATH"

	// Resource not found errors
	ErrCodePackageNotFound  Code = "PACKAGE_NOT_FOUND"
	ErrCodeManifestNotFound Code = "MANIFEST_NOT_FOUND"

	// Network errors
	ErrCodeNetwork          Code = "NETWORK_ERROR"
	ErrCodeTimeout          Code = "TIMEOUT"
	ErrCodeRetriesExhausted Code = "RETRIES_EXHAUSTED"

	// Resolution errors
	ErrCodeUnresolvable    Code = "UNRESOLVABLE"
	ErrCodeVersionConflict Code = "VERSION_CONFLICT"

	// Installation errors
	ErrCodeChecksumMismatch Code = "CHECKSUM_MISMATCH"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether any *Error in err's chain has the given code.
// A RETRIES_EXHAUSTED error caused by a TIMEOUT matches both codes.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Exit codes returned by the pget binary.
const (
	ExitFailure      = 1
	ExitNotFound     = 2
	ExitConflict     = 3
	ExitNetwork      = 4
	ExitUnresolvable = 5
)

// ExitCode maps an error to the process exit code for its category.
// Returns 0 for a nil error.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case Is(err, ErrCodePackageNotFound):
		return ExitNotFound
	case Is(err, ErrCodeVersionConflict):
		return ExitConflict
	case Is(err, ErrCodeRetriesExhausted), Is(err, ErrCodeNetwork), Is(err, ErrCodeTimeout):
		return ExitNetwork
	case Is(err, ErrCodeUnresolvable):
		return ExitUnresolvable
	default:
		return ExitFailure
	}
}
