// Package errors provides custom error types for user-friendly error messaging.
//
// This package distinguishes between user-facing errors and technical errors,
// and carries the command outcome (success, warning, fatal) that main turns
// into the process exit code.
package errors

import (
	"errors"
	"fmt"
)

// Exit codes. Warning covers skipped families and forced bypasses; anything
// else that fails is fatal.
const (
	ExitSuccess = 0
	ExitFatal   = 1
	ExitWarning = 2
)

// UserError represents an error with a user-friendly message.
type UserError struct {
	// Message is the user-friendly error message displayed to users.
	Message string

	// Err is the underlying technical error, preserved for debugging
	// but hidden from normal output.
	Err error

	// Hint provides actionable guidance to help users resolve the issue.
	Hint string
}

// Error implements the error interface and returns the user-friendly message.
// If a hint is set, it appends the hint to the message on a new line.
func (e *UserError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s\n%s", e.Message, e.Hint)
	}
	return e.Message
}

// Unwrap returns the underlying technical error for error chain inspection.
func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a user-facing error with a message.
func NewUserError(message string) *UserError {
	return &UserError{Message: message}
}

// NewUserErrorWithHint creates a user-facing error with a message and
// actionable hint, such as a command example or an environment variable to
// set.
func NewUserErrorWithHint(message, hint string) *UserError {
	return &UserError{Message: message, Hint: hint}
}

// WrapUserError wraps a technical error with a user-friendly message.
func WrapUserError(message string, err error) *UserError {
	return &UserError{Message: message, Err: err}
}

// IsUserError checks whether an error chain contains a UserError.
func IsUserError(err error) (*UserError, bool) {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr, true
	}
	return nil, false
}

// WarningError marks a command result that completed but with degraded
// outcome: families skipped for version reasons, or a guard bypassed with
// --force. It maps to ExitWarning instead of ExitFatal.
type WarningError struct {
	Message string
}

func (e *WarningError) Error() string {
	return e.Message
}

// NewWarning creates a warning-class error.
func NewWarning(format string, args ...any) *WarningError {
	return &WarningError{Message: fmt.Sprintf(format, args...)}
}

// IsWarning reports whether the error chain contains a WarningError.
func IsWarning(err error) bool {
	var w *WarningError
	return errors.As(err, &w)
}

// ExitCode translates an error into the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case IsWarning(err):
		return ExitWarning
	default:
		return ExitFatal
	}
}
