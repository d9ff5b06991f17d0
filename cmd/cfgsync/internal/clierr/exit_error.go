// SPDX-License-Identifier: AGPL-3.0-or-later

// Package clierr carries process exit codes through returned errors.
package clierr

import (
	"errors"
	"fmt"
)

// Exit codes of the cfgsync CLI.
const (
	// ExitWarnings: warnings were found and --strict was given.
	ExitWarnings = 1
	// ExitFailures: compliance errors were found or repositories failed.
	ExitFailures = 2
	// ExitCannotStart: bad flags, bad configuration or an unreachable dependency.
	ExitCannotStart = 3
)

type ExitCoder interface {
	error
	ExitCode() int
}

// ExitError is an error that carries an explicit process exit code.
// It supports wrapping via Unwrap so errors.Is/As work as expected.
type ExitError struct {
	code  int
	msg   string
	cause error
}

func (e *ExitError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %v", e.msg, e.cause)
}

func (e *ExitError) ExitCode() int { return e.code }

// Unwrap enables errors.Is/As to traverse the underlying cause.
func (e *ExitError) Unwrap() error { return e.cause }

// New creates an ExitError with a message.
func New(code int, msg string) error {
	return &ExitError{code: normalize(code), msg: msg}
}

// Wrap creates an ExitError that wraps an underlying cause.
func Wrap(code int, msg string, cause error) error {
	if cause == nil {
		return New(code, msg)
	}
	return &ExitError{code: normalize(code), msg: msg, cause: cause}
}

// Newf is a formatted variant.
func Newf(code int, format string, args ...any) error {
	return &ExitError{code: normalize(code), msg: fmt.Sprintf(format, args...)}
}

// Wrapf is a formatted variant that wraps.
func Wrapf(code int, cause error, format string, args ...any) error {
	return Wrap(code, fmt.Sprintf(format, args...), cause)
}

// CannotStart wraps an input error detected before any repository was processed.
func CannotStart(cause error) error {
	if cause == nil {
		return nil
	}
	var ec ExitCoder
	if errors.As(cause, &ec) {
		return cause
	}
	return &ExitError{code: ExitCannotStart, msg: "cannot start", cause: cause}
}

// ExitCodeOf extracts an exit code from any error. Errors without one are
// usage errors raised by cobra before a command ran, hence ExitCannotStart.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var ec ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return ExitCannotStart
}

func normalize(code int) int {
	// Exit code 0 means success; errors should never be 0.
	if code <= 0 {
		return 1
	}
	return code
}
