// Package errors provides coded domain errors shared by the listing editor.
//
// Usage:
//
//	// Remote failures carry the NETWORK code and wrap the cause.
//	if resp.StatusCode >= 400 {
//	    return errors.Networkf("PUT %s: status %d", path, resp.StatusCode).WithCause(err)
//	}
//
//	// Callers check with errors.Is against the sentinels.
//	if errors.Is(err, errors.ErrNotFound) {
//	    // treat an absent tag category as empty
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
	New  = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the editor.
const (
	CodeNotFound   Code = "NOT_FOUND"
	CodeNetwork    Code = "NETWORK"
	CodeValidation Code = "VALIDATION"
	CodeInternal   Code = "INTERNAL"
)

// FromStatus maps an HTTP status returned by the listing backend to a code.
// Any non-2xx answer from a remote resource is a network failure from the
// editor's point of view, including 404.
func FromStatus(status int) Code {
	switch {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		return ""
	case status == 0:
		return CodeInternal
	default:
		return CodeNetwork
	}
}

// CodeOf returns the code of the first coded error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ExitStatus maps err to a process exit status: 0 for nil, 2 for invalid
// input and 1 otherwise.
func ExitStatus(err error) int {
	switch {
	case err == nil:
		return 0
	case CodeOf(err) == CodeValidation:
		return 2
	default:
		return 1
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound   = &Error{Code: CodeNotFound, Message: "not found"}
	ErrNetwork    = &Error{Code: CodeNetwork, Message: "network error"}
	ErrValidation = &Error{Code: CodeValidation, Message: "validation error"}
	ErrInternal   = &Error{Code: CodeInternal, Message: "internal error"}
)

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Networkf creates a network error with formatted message.
func Networkf(format string, args ...any) *Error {
	return &Error{Code: CodeNetwork, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
