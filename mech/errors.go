package mech

import (
	"errors"
	"fmt"
)

// ErrorCode classifies mechanism failures so callers can branch on the reason
// without parsing messages.
type ErrorCode string

const (
	// StorageDisabled means the backend is inaccessible or rejects every write.
	StorageDisabled ErrorCode = "STORAGE_DISABLED"
	// QuotaExceeded means a write was rejected by a non-empty backend that has
	// run out of room.
	QuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
	// InvalidValue means a stored value is not a string (not valid UTF-8).
	InvalidValue ErrorCode = "INVALID_VALUE"
)

// Error is a mechanism failure carrying a stable code, a message, and an
// optional underlying cause.
type Error struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error converts the failure into a human-readable string.
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is matches any *Error with the same code, so errors.Is(err, NewError(code, ""))
// tests the code alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewError builds an Error from a code and a formatted message.
func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code and a formatted message to an underlying cause.
// It returns nil for a nil cause.
func WrapError(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// CodeOf extracts the ErrorCode from err, or "" if err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
