// Package apperr defines errors annotated with an HTTP status so service
// code can report client mistakes without knowing about the transport.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an error carrying an HTTP status, an optional machine-readable
// name (e.g. "ValidationError") and a human-readable message.
type Error struct {
	Status  int
	Name    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an *Error with the given status and message.
func New(status int, name, message string) *Error {
	return &Error{Status: status, Name: name, Message: message}
}

// BadRequest returns a 400 error with a formatted message.
func BadRequest(format string, args ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Validation returns a 400 "ValidationError".
func Validation(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Name: "ValidationError", Message: message}
}

// NotFound returns a 404 error with a formatted message.
func NotFound(format string, args ...any) *Error {
	return &Error{Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with status and message.
func Wrap(err error, status int, message string) *Error {
	return &Error{Status: status, Message: message, Err: err}
}

// Internal wraps an unexpected err as a 500 whose message does not leak
// err to clients.
func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "An internal server error occurred", Err: err}
}

// StatusOf returns the status carried by err, or 500 when err is not an
// *Error.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// IsStatus reports whether err carries the given status.
func IsStatus(err error, status int) bool {
	return err != nil && StatusOf(err) == status
}
