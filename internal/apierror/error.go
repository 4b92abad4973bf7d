// Package apierror gives every component a single way to fail: a small
// exported error-kind enum plus a wrapping Error type, so the REST
// dispatcher in internal/handlers can map any failure onto an HTTP status
// without each handler re-deriving what kind of problem it's looking at.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why an operation failed. It is deliberately small --
// just enough to drive the REST dispatcher's status mapping, not a full
// catalogue of every failure mode the original C++ exception hierarchy
// distinguished.
type Kind int

const (
	InternalError Kind = iota
	BadRequest
	BadSequenceOfCalls
	ParameterOutOfRange
	InexistentItem
	Database
	NotImplemented
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "BadRequest"
	case BadSequenceOfCalls:
		return "BadSequenceOfCalls"
	case ParameterOutOfRange:
		return "ParameterOutOfRange"
	case InexistentItem:
		return "InexistentItem"
	case Database:
		return "Database"
	case NotImplemented:
		return "NotImplemented"
	case Unavailable:
		return "Unavailable"
	default:
		return "InternalError"
	}
}

// StatusCode maps a Kind onto the HTTP status the REST dispatcher answers
// with.
func (k Kind) StatusCode() int {
	switch k {
	case BadRequest, BadSequenceOfCalls, ParameterOutOfRange:
		return http.StatusBadRequest
	case InexistentItem:
		return http.StatusNotFound
	case NotImplemented:
		return http.StatusNotImplemented
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error wraps an underlying error with the Kind that should drive its
// HTTP treatment. Every component that can fail returns one of these
// rather than panicking.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error of the given kind, wrapping err (which may be nil).
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Errorf builds an *Error of the given kind from a format string, with no
// wrapped error.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// As extracts an *Error from err, if any wraps one. Handlers use this to
// recover the Kind a lower layer assigned, falling back to InternalError
// for an error that never went through this package.
func As(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
