// Package apperrors defines the error taxonomy of the tracking core. Every
// error that crosses the core boundary is one of these kinds; transport layers
// map kinds to status codes without inspecting messages.
package apperrors

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindNotFound
	KindInvalidGPX
	KindStoreUnavailable
	KindConflict
	KindDeadline
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindInvalidGPX:
		return "invalid_gpx"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindConflict:
		return "conflict"
	case KindDeadline:
		return "deadline"
	default:
		return "unknown"
	}
}

// Error carries a kind plus an optional wrapped cause.
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

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying cause. A nil cause returns nil.
func Wrap(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from any error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Convenience constructors matching the taxonomy in the service contracts.

func InvalidInput(format string, args ...interface{}) *Error {
	return New(KindInvalidInput, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func InvalidGPX(format string, args ...interface{}) *Error {
	return New(KindInvalidGPX, format, args...)
}

func StoreUnavailable(err error, format string, args ...interface{}) error {
	return Wrap(KindStoreUnavailable, err, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}
