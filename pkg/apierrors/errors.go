// Package apierrors defines the error taxonomy shared by the MCP and HTTP
// transports. Every component-level error is translated to one of these
// kinds at its boundary; transports then map kinds to wire formats without
// needing to know the originating component.
package apierrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport-level handling.
type Kind string

const (
	// KindInvalidArgument indicates malformed or missing caller input.
	KindInvalidArgument Kind = "invalid_argument"
	// KindNotFound indicates the referenced entity does not exist.
	KindNotFound Kind = "not_found"
	// KindConflict indicates a uniqueness or state conflict.
	KindConflict Kind = "conflict"
	// KindBackendUnavailable indicates a durable dependency (database) is unreachable.
	KindBackendUnavailable Kind = "backend_unavailable"
	// KindServiceDegraded indicates a non-durable dependency (embedder, vector
	// index) is unavailable and the operation proceeded in reduced capacity.
	KindServiceDegraded Kind = "service_degraded"
	// KindInvalidTransition indicates an illegal state machine transition.
	KindInvalidTransition Kind = "invalid_transition"
	// KindInternal indicates an unexpected failure with no more specific kind.
	KindInternal Kind = "internal"
)

// Error is the structured error type returned by every component boundary.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	cause   error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to see the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind, preserving cause for errors.Is/As.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Detail: causeDetail(cause), cause: cause}
}

func causeDetail(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

// InvalidArgument builds a KindInvalidArgument error.
func InvalidArgument(message string) *Error { return New(KindInvalidArgument, message) }

// NotFound builds a KindNotFound error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Conflict builds a KindConflict error.
func Conflict(message string) *Error { return New(KindConflict, message) }

// BackendUnavailable builds a KindBackendUnavailable error.
func BackendUnavailable(message string, cause error) *Error {
	return Wrap(KindBackendUnavailable, message, cause)
}

// ServiceDegraded builds a KindServiceDegraded error.
func ServiceDegraded(message string, cause error) *Error {
	return Wrap(KindServiceDegraded, message, cause)
}

// InvalidTransition builds a KindInvalidTransition error.
func InvalidTransition(message string) *Error { return New(KindInvalidTransition, message) }

// Internal builds a KindInternal error.
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err is
// not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
