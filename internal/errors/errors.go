// Package errors provides the structured error type used across the build
// pipeline, classified by kind so HTTP adapters and callers can react without
// string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline error.
type Kind string

const (
	// KindNotFound means a referenced entity is absent.
	KindNotFound Kind = "not_found"

	// KindForbidden means the principal is authenticated but not authorized,
	// including build token mismatch.
	KindForbidden Kind = "forbidden"

	// KindInvalidTransition means a terminal build was asked to transition again.
	KindInvalidTransition Kind = "invalid_transition"

	// KindValidation means the request itself was malformed.
	KindValidation Kind = "validation"

	// KindUpstream means the upstream commit-status API could not be reached
	// after exhausting retries. Logged, never escalated to the worker.
	KindUpstream Kind = "upstream"

	// KindNotify means a real-time publish failed. Logged, never escalated.
	KindNotify Kind = "notify"

	// KindInternal covers everything else.
	KindInternal Kind = "internal"
)

// Error is a kind-classified error with an optional wrapped cause and
// structured context fields.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithContext attaches a context field to the error and returns it.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates a new Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new Error of the given kind wrapping a cause.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: err}
}

// NotFound creates a KindNotFound error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Forbidden creates a KindForbidden error.
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// InvalidTransition creates a KindInvalidTransition error.
func InvalidTransition(message string) *Error { return New(KindInvalidTransition, message) }

// Validation creates a KindValidation error.
func Validation(message string) *Error { return New(KindValidation, message) }

// GetKind extracts the kind from an error, unwrapping as needed.
// Non-pipeline errors report KindInternal.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// HTTPStatus maps an error to the status code its kind implies.
func HTTPStatus(err error) int {
	switch GetKind(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation, KindInvalidTransition:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
