// Package apperr defines the transport-agnostic error taxonomy used by
// every business and store layer in the messaging core (spec.md §7).
// Services return *Error values; the Gateway and HTTP mount are the
// only places that translate a Kind into a status code or client event.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is one of the fixed error categories from spec.md §7.
type Kind string

const (
	KindInvalidInput           Kind = "invalid-input"
	KindUnauthenticated        Kind = "unauthenticated"
	KindForbidden              Kind = "forbidden"
	KindNotFound               Kind = "not-found"
	KindConflict               Kind = "conflict"
	KindTooLarge               Kind = "too-large"
	KindRateLimited            Kind = "rate-limited"
	KindDependencyUnavailable  Kind = "dependency-unavailable"
	KindInternal               Kind = "internal"
)

// Error is a typed application error carrying a Kind, a human-readable
// message, an optional field name (for invalid-input), and an optional
// retry-after for rate-limited errors.
type Error struct {
	Kind       Kind
	Message    string
	Field      string
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target shares the same Kind, so callers can do
// errors.Is(err, apperr.NotFound("")) style checks against a sentinel.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func new_(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func InvalidInput(field, msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg, Field: field}
}

func Unauthenticated(msg string) *Error { return new_(KindUnauthenticated, msg) }

func Forbidden(msg string) *Error { return new_(KindForbidden, msg) }

func NotFound(msg string) *Error { return new_(KindNotFound, msg) }

func Conflict(msg string) *Error { return new_(KindConflict, msg) }

func TooLarge(msg string) *Error { return new_(KindTooLarge, msg) }

func RateLimited(msg string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: msg, RetryAfter: retryAfter}
}

func DependencyUnavailable(msg string, cause error) *Error {
	return &Error{Kind: KindDependencyUnavailable, Message: msg, cause: cause}
}

func Internal(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, cause: cause}
}

// Wrap annotates cause with an Internal kind unless cause already carries
// a Kind, in which case that Kind is preserved.
func Wrap(cause error, msg string) *Error {
	var existing *Error
	if errors.As(cause, &existing) {
		return &Error{Kind: existing.Kind, Message: msg + ": " + existing.Message, Field: existing.Field, RetryAfter: existing.RetryAfter, cause: cause}
	}
	return Internal(msg, cause)
}

// KindOf extracts the Kind of err, defaulting to KindInternal for
// errors that never went through this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
