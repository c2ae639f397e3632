// Package apperr defines the error taxonomy shared by the socket and REST
// entry points.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the client-facing boundary.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindValidation
	KindNotFound
	KindRateLimited
	KindConflict
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified error. Message is safe to show to clients; Err is the
// underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same kind and code. A
// target with an empty code matches any code of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// New creates a classified error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap creates a classified error carrying a cause.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Authentication returns a KindAuthentication error.
func Authentication(message string) *Error {
	return New(KindAuthentication, "UNAUTHENTICATED", message)
}

// Forbidden returns a KindAuthorization error.
func Forbidden(code, message string) *Error {
	return New(KindAuthorization, code, message)
}

// Invalid returns a KindValidation error.
func Invalid(code, message string) *Error {
	return New(KindValidation, code, message)
}

// NotFound returns a KindNotFound error.
func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

// Conflict returns a KindConflict error.
func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

// RateLimited returns the generic rate limit error.
func RateLimited() *Error {
	return New(KindRateLimited, "RATE_LIMITED", "rate limit exceeded, please slow down")
}

// Internal wraps an unexpected error. The cause never reaches the client.
func Internal(err error) *Error {
	return Wrap(KindInternal, "INTERNAL", "internal error", err)
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// From returns err as an *Error, classifying unknown errors as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// HTTPStatus maps err to an HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
