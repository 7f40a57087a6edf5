// Package apperr defines the platform's stable, transport-agnostic error
// kinds and their HTTP mapping. Services classify failures with these kinds
// and the HTTP layer renders them into the JSON error envelope.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of failure. The set is closed.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
	KindValidation
	KindCrypto
	KindSchema // unknown table or column
	KindDenied // SQL denylist match
	KindTimeout
	KindUpstreamObjectStore
	KindUpstreamDatabase
)

// Code returns the stable machine-readable code for the error envelope.
func (k Kind) Code() string {
	switch k {
	case KindBadRequest, KindSchema, KindTimeout, KindUpstreamDatabase:
		return "BAD_REQUEST"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindForbidden, KindDenied:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case KindValidation:
		return "VALIDATION_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// StatusCode returns the HTTP status a kind maps onto.
func (k Kind) StatusCode() int {
	switch k {
	case KindBadRequest, KindSchema, KindTimeout, KindUpstreamDatabase, KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden, KindDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a kind, a client-facing message, and optional details.
type Error struct {
	Kind    Kind
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a classed error. The cause is logged server-side
// but never echoed to the client.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails attaches structured details rendered in the envelope.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// From extracts an *Error from err, or classifies it as internal.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: KindInternal, Message: "internal server error", cause: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}
