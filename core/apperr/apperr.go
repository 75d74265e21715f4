// Package apperr defines the failure kinds surfaced to API callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure. The zero value is Internal.
type Kind string

const (
	Internal             Kind = "InternalError"
	NotFound             Kind = "NotFound"
	Unauthorized         Kind = "Unauthorized"
	Forbidden            Kind = "Forbidden"
	BadRequest           Kind = "BadRequest"
	PayloadTooLarge      Kind = "PayloadTooLarge"
	InvalidSource        Kind = "InvalidSource"
	UnsupportedFormat    Kind = "UnsupportedFormat"
	FetchFailed          Kind = "FetchFailed"
	AudioProcessingError Kind = "AudioProcessingError"
	AssetUnreadable      Kind = "AssetUnreadable"
	CorruptCatalog       Kind = "CorruptCatalog"
)

// Error lets a Kind be used directly as an errors.Is target:
//
//	errors.Is(err, apperr.NotFound)
func (k Kind) Error() string { return string(k) }

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case BadRequest, InvalidSource, UnsupportedFormat:
		return http.StatusBadRequest
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed failure carrying a caller-facing message and an optional cause.
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

// Is matches a bare Kind target.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New creates an Error without a cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around cause. A nil cause still yields an Error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Internal
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}
