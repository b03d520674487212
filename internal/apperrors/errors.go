// Package apperrors defines the error taxonomy shared by services and HTTP handlers.
package apperrors

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the request boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindAuthentication
	KindForbidden
	KindNotFound
	KindRateLimited
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindConflict:
		return "CONFLICT"
	case KindAuthentication:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindRateLimited:
		return "RATE_LIMITED"
	case KindConfiguration:
		return "CONFIGURATION_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// StatusCode returns the HTTP status a Kind is rendered with.
// Conflicts use 400 because POST /auth/register documents a single 400 for
// both missing fields and an already registered email.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error carrying a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind and message so that sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a cause that is logged but never shown to clients.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error { return New(KindValidation, message) }
func Conflict(message string) *Error { return New(KindConflict, message) }
func Unauthorized(message string) *Error { return New(KindAuthentication, message) }
func Forbidden(message string) *Error { return New(KindForbidden, message) }
func NotFound(message string) *Error { return New(KindNotFound, message) }
func Configuration(message string) *Error { return New(KindConfiguration, message) }
func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// Sentinels used across the auth boundary.
var (
	ErrUserExists         = Conflict("User already exists")
	ErrInvalidCredentials = Unauthorized("Invalid credentials")
	ErrNoToken            = Unauthorized("No token provided")
	ErrInvalidTokenFormat = Unauthorized("Invalid token format")
	ErrInvalidToken       = Unauthorized("Invalid token")
	ErrUserNotFound       = NotFound("User not found")
	ErrMissingSecret      = Configuration("JWT secret is not configured")
	ErrTooManyRequests    = New(KindRateLimited, "Too many requests")
)

// KindOf reports the Kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
