package models

import "errors"

// Error kinds. Every error the service layers return to a handler wraps one
// of these so the boundary can pick a status code with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTooManyRequests = errors.New("too many requests")
	ErrValidation      = errors.New("validation failed")
)

// Error pairs a kind with the short message shown to the caller.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Kind }

func NotFound(msg string) error        { return &Error{Kind: ErrNotFound, Message: msg} }
func Conflict(msg string) error        { return &Error{Kind: ErrConflict, Message: msg} }
func Forbidden(msg string) error       { return &Error{Kind: ErrForbidden, Message: msg} }
func Unauthorized(msg string) error    { return &Error{Kind: ErrUnauthorized, Message: msg} }
func TooManyRequests(msg string) error { return &Error{Kind: ErrTooManyRequests, Message: msg} }
func Invalid(msg string) error         { return &Error{Kind: ErrValidation, Message: msg} }

// Message returns the public message of err, or fallback when err carries none.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
