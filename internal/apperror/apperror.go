// Package apperror defines the typed errors raised by services and the
// status codes they map to at the HTTP boundary. Handlers never build error
// bodies by hand; they return one of these and the echo error handler renders
// it.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for translation into an HTTP response.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindAuthentication Kind = "unauthorized"
	KindAuthorization  Kind = "forbidden"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindInternal       Kind = "internal_error"
)

// Required names the permission a request was missing.
type Required struct {
	Action  string `json:"action"`
	Subject string `json:"subject"`
}

// Error is the single error type crossing the service/handler boundary.
// Cause is logged server-side and never serialized.
type Error struct {
	Kind     Kind
	Message  string
	Fields   map[string]string
	Required *Required
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Status returns the HTTP status for the error kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON payload written for an error. Internal errors always
// carry a generic message.
func (e *Error) Body() map[string]any {
	msg := e.Message
	if e.Kind == KindInternal {
		msg = "internal server error"
	}
	body := map[string]any{"error": string(e.Kind), "message": msg}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	if e.Required != nil {
		body["required"] = e.Required
	}
	return body
}

func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// Field is shorthand for a validation error on a single input field.
func Field(name, msg string) *Error {
	return Validation("validation failed", map[string]string{name: msg})
}

func Unauthenticated(msg string) *Error {
	if msg == "" {
		msg = "Unauthorized"
	}
	return &Error{Kind: KindAuthentication, Message: msg}
}

func Forbidden(action, subject string) *Error {
	return &Error{
		Kind:     KindAuthorization,
		Message:  "Forbidden",
		Required: &Required{Action: action, Subject: subject},
	}
}

func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Internal wraps an unexpected failure. op describes what was being done and
// ends up in the server log only.
func Internal(op string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: op, Cause: cause}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}
