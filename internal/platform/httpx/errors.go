// Package httpx provides the error taxonomy and JSON response helpers.
package httpx

import (
	"errors"
	"net/http"
)

// Error names surfaced in the error envelope.
const (
	NameBadRequest = "BadRequestError"
	NameForbidden  = "ForbiddenError"
)

// Default messages used when callers do not supply one.
const (
	MessageBadRequest = "Invalid Request"
	MessageForbidden  = "Your account doesn't have enough priviledge to perform this action"
	MessageNotFound   = "This resource doesn't exist or is disabled or you dont have access to it"
	MessageInternal   = "Internal Server Error"
)

// Error is a request failure that knows how to describe itself to the caller.
type Error struct {
	Status      int
	Name        string
	Message     string
	Validations map[string]string
}

func (e *Error) Error() string {
	return e.Message
}

// BadRequest reports malformed or missing input. validations may be nil.
func BadRequest(message string, validations map[string]string) *Error {
	if message == "" {
		message = MessageBadRequest
	}
	return &Error{Status: http.StatusBadRequest, Name: NameBadRequest, Message: message, Validations: validations}
}

// Forbidden reports a failed permission or security check. The 401 status is
// what the dashboard client keys on, so it stays 401 for authenticated callers too.
func Forbidden(message string) *Error {
	if message == "" {
		message = MessageForbidden
	}
	return &Error{Status: http.StatusUnauthorized, Name: NameForbidden, Message: message}
}

// NotFound reports a missing resource. Disabled and inaccessible resources use
// the same error so their existence does not leak.
func NotFound(message string) *Error {
	if message == "" {
		message = MessageNotFound
	}
	return &Error{Status: http.StatusNotFound, Name: NameBadRequest, Message: message}
}

// MethodNotAllowed reports an HTTP method the route does not serve.
func MethodNotAllowed(method string) *Error {
	return &Error{Status: http.StatusMethodNotAllowed, Name: NameBadRequest, Message: "Method " + method + " Not Allowed"}
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsForbidden reports whether err is a ForbiddenError.
func IsForbidden(err error) bool {
	e, ok := AsError(err)
	return ok && e.Name == NameForbidden
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	e, ok := AsError(err)
	return ok && e.Status == http.StatusNotFound
}
