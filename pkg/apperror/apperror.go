// Package apperror defines the error taxonomy surfaced by the API:
// authentication, authorization, validation, conflict, domain-state and
// infra errors, each carrying the HTTP status it maps to.
package apperror

import (
	"errors"
	"net/http"
)

// FieldError tags a validation message with the offending field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a status-carrying application error. Handlers never map statuses
// themselves; response.Fail inspects the error and writes the envelope.
type Error struct {
	Status  int
	Message string
	Fields  []FieldError
}

func (e *Error) Error() string { return e.Message }

// As extracts an *Error from err, nil if err is not one.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// BadRequest is a domain-rule or malformed-input error.
func BadRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message}
}

// Unauthorized covers invalid credentials and invalid/expired/revoked tokens.
// Messages stay generic and never reveal whether a username exists.
func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Message: message}
}

// Forbidden covers role and ownership mismatches.
func Forbidden(message string) *Error {
	return &Error{Status: http.StatusForbidden, Message: message}
}

// NotFound names the missing resource.
func NotFound(resource string) *Error {
	return &Error{Status: http.StatusNotFound, Message: resource + " no encontrado"}
}

// Conflict names the colliding field (duplicate username, DNI, plate...).
func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Message: message}
}

// Locked is the lockout rejection (too many failed logins).
func Locked(message string) *Error {
	return &Error{Status: http.StatusTooManyRequests, Message: message}
}

// Validation carries itemized, field-tagged messages.
func Validation(fields ...FieldError) *Error {
	return &Error{
		Status:  http.StatusUnprocessableEntity,
		Message: "Errores de validación",
		Fields:  fields,
	}
}
