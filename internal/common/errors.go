// Package common defines the error taxonomy shared by the services, the HTTP
// layer and the client. Callers should match with errors.Is / errors.As.
package common

import (
	"errors"
	"fmt"
)

var (
	// 400
	ErrValidation = errors.New("validation error")

	// 401
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidCredentials     = errors.New("invalid credentials")

	// 403
	ErrInvalidToken = errors.New("invalid token")
	ErrAccessDenied = errors.New("access denied")

	// 404
	ErrNotFound = errors.New("not found")
)

// ValidationError carries the first schema violation of a payload. Field is
// "_id" when the offending value is a path identifier.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// InvalidIDError is returned for malformed path identifiers.
func InvalidIDError(id string) *ValidationError {
	return NewValidationError("_id", "%q is not a valid 24 character hex id", id)
}

// ConflictError reports a uniqueness violation on Field of Entity.
type ConflictError struct {
	Entity string
	Field  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with this %s already exists", e.Entity, e.Field)
}

// NotFoundError names the missing entity, e.g. "Channel" or "Recipient".
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string { return e.Entity + " not found" }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
