// Package apperr defines the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the caller is authenticated but lacks access.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates a uniqueness or state conflict.
	ErrConflict = errors.New("conflict")
	// ErrAuthenticationRequired indicates no valid session is present.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrInvalidCredentials indicates an email/password pair did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError reports per-field input problems detected before persistence.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an empty ValidationError ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

// Add records a message for a field. The first message per field wins.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, exists := e.Fields[field]; exists {
		return
	}
	e.Fields[field] = message
}

// Empty reports whether no field errors were recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// OrNil returns e when it has field errors and nil otherwise.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	if e.Empty() {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, ", ")
}

// AsValidation extracts a ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
