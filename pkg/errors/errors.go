// Package errors holds the typed errors shared by the collaboration
// packages. Each carries a code so the sync server and the session UI can
// react to the kind of failure without matching on strings.
package errors

import "fmt"

// Error is implemented by every typed error in this package.
type Error interface {
	error
	Code() string
	Message() string
	Unwrap() error
}

type coded struct {
	code    string
	message string
	cause   error
}

func (e *coded) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *coded) Code() string    { return e.code }
func (e *coded) Message() string { return e.message }
func (e *coded) Unwrap() error   { return e.cause }

// ValidationError rejects bad input: a field id, a port, a config value.
type ValidationError struct {
	*coded
	Field string
	Value any
}

func NewValidationError(field, message string, value any) *ValidationError {
	return &ValidationError{
		coded: &coded{code: CodeValidation, message: message},
		Field: field,
		Value: value,
	}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.message)
}

// NotFoundError reports a missing lock, profile or document.
type NotFoundError struct {
	*coded
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	msg := resource + " not found"
	if id != "" {
		msg = fmt.Sprintf("%s %q not found", resource, id)
	}
	return &NotFoundError{
		coded:    &coded{code: CodeNotFound, message: msg},
		Resource: resource,
		ID:       id,
	}
}

// ConflictError reports a clash with existing state, e.g. a second host on
// the network or a build already running.
type ConflictError struct {
	*coded
	Resource string
	Holder   string
}

// NewConflictError describes resource as already taken by holder. holder may
// be empty.
func NewConflictError(resource, holder string) *ConflictError {
	msg := resource + " is already active"
	if holder != "" {
		msg = fmt.Sprintf("%s is already held by %s", resource, holder)
	}
	return &ConflictError{
		coded:    &coded{code: CodeConflict, message: msg},
		Resource: resource,
		Holder:   holder,
	}
}

// WithMessage replaces the generated message with one meant for the user.
func (e *ConflictError) WithMessage(message string) *ConflictError {
	e.message = message
	return e
}

// ServiceError reports that a peer (usually the Host) could not be reached
// or failed mid-operation.
type ServiceError struct {
	*coded
	Service string
}

func NewServiceError(service, message string, cause error) *ServiceError {
	if message == "" {
		message = service + " unavailable"
	}
	return &ServiceError{
		coded:   &coded{code: CodeUnavailable, message: message, cause: cause},
		Service: service,
	}
}

// TimeoutError reports an operation that ran out of time.
type TimeoutError struct {
	*coded
	Operation string
	After     string
}

func NewTimeoutError(operation, after string) *TimeoutError {
	msg := operation + " timed out"
	if after != "" {
		msg += " after " + after
	}
	return &TimeoutError{
		coded:     &coded{code: CodeTimeout, message: msg},
		Operation: operation,
		After:     after,
	}
}
