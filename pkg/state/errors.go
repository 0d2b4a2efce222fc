package state

import "fmt"

// ValidationError reports malformed user input: dice text, character
// details, out-of-range choice indexes. It is user-visible and never
// accompanies a state mutation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError formats a user-visible validation error.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing session, player or entity.
type NotFoundError struct {
	What string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.ID)
}

// StaleActionError rejects a task whose actor or phase no longer matches
// the freshly loaded session state. It is distinct from NotFoundError so
// clients can resynchronize instead of retrying.
type StaleActionError struct {
	Reason string
}

func (e *StaleActionError) Error() string {
	return fmt.Sprintf("stale action: %s", e.Reason)
}

// ExternalServiceError wraps a narrator, classifier or memory failure.
// The task level treats it as retryable.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// NewExternalServiceError tags an error with its originating service.
func NewExternalServiceError(service string, err error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Err: err}
}

// NewInvariantError formats an invariant violation.
func NewInvariantError(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

// InvariantError reports corrupted session state: an unrecognized phase or
// inconsistent initiative data. Fatal for the current task only.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("state invariant violated: %s", e.Msg)
}
