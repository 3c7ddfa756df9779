package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every typed error below matches exactly one of these with errors.Is.
var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrUnauthorizedTransition = errors.New("role not allowed for transition")
	ErrConflict               = errors.New("conflicting concurrent update")
	ErrExternalService        = errors.New("external service failure")
	ErrNotFound               = errors.New("not found")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Validation(field, reason string) error { return &ValidationError{Field: field, Reason: reason} }

type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

type UnauthorizedTransitionError struct {
	Role string
	From string
	To   string
}

func (e *UnauthorizedTransitionError) Error() string {
	return fmt.Sprintf("role %q may not move a proposal from %s to %s", e.Role, e.From, e.To)
}

func (e *UnauthorizedTransitionError) Is(target error) bool {
	return target == ErrUnauthorizedTransition
}

type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Resource, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func Conflict(resource, reason string) error { return &ConflictError{Resource: resource, Reason: reason} }

// ExternalServiceError wraps a failure of a collaborator (document engine,
// e-signature, bank, blob storage). It never implies a rollback of committed state.
type ExternalServiceError struct {
	Service   string
	Operation string
	Err       error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Operation, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func (e *ExternalServiceError) Is(target error) bool { return target == ErrExternalService }

func External(service, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalServiceError{Service: service, Operation: op, Err: err}
}

// Joined collects per-item failures of a batch, keeping partial successes visible.
func Joined(service, op string, failures []error) error {
	if len(failures) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(failures))
	for _, f := range failures {
		msgs = append(msgs, f.Error())
	}
	return &ExternalServiceError{
		Service:   service,
		Operation: op,
		Err:       fmt.Errorf("%d item(s) failed: %s: %w", len(failures), strings.Join(msgs, "; "), errors.Join(failures...)),
	}
}
