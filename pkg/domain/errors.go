package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors are values passed across component boundaries. Handlers map
// them to HTTP statuses; services never panic on a failed precondition.

// ValidationError reports a single malformed or out-of-range input field.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ValidationErrors aggregates every violated constraint of a command input.
// Commands check all constraints and report all violations together.
type ValidationErrors struct {
	Violations []ValidationError `json:"violations"`
}

func (e *ValidationErrors) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

// Add records a violation. Returns the receiver for chaining in validators.
func (e *ValidationErrors) Add(field, reason string) *ValidationErrors {
	e.Violations = append(e.Violations, ValidationError{Field: field, Reason: reason})
	return e
}

// Empty reports whether no violation was recorded.
func (e *ValidationErrors) Empty() bool { return len(e.Violations) == 0 }

// AuthorizationError means the actor lacks the capability for a mutation.
type AuthorizationError struct {
	Capability string `json:"capability"`
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("missing capability %q", e.Capability)
}

// StateConflictError means the attempted transition is not valid from the
// entity's current state.
type StateConflictError struct {
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("state conflict: expected %s, actual %s", e.Expected, e.Actual)
}

// TransientSyncError wraps a connectivity failure during measurement sync.
// It is the only error kind retried automatically (on the next sync call).
type TransientSyncError struct {
	Cause error
}

func (e *TransientSyncError) Error() string {
	return fmt.Sprintf("transient sync failure: %v", e.Cause)
}

func (e *TransientSyncError) Unwrap() error { return e.Cause }

// Authentication failures (identity module).
var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrUnknownAccount    = errors.New("unknown account")
)

// Verification workflow preconditions.
var (
	ErrIncompleteEvidence    = errors.New("incomplete evidence: not every item verified")
	ErrOutstandingCompliance = errors.New("outstanding compliance issues")
)

// Ledger preconditions.
var (
	ErrInsufficientBalance          = errors.New("insufficient balance")
	ErrPartialRetirementUnsupported = errors.New("partial retirement unsupported")
)

// ErrNotFound is the shared lookup miss for every store.
var ErrNotFound = errors.New("not found")
