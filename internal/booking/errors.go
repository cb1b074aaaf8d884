package booking

import (
	"errors"
	"fmt"
)

// ErrForbidden is returned when the principal is missing, unapproved, or
// lacks the required role tier.
var ErrForbidden = errors.New("forbidden")

// ErrNotFound is returned when the target record does not exist, or a
// guarded status update matched no row.
var ErrNotFound = errors.New("not found")

// ValidationError reports a booking request that failed one of the
// submission rules. It carries a user-facing reason naming the violated
// rule; it is never logged as a system fault.
type ValidationError struct {
	Rule    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func failRule(rule, format string, args ...any) *ValidationError {
	return &ValidationError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports that the requested slot is unavailable. Storage is
// true when the conflict was raised by the database overlap constraint
// rather than the application-level pre-check; that case indicates the
// pre-check was bypassed or raced and triggers an operator anomaly alert.
type ConflictError struct {
	Message string
	Storage bool
}

func (e *ConflictError) Error() string { return e.Message }

// InvalidTransitionError reports an attempted illegal lifecycle transition.
type InvalidTransitionError struct {
	Kind string
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot transition from %s to %s", e.Kind, e.From, e.To)
}

// CompensationError reports that a step of a multi-step write failed AND a
// compensating rollback also failed, leaving records that need manual
// operator intervention. It names the affected records so they can be
// located.
type CompensationError struct {
	Step          string
	Cause         error
	Compensations []error
	ReservationID int64
	LoanID        int64
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf(
		"compensation failed after step %q (reservation %d, loan %d): cause: %v; rollback errors: %v",
		e.Step, e.ReservationID, e.LoanID, e.Cause, errors.Join(e.Compensations...))
}

func (e *CompensationError) Unwrap() error { return e.Cause }

func asConflict(err error, target **ConflictError) bool {
	return errors.As(err, target)
}
