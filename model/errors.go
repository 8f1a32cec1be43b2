package model

import "fmt"

// ValidationError reports a domain-rule violation on construction or
// mutation of a model type. It is never retried by callers.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError reports an attempt to move a state machine along
// an edge that does not exist. It indicates a programming defect and is
// always fatal to the operation that triggered it.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// InvalidStateError reports a target state that the machine does not
// recognise at all.
type InvalidStateError struct {
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("unknown status %q", e.State)
}
