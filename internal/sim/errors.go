package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("sim: validation failed")

	// ErrInvalidState matches every *InvalidStateError.
	ErrInvalidState = errors.New("sim: operation not allowed in current state")
)

// ValidationError reports rejected configuration or perturbation input.
// The driver state is unchanged when it is returned.
type ValidationError struct {
	Field   string
	Reason  string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sim: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidStateError reports an operation the current run state forbids.
type InvalidStateError struct {
	Op    string
	State RunState
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("sim: %s not allowed while %s", e.Op, e.State)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }
