package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Input errors
	ErrMalformedInput   = errors.New("malformed input")
	ErrMissingColumn    = fmt.Errorf("%w: missing column", ErrMalformedInput)
	ErrNonBinaryValue   = fmt.Errorf("%w: value outside {0,1}", ErrMalformedInput)
	ErrInvalidParameter = errors.New("invalid run parameter")

	// Fit errors
	ErrInfeasibleFit = errors.New("constrained fit infeasible")
	ErrNumericDomain = errors.New("numeric domain error")

	// Search errors
	ErrSearchBudgetExceeded = errors.New("pattern search exceeded its time budget")
)

// Error constructors with context
func NewMissingColumnError(column string) error {
	return fmt.Errorf("%w %q", ErrMissingColumn, column)
}

func NewNonBinaryValueError(column string, row int, raw string) error {
	return fmt.Errorf("%w: column %q row %d has %q", ErrNonBinaryValue, column, row, raw)
}

func NewParameterError(name string, value interface{}, allowed string) error {
	return fmt.Errorf("%w: %s=%v (allowed: %s)", ErrInvalidParameter, name, value, allowed)
}

// InfeasibleFitError carries the context of a refit that found no feasible local optimum.
type InfeasibleFitError struct {
	Iteration int
	Patterns  int
	// Slack is the smallest s >= 1 such that every parity sum <= s is jointly
	// satisfiable with the fairness constraints; zero when not computed.
	Slack float64
	Cause error
}

func (e *InfeasibleFitError) Error() string {
	msg := fmt.Sprintf("%v at iteration %d with %d patterns", ErrInfeasibleFit, e.Iteration, e.Patterns)
	if e.Slack > 0 {
		msg += fmt.Sprintf(" (phase-I slack %.6g)", e.Slack)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *InfeasibleFitError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrInfeasibleFit}
	}
	return []error{ErrInfeasibleFit, e.Cause}
}

// Error checking helpers
func IsInputError(err error) bool {
	return errors.Is(err, ErrMalformedInput) || errors.Is(err, ErrInvalidParameter)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrSearchBudgetExceeded)
}
