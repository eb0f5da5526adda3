/*
errors.go - Error types for the budget engine

USAGE:
  errors.Is(err, budget.ErrNotFound) for missing budgets,
  errors.Is(err, budget.ErrValidation) for rejected input.
*/
package budget

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a budget id does not exist.
	ErrNotFound = errors.New("budget not found")

	// ErrValidation is the sentinel all input validation unwraps to.
	ErrValidation = errors.New("validation failed")
)

// ValidationError describes a single rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ItemFailure records one budget that failed during bulk recalculation.
// Failures are surfaced in the result, never swallowed.
type ItemFailure struct {
	BudgetID string
	Name     string
	Err      error
}

func (f ItemFailure) Error() string {
	return fmt.Sprintf("budget %s (%s): %v", f.BudgetID, f.Name, f.Err)
}
