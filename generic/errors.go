/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on the sentinels with errors.Is and read details from
  the structured types with errors.As.

ERROR CATEGORIES:
  1. Generation errors - bad start date, bad total, bad count
  2. Tariff errors - no bracket covers a usage count (recoverable)
  3. Editing errors - unbalanced schedule, row index, field range
  4. Store errors - missing contract or bracket

RECOVERABILITY:
  No error here is fatal. Every failure leaves the schedule session in
  its prior, editable state. Ledger failures during save are passed
  through unmodified.

SEE ALSO:
  - schedule/: raises generation and editing errors
  - tariff/: raises NoBracketMatchError
  - api/handlers.go: maps errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidDate is returned when a start date is unparseable or not a calendar date.
	ErrInvalidDate = errors.New("invalid date")

	// ErrNonPositiveTotal is returned when a zero or negative total reaches the allocator.
	ErrNonPositiveTotal = errors.New("total must be greater than zero")

	// ErrTotalTooSmall is returned when the total cannot give every installment one minor unit.
	ErrTotalTooSmall = errors.New("total smaller than one minor unit per installment")

	// ErrResidualExceedsLast is returned when rounding the other installments up
	// leaves a negative amount or percentage for the last one.
	ErrResidualExceedsLast = errors.New("rounding residual exceeds last installment")

	// ErrInvalidCount is returned when the installment count is outside [1, MaxInstallments].
	ErrInvalidCount = errors.New("invalid installment count")

	// ErrInvalidPeriodicity is returned for an unknown periodicity name.
	ErrInvalidPeriodicity = errors.New("invalid periodicity")

	// ErrNoBracketMatch is returned when no bracket covers a usage count.
	// Callers keep their previous selection.
	ErrNoBracketMatch = errors.New("no bracket matches usage count")

	// ErrUnbalancedSchedule is returned by save when percentages or amounts do not reconcile.
	ErrUnbalancedSchedule = errors.New("unbalanced schedule")

	// ErrRowIndex is returned when an editor operation targets a missing row.
	ErrRowIndex = errors.New("installment index out of range")

	// ErrFieldOutOfRange is returned when an edited percentage or amount leaves its range.
	ErrFieldOutOfRange = errors.New("field value out of range")

	// ErrNotEditing is returned when row operations are attempted outside custom mode.
	ErrNotEditing = errors.New("schedule is not in custom editing mode")

	// ErrSessionState is returned when an event is not allowed in the current session state.
	ErrSessionState = errors.New("operation not allowed in current session state")

	// ErrContractNotFound is returned when a referenced contract doesn't exist.
	ErrContractNotFound = errors.New("contract not found")

	// ErrBracketNotFound is returned when a referenced bracket doesn't exist.
	ErrBracketNotFound = errors.New("bracket not found")

	// ErrInvalidBracket is returned when a bracket fails boundary validation.
	ErrInvalidBracket = errors.New("invalid bracket")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidDateError reports the rejected date input.
type InvalidDateError struct {
	Input string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date %q (use YYYY-MM-DD)", e.Input)
}

func (e *InvalidDateError) Unwrap() error { return ErrInvalidDate }

// ZeroOrNegativeTotalError reports a total the allocator cannot divide.
type ZeroOrNegativeTotalError struct {
	Total decimal.Decimal
}

func (e *ZeroOrNegativeTotalError) Error() string {
	return fmt.Sprintf("total must be greater than zero, got %s", e.Total.StringFixed(MinorUnits))
}

func (e *ZeroOrNegativeTotalError) Unwrap() error { return ErrNonPositiveTotal }

// InvalidPeriodicityError reports an unknown periodicity name.
type InvalidPeriodicityError struct {
	Input string
}

func (e *InvalidPeriodicityError) Error() string {
	return fmt.Sprintf("invalid periodicity %q", e.Input)
}

func (e *InvalidPeriodicityError) Unwrap() error { return ErrInvalidPeriodicity }

// NoBracketMatchError reports the usage count and year that found no bracket.
type NoBracketMatchError struct {
	Units int
	Year  int
}

func (e *NoBracketMatchError) Error() string {
	return fmt.Sprintf("no bracket for %d units in %d", e.Units, e.Year)
}

func (e *NoBracketMatchError) Unwrap() error { return ErrNoBracketMatch }

// UnbalancedScheduleError carries the sums that failed to reconcile.
type UnbalancedScheduleError struct {
	PercentageSum decimal.Decimal
	AmountSum     decimal.Decimal
	Total         decimal.Decimal
	Reason        string
}

func (e *UnbalancedScheduleError) Error() string {
	if e.Reason != "" {
		return "unbalanced schedule: " + e.Reason
	}
	return fmt.Sprintf("unbalanced schedule: percentages sum to %s (want 100.00), amounts sum to %s (want %s)",
		e.PercentageSum.StringFixed(MinorUnits), e.AmountSum.StringFixed(MinorUnits), e.Total.StringFixed(MinorUnits))
}

func (e *UnbalancedScheduleError) Unwrap() error { return ErrUnbalancedSchedule }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrNonPositiveTotal) ||
		errors.Is(err, ErrTotalTooSmall) ||
		errors.Is(err, ErrResidualExceedsLast) ||
		errors.Is(err, ErrInvalidCount) ||
		errors.Is(err, ErrInvalidPeriodicity) ||
		errors.Is(err, ErrRowIndex) ||
		errors.Is(err, ErrFieldOutOfRange) ||
		errors.Is(err, ErrInvalidBracket) ||
		errors.Is(err, ErrUnbalancedSchedule)
}

// IsStateError returns true if the operation is valid but not in the current state.
func IsStateError(err error) bool {
	return errors.Is(err, ErrNotEditing) || errors.Is(err, ErrSessionState)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContractNotFound) ||
		errors.Is(err, ErrBracketNotFound)
}

// IsRecoverable returns true for errors that are logged rather than surfaced.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrNoBracketMatch)
}
