/*
Package schedule splits a contract total into dated installments.

PURPOSE:
  Given a total, a start date, a periodicity and a count, the allocator
  produces the installment list. The reconciler then forces the rounded
  parts to add up exactly. A custom mode lets the user add, remove and
  edit rows by hand, and a Session ties it all together for one record.

PIPELINE:
  Params ─► Allocate ─► Reconcile ─► []Installment ─► Session.Save ─► Ledger

SPLIT POLICIES:
  Equal split:
    percentage_i = 100 / count
    amount_i     = total / count
  Increasing split (weights 1, 2, ..., count):
    percentage_i = (i+1) * 200 / (count * (count+1))
    amount_i     = total * (i+1) * 2 / (count * (count+1))
  Every value is rounded to 2 decimals independently; the reconciler
  then adds the residual to the last installment.

DUE DATES:
  dueDate_i = start + i * periodMonths, computed from the start date for
  every i (not cumulatively) and clamped to the end of the month.
  Annual advances the year and keeps month/day.

EXAMPLE:
  rows, err := schedule.Generate(schedule.Params{
      Total:       generic.MustParseDecimal("1200.00"),
      Start:       generic.NewTimePoint(2025, time.January, 15),
      Periodicity: generic.PeriodMonthly,
      Count:       12,
      EqualSplit:  true,
  })
  // 12 x 100.00, percentages 8.33 x 11 + 8.37

SEE ALSO:
  - reconcile.go: residual-to-last-row reconciliation
  - editor.go: custom schedule editing
  - session.go: orchestration and state machine
*/
package schedule

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
)

// MaxInstallments bounds the count accepted by the allocator.
const MaxInstallments = 60

// Params are the generation inputs of a schedule.
type Params struct {
	Total       decimal.Decimal
	Start       generic.TimePoint
	Periodicity generic.Periodicity
	Count       int
	EqualSplit  bool
}

// Validate checks the inputs the allocator cannot work without.
func (p Params) Validate() error {
	if p.Start.IsZero() {
		return &generic.InvalidDateError{Input: ""}
	}
	if !p.Total.IsPositive() {
		return &generic.ZeroOrNegativeTotalError{Total: p.Total}
	}
	if !p.Periodicity.IsGenerated() {
		return &generic.InvalidPeriodicityError{Input: string(p.Periodicity)}
	}
	if p.Count < 1 || p.Count > MaxInstallments {
		return fmt.Errorf("%w: %d (want 1..%d)", generic.ErrInvalidCount, p.Count, MaxInstallments)
	}
	if p.Total.LessThan(generic.Cent.Mul(decimal.NewFromInt(int64(p.Count)))) {
		return tooSmall(p)
	}
	return nil
}

func tooSmall(p Params) error {
	return fmt.Errorf("%w: %s over %d installments", generic.ErrTotalTooSmall,
		p.Total.StringFixed(generic.MinorUnits), p.Count)
}

// Generate runs Allocate then Reconcile. The result always satisfies
// sum(percentage) == 100 and sum(amount) == total. When the rounded
// rows before the last already exceed the total, the last row would go
// negative and ErrResidualExceedsLast is returned.
func Generate(p Params) ([]generic.Installment, error) {
	rows, err := Allocate(p)
	if err != nil {
		return nil, err
	}
	rows = Reconcile(rows, p.Total)
	if last := rows[len(rows)-1]; last.Amount.IsNegative() || last.Percentage.IsNegative() {
		return nil, fmt.Errorf("%w: %s over %d installments leaves %s for the last",
			generic.ErrResidualExceedsLast, p.Total.StringFixed(generic.MinorUnits), p.Count,
			last.Amount.StringFixed(generic.MinorUnits))
	}
	return rows, nil
}

// Allocate produces the raw, independently rounded installments.
func Allocate(p Params) ([]generic.Installment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	rows := make([]generic.Installment, p.Count)
	count := decimal.NewFromInt(int64(p.Count))
	for i := range rows {
		var pct, amt decimal.Decimal
		if p.EqualSplit {
			pct = generic.Hundred.Div(count)
			amt = p.Total.Div(count)
		} else {
			num, den := increasingWeight(i, p.Count)
			pct = generic.Hundred.Mul(num).Div(den)
			amt = p.Total.Mul(num).Div(den)
		}
		rows[i] = generic.Installment{
			DueDate:    DueDate(p.Start, p.Periodicity, i),
			Percentage: generic.Round2(pct),
			Amount:     generic.Round2(amt),
		}
	}
	return rows, nil
}

// increasingWeight returns (i+1)*2 over n*(n+1); the weights of 0..n-1 sum to 1.
func increasingWeight(i, n int) (num, den decimal.Decimal) {
	return decimal.NewFromInt(int64((i + 1) * 2)), decimal.NewFromInt(int64(n * (n + 1)))
}

// DueDate returns the due date of installment i (0-based).
func DueDate(start generic.TimePoint, periodicity generic.Periodicity, i int) generic.TimePoint {
	if periodicity == generic.PeriodAnnual {
		return start.AddYears(i)
	}
	return start.AddMonths(i * periodicity.Months())
}
