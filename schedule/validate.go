package schedule

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
)

// Normalize rounds every percentage and amount to the minor unit, which
// is the precision the Ledger persists.
func Normalize(rows []generic.Installment) []generic.Installment {
	out := generic.CloneInstallments(rows)
	for i := range out {
		out[i].Percentage = generic.Round2(out[i].Percentage)
		out[i].Amount = generic.Round2(out[i].Amount)
	}
	return out
}

// Validate checks the schedule invariants on the persisted precision:
// at least one row, every percentage in [0,100], every amount in
// [0,total], and sums equal to exactly 100.00 and total.
func Validate(rows []generic.Installment, total decimal.Decimal) error {
	if len(rows) == 0 {
		return &generic.UnbalancedScheduleError{Total: total, Reason: "schedule has no installments"}
	}

	norm := Normalize(rows)
	want := generic.Round2(total)
	for i, r := range norm {
		if r.DueDate.IsZero() {
			return &generic.UnbalancedScheduleError{Total: total, Reason: fmt.Sprintf("installment %d has no due date", i)}
		}
		if r.Percentage.IsNegative() || r.Percentage.GreaterThan(generic.Hundred) {
			return &generic.UnbalancedScheduleError{Total: total,
				Reason: fmt.Sprintf("installment %d percentage %s not in [0,100]", i, r.Percentage.StringFixed(generic.MinorUnits))}
		}
		if r.Amount.IsNegative() || r.Amount.GreaterThan(want) {
			return &generic.UnbalancedScheduleError{Total: total,
				Reason: fmt.Sprintf("installment %d amount %s not in [0,%s]", i, r.Amount.StringFixed(generic.MinorUnits), want.StringFixed(generic.MinorUnits))}
		}
	}

	pctSum := generic.PercentageSum(norm)
	amtSum := generic.AmountSum(norm)
	if !pctSum.Equal(generic.Hundred) || !amtSum.Equal(want) {
		return &generic.UnbalancedScheduleError{PercentageSum: pctSum, AmountSum: amtSum, Total: want}
	}
	return nil
}

// Balanced is Validate reduced to a bool, for running-sum displays.
func Balanced(rows []generic.Installment, total decimal.Decimal) bool {
	return Validate(rows, total) == nil
}
