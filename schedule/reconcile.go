package schedule

import (
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// RECONCILER - Rounding residual goes to the last installment
// =============================================================================

// Reconcile adds the percentage deficit (100 - sum) and the amount
// deficit (total - sum) to the last installment. It mutates rows in
// place and returns the same slice; an empty list is returned unchanged.
//
// The last row absorbs all rounding noise. For large counts it can differ
// visibly from the others (8.37 vs 8.33 for 12 equal rows).
func Reconcile(rows []generic.Installment, total decimal.Decimal) []generic.Installment {
	if len(rows) == 0 {
		return rows
	}
	pctDeficit := generic.Hundred.Sub(generic.PercentageSum(rows))
	amtDeficit := total.Sub(generic.AmountSum(rows))

	last := &rows[len(rows)-1]
	last.Percentage = last.Percentage.Add(pctDeficit)
	last.Amount = last.Amount.Add(amtDeficit)
	return rows
}

// Deficits reports what Reconcile would add to the last row.
func Deficits(rows []generic.Installment, total decimal.Decimal) (percentage, amount decimal.Decimal) {
	return generic.Hundred.Sub(generic.PercentageSum(rows)), total.Sub(generic.AmountSum(rows))
}
