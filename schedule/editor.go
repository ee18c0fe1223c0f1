package schedule

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// CUSTOM SCHEDULE EDITOR
// =============================================================================
//
// Each operation takes the current rows and returns a new list; the input
// slice is never modified. No cross-row reconciliation happens on edit,
// so totals may be out of balance while the user works. Validate is the
// gate before persistence.

// Field names an editable installment column.
type Field string

const (
	FieldDate       Field = "date"
	FieldPercentage Field = "percentage"
	FieldAmount     Field = "amount"
)

// Edit is one field change. Date is used for FieldDate, Value otherwise.
type Edit struct {
	Field Field
	Date  generic.TimePoint
	Value decimal.Decimal
}

// ParseEdit converts raw form input into an Edit.
func ParseEdit(field, raw string) (Edit, error) {
	switch Field(field) {
	case FieldDate:
		d, err := generic.ParseDate(raw)
		if err != nil {
			return Edit{}, err
		}
		return Edit{Field: FieldDate, Date: d}, nil
	case FieldPercentage, FieldAmount:
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return Edit{}, fmt.Errorf("%w: %s %q is not a number", generic.ErrFieldOutOfRange, field, raw)
		}
		return Edit{Field: Field(field), Value: v}, nil
	}
	return Edit{}, fmt.Errorf("%w: unknown field %q", generic.ErrFieldOutOfRange, field)
}

// PercentageToAmount is round2(percentage / 100 * total).
func PercentageToAmount(percentage, total decimal.Decimal) decimal.Decimal {
	return generic.Round2(percentage.Mul(total).Div(generic.Hundred))
}

// AmountToPercentage is round2(amount / total * 100). total must be positive.
func AmountToPercentage(amount, total decimal.Decimal) (decimal.Decimal, error) {
	if !total.IsPositive() {
		return decimal.Zero, &generic.ZeroOrNegativeTotalError{Total: total}
	}
	return generic.Round2(amount.Mul(generic.Hundred).Div(total)), nil
}

// AddRow appends an installment. On an empty list the row takes 100% of
// total dated today. Otherwise it is dated one month after the last row
// and takes whatever percentage and amount are still unallocated, never
// less than zero.
func AddRow(previous []generic.Installment, total decimal.Decimal, clock generic.Clock) []generic.Installment {
	rows := generic.CloneInstallments(previous)
	if len(rows) == 0 {
		return append(rows, generic.Installment{
			DueDate:    clock.Today(),
			Percentage: generic.Hundred,
			Amount:     total,
		})
	}

	last := rows[len(rows)-1]
	return append(rows, generic.Installment{
		DueDate:    last.DueDate.AddMonths(1),
		Percentage: generic.MaxZero(generic.Hundred.Sub(generic.PercentageSum(rows))),
		Amount:     generic.MaxZero(total.Sub(generic.AmountSum(rows))),
	})
}

// RemoveRow deletes the row at index. If rows remain and their
// percentages fall short of 100, the shortfall and its share of total
// move to the new last row.
func RemoveRow(rows []generic.Installment, index int, total decimal.Decimal) ([]generic.Installment, error) {
	if index < 0 || index >= len(rows) {
		return nil, fmt.Errorf("%w: %d of %d", generic.ErrRowIndex, index, len(rows))
	}

	out := make([]generic.Installment, 0, len(rows)-1)
	out = append(out, rows[:index]...)
	out = append(out, rows[index+1:]...)
	if len(out) == 0 {
		return out, nil
	}

	shortfall := generic.Hundred.Sub(generic.PercentageSum(out))
	if shortfall.IsPositive() {
		last := &out[len(out)-1]
		last.Percentage = last.Percentage.Add(shortfall)
		last.Amount = last.Amount.Add(PercentageToAmount(shortfall, total))
	}
	return out, nil
}

// EditField sets one field of the row at index. Percentage edits derive
// the amount and amount edits derive the percentage; date edits touch
// nothing else.
func EditField(rows []generic.Installment, index int, edit Edit, total decimal.Decimal) ([]generic.Installment, error) {
	if index < 0 || index >= len(rows) {
		return nil, fmt.Errorf("%w: %d of %d", generic.ErrRowIndex, index, len(rows))
	}

	out := generic.CloneInstallments(rows)
	row := &out[index]

	switch edit.Field {
	case FieldDate:
		if edit.Date.IsZero() {
			return nil, &generic.InvalidDateError{Input: ""}
		}
		row.DueDate = edit.Date

	case FieldPercentage:
		if edit.Value.IsNegative() || edit.Value.GreaterThan(generic.Hundred) {
			return nil, fmt.Errorf("%w: percentage %s not in [0,100]", generic.ErrFieldOutOfRange, edit.Value)
		}
		row.Percentage = edit.Value
		row.Amount = PercentageToAmount(edit.Value, total)

	case FieldAmount:
		if edit.Value.IsNegative() || edit.Value.GreaterThan(total) {
			return nil, fmt.Errorf("%w: amount %s not in [0,%s]", generic.ErrFieldOutOfRange,
				edit.Value, total.StringFixed(generic.MinorUnits))
		}
		pct, err := AmountToPercentage(edit.Value, total)
		if err != nil {
			return nil, err
		}
		row.Amount = edit.Value
		row.Percentage = pct

	default:
		return nil, fmt.Errorf("%w: unknown field %q", generic.ErrFieldOutOfRange, edit.Field)
	}
	return out, nil
}
