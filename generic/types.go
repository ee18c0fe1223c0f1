/*
Package generic provides the core value objects of the billing engine.

PURPOSE:
  This package contains the typed records that flow between the schedule
  engine, the tariff matcher and the Ledger collaborator. Anything that
  crosses from the outer layers (HTTP, SQLite, catalog files) into the
  engine is converted into these types first.

KEY CONCEPTS IN THIS FILE (types.go):
  - Installment: one dated portion of a total (percentage + amount)
  - Schedule: ordered installments plus the total they were derived from
  - Bracket: a year-scoped pricing tier over a usage-count range
  - BracketMatch: the derived pairing of a bracket with a usage count
  - Periodicity: how far apart generated installments are

DESIGN PRINCIPLES:
  1. Precision: percentages and amounts are decimal.Decimal, never float64
  2. Minor unit: persisted values carry exactly 2 decimals (Round2)
  3. Type Safety: ContractID / BracketID are distinct string types

USAGE:
  rows := []generic.Installment{
      {DueDate: generic.NewTimePoint(2025, time.January, 15),
       Percentage: generic.MustParseDecimal("50"),
       Amount:     generic.MustParseDecimal("600")},
  }
  s := generic.Schedule{Total: generic.MustParseDecimal("1200"), Installments: rows}

SEE ALSO:
  - errors.go: error kinds raised by the engine
  - ledger.go: the persistence collaborator
  - schedule/: allocator, reconciler, editor, session
  - tariff/: bracket catalog and matcher
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY HELPERS
// =============================================================================

// MinorUnits is the number of decimals a persisted amount or percentage carries.
const MinorUnits int32 = 2

var (
	Hundred = decimal.NewFromInt(100)
	Cent    = decimal.New(1, -MinorUnits)
)

// Round2 rounds to the currency minor unit, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MinorUnits)
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// MaxZero clamps negative values to zero.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ContractID string
type BracketID string

// =============================================================================
// INSTALLMENT / SCHEDULE
// =============================================================================

// Installment is one dated portion of a schedule total.
// Percentage lies in [0,100] and Amount in [0,total].
type Installment struct {
	DueDate    TimePoint
	Percentage decimal.Decimal
	Amount     decimal.Decimal
}

// Schedule is the ordered installment list plus the total it splits.
type Schedule struct {
	ContractID   ContractID
	Total        decimal.Decimal
	Installments []Installment
}

// PercentageSum returns the sum of all installment percentages.
func PercentageSum(rows []Installment) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(r.Percentage)
	}
	return sum
}

// AmountSum returns the sum of all installment amounts.
func AmountSum(rows []Installment) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(r.Amount)
	}
	return sum
}

// CloneInstallments returns a copy that can be mutated without touching rows.
func CloneInstallments(rows []Installment) []Installment {
	if rows == nil {
		return nil
	}
	out := make([]Installment, len(rows))
	copy(out, rows)
	return out
}

// =============================================================================
// PERIODICITY
// =============================================================================

type Periodicity string

const (
	PeriodMonthly    Periodicity = "monthly"
	PeriodQuarterly  Periodicity = "quarterly"
	PeriodFourMonth  Periodicity = "four_month"
	PeriodSemiAnnual Periodicity = "semi_annual"
	PeriodAnnual     Periodicity = "annual"
	PeriodCustom     Periodicity = "custom"
)

// Months returns the month step for month-based periodicities.
// Annual advances the year instead and reports 12 for comparison only.
func (p Periodicity) Months() int {
	switch p {
	case PeriodMonthly:
		return 1
	case PeriodQuarterly:
		return 3
	case PeriodFourMonth:
		return 4
	case PeriodSemiAnnual:
		return 6
	case PeriodAnnual:
		return 12
	default:
		return 0
	}
}

// IsGenerated reports whether the allocator can produce this periodicity.
func (p Periodicity) IsGenerated() bool {
	return p.Months() > 0
}

func (p Periodicity) IsValid() bool {
	return p.IsGenerated() || p == PeriodCustom
}

// ParsePeriodicity accepts the canonical names plus a few common aliases.
func ParsePeriodicity(s string) (Periodicity, error) {
	switch s {
	case "monthly", "month":
		return PeriodMonthly, nil
	case "quarterly", "quarter":
		return PeriodQuarterly, nil
	case "four_month", "four-month", "fourmonth", "cuatrimestral":
		return PeriodFourMonth, nil
	case "semi_annual", "semi-annual", "semiannual":
		return PeriodSemiAnnual, nil
	case "annual", "yearly":
		return PeriodAnnual, nil
	case "custom":
		return PeriodCustom, nil
	}
	return "", &InvalidPeriodicityError{Input: s}
}

// =============================================================================
// BRACKET - Year-scoped pricing tier
// =============================================================================

// Bracket prices a usage-count range (payroll slips processed) for one year.
// MaxUnits == nil means the range is unbounded above.
type Bracket struct {
	ID       BracketID
	Name     string
	Year     int
	MinUnits int
	MaxUnits *int
	Rate     decimal.Decimal
	Hours    decimal.Decimal
}

// Contains reports whether units falls in [MinUnits, MaxUnits].
func (b Bracket) Contains(units int) bool {
	if units < b.MinUnits {
		return false
	}
	return b.MaxUnits == nil || units <= *b.MaxUnits
}

// BracketMatch is derived, never persisted.
type BracketMatch struct {
	Bracket Bracket
	Units   int
	Amount  decimal.Decimal
}

// =============================================================================
// CONTRACT - The record a schedule belongs to
// =============================================================================

// Contract carries the fields the engine reads from a billing record.
// ActivationDate anchors the bracket catalog year.
type Contract struct {
	ID             ContractID
	ClientName     string
	ActivationDate TimePoint
	Units          int
	Total          decimal.Decimal
}
