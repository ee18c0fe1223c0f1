/*
Package tariff selects the pricing bracket for a usage count.

PURPOSE:
  A contract is billed by the number of payroll slips processed in a
  period. Brackets partition the usage axis per catalog year; each one
  carries a rate and an hours multiplier. The matcher finds the bracket
  covering a count and derives the billable amount.

KEY CONCEPTS:
  Match:     pure lookup over (units, year, brackets)
  AmountFor: round2(rate * hours)
  Catalog:   resolves which year's brackets apply to a contract
  Selector:  auto-select vs. manually pinned bracket

CATALOG INTEGRITY:
  Brackets of one year are expected to be non-overlapping and to cover
  every count. That is owned by the bracket administration, not checked
  here. With overlapping ranges the first bracket in catalog order wins,
  which keeps Match deterministic.

EXAMPLE:
  brackets := []generic.Bracket{
      {Name: "A", Year: 2024, MinUnits: 1, MaxUnits: intPtr(50), Rate: d(10), Hours: d(2)},
      {Name: "B", Year: 2024, MinUnits: 51, MaxUnits: intPtr(999), Rate: d(15), Hours: d(2)},
  }
  b, ok := tariff.Match(45, 2024, brackets) // A, true
  tariff.AmountFor(b)                       // 20.00

SEE ALSO:
  - catalog.go: year resolution and fallback
  - selector.go: auto/manual selection state
*/
package tariff

import (
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
)

// Match returns the first bracket of year whose range contains units.
func Match(units, year int, brackets []generic.Bracket) (generic.Bracket, bool) {
	for _, b := range brackets {
		if b.Year != year {
			continue
		}
		if b.Contains(units) {
			return b, true
		}
	}
	return generic.Bracket{}, false
}

// AmountFor derives the billable amount of a bracket.
func AmountFor(b generic.Bracket) decimal.Decimal {
	return generic.Round2(b.Rate.Mul(b.Hours))
}

// MatchAmount combines Match and AmountFor. A miss is reported as
// *generic.NoBracketMatchError, which callers treat as recoverable.
func MatchAmount(units, year int, brackets []generic.Bracket) (generic.BracketMatch, error) {
	b, ok := Match(units, year, brackets)
	if !ok {
		return generic.BracketMatch{}, &generic.NoBracketMatchError{Units: units, Year: year}
	}
	return generic.BracketMatch{Bracket: b, Units: units, Amount: AmountFor(b)}, nil
}
