package tariff

import (
	"context"
	"fmt"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// CATALOG - Which year's brackets apply
// =============================================================================

// Resolution is the bracket set chosen for a lookup.
type Resolution struct {
	// Year is the catalog year the brackets belong to.
	Year int
	// Requested is the year that was asked for.
	Requested int
	Brackets  []generic.Bracket
	// Fallback is true when Year differs from Requested.
	Fallback bool
}

// Catalog resolves year-scoped bracket sets from the Ledger.
type Catalog struct {
	Source generic.BracketSource
	Clock  generic.Clock
}

func NewCatalog(source generic.BracketSource, clock generic.Clock) *Catalog {
	return &Catalog{Source: source, Clock: clock}
}

// ForYear returns the brackets of exactly one year.
func (c *Catalog) ForYear(ctx context.Context, year int) ([]generic.Bracket, error) {
	return c.Source.ListBrackets(ctx, year)
}

// Resolve picks the catalog for year. When that year has no brackets it
// falls back to the current calendar year, then to the most recent year
// present in the full catalog.
func (c *Catalog) Resolve(ctx context.Context, year int) (Resolution, error) {
	brackets, err := c.Source.ListBrackets(ctx, year)
	if err != nil {
		return Resolution{}, fmt.Errorf("list brackets for %d: %w", year, err)
	}
	if len(brackets) > 0 {
		return Resolution{Year: year, Requested: year, Brackets: brackets}, nil
	}

	current := c.Clock.Today().Year()
	if current != year {
		brackets, err = c.Source.ListBrackets(ctx, current)
		if err != nil {
			return Resolution{}, fmt.Errorf("list brackets for %d: %w", current, err)
		}
		if len(brackets) > 0 {
			return Resolution{Year: current, Requested: year, Brackets: brackets, Fallback: true}, nil
		}
	}

	all, err := c.Source.ListAllBrackets(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("list all brackets: %w", err)
	}
	latest, found := latestYear(all)
	if !found {
		return Resolution{Year: current, Requested: year, Fallback: current != year}, nil
	}
	var latestSet []generic.Bracket
	for _, b := range all {
		if b.Year == latest {
			latestSet = append(latestSet, b)
		}
	}
	return Resolution{Year: latest, Requested: year, Brackets: latestSet, Fallback: latest != year}, nil
}

// ForContract resolves the catalog anchored on the contract's activation year.
func (c *Catalog) ForContract(ctx context.Context, contractID generic.ContractID) (Resolution, error) {
	year, err := c.Source.CurrentYearFor(ctx, contractID)
	if err != nil {
		return Resolution{}, err
	}
	return c.Resolve(ctx, year)
}

func latestYear(brackets []generic.Bracket) (int, bool) {
	if len(brackets) == 0 {
		return 0, false
	}
	latest := brackets[0].Year
	for _, b := range brackets[1:] {
		if b.Year > latest {
			latest = b.Year
		}
	}
	return latest, true
}
