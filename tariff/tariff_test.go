package tariff_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/generic"
	"github.com/warp/billing-engine/generic/store"
	"github.com/warp/billing-engine/tariff"
)

func d(s string) decimal.Decimal { return generic.MustParseDecimal(s) }
func intPtr(v int) *int          { return &v }

func bracket(id, name string, year, minUnits int, maxUnits *int, rate, hours string) generic.Bracket {
	return generic.Bracket{
		ID: generic.BracketID(id), Name: name, Year: year,
		MinUnits: minUnits, MaxUnits: maxUnits, Rate: d(rate), Hours: d(hours),
	}
}

func scenarioBrackets() []generic.Bracket {
	return []generic.Bracket{
		bracket("a24", "A", 2024, 1, intPtr(50), "10.00", "2"),
		bracket("b24", "B", 2024, 51, intPtr(999), "15.00", "2"),
	}
}

// =============================================================================
// MATCHER
// =============================================================================

func TestMatchAmount_ScenarioB(t *testing.T) {
	// GIVEN: A(1-50, 10.00 x 2) and B(51-999, 15.00 x 2) for 2024
	// WHEN: Matching 45 units in 2024
	// THEN: A is selected with an amount of 20.00

	m, err := tariff.MatchAmount(45, 2024, scenarioBrackets())
	require.NoError(t, err)
	assert.Equal(t, "A", m.Bracket.Name)
	assert.Equal(t, 45, m.Units)
	assert.True(t, d("20.00").Equal(m.Amount))
}

func TestMatch_RangeBoundsAreInclusive(t *testing.T) {
	brackets := scenarioBrackets()

	tests := []struct {
		units int
		want  string
		found bool
	}{
		{0, "", false},
		{1, "A", true},
		{50, "A", true},
		{51, "B", true},
		{999, "B", true},
		{1000, "", false},
	}
	for _, tt := range tests {
		b, ok := tariff.Match(tt.units, 2024, brackets)
		assert.Equal(t, tt.found, ok, "units %d", tt.units)
		assert.Equal(t, tt.want, b.Name, "units %d", tt.units)
	}
}

func TestMatch_FiltersByYear(t *testing.T) {
	brackets := append(scenarioBrackets(), bracket("a25", "A25", 2025, 1, intPtr(50), "12.00", "2"))

	b, ok := tariff.Match(10, 2025, brackets)
	require.True(t, ok)
	assert.Equal(t, "A25", b.Name)

	_, err := tariff.MatchAmount(10, 2023, brackets)
	var miss *generic.NoBracketMatchError
	require.ErrorAs(t, err, &miss)
	assert.Equal(t, 10, miss.Units)
	assert.Equal(t, 2023, miss.Year)
	assert.ErrorIs(t, err, generic.ErrNoBracketMatch)
}

func TestMatch_UnboundedTopBracket(t *testing.T) {
	brackets := []generic.Bracket{
		bracket("s", "Small", 2024, 1, intPtr(100), "5", "1"),
		bracket("l", "Large", 2024, 101, nil, "4.5", "1.5"),
	}

	m, err := tariff.MatchAmount(1_000_000, 2024, brackets)
	require.NoError(t, err)
	assert.Equal(t, "Large", m.Bracket.Name)
	assert.True(t, d("6.75").Equal(m.Amount))
}

func TestMatch_OverlapResolvedByCatalogOrder(t *testing.T) {
	brackets := []generic.Bracket{
		bracket("x", "X", 2024, 1, intPtr(60), "1", "1"),
		bracket("y", "Y", 2024, 40, intPtr(100), "2", "1"),
	}

	for i := 0; i < 10; i++ {
		b, ok := tariff.Match(45, 2024, brackets)
		require.True(t, ok)
		assert.Equal(t, "X", b.Name)
	}
}

func TestAmountFor_RoundsToCents(t *testing.T) {
	assert.True(t, d("3.70").Equal(tariff.AmountFor(bracket("r", "R", 2024, 1, nil, "1.234", "3"))))
}

// =============================================================================
// CATALOG
// =============================================================================

func TestCatalog_ResolveFallbacks(t *testing.T) {
	ledger := store.NewMemory()
	ledger.AddBrackets(scenarioBrackets()...)
	ledger.AddBrackets(bracket("a22", "Old", 2022, 1, nil, "8", "2"))
	clock := generic.NewFixedClock(generic.NewTimePoint(2024, time.June, 1))
	catalog := tariff.NewCatalog(ledger, clock)
	ctx := context.Background()

	// exact year
	res, err := catalog.Resolve(ctx, 2022)
	require.NoError(t, err)
	assert.Equal(t, 2022, res.Year)
	assert.False(t, res.Fallback)
	assert.Len(t, res.Brackets, 1)

	// missing year falls back to the current year
	res, err = catalog.Resolve(ctx, 2023)
	require.NoError(t, err)
	assert.Equal(t, 2024, res.Year)
	assert.Equal(t, 2023, res.Requested)
	assert.True(t, res.Fallback)
	assert.Len(t, res.Brackets, 2)

	// current year also missing: latest year in the catalog
	clock.Set(generic.NewTimePoint(2026, time.January, 1))
	res, err = catalog.Resolve(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, 2024, res.Year)
	assert.True(t, res.Fallback)
}

func TestCatalog_EmptyLedger(t *testing.T) {
	catalog := tariff.NewCatalog(store.NewMemory(), generic.NewFixedClock(generic.NewTimePoint(2024, 1, 1)))

	res, err := catalog.Resolve(context.Background(), 2024)
	require.NoError(t, err)
	assert.Empty(t, res.Brackets)
	assert.False(t, res.Fallback)
}

func TestCatalog_ForContractUsesActivationYear(t *testing.T) {
	ledger := store.NewMemory()
	ledger.AddBrackets(scenarioBrackets()...)
	ledger.AddBrackets(bracket("a25", "A25", 2025, 1, nil, "12", "2"))
	ledger.PutContract(generic.Contract{ID: "c1", ActivationDate: generic.NewTimePoint(2025, time.March, 1)})
	catalog := tariff.NewCatalog(ledger, generic.NewFixedClock(generic.NewTimePoint(2024, 1, 1)))

	res, err := catalog.ForContract(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2025, res.Year)
	require.Len(t, res.Brackets, 1)
	assert.Equal(t, "A25", res.Brackets[0].Name)

	_, err = catalog.ForContract(context.Background(), "missing")
	assert.ErrorIs(t, err, generic.ErrContractNotFound)
}

// =============================================================================
// SELECTOR
// =============================================================================

func TestSelector_AutoMatchKeepsPreviousOnMiss(t *testing.T) {
	s := tariff.NewSelector(tariff.Resolution{Year: 2024, Brackets: scenarioBrackets()})
	assert.True(t, s.Auto())
	_, ok := s.Current()
	assert.False(t, ok)

	m, err := s.SetUnits(60)
	require.NoError(t, err)
	assert.Equal(t, "B", m.Bracket.Name)

	m, err = s.SetUnits(0)
	assert.ErrorIs(t, err, generic.ErrNoBracketMatch)
	assert.Equal(t, "B", m.Bracket.Name)
	assert.Equal(t, 0, s.Units())

	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "B", cur.Bracket.Name)
}

func TestSelector_PinByIDOrName(t *testing.T) {
	s := tariff.NewSelector(tariff.Resolution{Year: 2024, Brackets: scenarioBrackets()})

	m, err := s.Pin("b24")
	require.NoError(t, err)
	assert.Equal(t, "B", m.Bracket.Name)
	assert.False(t, s.Auto())

	m, err = s.Pin("A")
	require.NoError(t, err)
	assert.Equal(t, "A", m.Bracket.Name)

	m, err = s.SetUnits(700)
	require.NoError(t, err)
	assert.Equal(t, "A", m.Bracket.Name)
	assert.Equal(t, 700, m.Units)

	m, err = s.EnableAuto()
	require.NoError(t, err)
	assert.Equal(t, "B", m.Bracket.Name)
	assert.True(t, s.Auto())
}

func TestSelector_CatalogSwapRematches(t *testing.T) {
	s := tariff.NewSelector(tariff.Resolution{Year: 2024, Brackets: scenarioBrackets()})
	_, err := s.SetUnits(10)
	require.NoError(t, err)

	next := tariff.Resolution{Year: 2025, Brackets: []generic.Bracket{bracket("a25", "A25", 2025, 1, nil, "12", "2")}}
	m, err := s.SetCatalog(next)
	require.NoError(t, err)
	assert.Equal(t, "A25", m.Bracket.Name)
	assert.Equal(t, 2025, s.Year())
	assert.True(t, d("24").Equal(m.Amount))
}
