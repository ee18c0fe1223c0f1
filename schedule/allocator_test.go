package schedule_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/generic"
	"github.com/warp/billing-engine/schedule"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(s string) decimal.Decimal {
	return generic.MustParseDecimal(s)
}

func date(y int, m time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(y, m, day)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]any{fmt.Sprintf("want %s, got %s", want, got.String())}, msgAndArgs...)...)
}

var generatedPeriodicities = []generic.Periodicity{
	generic.PeriodMonthly,
	generic.PeriodQuarterly,
	generic.PeriodFourMonth,
	generic.PeriodSemiAnnual,
	generic.PeriodAnnual,
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestGenerate_MonthlyEqualSplit_LastRowAbsorbsPercentageResidual(t *testing.T) {
	// GIVEN: 1200.00 over 12 monthly installments, equal split
	// WHEN: Generating
	// THEN: 12 x 100.00, percentages 8.33 x 11 and 8.37 on the last row

	start := date(2025, time.January, 15)
	rows, err := schedule.Generate(schedule.Params{
		Total:       d("1200.00"),
		Start:       start,
		Periodicity: generic.PeriodMonthly,
		Count:       12,
		EqualSplit:  true,
	})
	require.NoError(t, err)
	require.Len(t, rows, 12)

	for i, r := range rows {
		assertDecimal(t, "100.00", r.Amount, "row %d amount", i)
		assert.Equal(t, start.AddMonths(i), r.DueDate, "row %d date", i)
		if i < 11 {
			assertDecimal(t, "8.33", r.Percentage, "row %d percentage", i)
		}
	}
	assertDecimal(t, "8.37", rows[11].Percentage)
	assertDecimal(t, "100", generic.PercentageSum(rows))
	assertDecimal(t, "1200", generic.AmountSum(rows))
}

func TestGenerate_QuarterlyIncreasingSplit_ExactWeights(t *testing.T) {
	// GIVEN: 1000.00 over 4 quarterly installments, increasing split
	// THEN: 10/20/30/40 percent, no residual to reconcile

	rows, err := schedule.Generate(schedule.Params{
		Total:       d("1000.00"),
		Start:       date(2025, time.January, 1),
		Periodicity: generic.PeriodQuarterly,
		Count:       4,
		EqualSplit:  false,
	})
	require.NoError(t, err)
	require.Len(t, rows, 4)

	wantPct := []string{"10", "20", "30", "40"}
	wantAmt := []string{"100", "200", "300", "400"}
	wantMonth := []time.Month{time.January, time.April, time.July, time.October}
	for i, r := range rows {
		assertDecimal(t, wantPct[i], r.Percentage, "row %d", i)
		assertDecimal(t, wantAmt[i], r.Amount, "row %d", i)
		assert.Equal(t, wantMonth[i], r.DueDate.Month())
	}
}

func TestAllocate_RawRowsAreNotReconciled(t *testing.T) {
	rows, err := schedule.Allocate(schedule.Params{
		Total:       d("100.00"),
		Start:       date(2025, time.March, 1),
		Periodicity: generic.PeriodMonthly,
		Count:       3,
		EqualSplit:  true,
	})
	require.NoError(t, err)

	for _, r := range rows {
		assertDecimal(t, "33.33", r.Percentage)
		assertDecimal(t, "33.33", r.Amount)
	}

	pct, amt := schedule.Deficits(rows, d("100.00"))
	assertDecimal(t, "0.01", pct)
	assertDecimal(t, "0.01", amt)

	reconciled := schedule.Reconcile(rows, d("100.00"))
	assertDecimal(t, "33.34", reconciled[2].Percentage)
	assertDecimal(t, "33.34", reconciled[2].Amount)
}

func TestReconcile_EmptyListUnchanged(t *testing.T) {
	rows := schedule.Reconcile(nil, d("10"))
	assert.Empty(t, rows)
}

// =============================================================================
// DATE RULES
// =============================================================================

func TestGenerate_AnnualAdvancesYearKeepingMonthAndDay(t *testing.T) {
	start := date(2024, time.March, 17)
	rows, err := schedule.Generate(schedule.Params{
		Total: d("500"), Start: start, Periodicity: generic.PeriodAnnual, Count: 5, EqualSplit: true,
	})
	require.NoError(t, err)

	for i, r := range rows {
		assert.Equal(t, 2024+i, r.DueDate.Year())
		assert.Equal(t, time.March, r.DueDate.Month())
		assert.Equal(t, 17, r.DueDate.Day())
	}
}

func TestGenerate_EndOfMonthStartClampsInsteadOfOverflowing(t *testing.T) {
	// GIVEN: A schedule starting on January 31
	// THEN: February clamps to the 29th (2024 is a leap year), March goes back to the 31st

	rows, err := schedule.Generate(schedule.Params{
		Total: d("300"), Start: date(2024, time.January, 31), Periodicity: generic.PeriodMonthly, Count: 3, EqualSplit: true,
	})
	require.NoError(t, err)

	assert.Equal(t, date(2024, time.January, 31), rows[0].DueDate)
	assert.Equal(t, date(2024, time.February, 29), rows[1].DueDate)
	assert.Equal(t, date(2024, time.March, 31), rows[2].DueDate)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestGenerate_ReconciledSumsAreExactForEveryCount(t *testing.T) {
	totals := []string{"99.99", "333.33", "1000.00", "7777.77", "1234567.89"}
	start := date(2024, time.January, 31)

	for _, periodicity := range generatedPeriodicities {
		for _, equal := range []bool{true, false} {
			for _, total := range totals {
				for count := 1; count <= schedule.MaxInstallments; count++ {
					p := schedule.Params{Total: d(total), Start: start, Periodicity: periodicity, Count: count, EqualSplit: equal}
					rows, err := schedule.Generate(p)
					require.NoError(t, err, "%+v", p)
					require.Len(t, rows, count)

					require.True(t, generic.PercentageSum(rows).Equal(generic.Hundred), "percentages %+v", p)
					require.True(t, generic.AmountSum(rows).Equal(d(total)), "amounts %+v", p)

					for i, r := range rows {
						require.False(t, r.Percentage.IsNegative(), "row %d %+v", i, p)
						require.False(t, r.Amount.IsNegative(), "row %d %+v", i, p)
						require.False(t, r.Amount.GreaterThan(d(total)), "row %d %+v", i, p)
						if i == 0 {
							continue
						}
						require.True(t, rows[i-1].DueDate.Before(r.DueDate), "dates increase %+v", p)
						if periodicity == generic.PeriodAnnual {
							require.Equal(t, start.Year()+i, r.DueDate.Year())
							require.Equal(t, start.Month(), r.DueDate.Month())
							require.Equal(t, start.Day(), r.DueDate.Day())
						} else {
							monthDelta := (int(r.DueDate.Month()) - int(rows[0].DueDate.Month()) + 1200) % 12
							require.Equal(t, (i*periodicity.Months())%12, monthDelta, "month step %+v", p)
						}
					}
				}
			}
		}
	}
}

func TestGenerate_IsIdempotent(t *testing.T) {
	p := schedule.Params{Total: d("987.65"), Start: date(2025, time.June, 30), Periodicity: generic.PeriodFourMonth, Count: 7}
	first, err := schedule.Generate(p)
	require.NoError(t, err)
	second, err := schedule.Generate(p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestGenerate_RejectsInvalidInputs(t *testing.T) {
	base := schedule.Params{Total: d("100"), Start: date(2025, time.January, 1), Periodicity: generic.PeriodMonthly, Count: 3, EqualSplit: true}

	tests := []struct {
		name   string
		modify func(*schedule.Params)
		want   error
	}{
		{"zero total", func(p *schedule.Params) { p.Total = decimal.Zero }, generic.ErrNonPositiveTotal},
		{"negative total", func(p *schedule.Params) { p.Total = d("-5") }, generic.ErrNonPositiveTotal},
		{"missing start date", func(p *schedule.Params) { p.Start = generic.TimePoint{} }, generic.ErrInvalidDate},
		{"zero count", func(p *schedule.Params) { p.Count = 0 }, generic.ErrInvalidCount},
		{"count above maximum", func(p *schedule.Params) { p.Count = 61 }, generic.ErrInvalidCount},
		{"custom is not generated", func(p *schedule.Params) { p.Periodicity = generic.PeriodCustom }, generic.ErrInvalidPeriodicity},
		{"unknown periodicity", func(p *schedule.Params) { p.Periodicity = "weekly" }, generic.ErrInvalidPeriodicity},
		{"below one cent per row", func(p *schedule.Params) { p.Total = d("0.02") }, generic.ErrTotalTooSmall},
		{"residual would go negative", func(p *schedule.Params) { p.Total = d("1"); p.Count = 60 }, generic.ErrResidualExceedsLast},
		// 0.245 per row rounds up to 0.25, so 59 rows already exceed 14.70
		{"rounded rows exceed total", func(p *schedule.Params) { p.Total = d("14.70"); p.Count = 60 }, generic.ErrResidualExceedsLast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.modify(&p)
			rows, err := schedule.Generate(p)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, rows)
		})
	}
}

func TestGenerate_ZeroTotalReportsStructuredError(t *testing.T) {
	_, err := schedule.Generate(schedule.Params{Total: decimal.Zero, Start: date(2025, 1, 1), Periodicity: generic.PeriodMonthly, Count: 1})

	var totalErr *generic.ZeroOrNegativeTotalError
	require.ErrorAs(t, err, &totalErr)
	assert.True(t, totalErr.Total.IsZero())
}
