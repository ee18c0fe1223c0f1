package generic

import (
	"strings"
	"sync"
	"time"
)

// =============================================================================
// TIME POINT - Calendar date used for installment due dates
// =============================================================================

const DateLayout = "2006-01-02"

// TimePoint is a calendar date at day granularity, always UTC midnight.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func FromTime(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate parses an ISO calendar date. Out-of-range days such as
// 2025-02-30 are rejected rather than normalized.
func ParseDate(s string) (TimePoint, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, &InvalidDateError{Input: s}
	}
	return FromTime(t), nil
}

// ValidDate reports whether year/month/day name a real calendar date.
func ValidDate(year int, month time.Month, day int) bool {
	if month < time.January || month > time.December || day < 1 {
		return false
	}
	return day <= DaysIn(year, month)
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }

// Arithmetic

// AddMonths moves n months keeping the day of month, clamped to the last
// day of the target month (Jan 31 + 1 month = Feb 28/29).
func (tp TimePoint) AddMonths(n int) TimePoint {
	total := int(tp.Month()) - 1 + n
	year := tp.Year() + floorDiv(total, 12)
	month := time.Month(floorMod(total, 12) + 1)
	day := tp.Day()
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return NewTimePoint(year, month, day)
}

// AddYears moves n years keeping month and day (Feb 29 clamps to Feb 28).
func (tp TimePoint) AddYears(n int) TimePoint {
	return tp.AddMonths(12 * n)
}

func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }

// Properties
func (tp TimePoint) Year() int         { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month { return tp.Time.Month() }
func (tp TimePoint) Day() int          { return tp.Time.Day() }
func (tp TimePoint) IsZero() bool      { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	return tp.Time.Format(DateLayout)
}

// =============================================================================
// CLOCK - Injected source of "today"
// =============================================================================

// Clock provides the current date. Components take a Clock instead of
// calling time.Now so they stay deterministic under test.
type Clock interface {
	Today() TimePoint
	// Now is the full timestamp, used for audit columns.
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Today() TimePoint { return FromTime(time.Now().UTC()) }
func (SystemClock) Now() time.Time   { return time.Now().UTC() }

// FixedClock always returns the same date until Set is called.
type FixedClock struct {
	mu  sync.RWMutex
	day TimePoint
}

func NewFixedClock(day TimePoint) *FixedClock {
	return &FixedClock{day: day}
}

func (c *FixedClock) Today() TimePoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.day
}

// Now returns midnight of the fixed day.
func (c *FixedClock) Now() time.Time {
	return c.Today().Time
}

func (c *FixedClock) Set(day TimePoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.day = day
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func StartOfYear(year int) TimePoint { return NewTimePoint(year, time.January, 1) }

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
