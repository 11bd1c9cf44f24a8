package core

import (
	"fmt"
	"time"
)

// =============================================================================
// DATES - Day-granularity helpers, always UTC midnight
// =============================================================================

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// NewDate returns year-month-day at 00:00 UTC. Out-of-range days normalize
// the way time.Date does; use DateClamped when that is not wanted.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TruncateDay drops the clock part of t, keeping its calendar date.
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD (or RFC3339, truncated to the day).
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, &ValidationError{Field: "date", Message: "date is required"}
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return TruncateDay(t), nil
	}
	return time.Time{}, &ValidationError{Field: "date", Message: fmt.Sprintf("unparseable date %q (use YYYY-MM-DD)", s)}
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string { return t.UTC().Format(DateLayout) }

func StartOfMonth(year int, month time.Month) time.Time { return NewDate(year, month, 1) }

// DaysIn returns the number of days in year/month.
func DaysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DateClamped builds a date whose day is min(day, DaysIn(year, month)).
// It never rolls over into the following month.
func DateClamped(year int, month time.Month, day int) time.Time {
	// Normalize month/year first (month may be out of 1..12).
	first := StartOfMonth(year, month)
	last := DaysIn(first.Year(), first.Month())
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return NewDate(first.Year(), first.Month(), day)
}

// AddMonthsClamped shifts start by n calendar months and sets the day to
// min(day, days in target month). A day of 0 keeps start's own day.
//
//	AddMonthsClamped(2025-01-31, 1, 0)  = 2025-02-28
//	AddMonthsClamped(2024-01-31, 1, 0)  = 2024-02-29
//	AddMonthsClamped(2025-01-01, 2, 15) = 2025-03-15
func AddMonthsClamped(start time.Time, n int, day int) time.Time {
	start = start.UTC()
	if day == 0 {
		day = start.Day()
	}
	return DateClamped(start.Year(), start.Month()+time.Month(n), day)
}

// Clock abstracts "now" so due dates are testable.
type Clock func() time.Time

// SystemClock returns the current time in UTC.
func SystemClock() time.Time { return time.Now().UTC() }
