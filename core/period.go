package core

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Calendar month bucket for commission calculation
// =============================================================================

// Period is the half-open interval [Start, End) of one calendar month.
// Start is the first day of the month at 00:00 UTC, End the first day of
// the following month.
type Period struct {
	Start time.Time
	End   time.Time
}

// MonthPeriod returns the period for year/month.
func MonthPeriod(year int, month time.Month) Period {
	start := StartOfMonth(year, month)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// PeriodOf returns the month period containing t.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return MonthPeriod(t.Year(), t.Month())
}

// ParsePeriod accepts "YYYY-MM" or any "YYYY-MM-DD" inside the month.
func ParsePeriod(s string) (Period, error) {
	if t, err := time.Parse("2006-01", s); err == nil {
		return PeriodOf(t), nil
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return PeriodOf(t), nil
	}
	return Period{}, &ValidationError{Field: "period", Message: fmt.Sprintf("unparseable period %q (use YYYY-MM)", s)}
}

// Contains reports whether t falls in [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// IsZero reports whether the period was never set.
func (p Period) IsZero() bool { return p.Start.IsZero() }

// Valid reports whether p is exactly one calendar month.
func (p Period) Valid() bool {
	return !p.IsZero() && p.Start.Day() == 1 && p.End.Equal(p.Start.AddDate(0, 1, 0))
}

// Year and Month of the period start.
func (p Period) Year() int          { return p.Start.Year() }
func (p Period) Month() time.Month { return p.Start.Month() }

// Key returns the canonical "YYYY-MM" form.
func (p Period) Key() string { return p.Start.Format("2006-01") }

func (p Period) String() string {
	return "[" + FormatDate(p.Start) + ", " + FormatDate(p.End) + ")"
}

// Next and Previous return the adjacent months.
func (p Period) Next() Period     { return PeriodOf(p.End) }
func (p Period) Previous() Period { return PeriodOf(p.Start.AddDate(0, 0, -1)) }
