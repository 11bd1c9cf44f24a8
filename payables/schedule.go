package payables

import (
	"time"

	"github.com/warp/salon-ledger/core"
)

// =============================================================================
// RECURRENCE - due dates of an installment plan
// =============================================================================

type Periodicity string

const (
	Monthly  Periodicity = "MONTHLY"
	Weekly   Periodicity = "WEEKLY"
	Biweekly Periodicity = "BIWEEKLY"
)

func (p Periodicity) IsValid() bool {
	switch p {
	case Monthly, Weekly, Biweekly:
		return true
	}
	return false
}

// MaxInstallments bounds a single recurring plan.
const MaxInstallments = 360

// RecurringSpec describes an installment plan. StartDate is kept as text
// because it usually arrives straight from a form or a JSON body.
type RecurringSpec struct {
	StartDate        string
	InstallmentCount int
	Periodicity      Periodicity
	FixedDayOfMonth  *int // MONTHLY only, rejected otherwise; nil means the start date's day
}

// Schedule returns the due date of every installment, in order.
//
//	WEEKLY   start + 7i days
//	BIWEEKLY start + 14i days
//	MONTHLY  start + i months, day = min(fixed ?? start.day, days in month)
//
// Monthly dates are always derived from start, so a 31st keeps coming
// back after a short month: Jan 31, Feb 28, Mar 31. No due date falls
// before start: a fixed day earlier than start's day begins next month.
func Schedule(spec RecurringSpec) ([]time.Time, error) {
	if spec.InstallmentCount < 1 {
		return nil, core.Invalid("installment_count", "must be at least 1, got %d", spec.InstallmentCount)
	}
	if spec.InstallmentCount > MaxInstallments {
		return nil, core.Invalid("installment_count", "must be at most %d, got %d", MaxInstallments, spec.InstallmentCount)
	}
	if spec.StartDate == "" {
		return nil, core.Invalid("start_date", "start date is required")
	}
	start, err := core.ParseDate(spec.StartDate)
	if err != nil {
		return nil, core.Invalid("start_date", "unparseable start date %q (use YYYY-MM-DD)", spec.StartDate)
	}
	if !spec.Periodicity.IsValid() {
		return nil, core.Invalid("periodicity", "unknown periodicity %q", spec.Periodicity)
	}
	day := 0
	if spec.FixedDayOfMonth != nil {
		if spec.Periodicity != Monthly {
			return nil, core.Invalid("fixed_day_of_month", "only applies to %s, got %s", Monthly, spec.Periodicity)
		}
		day = *spec.FixedDayOfMonth
		if day < 1 || day > 31 {
			return nil, core.Invalid("fixed_day_of_month", "must be between 1 and 31, got %d", day)
		}
	}

	// A fixed day already past in the start month moves the plan to the next one.
	offset := 0
	if spec.Periodicity == Monthly && core.AddMonthsClamped(start, 0, day).Before(start) {
		offset = 1
	}

	dates := make([]time.Time, spec.InstallmentCount)
	for i := range dates {
		switch spec.Periodicity {
		case Weekly:
			dates[i] = start.AddDate(0, 0, 7*i)
		case Biweekly:
			dates[i] = start.AddDate(0, 0, 14*i)
		case Monthly:
			dates[i] = core.AddMonthsClamped(start, i+offset, day)
		}
	}
	return dates, nil
}
