/*
Package commission derives, approves and projects professional commissions.

PURPOSE:
  Turns completed and paid appointments into per-professional totals for a
  calendar month, persists an approved snapshot of those totals, and merges
  the live figures with whatever has been persisted for display.

KEY CONCEPTS:
  Calculator: pure aggregation, no store access, no errors
  Ledger:     Approve, the only writer of commission records
  Projection: List / Get / ApproveCurrent over a store

LIFECYCLE:
  CALCULATED (live only) ──Approve──▶ APPROVED ──obligation paid──▶ PAID

  A record never moves backwards. APPROVED may be re-entered by another
  Approve while the linked obligation is unpaid.

SEE ALSO:
  - reconcile/linker.go: RequestPayment and MarkPaid cascade
  - payables/generator.go: obligation creation
*/
package commission

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/salon-ledger/core"
)

// =============================================================================
// VIEW - one professional in one period
// =============================================================================

// CommissionView is the merged live + persisted state of one professional.
type CommissionView struct {
	ID                  core.CommissionID // empty until approved
	ProfessionalID      core.ProfessionalID
	ProfessionalName    string
	Period              core.Period
	Totals              core.Totals
	Status              core.CommissionStatus
	PayableObligationID *core.PayableID
	LineItems           []core.CommissionLineItem
}

// Persisted reports whether a record backs the view.
func (v CommissionView) Persisted() bool { return v.ID != "" }

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator aggregates appointment facts. It holds no state.
type Calculator struct{}

// Calculate returns one view per professional, ordered by name.
//
// Every active roster entry gets a view, even with no appointments.
// Inactive entries and professionals missing from the roster only appear
// when they have commissionable facts or a persisted record in period.
//
// Facts outside period or not COMPLETED+PAID are ignored, so callers may
// pass an unfiltered slice. Totals and line items are always recomputed
// from facts; a persisted record only contributes its id, status, bonuses
// and obligation link.
func (Calculator) Calculate(
	roster []core.Professional,
	period core.Period,
	facts []core.AppointmentFact,
	persisted []core.CommissionRecord,
) []CommissionView {
	views := make(map[core.ProfessionalID]*CommissionView)
	names := make(map[core.ProfessionalID]string, len(roster))

	ensure := func(id core.ProfessionalID) *CommissionView {
		if v, ok := views[id]; ok {
			return v
		}
		name, ok := names[id]
		if !ok {
			name = string(id)
		}
		v := &CommissionView{
			ProfessionalID:   id,
			ProfessionalName: name,
			Period:           period,
			Status:           core.CommissionCalculated,
			LineItems:        []core.CommissionLineItem{},
		}
		views[id] = v
		return v
	}

	for _, p := range roster {
		names[p.ID] = p.DisplayName()
	}
	for _, p := range roster {
		if p.Active {
			ensure(p.ID)
		}
	}

	// 1. Line items from facts
	for _, f := range facts {
		if !f.Commissionable() || !period.Contains(f.Date) {
			continue
		}
		v := ensure(f.ProfessionalID)
		v.LineItems = append(v.LineItems, LineItemFor(f))
	}

	// 2. Totals from the rounded line items
	for _, v := range views {
		sort.Slice(v.LineItems, func(i, j int) bool {
			return v.LineItems[i].AppointmentID < v.LineItems[j].AppointmentID
		})
		v.Totals = TotalsOf(v.LineItems, decimal.Zero)
	}

	// 3. Persisted state overrides status, bonuses and linkage
	for _, rec := range persisted {
		if !samePeriod(rec.Period, period) {
			continue
		}
		v := ensure(rec.ProfessionalID)
		v.ID = rec.ID
		if rec.Status.IsValid() {
			v.Status = rec.Status
		}
		v.PayableObligationID = rec.PayableObligationID
		v.Totals = TotalsOf(v.LineItems, rec.Totals.Bonuses)
	}

	out := make([]CommissionView, 0, len(views))
	for _, v := range views {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProfessionalName != out[j].ProfessionalName {
			return out[i].ProfessionalName < out[j].ProfessionalName
		}
		return out[i].ProfessionalID < out[j].ProfessionalID
	})
	return out
}

// LineItemFor prices one commissionable appointment.
func LineItemFor(f core.AppointmentFact) core.CommissionLineItem {
	revenue := core.RoundCents(f.Revenue())
	return core.CommissionLineItem{
		AppointmentID:        f.ID,
		ServiceValue:         revenue,
		CommissionPercentage: f.Service.CommissionPercentage,
		CommissionValue:      core.Percent(revenue, f.Service.CommissionPercentage),
	}
}

// TotalsOf aggregates line items. TotalCommission is the sum of the
// already-rounded item values.
func TotalsOf(items []core.CommissionLineItem, bonuses decimal.Decimal) core.Totals {
	revenue := decimal.Zero
	for _, it := range items {
		revenue = revenue.Add(it.ServiceValue)
	}
	return core.Totals{
		TotalAppointments: len(items),
		TotalRevenue:      revenue,
		TotalCommission:   core.SumCommission(items),
		Bonuses:           bonuses,
	}.Normalize()
}

func samePeriod(a, b core.Period) bool {
	return a.Start.Equal(b.Start) && a.End.Equal(b.End)
}
