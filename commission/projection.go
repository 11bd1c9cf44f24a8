package commission

import (
	"context"

	"github.com/warp/salon-ledger/core"
)

// =============================================================================
// PROJECTION - live calculation merged with persisted state
// =============================================================================

// Projection answers commission queries. Obligation linkage and status are
// always read from the persisted record, never cached.
type Projection struct {
	Store  core.Store
	Ledger *Ledger
	Calc   Calculator
}

func NewProjection(store core.Store, ledger *Ledger) *Projection {
	return &Projection{Store: store, Ledger: ledger}
}

// List returns one view per professional for period.
func (p *Projection) List(ctx context.Context, period core.Period) ([]CommissionView, error) {
	if !period.Valid() {
		return nil, core.Invalid("period", "period must be one calendar month")
	}
	roster, err := p.Store.Professionals(ctx)
	if err != nil {
		return nil, core.Persist("load professionals", err)
	}
	facts, err := p.Store.CommissionableAppointments(ctx, period, "")
	if err != nil {
		return nil, core.Persist("load appointments", err)
	}
	persisted, err := p.Store.ListCommissions(ctx, period)
	if err != nil {
		return nil, core.Persist("load commissions", err)
	}
	return p.Calc.Calculate(roster, period, facts, persisted), nil
}

// Live computes the current view of one professional, merged with its
// persisted record if any.
func (p *Projection) Live(ctx context.Context, professionalID core.ProfessionalID, period core.Period) (*CommissionView, error) {
	if !period.Valid() {
		return nil, core.Invalid("period", "period must be one calendar month")
	}
	prof, err := p.Store.GetProfessional(ctx, professionalID)
	if err != nil {
		return nil, core.Persist("get professional", err)
	}
	if prof == nil {
		return nil, core.ErrProfessionalNotFound
	}
	facts, err := p.Store.CommissionableAppointments(ctx, period, professionalID)
	if err != nil {
		return nil, core.Persist("load appointments", err)
	}
	var persisted []core.CommissionRecord
	rec, err := p.Store.FindCommission(ctx, professionalID, period)
	if err != nil {
		return nil, core.Persist("find commission", err)
	}
	if rec != nil {
		persisted = append(persisted, *rec)
	}

	entry := *prof
	entry.Active = true // an explicit lookup always yields a view
	views := p.Calc.Calculate([]core.Professional{entry}, period, facts, persisted)
	for i := range views {
		if views[i].ProfessionalID == professionalID {
			return &views[i], nil
		}
	}
	return nil, core.ErrProfessionalNotFound
}

// Get returns a persisted record with its persisted line items.
func (p *Projection) Get(ctx context.Context, id core.CommissionID) (*CommissionView, error) {
	rec, err := p.Store.GetCommission(ctx, id)
	if err != nil {
		return nil, core.Persist("get commission", err)
	}
	if rec == nil {
		return nil, core.ErrCommissionNotFound
	}
	items, err := p.Store.LineItems(ctx, id)
	if err != nil {
		return nil, core.Persist("load line items", err)
	}
	if items == nil {
		items = []core.CommissionLineItem{}
	}

	name := string(rec.ProfessionalID)
	prof, err := p.Store.GetProfessional(ctx, rec.ProfessionalID)
	if err != nil {
		return nil, core.Persist("get professional", err)
	}
	if prof != nil {
		name = prof.DisplayName()
	}

	return &CommissionView{
		ID:                  rec.ID,
		ProfessionalID:      rec.ProfessionalID,
		ProfessionalName:    name,
		Period:              rec.Period,
		Totals:              rec.Totals,
		Status:              rec.Status,
		PayableObligationID: rec.PayableObligationID,
		LineItems:           items,
	}, nil
}

// ApproveCurrent recomputes professionalID's commission from current facts
// and approves it.
func (p *Projection) ApproveCurrent(ctx context.Context, professionalID core.ProfessionalID, period core.Period) (core.CommissionID, error) {
	view, err := p.Live(ctx, professionalID, period)
	if err != nil {
		return "", err
	}
	return p.Ledger.Approve(ctx, ApproveInput{
		ProfessionalID: professionalID,
		Period:         period,
		Totals:         view.Totals,
		LineItems:      view.LineItems,
	})
}
