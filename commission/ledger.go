package commission

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/salon-ledger/core"
	"github.com/warp/salon-ledger/lock"
)

// =============================================================================
// LEDGER - the only writer of commission records
// =============================================================================

// ApproveInput is a computed snapshot ready to be persisted.
type ApproveInput struct {
	ProfessionalID core.ProfessionalID
	Period         core.Period
	Totals         core.Totals
	LineItems      []core.CommissionLineItem
}

// Ledger persists approved commission snapshots.
//
// INVARIANTS:
//   - One record per (professional, period); Approve upserts it.
//   - Line items are fully replaced, never merged.
//   - The record upsert and the item replace commit together.
//   - A PAID record is never re-approved.
type Ledger struct {
	Store  core.TxStore
	Locker lock.Locker
	Logger *zap.Logger
}

func NewLedger(store core.TxStore, locker lock.Locker, logger *zap.Logger) *Ledger {
	if locker == nil {
		locker = lock.NewKeyed()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{Store: store, Locker: locker, Logger: logger}
}

// ApprovalKey is the lock key serializing approvals of one record.
func ApprovalKey(professionalID core.ProfessionalID, period core.Period) string {
	return "commission:approve:" + string(professionalID) + ":" + period.Key()
}

// Approve upserts the record for in.ProfessionalID and in.Period with
// status APPROVED and replaces its line items. It returns the record id.
//
// An existing obligation link is preserved. If the linked obligation is
// still open and was paying the whole previous final value, its amount
// follows the new one; an installment of a larger plan keeps its amount.
// If it was cancelled the link is dropped so a new payment request creates
// a fresh one.
func (l *Ledger) Approve(ctx context.Context, in ApproveInput) (core.CommissionID, error) {
	if err := validateApproval(in); err != nil {
		return "", err
	}
	totals := in.Totals.Normalize()

	locker := l.Locker
	if locker == nil {
		locker = lock.Noop{}
	}
	unlock, err := locker.Lock(ctx, ApprovalKey(in.ProfessionalID, in.Period))
	if err != nil {
		return "", err
	}
	defer unlock()

	var (
		saved     core.CommissionRecord
		prevFinal decimal.Decimal
	)
	err = l.Store.WithTx(ctx, func(s core.Store) error {
		existing, err := s.FindCommission(ctx, in.ProfessionalID, in.Period)
		if err != nil {
			return core.Persist("find commission", err)
		}

		rec := core.CommissionRecord{
			ProfessionalID: in.ProfessionalID,
			Period:         in.Period,
			Totals:         totals,
			Status:         core.CommissionApproved,
		}
		if existing != nil {
			if !existing.Status.CanAdvanceTo(core.CommissionApproved) {
				return &core.TransitionError{
					Entity: "commission",
					ID:     string(existing.ID),
					From:   string(existing.Status),
					To:     string(core.CommissionApproved),
				}
			}
			rec.ID = existing.ID
			prevFinal = existing.Totals.FinalValue
			rec.PayableObligationID = existing.PayableObligationID
		} else {
			rec.ID = core.NewCommissionID()
		}

		saved, err = s.UpsertCommission(ctx, rec)
		if err != nil {
			return core.Persist("upsert commission", err)
		}

		items := make([]core.CommissionLineItem, len(in.LineItems))
		for i, it := range in.LineItems {
			it.ID = core.NewLineItemID()
			it.CommissionID = saved.ID
			it.ServiceValue = core.RoundCents(it.ServiceValue)
			it.CommissionValue = core.RoundCents(it.CommissionValue)
			items[i] = it
		}
		if err := s.ReplaceLineItems(ctx, saved.ID, items); err != nil {
			return core.Persist("replace line items", err)
		}

		if saved.IsLinked() {
			return l.syncObligation(ctx, s, &saved, prevFinal)
		}
		return nil
	})
	if err != nil {
		l.log().Warn("commission approval failed",
			zap.String("professional_id", string(in.ProfessionalID)),
			zap.String("period", in.Period.Key()),
			zap.Error(err))
		return "", err
	}

	l.log().Info("commission approved",
		zap.String("commission_id", string(saved.ID)),
		zap.String("professional_id", string(saved.ProfessionalID)),
		zap.String("period", saved.Period.Key()),
		zap.Int("appointments", saved.Totals.TotalAppointments),
		zap.String("final_value", saved.Totals.FinalValue.StringFixed(core.Cents)))
	return saved.ID, nil
}

func (l *Ledger) log() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// syncObligation keeps a linked, unpaid obligation in step with rec.
// Only an obligation whose amount equals prevFinal covers the whole
// commission; any other amount belongs to an installment plan.
func (l *Ledger) syncObligation(ctx context.Context, s core.Store, rec *core.CommissionRecord, prevFinal decimal.Decimal) error {
	ob, err := s.GetPayable(ctx, *rec.PayableObligationID)
	if err != nil {
		return core.Persist("get linked payable", err)
	}

	switch {
	case ob == nil || ob.Status == core.PayableCancelled:
		rec.PayableObligationID = nil
		if err := s.UpdateCommission(ctx, *rec); err != nil {
			return core.Persist("unlink commission", err)
		}
		l.log().Info("commission unlinked from obligation",
			zap.String("commission_id", string(rec.ID)))
	case ob.Status.IsOpen() && ob.Amount.Equal(prevFinal) && !ob.Amount.Equal(rec.Totals.FinalValue):
		ob.Amount = rec.Totals.FinalValue
		if err := s.UpdatePayable(ctx, *ob); err != nil {
			return core.Persist("update linked payable", err)
		}
		l.log().Info("linked obligation amount updated",
			zap.String("payable_id", string(ob.ID)),
			zap.String("amount", ob.Amount.StringFixed(core.Cents)))
	}
	return nil
}

func validateApproval(in ApproveInput) error {
	if in.ProfessionalID == "" {
		return core.Invalid("professional_id", "professional id is required")
	}
	if !in.Period.Valid() {
		return core.Invalid("period", "period must be one calendar month, got %s", in.Period)
	}
	if in.Totals.TotalAppointments < 0 {
		return core.Invalid("total_appointments", "must not be negative")
	}
	if in.Totals.TotalAppointments > 0 && len(in.LineItems) == 0 {
		return core.Invalid("line_items", "%d appointments but no line items", in.Totals.TotalAppointments)
	}
	sum := core.SumCommission(in.LineItems)
	if !core.WithinCent(sum, in.Totals.TotalCommission) {
		return core.Invalid("line_items", "line items sum to %s, total commission is %s",
			sum.StringFixed(core.Cents), in.Totals.TotalCommission.StringFixed(core.Cents))
	}
	return nil
}
