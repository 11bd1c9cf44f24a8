/*
Package payables creates and maintains payable obligations.

PURPOSE:
  Every outgoing payment the salon owes (commissions, suppliers, rent,
  utilities) is a PayableObligation. This package creates them, one at a
  time or as an installment plan, links them to commission records, and
  moves them through their non-payment states.

OBLIGATION STATES:
  PENDING ──due date passes──▶ OVERDUE
     │                            │
     ├────────── MarkPaid ────────┼──▶ PAID        (see reconcile/linker.go)
     └────────── Cancel ──────────┴──▶ CANCELLED

  PAID and CANCELLED are terminal.

ATOMICITY:
  A recurring plan is computed fully in memory and inserted as one batch:
  all installments are created or none. When the store supports
  transactions, multi-row updates (link, overdue sweep) run in one.

SEE ALSO:
  - schedule.go: installment due dates
  - factory/payable.go: JSON plans
*/
package payables

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/salon-ledger/core"
)

// =============================================================================
// INPUTS
// =============================================================================

// SingleInput describes one obligation. Amount may be nil when a purchase
// order is given; it is then quantity * cost price.
type SingleInput struct {
	Description     string
	Category        core.PayableCategory
	Amount          *decimal.Decimal
	DueDate         time.Time
	SupplierID      *core.SupplierID
	PurchaseOrderID *core.PurchaseOrderID
}

// RecurringInput describes an installment plan of equal amounts.
type RecurringInput struct {
	Schedule    RecurringSpec
	Description string
	Category    core.PayableCategory
	Amount      decimal.Decimal
	SupplierID  *core.SupplierID
}

// =============================================================================
// GENERATOR
// =============================================================================

type Generator struct {
	Store  core.Store
	Logger *zap.Logger
	Now    core.Clock
}

func NewGenerator(store core.Store, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{Store: store, Logger: logger, Now: core.SystemClock}
}

// WithStore returns a copy of g bound to s, typically a transaction.
func (g *Generator) WithStore(s core.Store) *Generator {
	c := *g
	c.Store = s
	return &c
}

func (g *Generator) now() time.Time {
	if g.Now == nil {
		return core.SystemClock()
	}
	return g.Now()
}

func (g *Generator) log() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

// atomically runs fn in a transaction when the store supports one.
func (g *Generator) atomically(ctx context.Context, fn func(*Generator) error) error {
	if tx, ok := g.Store.(core.TxStore); ok {
		return tx.WithTx(ctx, func(s core.Store) error { return fn(g.WithStore(s)) })
	}
	return fn(g)
}

// GenerateSingle creates one PENDING obligation.
func (g *Generator) GenerateSingle(ctx context.Context, in SingleInput) (core.PayableObligation, error) {
	if err := validateHeader(in.Description, in.Category); err != nil {
		return core.PayableObligation{}, err
	}
	if in.DueDate.IsZero() {
		return core.PayableObligation{}, core.Invalid("due_date", "due date is required")
	}

	amount := in.Amount
	supplier := in.SupplierID
	if in.PurchaseOrderID != nil {
		po, err := g.Store.GetPurchaseOrder(ctx, *in.PurchaseOrderID)
		if err != nil {
			return core.PayableObligation{}, core.Persist("get purchase order", err)
		}
		if po == nil {
			return core.PayableObligation{}, fmt.Errorf("%w: %s", core.ErrPurchaseOrderNotFound, *in.PurchaseOrderID)
		}
		if amount == nil {
			total := po.Total()
			amount = &total
		}
		if supplier == nil && po.SupplierID != "" {
			s := po.SupplierID
			supplier = &s
		}
	}
	if amount == nil {
		return core.PayableObligation{}, core.Invalid("amount", "amount is required when no purchase order is given")
	}
	if err := validateAmount(*amount); err != nil {
		return core.PayableObligation{}, err
	}

	ob := core.PayableObligation{
		ID:                    core.NewPayableID(),
		Description:           in.Description,
		Category:              in.Category,
		Amount:                core.RoundCents(*amount),
		DueDate:               core.TruncateDay(in.DueDate),
		Status:                core.PayablePending,
		LinkedSupplierID:      supplier,
		LinkedPurchaseOrderID: in.PurchaseOrderID,
	}
	if err := g.Store.InsertPayables(ctx, []core.PayableObligation{ob}); err != nil {
		return core.PayableObligation{}, core.Persist("insert payable", err)
	}

	g.log().Info("payable created",
		zap.String("payable_id", string(ob.ID)),
		zap.String("category", string(ob.Category)),
		zap.String("amount", ob.Amount.StringFixed(core.Cents)),
		zap.String("due_date", core.FormatDate(ob.DueDate)))
	return ob, nil
}

// GenerateRecurring creates one PENDING obligation per installment, each
// described as "<description> (i/N)". All rows are inserted or none.
//
// When the plan pays a commission, link only the first installment.
func (g *Generator) GenerateRecurring(ctx context.Context, in RecurringInput) ([]core.PayableObligation, error) {
	dates, err := Schedule(in.Schedule)
	if err != nil {
		return nil, err
	}
	if err := validateHeader(in.Description, in.Category); err != nil {
		return nil, err
	}
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}

	n := len(dates)
	obligations := make([]core.PayableObligation, n)
	for i, due := range dates {
		obligations[i] = core.PayableObligation{
			ID:               core.NewPayableID(),
			Description:      fmt.Sprintf("%s (%d/%d)", in.Description, i+1, n),
			Category:         in.Category,
			Amount:           core.RoundCents(in.Amount),
			DueDate:          due,
			Status:           core.PayablePending,
			LinkedSupplierID: in.SupplierID,
		}
	}
	if err := g.Store.InsertPayables(ctx, obligations); err != nil {
		return nil, core.Persist("insert payables", err)
	}

	g.log().Info("recurring payables created",
		zap.String("description", in.Description),
		zap.String("periodicity", string(in.Schedule.Periodicity)),
		zap.Int("installments", n),
		zap.String("first_due", core.FormatDate(dates[0])),
		zap.String("last_due", core.FormatDate(dates[n-1])))
	return obligations, nil
}

// LinkToCommission records the link on both sides: the commission's
// obligation id and the obligation's commission back-reference.
// Linking an already linked pair again is a no-op.
func (g *Generator) LinkToCommission(ctx context.Context, obligationID core.PayableID, commissionID core.CommissionID) error {
	return g.atomically(ctx, func(g *Generator) error {
		ob, err := g.Store.GetPayable(ctx, obligationID)
		if err != nil {
			return core.Persist("get payable", err)
		}
		if ob == nil {
			return fmt.Errorf("%w: %s", core.ErrPayableNotFound, obligationID)
		}
		rec, err := g.Store.GetCommission(ctx, commissionID)
		if err != nil {
			return core.Persist("get commission", err)
		}
		if rec == nil {
			return fmt.Errorf("%w: %s", core.ErrCommissionNotFound, commissionID)
		}

		if rec.IsLinked() && *rec.PayableObligationID == obligationID &&
			ob.LinkedCommissionID != nil && *ob.LinkedCommissionID == commissionID {
			return nil
		}
		if rec.IsLinked() && *rec.PayableObligationID != obligationID {
			return &core.TransitionError{Entity: "commission", ID: string(commissionID),
				From: "linked to " + string(*rec.PayableObligationID), To: "linked to " + string(obligationID)}
		}
		if ob.LinkedCommissionID != nil && *ob.LinkedCommissionID != commissionID {
			return &core.TransitionError{Entity: "payable", ID: string(obligationID),
				From: "linked to " + string(*ob.LinkedCommissionID), To: "linked to " + string(commissionID)}
		}
		if ob.Status == core.PayableCancelled {
			return &core.TransitionError{Entity: "payable", ID: string(obligationID),
				From: string(ob.Status), To: "linked"}
		}

		rec.PayableObligationID = &obligationID
		if err := g.Store.UpdateCommission(ctx, *rec); err != nil {
			return core.Persist("link commission", err)
		}
		ob.LinkedCommissionID = &commissionID
		if err := g.Store.UpdatePayable(ctx, *ob); err != nil {
			return core.Persist("link payable", err)
		}

		g.log().Info("payable linked to commission",
			zap.String("payable_id", string(obligationID)),
			zap.String("commission_id", string(commissionID)))
		return nil
	})
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Delete removes a PENDING obligation that no commission points at.
func (g *Generator) Delete(ctx context.Context, id core.PayableID) error {
	return g.atomically(ctx, func(g *Generator) error {
		ob, err := g.find(ctx, id)
		if err != nil {
			return err
		}
		if ob.Status != core.PayablePending {
			return &core.TransitionError{Entity: "payable", ID: string(id), From: string(ob.Status), To: "DELETED"}
		}
		if ob.LinkedCommissionID != nil {
			return &core.TransitionError{Entity: "payable", ID: string(id), From: "linked to commission", To: "DELETED"}
		}
		if err := g.Store.DeletePayable(ctx, id); err != nil {
			return core.Persist("delete payable", err)
		}
		g.log().Info("payable deleted", zap.String("payable_id", string(id)))
		return nil
	})
}

// Cancel moves an open obligation to CANCELLED. Cancelling twice is a no-op.
func (g *Generator) Cancel(ctx context.Context, id core.PayableID) (core.PayableObligation, error) {
	var out core.PayableObligation
	err := g.atomically(ctx, func(g *Generator) error {
		ob, err := g.find(ctx, id)
		if err != nil {
			return err
		}
		if ob.Status == core.PayableCancelled {
			out = *ob
			return nil
		}
		if !ob.Status.IsOpen() {
			return &core.TransitionError{Entity: "payable", ID: string(id), From: string(ob.Status), To: string(core.PayableCancelled)}
		}
		ob.Status = core.PayableCancelled
		if err := g.Store.UpdatePayable(ctx, *ob); err != nil {
			return core.Persist("cancel payable", err)
		}
		out = *ob
		g.log().Info("payable cancelled", zap.String("payable_id", string(id)))
		return nil
	})
	return out, err
}

// MarkOverdue flips every PENDING obligation due before asOf to OVERDUE
// and returns how many changed. A zero asOf means today.
func (g *Generator) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	if asOf.IsZero() {
		asOf = g.now()
	}
	asOf = core.TruncateDay(asOf)
	count := 0
	err := g.atomically(ctx, func(g *Generator) error {
		due, err := g.Store.ListPayables(ctx, core.PayableFilter{Status: core.PayablePending, DueTo: &asOf})
		if err != nil {
			return core.Persist("list pending payables", err)
		}
		for _, ob := range due {
			ob.Status = core.PayableOverdue
			if err := g.Store.UpdatePayable(ctx, ob); err != nil {
				return core.Persist("mark overdue", err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		g.log().Info("payables marked overdue",
			zap.String("as_of", core.FormatDate(asOf)),
			zap.Int("count", count))
	}
	return count, nil
}

// List returns obligations matching filter ordered by due date.
func (g *Generator) List(ctx context.Context, filter core.PayableFilter) ([]core.PayableObligation, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, core.Invalid("status", "unknown status %q", filter.Status)
	}
	if filter.Category != "" && !filter.Category.IsValid() {
		return nil, core.Invalid("category", "unknown category %q", filter.Category)
	}
	out, err := g.Store.ListPayables(ctx, filter)
	if err != nil {
		return nil, core.Persist("list payables", err)
	}
	return out, nil
}

// Get returns one obligation.
func (g *Generator) Get(ctx context.Context, id core.PayableID) (*core.PayableObligation, error) {
	return g.find(ctx, id)
}

func (g *Generator) find(ctx context.Context, id core.PayableID) (*core.PayableObligation, error) {
	ob, err := g.Store.GetPayable(ctx, id)
	if err != nil {
		return nil, core.Persist("get payable", err)
	}
	if ob == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrPayableNotFound, id)
	}
	return ob, nil
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateHeader(description string, category core.PayableCategory) error {
	if description == "" {
		return core.Invalid("description", "description is required")
	}
	if !category.IsValid() {
		return core.Invalid("category", "unknown category %q", category)
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return core.Invalid("amount", "must not be negative, got %s", amount.String())
	}
	return nil
}
