/*
Package reconcile keeps commission records and payable obligations in step.

PURPOSE:
  A commission is paid through exactly one obligation. RequestPayment
  creates (or reuses) that obligation; MarkPaid settles it and cascades
  PAID onto the commission through the obligation's stored back-reference.

CONSISTENCY:
  Both sides of every link are written in one store transaction, and so
  are both status changes of a payment. A reader never observes a paid
  obligation whose commission is still APPROVED.

  commission.payable_obligation_id  ──▶  obligation
  obligation.linked_commission_id   ──▶  commission

SEE ALSO:
  - commission/ledger.go: Approve
  - payables/generator.go: GenerateSingle, LinkToCommission
*/
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/salon-ledger/commission"
	"github.com/warp/salon-ledger/core"
	"github.com/warp/salon-ledger/lock"
	"github.com/warp/salon-ledger/payables"
)

// PaymentResult is the state after MarkPaid.
type PaymentResult struct {
	Obligation core.PayableObligation
	// CommissionStatus is the linked commission's status after the cascade,
	// nil when the obligation pays no commission.
	CommissionStatus *core.CommissionStatus
}

type Linker struct {
	Store         core.TxStore
	Generator     *payables.Generator
	Projection    *commission.Projection
	Locker        lock.Locker
	Logger        *zap.Logger
	Now           core.Clock
	DefaultPayDay int
}

func NewLinker(store core.TxStore, gen *payables.Generator, projection *commission.Projection, locker lock.Locker, logger *zap.Logger) *Linker {
	if locker == nil {
		locker = lock.NewKeyed()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{
		Store:         store,
		Generator:     gen,
		Projection:    projection,
		Locker:        locker,
		Logger:        logger,
		Now:           core.SystemClock,
		DefaultPayDay: core.DefaultPayDay,
	}
}

func (l *Linker) now() time.Time {
	if l.Now == nil {
		return core.SystemClock()
	}
	return l.Now()
}

func (l *Linker) log() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

func (l *Linker) lock(ctx context.Context, key string) (func(), error) {
	if l.Locker == nil {
		return func() {}, nil
	}
	return l.Locker.Lock(ctx, key)
}

// =============================================================================
// REQUEST PAYMENT
// =============================================================================

// RequestPayment returns the obligation paying commissionID, creating and
// linking one if needed. The commission must be APPROVED to get a new
// obligation. Calling it again returns the same id. It never marks
// anything PAID.
//
// A linked obligation that was cancelled (or deleted) is replaced.
func (l *Linker) RequestPayment(ctx context.Context, commissionID core.CommissionID) (core.PayableID, error) {
	unlock, err := l.lock(ctx, "commission:payment:"+string(commissionID))
	if err != nil {
		return "", err
	}
	defer unlock()

	var (
		obligationID core.PayableID
		created      bool
	)
	err = l.Store.WithTx(ctx, func(s core.Store) error {
		rec, err := s.GetCommission(ctx, commissionID)
		if err != nil {
			return core.Persist("get commission", err)
		}
		if rec == nil {
			return fmt.Errorf("%w: %s", core.ErrCommissionNotFound, commissionID)
		}

		if rec.IsLinked() {
			ob, err := s.GetPayable(ctx, *rec.PayableObligationID)
			if err != nil {
				return core.Persist("get linked payable", err)
			}
			if ob != nil && ob.Status != core.PayableCancelled {
				obligationID = ob.ID
				return nil
			}
			rec.PayableObligationID = nil
			if err := s.UpdateCommission(ctx, *rec); err != nil {
				return core.Persist("unlink commission", err)
			}
		}

		if rec.Status != core.CommissionApproved {
			return &core.TransitionError{
				Entity: "commission",
				ID:     string(rec.ID),
				From:   string(rec.Status),
				To:     "payment requested",
			}
		}

		prof, err := s.GetProfessional(ctx, rec.ProfessionalID)
		if err != nil {
			return core.Persist("get professional", err)
		}
		entry := core.Professional{ID: rec.ProfessionalID}
		if prof != nil {
			entry = *prof
		}

		now := l.now()
		gen := l.Generator.WithStore(s)
		amount := rec.Totals.FinalValue
		ob, err := gen.GenerateSingle(ctx, payables.SingleInput{
			Description: Description(entry, rec.Period),
			Category:    core.CategoryCommission,
			Amount:      &amount,
			DueDate:     core.DateClamped(now.Year(), now.Month(), entry.EffectivePayDay(l.DefaultPayDay)),
		})
		if err != nil {
			return err
		}
		if err := gen.LinkToCommission(ctx, ob.ID, rec.ID); err != nil {
			return err
		}
		obligationID, created = ob.ID, true
		return nil
	})
	if err != nil {
		return "", err
	}

	if created {
		l.log().Info("commission payment requested",
			zap.String("commission_id", string(commissionID)),
			zap.String("payable_id", string(obligationID)))
	}
	return obligationID, nil
}

// RequestPaymentFor approves the live calculation of professionalID when
// nothing is persisted yet, then requests payment.
func (l *Linker) RequestPaymentFor(ctx context.Context, professionalID core.ProfessionalID, period core.Period) (core.PayableID, error) {
	rec, err := l.Store.FindCommission(ctx, professionalID, period)
	if err != nil {
		return "", core.Persist("find commission", err)
	}

	var id core.CommissionID
	if rec == nil || rec.Status == core.CommissionCalculated {
		id, err = l.Projection.ApproveCurrent(ctx, professionalID, period)
		if err != nil {
			return "", err
		}
	} else {
		id = rec.ID
	}
	return l.RequestPayment(ctx, id)
}

// Description is the label of a commission obligation,
// e.g. "Commission Ana - 03/2025".
func Description(p core.Professional, period core.Period) string {
	return fmt.Sprintf("Commission %s - %02d/%d", p.DisplayName(), int(period.Month()), period.Year())
}

// =============================================================================
// MARK PAID
// =============================================================================

// MarkPaid settles an obligation on paymentDate (today when zero) and moves
// the commission it pays to PAID in the same transaction.
//
// Paying an already PAID obligation changes nothing and keeps the original
// payment date. A CANCELLED obligation cannot be paid.
func (l *Linker) MarkPaid(ctx context.Context, obligationID core.PayableID, paymentDate time.Time) (PaymentResult, error) {
	if paymentDate.IsZero() {
		paymentDate = l.now()
	}
	paymentDate = core.TruncateDay(paymentDate)

	var (
		result  PaymentResult
		settled bool
	)
	err := l.Store.WithTx(ctx, func(s core.Store) error {
		ob, err := s.GetPayable(ctx, obligationID)
		if err != nil {
			return core.Persist("get payable", err)
		}
		if ob == nil {
			return fmt.Errorf("%w: %s", core.ErrPayableNotFound, obligationID)
		}

		switch ob.Status {
		case core.PayableCancelled:
			return &core.TransitionError{
				Entity: "payable",
				ID:     string(ob.ID),
				From:   string(ob.Status),
				To:     string(core.PayablePaid),
			}
		case core.PayablePaid:
			if ob.PaymentDate == nil {
				ob.PaymentDate = &paymentDate
				if err := s.UpdatePayable(ctx, *ob); err != nil {
					return core.Persist("update payable", err)
				}
			}
		default:
			ob.Status = core.PayablePaid
			ob.PaymentDate = &paymentDate
			if err := s.UpdatePayable(ctx, *ob); err != nil {
				return core.Persist("mark payable paid", err)
			}
			settled = true
		}
		result.Obligation = *ob

		if ob.LinkedCommissionID == nil {
			return nil
		}
		status, err := l.cascade(ctx, s, *ob.LinkedCommissionID)
		if err != nil {
			return err
		}
		result.CommissionStatus = status
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}

	if settled {
		fields := []zap.Field{
			zap.String("payable_id", string(obligationID)),
			zap.String("payment_date", core.FormatDate(*result.Obligation.PaymentDate)),
		}
		if result.CommissionStatus != nil {
			fields = append(fields,
				zap.String("commission_id", string(*result.Obligation.LinkedCommissionID)),
				zap.String("commission_status", string(*result.CommissionStatus)))
		}
		l.log().Info("payable paid", fields...)
	}
	return result, nil
}

// cascade moves the commission to PAID. A back-reference to a record that
// no longer exists yields a nil status.
func (l *Linker) cascade(ctx context.Context, s core.Store, id core.CommissionID) (*core.CommissionStatus, error) {
	rec, err := s.GetCommission(ctx, id)
	if err != nil {
		return nil, core.Persist("get linked commission", err)
	}
	if rec == nil {
		l.log().Warn("paid obligation references a missing commission",
			zap.String("commission_id", string(id)))
		return nil, nil
	}
	if rec.Status != core.CommissionPaid {
		if !rec.Status.CanAdvanceTo(core.CommissionPaid) {
			return nil, &core.TransitionError{
				Entity: "commission",
				ID:     string(rec.ID),
				From:   string(rec.Status),
				To:     string(core.CommissionPaid),
			}
		}
		rec.Status = core.CommissionPaid
		if err := s.UpdateCommission(ctx, *rec); err != nil {
			return nil, core.Persist("mark commission paid", err)
		}
	}
	status := rec.Status
	return &status, nil
}
