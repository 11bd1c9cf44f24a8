package commission_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/salon-ledger/commission"
	"github.com/warp/salon-ledger/core"
	"github.com/warp/salon-ledger/core/store"
	"github.com/warp/salon-ledger/lock"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	store      *store.Memory
	ledger     *commission.Ledger
	projection *commission.Projection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	for _, p := range roster() {
		mem.AddProfessional(p)
	}
	ledger := commission.NewLedger(mem, lock.NewKeyed(), nil)
	return &fixture{store: mem, ledger: ledger, projection: commission.NewProjection(mem, ledger)}
}

func approveInput(t *testing.T, facts ...core.AppointmentFact) commission.ApproveInput {
	t.Helper()
	v := viewOf(t, commission.Calculator{}.Calculate(roster(), march2025, facts, nil), "P1")
	return commission.ApproveInput{
		ProfessionalID: "P1",
		Period:         march2025,
		Totals:         v.Totals,
		LineItems:      v.LineItems,
	}
}

// =============================================================================
// APPROVE
// =============================================================================

func TestApprove_CreatesRecordAndLineItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.ledger.Approve(ctx, approveInput(t,
		paidAppointment("a1", "P1", 3, "150.00", "40"),
		paidAppointment("a2", "P1", 20, "200.00", "40"),
	))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := f.store.GetCommission(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, core.CommissionApproved, rec.Status)
	assert.True(t, money("140.00").Equal(rec.Totals.FinalValue))
	assert.Nil(t, rec.PayableObligationID)

	items, err := f.store.LineItems(ctx, id)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, id, it.CommissionID)
	}
}

func TestApprove_IsIdempotentUpsertWithFullReplace(t *testing.T) {
	// GIVEN: March approved with two appointments
	// WHEN: One appointment is dropped and March is approved again
	// THEN: Same id, new totals, exactly one line item

	f := newFixture(t)
	ctx := context.Background()

	first, err := f.ledger.Approve(ctx, approveInput(t,
		paidAppointment("a1", "P1", 3, "150.00", "40"),
		paidAppointment("a2", "P1", 20, "200.00", "40"),
	))
	require.NoError(t, err)

	second, err := f.ledger.Approve(ctx, approveInput(t,
		paidAppointment("a2", "P1", 20, "200.00", "40"),
	))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	rec, _ := f.store.GetCommission(ctx, first)
	assert.Equal(t, 1, rec.Totals.TotalAppointments)
	assert.True(t, money("80").Equal(rec.Totals.TotalCommission))

	items, _ := f.store.LineItems(ctx, first)
	require.Len(t, items, 1)
	assert.Equal(t, core.AppointmentID("a2"), items[0].AppointmentID)

	all, _ := f.store.ListCommissions(ctx, march2025)
	assert.Len(t, all, 1, "upsert must not create a second record")
}

func TestApprove_ZeroAppointmentsAllowed(t *testing.T) {
	f := newFixture(t)

	id, err := f.ledger.Approve(context.Background(), commission.ApproveInput{
		ProfessionalID: "P2",
		Period:         march2025,
	})
	require.NoError(t, err)

	rec, _ := f.store.GetCommission(context.Background(), id)
	assert.True(t, rec.Totals.FinalValue.IsZero())
}

func TestApprove_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	valid := approveInput(t, paidAppointment("a1", "P1", 3, "150.00", "40"))

	tests := []struct {
		name   string
		mutate func(in *commission.ApproveInput)
		field  string
	}{
		{"missing professional", func(in *commission.ApproveInput) { in.ProfessionalID = "" }, "professional_id"},
		{"zero period", func(in *commission.ApproveInput) { in.Period = core.Period{} }, "period"},
		{"items missing", func(in *commission.ApproveInput) { in.LineItems = nil }, "line_items"},
		{"sum mismatch", func(in *commission.ApproveInput) { in.Totals.TotalCommission = money("60.02") }, "line_items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			in.LineItems = append([]core.CommissionLineItem(nil), valid.LineItems...)
			tt.mutate(&in)

			_, err := f.ledger.Approve(ctx, in)
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.True(t, core.IsClientError(err))
		})
	}

	all, _ := f.store.ListCommissions(ctx, march2025)
	assert.Empty(t, all, "rejected approvals must not write")
}

func TestApprove_WithinOneCentTolerance(t *testing.T) {
	f := newFixture(t)
	in := approveInput(t, paidAppointment("a1", "P1", 3, "150.00", "40"))
	in.Totals.TotalCommission = money("60.01")

	_, err := f.ledger.Approve(context.Background(), in)
	assert.NoError(t, err)
}

func TestApprove_PaidRecordRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.ledger.Approve(ctx, approveInput(t, paidAppointment("a1", "P1", 3, "150.00", "40")))
	require.NoError(t, err)

	rec, _ := f.store.GetCommission(ctx, id)
	rec.Status = core.CommissionPaid
	require.NoError(t, f.store.UpdateCommission(ctx, *rec))

	_, err = f.ledger.Approve(ctx, approveInput(t, paidAppointment("a1", "P1", 3, "999.00", "40")))
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	after, _ := f.store.GetCommission(ctx, id)
	assert.Equal(t, core.CommissionPaid, after.Status)
	assert.True(t, money("60").Equal(after.Totals.FinalValue))
}

func TestApprove_LineItemFailureRollsBackRecord(t *testing.T) {
	// GIVEN: The line-item write fails
	// WHEN: Approving
	// THEN: No record is left behind (upsert and replace commit together)

	f := newFixture(t)
	ctx := context.Background()
	f.store.FailNext("ReplaceLineItems", errors.New("disk full"))

	_, err := f.ledger.Approve(ctx, approveInput(t, paidAppointment("a1", "P1", 3, "150.00", "40")))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPersistence)

	rec, err := f.store.FindCommission(ctx, "P1", march2025)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestApprove_ReapprovalUpdatesOpenObligation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.ledger.Approve(ctx, approveInput(t, paidAppointment("a1", "P1", 3, "150.00", "40")))
	require.NoError(t, err)
	obID := linkObligation(t, f, id, core.PayablePending, "60.00")

	_, err = f.ledger.Approve(ctx, approveInput(t,
		paidAppointment("a1", "P1", 3, "150.00", "40"),
		paidAppointment("a2", "P1", 4, "100.00", "40"),
	))
	require.NoError(t, err)

	ob, _ := f.store.GetPayable(ctx, obID)
	assert.True(t, money("100").Equal(ob.Amount), "amount follows final value, got %s", ob.Amount)

	rec, _ := f.store.GetCommission(ctx, id)
	require.NotNil(t, rec.PayableObligationID)
	assert.Equal(t, obID, *rec.PayableObligationID)
}

func TestApprove_ReapprovalKeepsInstallmentAmount(t *testing.T) {
	// GIVEN: A 60.00 commission linked to a 30.00 first installment
	// WHEN: Re-approving, unchanged and then with a new appointment
	// THEN: The installment keeps its own amount

	f := newFixture(t)
	ctx := context.Background()

	id, err := f.ledger.Approve(ctx, approveInput(t, paidAppointment("a1", "P1", 3, "150.00", "40")))
	require.NoError(t, err)
	obID := linkObligation(t, f, id, core.PayablePending, "30.00")

	_, err = f.ledger.Approve(ctx, approveInput(t, paidAppointment("a1", "P1", 3, "150.00", "40")))
	require.NoError(t, err)
	ob, _ := f.store.GetPayable(ctx, obID)
	assert.Equal(t, "30.00", ob.Amount.StringFixed(2))

	_, err = f.ledger.Approve(ctx, approveInput(t,
		paidAppointment("a1", "P1", 3, "150.00", "40"),
		paidAppointment("a2", "P1", 4, "100.00", "40"),
	))
	require.NoError(t, err)
	ob, _ = f.store.GetPayable(ctx, obID)
	assert.Equal(t, "30.00", ob.Amount.StringFixed(2))

	rec, _ := f.store.GetCommission(ctx, id)
	require.NotNil(t, rec.PayableObligationID)
	assert.Equal(t, obID, *rec.PayableObligationID)
}

func TestApprove_ReapprovalUnlinksCancelledObligation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.ledger.Approve(ctx, approveInput(t, paidAppointment("a1", "P1", 3, "150.00", "40")))
	require.NoError(t, err)
	obID := linkObligation(t, f, id, core.PayableCancelled, "60.00")

	_, err = f.ledger.Approve(ctx, approveInput(t, paidAppointment("a1", "P1", 3, "150.00", "40")))
	require.NoError(t, err)

	rec, _ := f.store.GetCommission(ctx, id)
	assert.Nil(t, rec.PayableObligationID)

	ob, _ := f.store.GetPayable(ctx, obID)
	assert.Equal(t, core.PayableCancelled, ob.Status)
}

func TestApprove_ConcurrentSameKeyLeavesConsistentSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inputs := []commission.ApproveInput{
		approveInput(t, paidAppointment("a1", "P1", 3, "150.00", "40")),
		approveInput(t,
			paidAppointment("a1", "P1", 3, "150.00", "40"),
			paidAppointment("a2", "P1", 4, "100.00", "40"),
			paidAppointment("a3", "P1", 5, "50.00", "40"),
		),
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(in commission.ApproveInput) {
			defer wg.Done()
			_, err := f.ledger.Approve(ctx, in)
			assert.NoError(t, err)
		}(inputs[i%2])
	}
	wg.Wait()

	rec, err := f.store.FindCommission(ctx, "P1", march2025)
	require.NoError(t, err)
	items, _ := f.store.LineItems(ctx, rec.ID)
	assert.Equal(t, rec.Totals.TotalAppointments, len(items))
	assert.True(t, core.WithinCent(core.SumCommission(items), rec.Totals.TotalCommission))
}

func TestApprove_LockTimeoutSurfaces(t *testing.T) {
	f := newFixture(t)
	locker := lock.NewKeyed()
	f.ledger.Locker = locker

	unlock, err := locker.Lock(context.Background(), commission.ApprovalKey("P1", march2025))
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.ledger.Approve(ctx, approveInput(t, paidAppointment("a1", "P1", 3, "150.00", "40")))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// linkObligation inserts an obligation and links it both ways.
func linkObligation(t *testing.T, f *fixture, id core.CommissionID, status core.PayableStatus, amount string) core.PayableID {
	t.Helper()
	ctx := context.Background()
	obID := core.NewPayableID()
	require.NoError(t, f.store.InsertPayables(ctx, []core.PayableObligation{{
		ID:                 obID,
		Description:        "Commission Ana - 03/2025",
		Category:           core.CategoryCommission,
		Amount:             money(amount),
		DueDate:            core.NewDate(2025, time.March, 5),
		Status:             status,
		LinkedCommissionID: &id,
	}}))
	rec, _ := f.store.GetCommission(ctx, id)
	rec.PayableObligationID = &obID
	require.NoError(t, f.store.UpdateCommission(ctx, *rec))
	return obID
}
