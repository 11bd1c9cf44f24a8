// Package store provides an in-memory core.TxStore.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/salon-ledger/core"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	data     memoryData
	failures map[string]error
	now      func() time.Time
}

type commissionKey struct {
	ProfessionalID core.ProfessionalID
	Start          time.Time
	End            time.Time
}

func keyOf(id core.ProfessionalID, p core.Period) commissionKey {
	return commissionKey{ProfessionalID: id, Start: p.Start, End: p.End}
}

type memoryData struct {
	commissions    map[core.CommissionID]core.CommissionRecord
	byKey          map[commissionKey]core.CommissionID
	lineItems      map[core.CommissionID][]core.CommissionLineItem
	payables       map[core.PayableID]core.PayableObligation
	professionals  map[core.ProfessionalID]core.Professional
	appointments   []core.AppointmentFact
	purchaseOrders map[core.PurchaseOrderID]core.PurchaseOrder
}

func NewMemory() *Memory {
	return &Memory{
		data: memoryData{
			commissions:    make(map[core.CommissionID]core.CommissionRecord),
			byKey:          make(map[commissionKey]core.CommissionID),
			lineItems:      make(map[core.CommissionID][]core.CommissionLineItem),
			payables:       make(map[core.PayableID]core.PayableObligation),
			professionals:  make(map[core.ProfessionalID]core.Professional),
			purchaseOrders: make(map[core.PurchaseOrderID]core.PurchaseOrder),
		},
		failures: make(map[string]error),
		now:      core.SystemClock,
	}
}

// FailNext makes the next call of op (a method name such as
// "ReplaceLineItems") return err. Used by tests to exercise rollback.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

// =============================================================================
// SEEDING - external facts are written by other parts of the back office
// =============================================================================

func (m *Memory) AddProfessional(p core.Professional) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.professionals[p.ID] = p
}

func (m *Memory) AddAppointment(a core.AppointmentFact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.appointments = append(m.data.appointments, cloneAppointment(a))
}

// RemoveAppointment drops an appointment by id (simulates an edit upstream).
func (m *Memory) RemoveAppointment(id core.AppointmentID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.data.appointments[:0]
	for _, a := range m.data.appointments {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	m.data.appointments = kept
}

func (m *Memory) AddPurchaseOrder(po core.PurchaseOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.purchaseOrders[po.ID] = po
}

// SaveProfessional, SaveAppointment and SavePurchaseOrder mirror the SQLite
// seeding API so both stores can back the HTTP layer.
func (m *Memory) SaveProfessional(_ context.Context, p core.Professional) error {
	m.AddProfessional(p)
	return nil
}

// SaveAppointment replaces an appointment with the same id.
func (m *Memory) SaveAppointment(_ context.Context, a core.AppointmentFact) error {
	m.RemoveAppointment(a.ID)
	m.AddAppointment(a)
	return nil
}

func (m *Memory) SavePurchaseOrder(_ context.Context, po core.PurchaseOrder) error {
	m.AddPurchaseOrder(po)
	return nil
}

// Reset clears all data.
func (m *Memory) Reset(_ context.Context) error {
	fresh := NewMemory()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = fresh.data
	return nil
}

// =============================================================================
// core.Store - locking wrappers around memoryOps
// =============================================================================

func (m *Memory) ops() *memoryOps { return &memoryOps{m: m} }

func (m *Memory) GetCommission(ctx context.Context, id core.CommissionID) (*core.CommissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ops().GetCommission(ctx, id)
}

func (m *Memory) FindCommission(ctx context.Context, professionalID core.ProfessionalID, period core.Period) (*core.CommissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ops().FindCommission(ctx, professionalID, period)
}

func (m *Memory) ListCommissions(ctx context.Context, period core.Period) ([]core.CommissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ops().ListCommissions(ctx, period)
}

func (m *Memory) UpsertCommission(ctx context.Context, rec core.CommissionRecord) (core.CommissionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops().UpsertCommission(ctx, rec)
}

func (m *Memory) UpdateCommission(ctx context.Context, rec core.CommissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops().UpdateCommission(ctx, rec)
}

func (m *Memory) ReplaceLineItems(ctx context.Context, commissionID core.CommissionID, items []core.CommissionLineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops().ReplaceLineItems(ctx, commissionID, items)
}

func (m *Memory) LineItems(ctx context.Context, commissionID core.CommissionID) ([]core.CommissionLineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ops().LineItems(ctx, commissionID)
}

func (m *Memory) InsertPayables(ctx context.Context, obligations []core.PayableObligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops().InsertPayables(ctx, obligations)
}

func (m *Memory) GetPayable(ctx context.Context, id core.PayableID) (*core.PayableObligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ops().GetPayable(ctx, id)
}

func (m *Memory) UpdatePayable(ctx context.Context, p core.PayableObligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops().UpdatePayable(ctx, p)
}

func (m *Memory) DeletePayable(ctx context.Context, id core.PayableID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops().DeletePayable(ctx, id)
}

func (m *Memory) ListPayables(ctx context.Context, filter core.PayableFilter) ([]core.PayableObligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ops().ListPayables(ctx, filter)
}

func (m *Memory) Professionals(ctx context.Context) ([]core.Professional, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ops().Professionals(ctx)
}

func (m *Memory) GetProfessional(ctx context.Context, id core.ProfessionalID) (*core.Professional, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ops().GetProfessional(ctx, id)
}

func (m *Memory) CommissionableAppointments(ctx context.Context, period core.Period, professionalID core.ProfessionalID) ([]core.AppointmentFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ops().CommissionableAppointments(ctx, period, professionalID)
}

func (m *Memory) GetPurchaseOrder(ctx context.Context, id core.PurchaseOrderID) (*core.PurchaseOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ops().GetPurchaseOrder(ctx, id)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(core.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(m.ops()); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (d memoryData) clone() memoryData {
	c := memoryData{
		commissions:    make(map[core.CommissionID]core.CommissionRecord, len(d.commissions)),
		byKey:          make(map[commissionKey]core.CommissionID, len(d.byKey)),
		lineItems:      make(map[core.CommissionID][]core.CommissionLineItem, len(d.lineItems)),
		payables:       make(map[core.PayableID]core.PayableObligation, len(d.payables)),
		professionals:  make(map[core.ProfessionalID]core.Professional, len(d.professionals)),
		appointments:   append([]core.AppointmentFact(nil), d.appointments...),
		purchaseOrders: make(map[core.PurchaseOrderID]core.PurchaseOrder, len(d.purchaseOrders)),
	}
	for k, v := range d.commissions {
		c.commissions[k] = cloneCommission(v)
	}
	for k, v := range d.byKey {
		c.byKey[k] = v
	}
	for k, v := range d.lineItems {
		c.lineItems[k] = append([]core.CommissionLineItem(nil), v...)
	}
	for k, v := range d.payables {
		c.payables[k] = clonePayable(v)
	}
	for k, v := range d.professionals {
		c.professionals[k] = v
	}
	for k, v := range d.purchaseOrders {
		c.purchaseOrders[k] = v
	}
	return c
}

// =============================================================================
// memoryOps - unlocked implementation shared by Memory and WithTx
// =============================================================================

type memoryOps struct {
	m *Memory
}

func (o *memoryOps) fail(op string) error {
	if err, ok := o.m.failures[op]; ok {
		delete(o.m.failures, op)
		return err
	}
	return nil
}

func (o *memoryOps) GetCommission(_ context.Context, id core.CommissionID) (*core.CommissionRecord, error) {
	if err := o.fail("GetCommission"); err != nil {
		return nil, err
	}
	rec, ok := o.m.data.commissions[id]
	if !ok {
		return nil, nil
	}
	rec = cloneCommission(rec)
	return &rec, nil
}

func (o *memoryOps) FindCommission(ctx context.Context, professionalID core.ProfessionalID, period core.Period) (*core.CommissionRecord, error) {
	id, ok := o.m.data.byKey[keyOf(professionalID, period)]
	if !ok {
		return nil, nil
	}
	return o.GetCommission(ctx, id)
}

func (o *memoryOps) ListCommissions(_ context.Context, period core.Period) ([]core.CommissionRecord, error) {
	var out []core.CommissionRecord
	for _, rec := range o.m.data.commissions {
		if rec.Period.Start.Equal(period.Start) && rec.Period.End.Equal(period.End) {
			out = append(out, cloneCommission(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProfessionalID < out[j].ProfessionalID })
	return out, nil
}

func (o *memoryOps) UpsertCommission(_ context.Context, rec core.CommissionRecord) (core.CommissionRecord, error) {
	if err := o.fail("UpsertCommission"); err != nil {
		return core.CommissionRecord{}, err
	}
	now := o.m.now()
	k := keyOf(rec.ProfessionalID, rec.Period)
	if id, ok := o.m.data.byKey[k]; ok {
		existing := o.m.data.commissions[id]
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	} else {
		if rec.ID == "" {
			rec.ID = core.NewCommissionID()
		}
		rec.CreatedAt = now
		o.m.data.byKey[k] = rec.ID
	}
	rec.UpdatedAt = now
	o.m.data.commissions[rec.ID] = cloneCommission(rec)
	return cloneCommission(rec), nil
}

func (o *memoryOps) UpdateCommission(_ context.Context, rec core.CommissionRecord) error {
	if err := o.fail("UpdateCommission"); err != nil {
		return err
	}
	existing, ok := o.m.data.commissions[rec.ID]
	if !ok {
		return core.ErrCommissionNotFound
	}
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = o.m.now()
	o.m.data.commissions[rec.ID] = cloneCommission(rec)
	return nil
}

func (o *memoryOps) ReplaceLineItems(_ context.Context, commissionID core.CommissionID, items []core.CommissionLineItem) error {
	if err := o.fail("ReplaceLineItems"); err != nil {
		return err
	}
	if _, ok := o.m.data.commissions[commissionID]; !ok {
		return core.ErrCommissionNotFound
	}
	replaced := make([]core.CommissionLineItem, len(items))
	for i, it := range items {
		it.CommissionID = commissionID
		if it.ID == "" {
			it.ID = core.NewLineItemID()
		}
		replaced[i] = it
	}
	sort.Slice(replaced, func(i, j int) bool { return replaced[i].AppointmentID < replaced[j].AppointmentID })
	o.m.data.lineItems[commissionID] = replaced
	return nil
}

func (o *memoryOps) LineItems(_ context.Context, commissionID core.CommissionID) ([]core.CommissionLineItem, error) {
	return append([]core.CommissionLineItem(nil), o.m.data.lineItems[commissionID]...), nil
}

func (o *memoryOps) InsertPayables(_ context.Context, obligations []core.PayableObligation) error {
	if err := o.fail("InsertPayables"); err != nil {
		return err
	}
	// Check all ids first (atomic check)
	for _, p := range obligations {
		if _, exists := o.m.data.payables[p.ID]; exists || p.ID == "" {
			return core.Invalid("id", "duplicate or empty payable id %q", p.ID)
		}
	}
	now := o.m.now()
	for _, p := range obligations {
		p.CreatedAt, p.UpdatedAt = now, now
		o.m.data.payables[p.ID] = clonePayable(p)
	}
	return nil
}

func (o *memoryOps) GetPayable(_ context.Context, id core.PayableID) (*core.PayableObligation, error) {
	if err := o.fail("GetPayable"); err != nil {
		return nil, err
	}
	p, ok := o.m.data.payables[id]
	if !ok {
		return nil, nil
	}
	p = clonePayable(p)
	return &p, nil
}

func (o *memoryOps) UpdatePayable(_ context.Context, p core.PayableObligation) error {
	if err := o.fail("UpdatePayable"); err != nil {
		return err
	}
	existing, ok := o.m.data.payables[p.ID]
	if !ok {
		return core.ErrPayableNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = o.m.now()
	o.m.data.payables[p.ID] = clonePayable(p)
	return nil
}

func (o *memoryOps) DeletePayable(_ context.Context, id core.PayableID) error {
	if err := o.fail("DeletePayable"); err != nil {
		return err
	}
	if _, ok := o.m.data.payables[id]; !ok {
		return core.ErrPayableNotFound
	}
	delete(o.m.data.payables, id)
	return nil
}

func (o *memoryOps) ListPayables(_ context.Context, filter core.PayableFilter) ([]core.PayableObligation, error) {
	var out []core.PayableObligation
	for _, p := range o.m.data.payables {
		if filter.Matches(p) {
			out = append(out, clonePayable(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].Description < out[j].Description
	})
	return out, nil
}

func (o *memoryOps) Professionals(_ context.Context) ([]core.Professional, error) {
	out := make([]core.Professional, 0, len(o.m.data.professionals))
	for _, p := range o.m.data.professionals {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (o *memoryOps) GetProfessional(_ context.Context, id core.ProfessionalID) (*core.Professional, error) {
	p, ok := o.m.data.professionals[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (o *memoryOps) CommissionableAppointments(_ context.Context, period core.Period, professionalID core.ProfessionalID) ([]core.AppointmentFact, error) {
	if err := o.fail("CommissionableAppointments"); err != nil {
		return nil, err
	}
	var out []core.AppointmentFact
	for _, a := range o.m.data.appointments {
		if !a.Commissionable() || !period.Contains(a.Date) {
			continue
		}
		if professionalID != "" && a.ProfessionalID != professionalID {
			continue
		}
		out = append(out, cloneAppointment(a))
	}
	return out, nil
}

func (o *memoryOps) GetPurchaseOrder(_ context.Context, id core.PurchaseOrderID) (*core.PurchaseOrder, error) {
	po, ok := o.m.data.purchaseOrders[id]
	if !ok {
		return nil, nil
	}
	return &po, nil
}

// =============================================================================
// CLONING - records carry pointers; never hand out shared ones
// =============================================================================

func cloneCommission(r core.CommissionRecord) core.CommissionRecord {
	if r.PayableObligationID != nil {
		id := *r.PayableObligationID
		r.PayableObligationID = &id
	}
	return r
}

func clonePayable(p core.PayableObligation) core.PayableObligation {
	if p.PaymentDate != nil {
		d := *p.PaymentDate
		p.PaymentDate = &d
	}
	if p.LinkedCommissionID != nil {
		id := *p.LinkedCommissionID
		p.LinkedCommissionID = &id
	}
	if p.LinkedSupplierID != nil {
		id := *p.LinkedSupplierID
		p.LinkedSupplierID = &id
	}
	if p.LinkedPurchaseOrderID != nil {
		id := *p.LinkedPurchaseOrderID
		p.LinkedPurchaseOrderID = &id
	}
	return p
}

func cloneAppointment(a core.AppointmentFact) core.AppointmentFact {
	if a.PaymentAmount != nil {
		v := *a.PaymentAmount
		a.PaymentAmount = &v
	}
	return a
}
