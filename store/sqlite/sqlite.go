/*
Package sqlite provides a SQLite-backed implementation of core.TxStore.

PURPOSE:
  Persists commission records, their line items and payable obligations,
  plus the roster, appointment and purchase-order facts the engine reads.
  In production the same statements run on PostgreSQL with only minor
  dialect differences.

KEY TABLES:
  commissions:           one row per (professional_id, period_start, period_end)
  commission_line_items: owned by a commission, replaced wholesale on approve
  payable_obligations:   outgoing payments, optionally back-linked to a commission
  professionals:         roster (pay day, active flag)
  appointments:          appointment facts with their priced service
  purchase_orders:       supplier order references

CONSTRAINTS:
  - UNIQUE(professional_id, period_start, period_end) on commissions
  - line items cascade-delete with their commission
  - amounts are TEXT decimals; dates are YYYY-MM-DD text so range
    predicates compare lexicographically

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole transaction and every call made through the store it hands to fn
  runs on the same *sql.Tx.

USAGE:
  store, err := sqlite.New("./data/salon.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - core/store.go: Interface definitions
  - core/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/salon-ledger/core"
)

// Store implements core.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  queries
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, q: queries{db: db, now: core.SystemClock}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Roster
	CREATE TABLE IF NOT EXISTS professionals (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		pay_day INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- Appointment facts (written by scheduling, read here)
	CREATE TABLE IF NOT EXISTS appointments (
		id TEXT PRIMARY KEY,
		professional_id TEXT NOT NULL,
		client_id TEXT NOT NULL DEFAULT '',
		service_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		payment_amount TEXT,
		service_price TEXT NOT NULL DEFAULT '0',
		commission_percentage TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	-- Hot path: one professional's commissionable month
	CREATE INDEX IF NOT EXISTS idx_appointments_professional_date
		ON appointments(professional_id, date);
	CREATE INDEX IF NOT EXISTS idx_appointments_date
		ON appointments(date);

	-- Purchase orders (amount source for supplier obligations)
	CREATE TABLE IF NOT EXISTS purchase_orders (
		id TEXT PRIMARY KEY,
		supplier_id TEXT NOT NULL DEFAULT '',
		quantity TEXT NOT NULL,
		cost_price TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Commission records (current state, upserted on approve)
	CREATE TABLE IF NOT EXISTS commissions (
		id TEXT PRIMARY KEY,
		professional_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		total_appointments INTEGER NOT NULL DEFAULT 0,
		total_revenue TEXT NOT NULL,
		total_commission TEXT NOT NULL,
		bonuses TEXT NOT NULL,
		final_value TEXT NOT NULL,
		status TEXT NOT NULL,
		payable_obligation_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(professional_id, period_start, period_end)
	);

	CREATE INDEX IF NOT EXISTS idx_commissions_period
		ON commissions(period_start, period_end);

	CREATE TABLE IF NOT EXISTS commission_line_items (
		id TEXT PRIMARY KEY,
		commission_id TEXT NOT NULL REFERENCES commissions(id) ON DELETE CASCADE,
		appointment_id TEXT NOT NULL,
		service_value TEXT NOT NULL,
		commission_percentage TEXT NOT NULL,
		commission_value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_line_items_commission
		ON commission_line_items(commission_id);

	-- Payable obligations
	CREATE TABLE IF NOT EXISTS payable_obligations (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		payment_date TEXT,
		status TEXT NOT NULL,
		linked_commission_id TEXT,
		linked_supplier_id TEXT,
		linked_purchase_order_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (status <> 'PAID' OR payment_date IS NOT NULL)
	);

	CREATE INDEX IF NOT EXISTS idx_payables_status_due
		ON payable_obligations(status, due_date);
	CREATE INDEX IF NOT EXISTS idx_payables_commission
		ON payable_obligations(linked_commission_id) WHERE linked_commission_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// core.Store - locking wrappers
// =============================================================================

func (s *Store) GetCommission(ctx context.Context, id core.CommissionID) (*core.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetCommission(ctx, id)
}

func (s *Store) FindCommission(ctx context.Context, professionalID core.ProfessionalID, period core.Period) (*core.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.FindCommission(ctx, professionalID, period)
}

func (s *Store) ListCommissions(ctx context.Context, period core.Period) ([]core.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListCommissions(ctx, period)
}

func (s *Store) UpsertCommission(ctx context.Context, rec core.CommissionRecord) (core.CommissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.UpsertCommission(ctx, rec)
}

func (s *Store) UpdateCommission(ctx context.Context, rec core.CommissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.UpdateCommission(ctx, rec)
}

// ReplaceLineItems runs its delete and inserts in their own transaction
// when called outside WithTx.
func (s *Store) ReplaceLineItems(ctx context.Context, commissionID core.CommissionID, items []core.CommissionLineItem) error {
	return s.WithTx(ctx, func(tx core.Store) error {
		return tx.ReplaceLineItems(ctx, commissionID, items)
	})
}

func (s *Store) LineItems(ctx context.Context, commissionID core.CommissionID) ([]core.CommissionLineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.LineItems(ctx, commissionID)
}

// InsertPayables writes all obligations or none.
func (s *Store) InsertPayables(ctx context.Context, obligations []core.PayableObligation) error {
	return s.WithTx(ctx, func(tx core.Store) error {
		return tx.InsertPayables(ctx, obligations)
	})
}

func (s *Store) GetPayable(ctx context.Context, id core.PayableID) (*core.PayableObligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetPayable(ctx, id)
}

func (s *Store) UpdatePayable(ctx context.Context, p core.PayableObligation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.UpdatePayable(ctx, p)
}

func (s *Store) DeletePayable(ctx context.Context, id core.PayableID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DeletePayable(ctx, id)
}

func (s *Store) ListPayables(ctx context.Context, filter core.PayableFilter) ([]core.PayableObligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListPayables(ctx, filter)
}

func (s *Store) Professionals(ctx context.Context) ([]core.Professional, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.Professionals(ctx)
}

func (s *Store) GetProfessional(ctx context.Context, id core.ProfessionalID) (*core.Professional, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetProfessional(ctx, id)
}

func (s *Store) CommissionableAppointments(ctx context.Context, period core.Period, professionalID core.ProfessionalID) ([]core.AppointmentFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.CommissionableAppointments(ctx, period, professionalID)
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id core.PurchaseOrderID) (*core.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetPurchaseOrder(ctx, id)
}

// =============================================================================
// TRANSACTIONAL STORE (core.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
// The store passed to fn does not lock; it must not escape fn.
func (s *Store) WithTx(ctx context.Context, fn func(store core.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &queries{db: sqlTx, now: s.q.now}
	if err := fn(txStore); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// SEEDING - facts owned by other parts of the back office
// =============================================================================

// SaveProfessional inserts or replaces a roster entry.
func (s *Store) SaveProfessional(ctx context.Context, p core.Professional) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO professionals (id, name, pay_day, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, pay_day = excluded.pay_day, active = excluded.active
	`, p.ID, p.Name, p.PayDay, p.Active, stamp(s.q.now()))
	if err != nil {
		return fmt.Errorf("failed to save professional: %w", err)
	}
	return nil
}

// SaveAppointment inserts or replaces an appointment fact.
func (s *Store) SaveAppointment(ctx context.Context, a core.AppointmentFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appointments
		(id, professional_id, client_id, service_id, date, status, payment_status,
		 payment_amount, service_price, commission_percentage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			professional_id = excluded.professional_id,
			client_id = excluded.client_id,
			service_id = excluded.service_id,
			date = excluded.date,
			status = excluded.status,
			payment_status = excluded.payment_status,
			payment_amount = excluded.payment_amount,
			service_price = excluded.service_price,
			commission_percentage = excluded.commission_percentage
	`,
		a.ID, a.ProfessionalID, a.ClientID, a.Service.ID,
		core.FormatDate(a.Date), a.Status, a.PaymentStatus,
		nullDecimal(a.PaymentAmount),
		a.Service.Price.String(), a.Service.CommissionPercentage.String(),
		stamp(s.q.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save appointment: %w", err)
	}
	return nil
}

// SavePurchaseOrder inserts or replaces a purchase order reference.
func (s *Store) SavePurchaseOrder(ctx context.Context, po core.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, supplier_id, quantity, cost_price, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			supplier_id = excluded.supplier_id,
			quantity = excluded.quantity,
			cost_price = excluded.cost_price
	`, po.ID, po.SupplierID, po.Quantity.String(), po.CostPrice.String(), stamp(s.q.now()))
	if err != nil {
		return fmt.Errorf("failed to save purchase order: %w", err)
	}
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"commission_line_items", "commissions", "payable_obligations",
		"appointments", "purchase_orders", "professionals",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// queries - unlocked statements shared by Store and WithTx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db  querier
	now func() time.Time
}

const commissionColumns = `id, professional_id, period_start, period_end, total_appointments,
	total_revenue, total_commission, bonuses, final_value, status,
	payable_obligation_id, created_at, updated_at`

func (q *queries) GetCommission(ctx context.Context, id core.CommissionID) (*core.CommissionRecord, error) {
	return q.oneCommission(ctx, `SELECT `+commissionColumns+` FROM commissions WHERE id = ?`, id)
}

func (q *queries) FindCommission(ctx context.Context, professionalID core.ProfessionalID, period core.Period) (*core.CommissionRecord, error) {
	return q.oneCommission(ctx, `
		SELECT `+commissionColumns+` FROM commissions
		WHERE professional_id = ? AND period_start = ? AND period_end = ?
	`, professionalID, core.FormatDate(period.Start), core.FormatDate(period.End))
}

func (q *queries) ListCommissions(ctx context.Context, period core.Period) ([]core.CommissionRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+commissionColumns+` FROM commissions
		WHERE period_start = ? AND period_end = ?
		ORDER BY professional_id
	`, core.FormatDate(period.Start), core.FormatDate(period.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.CommissionRecord
	for rows.Next() {
		rec, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (q *queries) oneCommission(ctx context.Context, query string, args ...any) (*core.CommissionRecord, error) {
	rec, err := scanCommission(q.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpsertCommission keeps the existing id and created_at on conflict.
func (q *queries) UpsertCommission(ctx context.Context, rec core.CommissionRecord) (core.CommissionRecord, error) {
	if rec.ID == "" {
		rec.ID = core.NewCommissionID()
	}
	now := stamp(q.now())
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO commissions (`+commissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(professional_id, period_start, period_end) DO UPDATE SET
			total_appointments = excluded.total_appointments,
			total_revenue = excluded.total_revenue,
			total_commission = excluded.total_commission,
			bonuses = excluded.bonuses,
			final_value = excluded.final_value,
			status = excluded.status,
			payable_obligation_id = excluded.payable_obligation_id,
			updated_at = excluded.updated_at
	`,
		rec.ID, rec.ProfessionalID,
		core.FormatDate(rec.Period.Start), core.FormatDate(rec.Period.End),
		rec.Totals.TotalAppointments,
		money(rec.Totals.TotalRevenue), money(rec.Totals.TotalCommission),
		money(rec.Totals.Bonuses), money(rec.Totals.FinalValue),
		rec.Status, nullID(rec.PayableObligationID),
		now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.CommissionRecord{}, core.ErrDuplicateCommission
		}
		return core.CommissionRecord{}, fmt.Errorf("failed to upsert commission: %w", err)
	}

	saved, err := q.FindCommission(ctx, rec.ProfessionalID, rec.Period)
	if err != nil {
		return core.CommissionRecord{}, err
	}
	if saved == nil {
		return core.CommissionRecord{}, fmt.Errorf("commission %s vanished after upsert", rec.ID)
	}
	return *saved, nil
}

func (q *queries) UpdateCommission(ctx context.Context, rec core.CommissionRecord) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE commissions SET
			total_appointments = ?, total_revenue = ?, total_commission = ?,
			bonuses = ?, final_value = ?, status = ?, payable_obligation_id = ?,
			updated_at = ?
		WHERE id = ?
	`,
		rec.Totals.TotalAppointments,
		money(rec.Totals.TotalRevenue), money(rec.Totals.TotalCommission),
		money(rec.Totals.Bonuses), money(rec.Totals.FinalValue),
		rec.Status, nullID(rec.PayableObligationID),
		stamp(q.now()), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update commission: %w", err)
	}
	return expectOne(res, core.ErrCommissionNotFound)
}

func (q *queries) ReplaceLineItems(ctx context.Context, commissionID core.CommissionID, items []core.CommissionLineItem) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM commission_line_items WHERE commission_id = ?`, commissionID); err != nil {
		return fmt.Errorf("failed to delete line items: %w", err)
	}
	for _, it := range items {
		if it.ID == "" {
			it.ID = core.NewLineItemID()
		}
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO commission_line_items
			(id, commission_id, appointment_id, service_value, commission_percentage, commission_value)
			VALUES (?, ?, ?, ?, ?, ?)
		`, it.ID, commissionID, it.AppointmentID,
			money(it.ServiceValue), it.CommissionPercentage.String(), money(it.CommissionValue))
		if err != nil {
			if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
				return core.ErrCommissionNotFound
			}
			return fmt.Errorf("failed to insert line item: %w", err)
		}
	}
	return nil
}

func (q *queries) LineItems(ctx context.Context, commissionID core.CommissionID) ([]core.CommissionLineItem, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, commission_id, appointment_id, service_value, commission_percentage, commission_value
		FROM commission_line_items
		WHERE commission_id = ?
		ORDER BY appointment_id
	`, commissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.CommissionLineItem
	for rows.Next() {
		var it core.CommissionLineItem
		if err := rows.Scan(&it.ID, &it.CommissionID, &it.AppointmentID,
			&it.ServiceValue, &it.CommissionPercentage, &it.CommissionValue); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

const payableColumns = `id, description, category, amount, due_date, payment_date, status,
	linked_commission_id, linked_supplier_id, linked_purchase_order_id, created_at, updated_at`

func (q *queries) InsertPayables(ctx context.Context, obligations []core.PayableObligation) error {
	now := stamp(q.now())
	for _, p := range obligations {
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO payable_obligations (`+payableColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			p.ID, p.Description, p.Category, money(p.Amount),
			core.FormatDate(p.DueDate), nullDate(p.PaymentDate), p.Status,
			nullID(p.LinkedCommissionID), nullID(p.LinkedSupplierID), nullID(p.LinkedPurchaseOrderID),
			now, now,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return core.Invalid("id", "duplicate payable id %q", p.ID)
			}
			return fmt.Errorf("failed to insert payable: %w", err)
		}
	}
	return nil
}

func (q *queries) GetPayable(ctx context.Context, id core.PayableID) (*core.PayableObligation, error) {
	p, err := scanPayable(q.db.QueryRowContext(ctx, `SELECT `+payableColumns+` FROM payable_obligations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *queries) UpdatePayable(ctx context.Context, p core.PayableObligation) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE payable_obligations SET
			description = ?, category = ?, amount = ?, due_date = ?, payment_date = ?,
			status = ?, linked_commission_id = ?, linked_supplier_id = ?,
			linked_purchase_order_id = ?, updated_at = ?
		WHERE id = ?
	`,
		p.Description, p.Category, money(p.Amount),
		core.FormatDate(p.DueDate), nullDate(p.PaymentDate), p.Status,
		nullID(p.LinkedCommissionID), nullID(p.LinkedSupplierID), nullID(p.LinkedPurchaseOrderID),
		stamp(q.now()), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payable: %w", err)
	}
	return expectOne(res, core.ErrPayableNotFound)
}

func (q *queries) DeletePayable(ctx context.Context, id core.PayableID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM payable_obligations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payable: %w", err)
	}
	return expectOne(res, core.ErrPayableNotFound)
}

func (q *queries) ListPayables(ctx context.Context, filter core.PayableFilter) ([]core.PayableObligation, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.DueFrom != nil {
		where = append(where, "due_date >= ?")
		args = append(args, core.FormatDate(*filter.DueFrom))
	}
	if filter.DueTo != nil {
		where = append(where, "due_date < ?")
		args = append(args, core.FormatDate(*filter.DueTo))
	}

	query := `SELECT ` + payableColumns + ` FROM payable_obligations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY due_date, description"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.PayableObligation
	for rows.Next() {
		p, err := scanPayable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *queries) Professionals(ctx context.Context) ([]core.Professional, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, name, pay_day, active FROM professionals ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Professional
	for rows.Next() {
		var p core.Professional
		if err := rows.Scan(&p.ID, &p.Name, &p.PayDay, &p.Active); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *queries) GetProfessional(ctx context.Context, id core.ProfessionalID) (*core.Professional, error) {
	var p core.Professional
	err := q.db.QueryRowContext(ctx, `SELECT id, name, pay_day, active FROM professionals WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.PayDay, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *queries) CommissionableAppointments(ctx context.Context, period core.Period, professionalID core.ProfessionalID) ([]core.AppointmentFact, error) {
	query := `
		SELECT id, professional_id, client_id, service_id, date, status, payment_status,
		       payment_amount, service_price, commission_percentage
		FROM appointments
		WHERE status = ? AND payment_status = ? AND date >= ? AND date < ?`
	args := []any{
		core.AppointmentCompleted, core.PaymentPaid,
		core.FormatDate(period.Start), core.FormatDate(period.End),
	}
	if professionalID != "" {
		query += ` AND professional_id = ?`
		args = append(args, professionalID)
	}
	query += ` ORDER BY professional_id, date, id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.AppointmentFact
	for rows.Next() {
		var (
			a       core.AppointmentFact
			date    string
			payment decimal.NullDecimal
		)
		if err := rows.Scan(&a.ID, &a.ProfessionalID, &a.ClientID, &a.Service.ID, &date,
			&a.Status, &a.PaymentStatus, &payment, &a.Service.Price, &a.Service.CommissionPercentage); err != nil {
			return nil, err
		}
		if a.Date, err = time.Parse(core.DateLayout, date); err != nil {
			return nil, fmt.Errorf("appointment %s: bad date %q: %w", a.ID, date, err)
		}
		if payment.Valid {
			v := payment.Decimal
			a.PaymentAmount = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *queries) GetPurchaseOrder(ctx context.Context, id core.PurchaseOrderID) (*core.PurchaseOrder, error) {
	var po core.PurchaseOrder
	err := q.db.QueryRowContext(ctx, `SELECT id, supplier_id, quantity, cost_price FROM purchase_orders WHERE id = ?`, id).
		Scan(&po.ID, &po.SupplierID, &po.Quantity, &po.CostPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &po, nil
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanCommission(row scanner) (core.CommissionRecord, error) {
	var (
		rec                  core.CommissionRecord
		start, end           string
		obligation           sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&rec.ID, &rec.ProfessionalID, &start, &end,
		&rec.Totals.TotalAppointments, &rec.Totals.TotalRevenue, &rec.Totals.TotalCommission,
		&rec.Totals.Bonuses, &rec.Totals.FinalValue, &rec.Status,
		&obligation, &createdAt, &updatedAt)
	if err != nil {
		return rec, err
	}
	if rec.Period.Start, err = time.Parse(core.DateLayout, start); err != nil {
		return rec, err
	}
	if rec.Period.End, err = time.Parse(core.DateLayout, end); err != nil {
		return rec, err
	}
	if obligation.Valid {
		id := core.PayableID(obligation.String)
		rec.PayableObligationID = &id
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rec, nil
}

func scanPayable(row scanner) (core.PayableObligation, error) {
	var (
		p                           core.PayableObligation
		due                         string
		paid                        sql.NullString
		commission, supplier, order sql.NullString
		createdAt, updatedAt        string
	)
	err := row.Scan(&p.ID, &p.Description, &p.Category, &p.Amount, &due, &paid, &p.Status,
		&commission, &supplier, &order, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}
	if p.DueDate, err = time.Parse(core.DateLayout, due); err != nil {
		return p, err
	}
	if paid.Valid {
		d, err := time.Parse(core.DateLayout, paid.String)
		if err != nil {
			return p, err
		}
		p.PaymentDate = &d
	}
	if commission.Valid {
		id := core.CommissionID(commission.String)
		p.LinkedCommissionID = &id
	}
	if supplier.Valid {
		id := core.SupplierID(supplier.String)
		p.LinkedSupplierID = &id
	}
	if order.Valid {
		id := core.PurchaseOrderID(order.String)
		p.LinkedPurchaseOrderID = &id
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// money renders an amount with exactly two decimals.
func money(d decimal.Decimal) string { return d.StringFixed(core.Cents) }

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: core.FormatDate(*t), Valid: true}
}

func nullID[T ~string](id *T) sql.NullString {
	if id == nil || *id == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
