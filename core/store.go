/*
store.go - Persistence contracts

PURPOSE:
  Defines the interface between the engine and the database. Unlike a pure
  append-only ledger, commission records are upserted in place (only the
  current state is kept), so the contracts expose explicit upsert/replace
  operations and a transactional wrapper for multi-step writes.

KEY INTERFACES:
  CommissionStore: commission records + line items
  PayableStore:    payable obligations
  ReferenceStore:  read-only facts owned by other parts of the back office
  Store:           all of the above
  TxStore:         Store + WithTx for atomic multi-table writes

NOT FOUND CONVENTION:
  Getters return (nil, nil) when the row does not exist, as the SQLite
  store always has. Services translate that into the NotFound sentinels.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - core/store/memory.go:   in-memory, for tests and demos
*/
package core

import "context"

// =============================================================================
// COMMISSION STORE
// =============================================================================

type CommissionStore interface {
	// GetCommission returns the record by id, or nil.
	GetCommission(ctx context.Context, id CommissionID) (*CommissionRecord, error)

	// FindCommission returns the record for professional+period, or nil.
	FindCommission(ctx context.Context, professionalID ProfessionalID, period Period) (*CommissionRecord, error)

	// ListCommissions returns every record of a period.
	ListCommissions(ctx context.Context, period Period) ([]CommissionRecord, error)

	// UpsertCommission inserts or overwrites the record keyed by
	// (ProfessionalID, Period). On conflict the existing id and CreatedAt are
	// kept and returned; every other column takes rec's value.
	UpsertCommission(ctx context.Context, rec CommissionRecord) (CommissionRecord, error)

	// UpdateCommission overwrites an existing record by id.
	UpdateCommission(ctx context.Context, rec CommissionRecord) error

	// ReplaceLineItems deletes every item of commissionID and inserts items.
	ReplaceLineItems(ctx context.Context, commissionID CommissionID, items []CommissionLineItem) error

	// LineItems returns the items of a record ordered by appointment id.
	LineItems(ctx context.Context, commissionID CommissionID) ([]CommissionLineItem, error)
}

// =============================================================================
// PAYABLE STORE
// =============================================================================

type PayableStore interface {
	// InsertPayables writes all obligations or none.
	InsertPayables(ctx context.Context, obligations []PayableObligation) error

	// GetPayable returns the obligation by id, or nil.
	GetPayable(ctx context.Context, id PayableID) (*PayableObligation, error)

	// UpdatePayable overwrites an existing obligation by id.
	UpdatePayable(ctx context.Context, p PayableObligation) error

	// DeletePayable removes an obligation by id.
	DeletePayable(ctx context.Context, id PayableID) error

	// ListPayables returns obligations matching filter ordered by due date.
	ListPayables(ctx context.Context, filter PayableFilter) ([]PayableObligation, error)
}

// =============================================================================
// REFERENCE STORE - read-only facts owned elsewhere
// =============================================================================

type ReferenceStore interface {
	// Professionals returns the roster ordered by name.
	Professionals(ctx context.Context) ([]Professional, error)

	// GetProfessional returns one roster entry, or nil.
	GetProfessional(ctx context.Context, id ProfessionalID) (*Professional, error)

	// CommissionableAppointments returns COMPLETED + PAID appointments dated
	// inside period. professionalID filters when non-empty.
	CommissionableAppointments(ctx context.Context, period Period, professionalID ProfessionalID) ([]AppointmentFact, error)

	// GetPurchaseOrder returns the order reference, or nil.
	GetPurchaseOrder(ctx context.Context, id PurchaseOrderID) (*PurchaseOrder, error)
}

// Store is everything the engine reads and writes.
type Store interface {
	CommissionStore
	PayableStore
	ReferenceStore
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

