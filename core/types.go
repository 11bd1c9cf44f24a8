/*
Package core provides the shared model of the commission and payables engine.

PURPOSE:
  Domain-neutral building blocks used by every other package: money helpers,
  identifiers, the commission and payable records, the read-only facts the
  engine consumes from the rest of the back office, and the store contracts.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal.Decimal rounded to cents at every persisted boundary
  - CommissionRecord: approved snapshot for one professional and one month
  - CommissionLineItem: one appointment's contribution to a record
  - PayableObligation: a scheduled outgoing payment
  - AppointmentFact / Professional / PurchaseOrder: external, read-only

DESIGN PRINCIPLES:
  1. Precision: amounts are decimal.Decimal, never float64
  2. Type safety: distinct ID types for commissions, obligations, people
  3. Forward-only status: see CommissionStatus.CanAdvanceTo

SEE ALSO:
  - period.go: month periods
  - store.go: persistence contracts
  - errors.go: error taxonomy
*/
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Cents is the number of decimal places kept for persisted amounts.
const Cents int32 = 2

var hundred = decimal.NewFromInt(100)

// RoundCents rounds half away from zero to two decimal places.
func RoundCents(d decimal.Decimal) decimal.Decimal { return d.Round(Cents) }

// Percent returns round2(value * pct / 100).
func Percent(value, pct decimal.Decimal) decimal.Decimal {
	return RoundCents(value.Mul(pct).Div(hundred))
}

// WithinCent reports whether two amounts differ by at most 0.01.
func WithinCent(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(decimal.New(1, -Cents))
}

// MustParseMoney parses a decimal string, returning zero on failure.
func MustParseMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CommissionID string
type LineItemID string
type PayableID string
type ProfessionalID string
type AppointmentID string
type SupplierID string
type PurchaseOrderID string

// =============================================================================
// COMMISSION
// =============================================================================

type CommissionStatus string

const (
	CommissionCalculated CommissionStatus = "CALCULATED" // virtual, never the result of a write
	CommissionApproved   CommissionStatus = "APPROVED"
	CommissionPaid       CommissionStatus = "PAID"
)

// CanAdvanceTo reports whether moving from s to next is allowed.
// Staying in APPROVED is allowed (re-approval); every backward move is not.
func (s CommissionStatus) CanAdvanceTo(next CommissionStatus) bool {
	switch s {
	case CommissionCalculated:
		return next == CommissionApproved
	case CommissionApproved:
		return next == CommissionApproved || next == CommissionPaid
	case CommissionPaid:
		return next == CommissionPaid
	}
	return false
}

func (s CommissionStatus) IsValid() bool {
	switch s {
	case CommissionCalculated, CommissionApproved, CommissionPaid:
		return true
	}
	return false
}

// Totals are the aggregated figures of one professional in one period.
type Totals struct {
	TotalAppointments int
	TotalRevenue      decimal.Decimal
	TotalCommission   decimal.Decimal
	Bonuses           decimal.Decimal
	FinalValue        decimal.Decimal
}

// Normalize rounds every amount to cents and recomputes FinalValue.
func (t Totals) Normalize() Totals {
	t.TotalRevenue = RoundCents(t.TotalRevenue)
	t.TotalCommission = RoundCents(t.TotalCommission)
	t.Bonuses = RoundCents(t.Bonuses)
	t.FinalValue = RoundCents(t.TotalCommission.Add(t.Bonuses))
	return t
}

// CommissionRecord is the persisted snapshot for (ProfessionalID, Period).
type CommissionRecord struct {
	ID                  CommissionID
	ProfessionalID      ProfessionalID
	Period              Period
	Totals              Totals
	Status              CommissionStatus
	PayableObligationID *PayableID
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLinked reports whether the record already points at an obligation.
func (r CommissionRecord) IsLinked() bool {
	return r.PayableObligationID != nil && *r.PayableObligationID != ""
}

// CommissionLineItem is owned by exactly one CommissionRecord.
type CommissionLineItem struct {
	ID                   LineItemID
	CommissionID         CommissionID
	AppointmentID        AppointmentID
	ServiceValue         decimal.Decimal
	CommissionPercentage decimal.Decimal
	CommissionValue      decimal.Decimal
}

// SumCommission adds up CommissionValue over items.
func SumCommission(items []CommissionLineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.CommissionValue)
	}
	return sum
}

// =============================================================================
// PAYABLE OBLIGATION
// =============================================================================

type PayableStatus string

const (
	PayablePending   PayableStatus = "PENDING"
	PayablePaid      PayableStatus = "PAID"
	PayableOverdue   PayableStatus = "OVERDUE"
	PayableCancelled PayableStatus = "CANCELLED"
)

func (s PayableStatus) IsValid() bool {
	switch s {
	case PayablePending, PayablePaid, PayableOverdue, PayableCancelled:
		return true
	}
	return false
}

// IsOpen reports whether the obligation still awaits payment.
func (s PayableStatus) IsOpen() bool { return s == PayablePending || s == PayableOverdue }

type PayableCategory string

const (
	CategoryCommission PayableCategory = "COMMISSION"
	CategorySupplier   PayableCategory = "SUPPLIER"
	CategoryRent       PayableCategory = "RENT"
	CategoryUtilities  PayableCategory = "UTILITIES"
	CategorySalary     PayableCategory = "SALARY"
	CategoryOther      PayableCategory = "OTHER"
)

func (c PayableCategory) IsValid() bool {
	switch c {
	case CategoryCommission, CategorySupplier, CategoryRent, CategoryUtilities, CategorySalary, CategoryOther:
		return true
	}
	return false
}

// PayableObligation is a scheduled outgoing payment.
// INVARIANT: Status == PayablePaid implies PaymentDate != nil.
type PayableObligation struct {
	ID                    PayableID
	Description           string
	Category              PayableCategory
	Amount                decimal.Decimal
	DueDate               time.Time
	PaymentDate           *time.Time
	Status                PayableStatus
	LinkedCommissionID    *CommissionID
	LinkedSupplierID      *SupplierID
	LinkedPurchaseOrderID *PurchaseOrderID
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// PayableFilter narrows ListPayables. Zero fields match everything.
type PayableFilter struct {
	Status   PayableStatus
	Category PayableCategory
	DueFrom  *time.Time // inclusive
	DueTo    *time.Time // exclusive
}

// Matches reports whether p passes the filter.
func (f PayableFilter) Matches(p PayableObligation) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.DueFrom != nil && p.DueDate.Before(*f.DueFrom) {
		return false
	}
	if f.DueTo != nil && !p.DueDate.Before(*f.DueTo) {
		return false
	}
	return true
}

// =============================================================================
// EXTERNAL FACTS (read-only)
// =============================================================================

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "SCHEDULED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

// ServiceFact is the priced service attached to an appointment.
type ServiceFact struct {
	ID                   string
	Price                decimal.Decimal
	CommissionPercentage decimal.Decimal
}

// AppointmentFact is the projection of an appointment the engine reads.
type AppointmentFact struct {
	ID             AppointmentID
	ProfessionalID ProfessionalID
	ClientID       string
	Date           time.Time
	Status         AppointmentStatus
	PaymentStatus  PaymentStatus
	PaymentAmount  *decimal.Decimal
	Service        ServiceFact
}

// Revenue is the amount actually charged, falling back to the list price.
func (a AppointmentFact) Revenue() decimal.Decimal {
	if a.PaymentAmount != nil {
		return *a.PaymentAmount
	}
	return a.Service.Price
}

// Commissionable reports whether the appointment counts towards commissions.
func (a AppointmentFact) Commissionable() bool {
	return a.Status == AppointmentCompleted && a.PaymentStatus == PaymentPaid
}

// DefaultPayDay is used when a professional has no configured pay day.
const DefaultPayDay = 5

// Professional is a roster entry.
type Professional struct {
	ID     ProfessionalID
	Name   string
	PayDay int // day of month commissions fall due, 0 means DefaultPayDay
	Active bool
}

// EffectivePayDay returns PayDay, or fallback when PayDay is unset or invalid.
func (p Professional) EffectivePayDay(fallback int) int {
	if p.PayDay >= 1 && p.PayDay <= 31 {
		return p.PayDay
	}
	if fallback >= 1 && fallback <= 31 {
		return fallback
	}
	return DefaultPayDay
}

// DisplayName returns the name, or the id when no name is known.
func (p Professional) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return string(p.ID)
}

// PurchaseOrder is the supplier order reference used to derive amounts.
type PurchaseOrder struct {
	ID         PurchaseOrderID
	SupplierID SupplierID
	Quantity   decimal.Decimal
	CostPrice  decimal.Decimal
}

// Total returns quantity * cost price rounded to cents.
func (po PurchaseOrder) Total() decimal.Decimal {
	return RoundCents(po.Quantity.Mul(po.CostPrice))
}
