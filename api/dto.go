/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Commissions:
    CommissionDTO, LineItemDTO, CommissionKeyRequest

  Payables:
    PayableDTO, PayRequest, PaymentResultDTO, OverdueRequest
    (creation uses factory.PayableJSON directly)

  Roster:
    ProfessionalDTO, CreateProfessionalRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

MONEY:
  Amounts are rendered as strings with two decimals ("150.00") so clients
  never round through float64.

VALIDATION:
  Request types carry go-playground validator tags, checked in handlers
  through factory.Validator.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/payable.go: PayableJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/salon-ledger/commission"
	"github.com/warp/salon-ledger/core"
	"github.com/warp/salon-ledger/reconcile"
)

// =============================================================================
// COMMISSIONS
// =============================================================================

// CommissionDTO represents one professional's commission for a period.
type CommissionDTO struct {
	ID                  string        `json:"id,omitempty"`
	ProfessionalID      string        `json:"professional_id"`
	ProfessionalName    string        `json:"professional_name"`
	Period              string        `json:"period"`
	PeriodStart         string        `json:"period_start"`
	PeriodEnd           string        `json:"period_end"`
	TotalAppointments   int           `json:"total_appointments"`
	TotalRevenue        string        `json:"total_revenue"`
	TotalCommission     string        `json:"total_commission"`
	Bonuses             string        `json:"bonuses"`
	FinalValue          string        `json:"final_value"`
	Status              string        `json:"status"`
	PayableObligationID *string       `json:"payable_obligation_id,omitempty"`
	LineItems           []LineItemDTO `json:"line_items"`
}

// LineItemDTO is the per-appointment breakdown of a commission.
type LineItemDTO struct {
	AppointmentID        string `json:"appointment_id"`
	ServiceValue         string `json:"service_value"`
	CommissionPercentage string `json:"commission_percentage"`
	CommissionValue      string `json:"commission_value"`
}

// CommissionKeyRequest addresses a professional's commission in a period.
type CommissionKeyRequest struct {
	ProfessionalID string `json:"professional_id" validate:"required"`
	Period         string `json:"period" validate:"required"`
}

// ApproveResponse is returned by the approve endpoint.
type ApproveResponse struct {
	ID string `json:"id"`
}

// RequestPaymentResponse is returned by both request-payment endpoints.
type RequestPaymentResponse struct {
	PayableObligationID string `json:"payable_obligation_id"`
}

// =============================================================================
// PAYABLES
// =============================================================================

// PayableDTO represents a payable obligation in API responses.
type PayableDTO struct {
	ID                    string  `json:"id"`
	Description           string  `json:"description"`
	Category              string  `json:"category"`
	Amount                string  `json:"amount"`
	DueDate               string  `json:"due_date"`
	PaymentDate           *string `json:"payment_date,omitempty"`
	Status                string  `json:"status"`
	LinkedCommissionID    *string `json:"linked_commission_id,omitempty"`
	LinkedSupplierID      *string `json:"linked_supplier_id,omitempty"`
	LinkedPurchaseOrderID *string `json:"linked_purchase_order_id,omitempty"`
	CreatedAt             string  `json:"created_at,omitempty"`
}

// PayRequest marks an obligation paid. An empty date means today.
type PayRequest struct {
	PaymentDate string `json:"payment_date"`
}

// PaymentResultDTO is returned by the pay endpoint.
type PaymentResultDTO struct {
	Obligation       PayableDTO `json:"obligation"`
	CommissionStatus *string    `json:"commission_status,omitempty"`
}

// OverdueRequest runs the overdue sweep. An empty date means today.
type OverdueRequest struct {
	AsOf string `json:"as_of"`
}

// OverdueResponse reports how many obligations changed.
type OverdueResponse struct {
	Updated int `json:"updated"`
}

// =============================================================================
// ROSTER
// =============================================================================

// ProfessionalDTO represents a roster entry.
type ProfessionalDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	PayDay int    `json:"pay_day,omitempty"`
	Active bool   `json:"active"`
}

// CreateProfessionalRequest adds or replaces a roster entry.
type CreateProfessionalRequest struct {
	ID     string `json:"id" validate:"required,max=64"`
	Name   string `json:"name" validate:"required,max=120"`
	PayDay int    `json:"pay_day" validate:"omitempty,min=1,max=31"`
	Active *bool  `json:"active"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func toCommissionDTO(v commission.CommissionView) CommissionDTO {
	dto := CommissionDTO{
		ID:                string(v.ID),
		ProfessionalID:    string(v.ProfessionalID),
		ProfessionalName:  v.ProfessionalName,
		Period:            v.Period.Key(),
		PeriodStart:       core.FormatDate(v.Period.Start),
		PeriodEnd:         core.FormatDate(v.Period.End),
		TotalAppointments: v.Totals.TotalAppointments,
		TotalRevenue:      money(v.Totals.TotalRevenue),
		TotalCommission:   money(v.Totals.TotalCommission),
		Bonuses:           money(v.Totals.Bonuses),
		FinalValue:        money(v.Totals.FinalValue),
		Status:            string(v.Status),
		LineItems:         make([]LineItemDTO, 0, len(v.LineItems)),
	}
	if v.PayableObligationID != nil {
		id := string(*v.PayableObligationID)
		dto.PayableObligationID = &id
	}
	for _, it := range v.LineItems {
		dto.LineItems = append(dto.LineItems, LineItemDTO{
			AppointmentID:        string(it.AppointmentID),
			ServiceValue:         money(it.ServiceValue),
			CommissionPercentage: it.CommissionPercentage.String(),
			CommissionValue:      money(it.CommissionValue),
		})
	}
	return dto
}

func toPayableDTO(p core.PayableObligation) PayableDTO {
	dto := PayableDTO{
		ID:                    string(p.ID),
		Description:           p.Description,
		Category:              string(p.Category),
		Amount:                money(p.Amount),
		DueDate:               core.FormatDate(p.DueDate),
		Status:                string(p.Status),
		LinkedCommissionID:    strPtr(p.LinkedCommissionID),
		LinkedSupplierID:      strPtr(p.LinkedSupplierID),
		LinkedPurchaseOrderID: strPtr(p.LinkedPurchaseOrderID),
	}
	if p.PaymentDate != nil {
		d := core.FormatDate(*p.PaymentDate)
		dto.PaymentDate = &d
	}
	if !p.CreatedAt.IsZero() {
		dto.CreatedAt = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toPaymentResultDTO(r reconcile.PaymentResult) PaymentResultDTO {
	return PaymentResultDTO{
		Obligation:       toPayableDTO(r.Obligation),
		CommissionStatus: strPtr(r.CommissionStatus),
	}
}

func toProfessionalDTO(p core.Professional) ProfessionalDTO {
	return ProfessionalDTO{ID: string(p.ID), Name: p.Name, PayDay: p.PayDay, Active: p.Active}
}

func strPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
