/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	salon data. Each scenario creates a roster, completed appointments and
	supplier purchase orders, and optionally some payables, dated in the
	month before "now" so the commission screen has something to close.

AVAILABLE SCENARIOS:

	monthly-close:       Two professionals with paid appointments
	mixed-appointments:  Cancelled, unpaid and discounted appointments
	supplier-payables:   Purchase orders, a derived bill and a rent plan

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create professionals
 3. Create appointments in the previous month
 4. Create purchase orders and payables through the factory

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "monthly-close"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: route wiring
  - factory/payable.go: payable JSON definitions
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/salon-ledger/core"
	"github.com/warp/salon-ledger/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "monthly-close",
		Name:        "Monthly Close",
		Description: "Two professionals with paid appointments last month, ready to approve",
	},
	{
		ID:          "mixed-appointments",
		Name:        "Mixed Appointments",
		Description: "Cancelled, unpaid and discounted appointments; only completed+paid count",
	},
	{
		ID:          "supplier-payables",
		Name:        "Supplier Payables",
		Description: "Purchase-order bill with derived amount plus a monthly rent plan",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and seeds the chosen scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	loaders := map[string]func(context.Context, core.Period) error{
		"monthly-close":      h.loadMonthlyCloseScenario,
		"mixed-appointments": h.loadMixedAppointmentsScenario,
		"supplier-payables":  h.loadSupplierPayablesScenario,
	}
	load, ok := loaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	period := core.PeriodOf(h.now()).Previous()
	if err := load(ctx, period); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()
	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID), zap.String("period", period.Key()))

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"period":   period.Key(),
	})
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) loadMonthlyCloseScenario(ctx context.Context, period core.Period) error {
	if err := h.seedRoster(ctx); err != nil {
		return err
	}
	appointments := []core.AppointmentFact{
		demoAppointment("apt-1", "pro-ana", period, 3, "150.00", "40"),
		demoAppointment("apt-2", "pro-ana", period, 9, "200.00", "40"),
		demoAppointment("apt-3", "pro-ana", period, 17, "80.00", "50"),
		demoAppointment("apt-4", "pro-bia", period, 4, "120.00", "35"),
		demoAppointment("apt-5", "pro-bia", period, 22, "95.50", "35"),
	}
	return h.seedAppointments(ctx, appointments)
}

func (h *Handler) loadMixedAppointmentsScenario(ctx context.Context, period core.Period) error {
	if err := h.seedRoster(ctx); err != nil {
		return err
	}

	discounted := demoAppointment("apt-10", "pro-ana", period, 5, "200.00", "40")
	paid := decimal.RequireFromString("170.00")
	discounted.PaymentAmount = &paid

	unpaid := demoAppointment("apt-11", "pro-ana", period, 6, "150.00", "40")
	unpaid.PaymentStatus = core.PaymentPending

	cancelled := demoAppointment("apt-12", "pro-bia", period, 7, "120.00", "35")
	cancelled.Status = core.AppointmentCancelled

	scheduled := demoAppointment("apt-13", "pro-bia", period, 28, "99.90", "35")
	scheduled.Status = core.AppointmentScheduled
	scheduled.PaymentStatus = core.PaymentPending

	return h.seedAppointments(ctx, []core.AppointmentFact{
		discounted,
		unpaid,
		cancelled,
		scheduled,
		demoAppointment("apt-14", "pro-bia", period, 12, "33.33", "33.3"),
	})
}

func (h *Handler) loadSupplierPayablesScenario(ctx context.Context, period core.Period) error {
	if err := h.seedRoster(ctx); err != nil {
		return err
	}

	orders := []core.PurchaseOrder{
		{ID: "po-shampoo", SupplierID: "sup-beauty", Quantity: decimal.NewFromInt(12), CostPrice: decimal.RequireFromString("7.35")},
		{ID: "po-towels", SupplierID: "sup-linen", Quantity: decimal.NewFromInt(30), CostPrice: decimal.RequireFromString("1.99")},
	}
	for _, po := range orders {
		if err := h.Store.SavePurchaseOrder(ctx, po); err != nil {
			return err
		}
	}

	due := period.Next().Start.AddDate(0, 0, 14)
	rentDay := 10
	specs := []factory.PayableJSON{
		{
			Type:            factory.KindSingle,
			Description:     "Shampoo restock",
			Category:        string(core.CategorySupplier),
			DueDate:         core.FormatDate(due),
			PurchaseOrderID: "po-shampoo",
		},
		{
			Type:        factory.KindRecurring,
			Description: "Chair lease",
			Category:    string(core.CategoryRent),
			Amount:      decimalPtr("300.00"),
			Schedule: &factory.ScheduleJSON{
				StartDate:        core.FormatDate(period.Start),
				InstallmentCount: 3,
				Periodicity:      "MONTHLY",
				FixedDayOfMonth:  &rentDay,
			},
		},
	}
	for _, pj := range specs {
		spec, err := h.PayableFactory.Convert(pj)
		if err != nil {
			return err
		}
		if _, err := factory.Create(ctx, h.Payables, spec); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) seedRoster(ctx context.Context) error {
	roster := []core.Professional{
		{ID: "pro-ana", Name: "Ana Souza", PayDay: 10, Active: true},
		{ID: "pro-bia", Name: "Bia Lima", Active: true},
		{ID: "pro-caio", Name: "Caio Reis", PayDay: 20, Active: false},
	}
	for _, p := range roster {
		if err := h.Store.SaveProfessional(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) seedAppointments(ctx context.Context, appointments []core.AppointmentFact) error {
	for _, a := range appointments {
		if err := h.Store.SaveAppointment(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// demoAppointment builds a completed, paid appointment on day of period.
func demoAppointment(id, professionalID string, period core.Period, day int, price, pct string) core.AppointmentFact {
	return core.AppointmentFact{
		ID:             core.AppointmentID(id),
		ProfessionalID: core.ProfessionalID(professionalID),
		ClientID:       "client-" + id,
		Date:           core.DateClamped(period.Year(), period.Month(), day).Add(10 * time.Hour),
		Status:         core.AppointmentCompleted,
		PaymentStatus:  core.PaymentPaid,
		Service: core.ServiceFact{
			ID:                   "svc-" + id,
			Price:                decimal.RequireFromString(price),
			CommissionPercentage: decimal.RequireFromString(pct),
		},
	}
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
