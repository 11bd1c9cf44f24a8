/*
handlers.go - HTTP API handlers for the commission and payables engine

PURPOSE:
  Exposes the commission ledger, payable generator and reconciliation
  linker via REST API. Handles HTTP request/response, JSON serialization,
  and delegates to domain logic.

ENDPOINTS:
  Commissions:
    GET    /api/commissions?period=YYYY-MM      Live + persisted view per professional
    GET    /api/commissions/{id}                Persisted record with line items
    POST   /api/commissions/approve             Approve current figures
    POST   /api/commissions/{id}/request-payment
    POST   /api/commissions/request-payment     By professional + period

  Payables:
    GET    /api/payables?status=&category=&from=&to=
    POST   /api/payables                        Single or recurring (factory JSON)
    POST   /api/payables/{id}/pay               Settle, cascading to the commission
    POST   /api/payables/{id}/cancel
    DELETE /api/payables/{id}
    POST   /api/payables/overdue                Overdue sweep

  Roster:
    GET    /api/professionals
    POST   /api/professionals

  Scenarios:
    GET    /api/scenarios
    POST   /api/scenarios/load

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access (SQLite in production, memory in tests)
  - Projection / Ledger / Payables / Linker: domain services
  - PayableFactory + Validator: JSON to input conversion

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Invalid status transition, duplicate, lock held elsewhere
  - 500: Persistence and internal errors

SECURITY NOTE:
  No authentication or authorization. Callers are trusted back-office users.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/salon-ledger/commission"
	"github.com/warp/salon-ledger/core"
	"github.com/warp/salon-ledger/factory"
	"github.com/warp/salon-ledger/lock"
	"github.com/warp/salon-ledger/payables"
	"github.com/warp/salon-ledger/reconcile"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the store the HTTP layer needs: the engine's transactional
// store plus the seeding calls used by roster and scenario endpoints.
type Backend interface {
	core.TxStore
	SaveProfessional(ctx context.Context, p core.Professional) error
	SaveAppointment(ctx context.Context, a core.AppointmentFact) error
	SavePurchaseOrder(ctx context.Context, po core.PurchaseOrder) error
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store          Backend
	Ledger         *commission.Ledger
	Projection     *commission.Projection
	Payables       *payables.Generator
	Linker         *reconcile.Linker
	PayableFactory *factory.PayableFactory
	Validator      *factory.Validator
	Logger         *zap.Logger

	mu              sync.Mutex
	currentScenario string
}

// Options tune NewHandler. Zero values fall back to defaults.
type Options struct {
	Locker        lock.Locker
	Logger        *zap.Logger
	DefaultPayDay int
}

// NewHandler wires the domain services over store.
func NewHandler(store Backend, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locker := opts.Locker
	if locker == nil {
		locker = lock.NewKeyed()
	}

	ledger := commission.NewLedger(store, locker, logger)
	projection := commission.NewProjection(store, ledger)
	gen := payables.NewGenerator(store, logger)
	linker := reconcile.NewLinker(store, gen, projection, locker, logger)
	if opts.DefaultPayDay != 0 {
		linker.DefaultPayDay = opts.DefaultPayDay
	}

	return &Handler{
		Store:          store,
		Ledger:         ledger,
		Projection:     projection,
		Payables:       gen,
		Linker:         linker,
		PayableFactory: factory.NewPayableFactory(),
		Validator:      factory.NewValidator(),
		Logger:         logger,
	}
}

// SetClock replaces the time source of every service (tests, demos).
func (h *Handler) SetClock(now core.Clock) {
	h.Linker.Now = now
	h.Payables.Now = now
}

func (h *Handler) now() time.Time {
	if h.Linker.Now != nil {
		return h.Linker.Now()
	}
	return core.SystemClock()
}

// =============================================================================
// COMMISSION HANDLERS
// =============================================================================

// ListCommissions returns every professional's commission for a period
// (current month when omitted).
func (h *Handler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	period := core.PeriodOf(h.now())
	if raw := r.URL.Query().Get("period"); raw != "" {
		p, err := core.ParsePeriod(raw)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		period = p
	}

	views, err := h.Projection.List(r.Context(), period)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]CommissionDTO, 0, len(views))
	for _, v := range views {
		dtos = append(dtos, toCommissionDTO(v))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCommission returns a persisted commission with its line items.
func (h *Handler) GetCommission(w http.ResponseWriter, r *http.Request) {
	id := core.CommissionID(chi.URLParam(r, "id"))
	view, err := h.Projection.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommissionDTO(*view))
}

// ApproveCommission approves the current figures of professional+period.
func (h *Handler) ApproveCommission(w http.ResponseWriter, r *http.Request) {
	var req CommissionKeyRequest
	if !h.decode(w, r, &req) {
		return
	}
	period, err := core.ParsePeriod(req.Period)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	id, err := h.Projection.ApproveCurrent(r.Context(), core.ProfessionalID(req.ProfessionalID), period)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApproveResponse{ID: string(id)})
}

// RequestPayment creates (or returns) the obligation paying a commission.
func (h *Handler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	id := core.CommissionID(chi.URLParam(r, "id"))
	obligationID, err := h.Linker.RequestPayment(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RequestPaymentResponse{PayableObligationID: string(obligationID)})
}

// RequestPaymentFor approves when needed, then requests payment.
func (h *Handler) RequestPaymentFor(w http.ResponseWriter, r *http.Request) {
	var req CommissionKeyRequest
	if !h.decode(w, r, &req) {
		return
	}
	period, err := core.ParsePeriod(req.Period)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	obligationID, err := h.Linker.RequestPaymentFor(r.Context(), core.ProfessionalID(req.ProfessionalID), period)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RequestPaymentResponse{PayableObligationID: string(obligationID)})
}

// =============================================================================
// PAYABLE HANDLERS
// =============================================================================

// ListPayables returns obligations filtered by status, category and due
// date range ([from, to)).
func (h *Handler) ListPayables(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.PayableFilter{
		Status:   core.PayableStatus(q.Get("status")),
		Category: core.PayableCategory(q.Get("category")),
	}
	for param, dst := range map[string]**time.Time{"from": &filter.DueFrom, "to": &filter.DueTo} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		d, err := core.ParseDate(raw)
		if err != nil {
			h.writeDomainError(w, core.Invalid(param, "unparseable date %q (use YYYY-MM-DD)", raw))
			return
		}
		*dst = &d
	}

	obligations, err := h.Payables.List(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]PayableDTO, 0, len(obligations))
	for _, p := range obligations {
		dtos = append(dtos, toPayableDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePayable accepts a factory payable spec (single or recurring).
func (h *Handler) CreatePayable(w http.ResponseWriter, r *http.Request) {
	var pj factory.PayableJSON
	if err := json.NewDecoder(r.Body).Decode(&pj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	spec, err := h.PayableFactory.Convert(pj)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	obligations, err := factory.Create(r.Context(), h.Payables, spec)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]PayableDTO, 0, len(obligations))
	for _, p := range obligations {
		dtos = append(dtos, toPayableDTO(p))
	}
	writeJSON(w, http.StatusCreated, dtos)
}

// PayPayable marks an obligation paid and cascades to its commission.
func (h *Handler) PayPayable(w http.ResponseWriter, r *http.Request) {
	var req PayRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	var paymentDate time.Time
	if req.PaymentDate != "" {
		d, err := core.ParseDate(req.PaymentDate)
		if err != nil {
			h.writeDomainError(w, core.Invalid("payment_date", "unparseable date %q (use YYYY-MM-DD)", req.PaymentDate))
			return
		}
		paymentDate = d
	}

	result, err := h.Linker.MarkPaid(r.Context(), core.PayableID(chi.URLParam(r, "id")), paymentDate)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResultDTO(result))
}

// CancelPayable cancels an open obligation.
func (h *Handler) CancelPayable(w http.ResponseWriter, r *http.Request) {
	ob, err := h.Payables.Cancel(r.Context(), core.PayableID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayableDTO(ob))
}

// DeletePayable removes a pending, unlinked obligation.
func (h *Handler) DeletePayable(w http.ResponseWriter, r *http.Request) {
	if err := h.Payables.Delete(r.Context(), core.PayableID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkOverdue flips pending obligations due before as_of to OVERDUE.
func (h *Handler) MarkOverdue(w http.ResponseWriter, r *http.Request) {
	var req OverdueRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	var asOf time.Time
	if req.AsOf != "" {
		d, err := core.ParseDate(req.AsOf)
		if err != nil {
			h.writeDomainError(w, core.Invalid("as_of", "unparseable date %q (use YYYY-MM-DD)", req.AsOf))
			return
		}
		asOf = d
	}

	n, err := h.Payables.MarkOverdue(r.Context(), asOf)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OverdueResponse{Updated: n})
}

// =============================================================================
// ROSTER HANDLERS
// =============================================================================

func (h *Handler) ListProfessionals(w http.ResponseWriter, r *http.Request) {
	roster, err := h.Store.Professionals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list professionals", err)
		return
	}

	dtos := make([]ProfessionalDTO, 0, len(roster))
	for _, p := range roster {
		dtos = append(dtos, toProfessionalDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateProfessional(w http.ResponseWriter, r *http.Request) {
	var req CreateProfessionalRequest
	if !h.decode(w, r, &req) {
		return
	}

	p := core.Professional{
		ID:     core.ProfessionalID(req.ID),
		Name:   req.Name,
		PayDay: req.PayDay,
		Active: req.Active == nil || *req.Active,
	}
	if err := h.Store.SaveProfessional(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save professional", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfessionalDTO(p))
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and validates it. It writes the error
// response and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.Validator.Struct(dst); err != nil {
		h.writeDomainError(w, err)
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return true
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.Validator.Struct(dst); err != nil {
		h.writeDomainError(w, err)
		return false
	}
	return true
}

// writeDomainError maps engine errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Message, Field: verr.Field})
	case core.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case core.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		h.Logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
