/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Commission list / approve / request payment / pay cascade over HTTP
- Error mapping (400, 404, 409)
- Payable creation, cancel, delete and overdue sweep
- Roster endpoints
*/
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/salon-ledger/core"
	"github.com/warp/salon-ledger/core/store"
)

var testNow = time.Date(2025, time.April, 2, 9, 0, 0, 0, time.UTC)

type testServer struct {
	h      *Handler
	mem    *store.Memory
	router *chi.Mux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	h := NewHandler(mem, Options{})
	h.SetClock(func() time.Time { return testNow })
	return &testServer{h: h, mem: mem, router: NewRouter(h, RouterOptions{})}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCommissionFlow_EndToEnd(t *testing.T) {
	// GIVEN: the monthly-close scenario (Ana: 150@40, 200@40, 80@50 in March)
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"monthly-close"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: listing March
	rec = s.do(t, http.MethodGet, "/api/commissions?period=2025-03", "")
	require.Equal(t, http.StatusOK, rec.Code)
	views := decodeBody[[]CommissionDTO](t, rec)

	// THEN: active professionals appear, inactive ones without facts do not
	require.Len(t, views, 2)
	ana := views[0]
	assert.Equal(t, "Ana Souza", ana.ProfessionalName)
	assert.Equal(t, 3, ana.TotalAppointments)
	assert.Equal(t, "430.00", ana.TotalRevenue)
	assert.Equal(t, "180.00", ana.TotalCommission)
	assert.Equal(t, "180.00", ana.FinalValue)
	assert.Equal(t, string(core.CommissionCalculated), ana.Status)
	assert.Empty(t, ana.ID)
	assert.Len(t, ana.LineItems, 3)

	// WHEN: approving and requesting payment
	rec = s.do(t, http.MethodPost, "/api/commissions/approve", `{"professional_id":"pro-ana","period":"2025-03"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	commissionID := decodeBody[ApproveResponse](t, rec).ID
	require.NotEmpty(t, commissionID)

	rec = s.do(t, http.MethodPost, "/api/commissions/"+commissionID+"/request-payment", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	obligationID := decodeBody[RequestPaymentResponse](t, rec).PayableObligationID

	// THEN: one commission payable due on Ana's pay day next month
	rec = s.do(t, http.MethodGet, "/api/payables?category=COMMISSION", "")
	require.Equal(t, http.StatusOK, rec.Code)
	payables := decodeBody[[]PayableDTO](t, rec)
	require.Len(t, payables, 1)
	assert.Equal(t, obligationID, payables[0].ID)
	assert.Equal(t, "180.00", payables[0].Amount)
	assert.Equal(t, "2025-04-10", payables[0].DueDate)
	assert.Equal(t, "Commission Ana Souza - 03/2025", payables[0].Description)
	require.NotNil(t, payables[0].LinkedCommissionID)
	assert.Equal(t, commissionID, *payables[0].LinkedCommissionID)

	// WHEN: requesting payment again
	rec = s.do(t, http.MethodPost, "/api/commissions/"+commissionID+"/request-payment", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, obligationID, decodeBody[RequestPaymentResponse](t, rec).PayableObligationID)

	// WHEN: paying the obligation
	rec = s.do(t, http.MethodPost, "/api/payables/"+obligationID+"/pay", `{"payment_date":"2025-04-10"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[PaymentResultDTO](t, rec)

	// THEN: obligation and commission are PAID
	assert.Equal(t, string(core.PayablePaid), result.Obligation.Status)
	require.NotNil(t, result.Obligation.PaymentDate)
	assert.Equal(t, "2025-04-10", *result.Obligation.PaymentDate)
	require.NotNil(t, result.CommissionStatus)
	assert.Equal(t, string(core.CommissionPaid), *result.CommissionStatus)

	rec = s.do(t, http.MethodGet, "/api/commissions/"+commissionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	persisted := decodeBody[CommissionDTO](t, rec)
	assert.Equal(t, string(core.CommissionPaid), persisted.Status)
	assert.Len(t, persisted.LineItems, 3)
	require.NotNil(t, persisted.PayableObligationID)
	assert.Equal(t, obligationID, *persisted.PayableObligationID)

	// THEN: a PAID commission cannot be approved again
	rec = s.do(t, http.MethodPost, "/api/commissions/approve", `{"professional_id":"pro-ana","period":"2025-03"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCommissions_DefaultsToCurrentMonth(t *testing.T) {
	s := newTestServer(t)
	s.mem.AddProfessional(core.Professional{ID: "p1", Name: "Ana", Active: true})

	rec := s.do(t, http.MethodGet, "/api/commissions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	views := decodeBody[[]CommissionDTO](t, rec)
	require.Len(t, views, 1)
	assert.Equal(t, "2025-04", views[0].Period)
	assert.Equal(t, "0.00", views[0].FinalValue)
}

func TestRequestPaymentFor_ApprovesFirst(t *testing.T) {
	// GIVEN: a professional paid on the 31st with one February appointment
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/professionals", `{"id":"p9","name":"Duda","pay_day":31}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	s.mem.AddAppointment(core.AppointmentFact{
		ID:             "a1",
		ProfessionalID: "p9",
		Date:           core.NewDate(2025, time.February, 14),
		Status:         core.AppointmentCompleted,
		PaymentStatus:  core.PaymentPaid,
		Service:        core.ServiceFact{ID: "s1", Price: decimal.NewFromInt(100), CommissionPercentage: decimal.NewFromInt(30)},
	})

	// WHEN: requesting payment by key without approving
	rec = s.do(t, http.MethodPost, "/api/commissions/request-payment", `{"professional_id":"p9","period":"2025-02"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	obligationID := decodeBody[RequestPaymentResponse](t, rec).PayableObligationID

	// THEN: the commission is approved and the due date clamps to April 30
	rec = s.do(t, http.MethodGet, "/api/payables", "")
	payables := decodeBody[[]PayableDTO](t, rec)
	require.Len(t, payables, 1)
	assert.Equal(t, obligationID, payables[0].ID)
	assert.Equal(t, "30.00", payables[0].Amount)
	assert.Equal(t, "2025-04-30", payables[0].DueDate)

	rec = s.do(t, http.MethodGet, "/api/commissions?period=2025-02", "")
	views := decodeBody[[]CommissionDTO](t, rec)
	require.Len(t, views, 1)
	assert.Equal(t, string(core.CommissionApproved), views[0].Status)
}

func TestCommissions_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.mem.AddProfessional(core.Professional{ID: "p1", Name: "Ana", Active: true})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		field  string
	}{
		{"bad period query", http.MethodGet, "/api/commissions?period=march", "", http.StatusBadRequest, "period"},
		{"unknown commission", http.MethodGet, "/api/commissions/nope", "", http.StatusNotFound, ""},
		{"approve without professional", http.MethodPost, "/api/commissions/approve", `{"period":"2025-03"}`, http.StatusBadRequest, "professional_id"},
		{"approve bad period", http.MethodPost, "/api/commissions/approve", `{"professional_id":"p1","period":"03/2025"}`, http.StatusBadRequest, "period"},
		{"approve unknown professional", http.MethodPost, "/api/commissions/approve", `{"professional_id":"ghost","period":"2025-03"}`, http.StatusNotFound, ""},
		{"approve malformed body", http.MethodPost, "/api/commissions/approve", `{`, http.StatusBadRequest, ""},
		{"request payment unknown", http.MethodPost, "/api/commissions/nope/request-payment", "", http.StatusNotFound, ""},
		{"pay unknown", http.MethodPost, "/api/payables/nope/pay", "", http.StatusNotFound, ""},
		{"pay bad date", http.MethodPost, "/api/payables/nope/pay", `{"payment_date":"soon"}`, http.StatusBadRequest, "payment_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.field != "" {
				assert.Equal(t, tt.field, decodeBody[ErrorResponse](t, rec).Field)
			}
		})
	}
}

func TestPayables_Lifecycle(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: one single bill and a three-installment rent plan
	rec := s.do(t, http.MethodPost, "/api/payables",
		`{"type":"single","description":"Power","category":"UTILITIES","amount":"80","due_date":"2025-03-20"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	single := decodeBody[[]PayableDTO](t, rec)
	require.Len(t, single, 1)
	assert.Equal(t, "80.00", single[0].Amount)

	rec = s.do(t, http.MethodPost, "/api/payables", `{
		"type":"recurring","description":"Chair lease","category":"RENT","amount":"300",
		"schedule":{"start_date":"2025-01-01","installment_count":3,"periodicity":"MONTHLY","fixed_day_of_month":15}
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	plan := decodeBody[[]PayableDTO](t, rec)
	require.Len(t, plan, 3)
	assert.Equal(t, "Chair lease (1/3)", plan[0].Description)
	assert.Equal(t, []string{"2025-01-15", "2025-02-15", "2025-03-15"},
		[]string{plan[0].DueDate, plan[1].DueDate, plan[2].DueDate})

	rec = s.do(t, http.MethodGet, "/api/payables?status=PENDING", "")
	assert.Len(t, decodeBody[[]PayableDTO](t, rec), 4)

	rec = s.do(t, http.MethodGet, "/api/payables?from=2025-02-01&to=2025-03-16", "")
	assert.Len(t, decodeBody[[]PayableDTO](t, rec), 2)

	// WHEN: cancelling the single bill
	rec = s.do(t, http.MethodPost, "/api/payables/"+single[0].ID+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(core.PayableCancelled), decodeBody[PayableDTO](t, rec).Status)

	// THEN: it can be neither paid nor deleted
	rec = s.do(t, http.MethodPost, "/api/payables/"+single[0].ID+"/pay", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/payables/"+single[0].ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// WHEN: deleting the first installment
	rec = s.do(t, http.MethodDelete, "/api/payables/"+plan[0].ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// THEN: the overdue sweep touches the two remaining installments
	rec = s.do(t, http.MethodPost, "/api/payables/overdue", `{"as_of":"2025-12-31"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decodeBody[OverdueResponse](t, rec).Updated)

	rec = s.do(t, http.MethodGet, "/api/payables?status=OVERDUE", "")
	assert.Len(t, decodeBody[[]PayableDTO](t, rec), 2)

	// THEN: overdue obligations stay payable; empty body means today
	rec = s.do(t, http.MethodPost, "/api/payables/"+plan[1].ID+"/pay", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decodeBody[PaymentResultDTO](t, rec)
	assert.Equal(t, string(core.PayablePaid), paid.Obligation.Status)
	assert.Equal(t, "2025-04-02", *paid.Obligation.PaymentDate)
	assert.Nil(t, paid.CommissionStatus)
}

func TestPayables_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"unknown category", `{"type":"single","description":"x","category":"TAXES","amount":"1","due_date":"2025-01-01"}`, http.StatusBadRequest, "category"},
		{"negative amount", `{"type":"single","description":"x","category":"OTHER","amount":"-1","due_date":"2025-01-01"}`, http.StatusBadRequest, "amount"},
		{"zero installments", `{"type":"recurring","description":"x","category":"RENT","amount":"1","schedule":{"start_date":"2025-01-01","installment_count":0,"periodicity":"MONTHLY"}}`, http.StatusBadRequest, "installment_count"},
		{"missing purchase order", `{"type":"single","description":"x","category":"SUPPLIER","due_date":"2025-01-01","purchase_order_id":"po-x"}`, http.StatusNotFound, ""},
		{"bad filter", "", http.StatusBadRequest, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tt.body == "" {
				rec = s.do(t, http.MethodGet, "/api/payables?status=LATE", "")
			} else {
				rec = s.do(t, http.MethodPost, "/api/payables", tt.body)
			}
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.field != "" {
				assert.Equal(t, tt.field, decodeBody[ErrorResponse](t, rec).Field)
			}
		})
	}
}

func TestProfessionals(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/professionals", `{"id":"p1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name", decodeBody[ErrorResponse](t, rec).Field)

	rec = s.do(t, http.MethodPost, "/api/professionals", `{"id":"p1","name":"Ana","pay_day":40}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/professionals", `{"id":"p2","name":"Bia","active":false}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/professionals", `{"id":"p1","name":"Ana","pay_day":10}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/professionals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	roster := decodeBody[[]ProfessionalDTO](t, rec)
	require.Len(t, roster, 2)
	assert.Equal(t, ProfessionalDTO{ID: "p1", Name: "Ana", PayDay: 10, Active: true}, roster[0])
	assert.False(t, roster[1].Active)
}

func TestOverdueScheduler_RunNow(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/payables",
		`{"type":"single","description":"Water","category":"UTILITIES","amount":"40","due_date":"2025-03-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	sched := NewOverdueScheduler(s.h.Payables, nil)

	// Disabled by default: Start is a no-op and Stop is safe.
	sched.Start()
	sched.Stop()

	assert.Equal(t, 1, sched.RunNow(t.Context()))
	assert.Equal(t, 0, sched.RunNow(t.Context()))
}
