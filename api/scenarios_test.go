/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario correctly sets up the expected state on the
	SQLite store:
	- Professionals are created
	- Only completed+paid appointments count towards commissions
	- Purchase-order bills derive their amount

These tests double as SQLite-backed integration tests of the handler wiring.
*/
package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/salon-ledger/core"
	"github.com/warp/salon-ledger/store/sqlite"
)

func setupSQLiteHandler(t *testing.T) *Handler {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := NewHandler(st, Options{})
	h.SetClock(func() time.Time { return testNow })
	return h
}

func march2025() core.Period { return core.MonthPeriod(2025, time.March) }

func TestScenario_MonthlyClose(t *testing.T) {
	// GIVEN: monthly-close scenario
	// WHEN: Loading the scenario
	// THEN: Two active professionals with March commissions
	h := setupSQLiteHandler(t)
	ctx := context.Background()

	require.NoError(t, h.loadMonthlyCloseScenario(ctx, march2025()))

	roster, err := h.Store.Professionals(ctx)
	require.NoError(t, err)
	assert.Len(t, roster, 3)

	views, err := h.Projection.List(ctx, march2025())
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "180.00", views[0].Totals.FinalValue.StringFixed(2))
	assert.Equal(t, 2, views[1].Totals.TotalAppointments)
}

func TestScenario_MixedAppointments(t *testing.T) {
	// GIVEN: mixed-appointments scenario
	// WHEN: Loading the scenario
	// THEN: Ana counts only the discounted paid appointment (170 * 40%)
	h := setupSQLiteHandler(t)
	ctx := context.Background()

	require.NoError(t, h.loadMixedAppointmentsScenario(ctx, march2025()))

	ana, err := h.Projection.Live(ctx, "pro-ana", march2025())
	require.NoError(t, err)
	assert.Equal(t, 1, ana.Totals.TotalAppointments)
	assert.Equal(t, "170.00", ana.Totals.TotalRevenue.StringFixed(2))
	assert.Equal(t, "68.00", ana.Totals.TotalCommission.StringFixed(2))

	bia, err := h.Projection.Live(ctx, "pro-bia", march2025())
	require.NoError(t, err)
	assert.Equal(t, 1, bia.Totals.TotalAppointments)
}

func TestScenario_SupplierPayables(t *testing.T) {
	// GIVEN: supplier-payables scenario
	// WHEN: Loading the scenario
	// THEN: A PO-derived bill and three rent installments exist
	h := setupSQLiteHandler(t)
	ctx := context.Background()

	require.NoError(t, h.loadSupplierPayablesScenario(ctx, march2025()))

	bills, err := h.Payables.List(ctx, core.PayableFilter{Category: core.CategorySupplier})
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, "88.20", bills[0].Amount.StringFixed(2))
	assert.Equal(t, "2025-04-15", core.FormatDate(bills[0].DueDate))
	require.NotNil(t, bills[0].LinkedSupplierID)
	assert.Equal(t, core.SupplierID("sup-beauty"), *bills[0].LinkedSupplierID)

	rent, err := h.Payables.List(ctx, core.PayableFilter{Category: core.CategoryRent})
	require.NoError(t, err)
	require.Len(t, rent, 3)
	assert.Equal(t, "2025-03-10", core.FormatDate(rent[0].DueDate))
	assert.Equal(t, "2025-05-10", core.FormatDate(rent[2].DueDate))
}

func TestLoadScenario_HTTP(t *testing.T) {
	h := setupSQLiteHandler(t)
	s := &testServer{h: h, router: NewRouter(h, RouterOptions{})}

	rec := s.do(t, http.MethodGet, "/api/scenarios", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]ScenarioDTO](t, rec), len(scenarios))

	rec = s.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"unknown"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"supplier-payables"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/scenarios/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "supplier-payables", decodeBody[ScenarioDTO](t, rec).ID)

	// Loading again resets instead of duplicating.
	rec = s.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"supplier-payables"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/payables", "")
	assert.Len(t, decodeBody[[]PayableDTO](t, rec), 4)
}
