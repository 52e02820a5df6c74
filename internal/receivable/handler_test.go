package receivable

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gasledger/gasledger/internal/shared"
)

func newTestHandler(ledger *memoryLedger) (*Handler, uuid.UUID) {
	svc, _, _ := newTestService(ledger)
	return NewHandler(testLogger(), svc), uuid.New()
}

func serve(h *Handler, tenant uuid.UUID, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithTenant(req.Context(), tenant)))
		})
	})
	h.MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRecomputeEndpoint(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.activity[d(2026, 3, 1)] = DayAggregate{SalesRevenue: dec("1000"), CashDeposited: dec("800")}
	h, tenant := newTestHandler(ledger)

	req := httptest.NewRequest(http.MethodPost, "/counterparties/5/receivables/recompute",
		strings.NewReader(`{"date":"2026-03-01"}`))
	rec := serve(h, tenant, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(5), resp.CounterpartyID)
	require.Equal(t, "2026-03-01", resp.Day)
	require.Equal(t, "200", resp.CashDelta)
	require.Equal(t, "200", resp.CashTotal)
}

func TestRecomputeEndpointRejectsBadDate(t *testing.T) {
	h, tenant := newTestHandler(newMemoryLedger())

	req := httptest.NewRequest(http.MethodPost, "/counterparties/5/receivables/recompute",
		strings.NewReader(`{"date":"03/01/2026"}`))
	rec := serve(h, tenant, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecomputeEndpointGapConflict(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.activity[d(2026, 3, 1)] = DayAggregate{SalesRevenue: dec("1000")}
	ledger.activity[d(2026, 3, 3)] = DayAggregate{SalesRevenue: dec("500")}
	h, tenant := newTestHandler(ledger)

	req := httptest.NewRequest(http.MethodPost, "/counterparties/5/receivables/recompute",
		strings.NewReader(`{"date":"2026-03-03"}`))
	rec := serve(h, tenant, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "Ledger Inconsistent")
}

func TestListEndpoint(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.activity[d(2026, 3, 1)] = DayAggregate{SalesRevenue: dec("1000"), CashDeposited: dec("800")}
	ledger.activity[d(2026, 3, 2)] = DayAggregate{SalesRevenue: dec("500"), CashDeposited: dec("700")}
	h, tenant := newTestHandler(ledger)

	for _, body := range []string{`{"date":"2026-03-01"}`, `{"date":"2026-03-02"}`} {
		req := httptest.NewRequest(http.MethodPost, "/counterparties/5/receivables/recompute",
			strings.NewReader(body))
		require.Equal(t, http.StatusOK, serve(h, tenant, req).Code)
	}

	req := httptest.NewRequest(http.MethodGet,
		"/counterparties/5/receivables?from=2026-03-01&to=2026-03-31", nil)
	rec := serve(h, tenant, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Balances []balanceResponse `json:"balances"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Balances, 2)
	require.Equal(t, "0", resp.Balances[1].CashTotal)
}

func TestEndpointsRequireTenant(t *testing.T) {
	h, _ := newTestHandler(newMemoryLedger())

	r := chi.NewRouter()
	h.MountRoutes(r)
	req := httptest.NewRequest(http.MethodPost, "/counterparties/5/receivables/recompute",
		strings.NewReader(`{"date":"2026-03-01"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
