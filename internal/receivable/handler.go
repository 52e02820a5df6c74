package receivable

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/gasledger/gasledger/internal/platform/httpx"
	"github.com/gasledger/gasledger/internal/shared"
)

// Handler exposes the receivable ledger over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers receivable routes. Recompute is rate limited per
// counterparty: it is lock-bound work and hammering it buys nothing.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		return chi.URLParam(r, "counterpartyID"), nil
	}))
	r.Get("/counterparties/{counterpartyID}/receivables", h.list)
	r.With(limiter).Post("/counterparties/{counterpartyID}/receivables/recompute", h.recompute)
}

type recomputeRequest struct {
	Date string `json:"date"`
}

type balanceResponse struct {
	CounterpartyID int64  `json:"counterparty_id"`
	Day            string `json:"day"`
	CashDelta      string `json:"cash_delta"`
	CylinderDelta  int64  `json:"cylinder_delta"`
	CashTotal      string `json:"cash_total"`
	CylinderTotal  int64  `json:"cylinder_total"`
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, shared.ErrTenantRequired))
		return
	}
	counterpartyID, err := strconv.ParseInt(chi.URLParam(r, "counterpartyID"), 10, 64)
	if err != nil || counterpartyID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid counterparty id")
		return
	}
	var req recomputeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}

	balance, err := h.service.Recompute(r.Context(), tenantID, counterpartyID, date)
	if err != nil {
		switch {
		case errors.Is(err, ErrOutOfOrder), errors.Is(err, ErrLedgerCorrupt):
			httpx.Problem(w, http.StatusConflict, "Ledger Inconsistent", err.Error())
		case errors.Is(err, shared.ErrLockNotObtained):
			httpx.Problem(w, http.StatusConflict, "Busy", "another recomputation holds this counterparty-day")
		default:
			h.logger.Error("recompute receivable", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(balance))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, shared.ErrTenantRequired))
		return
	}
	counterpartyID, err := strconv.ParseInt(chi.URLParam(r, "counterpartyID"), 10, 64)
	if err != nil || counterpartyID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid counterparty id")
		return
	}
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
		return
	}

	balances, err := h.service.ListRange(r.Context(), tenantID, counterpartyID, from, to)
	if err != nil {
		h.logger.Error("list receivables", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		resp = append(resp, toResponse(b))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"counterparty_id": counterpartyID,
		"balances":        resp,
		"pagination":      shared.NewPagination(1, len(resp), len(resp)),
	})
}

func toResponse(b Balance) balanceResponse {
	return balanceResponse{
		CounterpartyID: b.CounterpartyID,
		Day:            b.Day.Format("2006-01-02"),
		CashDelta:      b.CashDelta.String(),
		CylinderDelta:  b.CylinderDelta,
		CashTotal:      b.CashTotal.String(),
		CylinderTotal:  b.CylinderTotal,
	}
}
