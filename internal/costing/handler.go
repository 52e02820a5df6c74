package costing

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gasledger/gasledger/internal/platform/httpx"
	"github.com/gasledger/gasledger/internal/shared"
)

// Handler exposes FIFO evaluations over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers costing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{productID}/valuation", h.evaluate)
}

type evaluationResponse struct {
	ProductID        int64          `json:"product_id"`
	SaleType         SaleType       `json:"sale_type"`
	SoldQty          int64          `json:"sold_qty"`
	COGS             string         `json:"cogs"`
	AvgBuyPrice      string         `json:"avg_buy_price"`
	AllocatedRevenue string         `json:"allocated_revenue"`
	AvgSellPrice     string         `json:"avg_sell_price"`
	RemainingValue   string         `json:"remaining_value"`
	RemainingLots    []remainingLot `json:"remaining_lots"`
	ShortfallQty     int64          `json:"shortfall_qty"`
	Provisional      bool           `json:"provisional"`
	Warnings         []string       `json:"warnings,omitempty"`
}

type remainingLot struct {
	LotID     int64  `json:"lot_id"`
	Qty       int64  `json:"qty"`
	UnitCost  string `json:"unit_cost"`
	EventDate string `json:"event_date"`
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, shared.ErrTenantRequired))
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}

	saleType := SaleType(r.URL.Query().Get("sale_type"))
	if saleType == "" {
		saleType = SaleTypeRefill
	}
	if !saleType.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", ErrInvalidSaleType.Error())
		return
	}
	from, to, err := parseWindow(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.Evaluate(r.Context(), EvalRequest{
		TenantID:  tenantID,
		ProductID: productID,
		SaleType:  saleType,
		From:      from,
		To:        to,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSaleType):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		case errors.Is(err, ErrNoCostBasis):
			httpx.Problem(w, http.StatusUnprocessableEntity, "No Cost Basis", err.Error())
		default:
			h.logger.Error("evaluate allocation", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}

	resp := evaluationResponse{
		ProductID:        productID,
		SaleType:         saleType,
		SoldQty:          result.SoldQty,
		COGS:             result.COGS.String(),
		AvgBuyPrice:      result.AvgBuyPrice.String(),
		AllocatedRevenue: result.AllocatedRevenue.String(),
		AvgSellPrice:     result.AvgSellPrice.String(),
		RemainingValue:   result.RemainingValue.String(),
		RemainingLots:    make([]remainingLot, 0, len(result.RemainingLots)),
		ShortfallQty:     result.ShortfallQty,
		Provisional:      result.Shortfall(),
		Warnings:         result.Warnings,
	}
	for _, lot := range result.RemainingLots {
		resp.RemainingLots = append(resp.RemainingLots, remainingLot{
			LotID:     lot.LotID,
			Qty:       lot.Qty,
			UnitCost:  lot.UnitCost.String(),
			EventDate: lot.EventDate.Format("2006-01-02"),
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func parseWindow(fromStr, toStr string) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	from := time.Time{}
	var err error
	if toStr != "" {
		if to, err = time.Parse("2006-01-02", toStr); err != nil {
			return from, to, fmt.Errorf("invalid to date: %s", toStr)
		}
	}
	if fromStr != "" {
		if from, err = time.Parse("2006-01-02", fromStr); err != nil {
			return from, to, fmt.Errorf("invalid from date: %s", fromStr)
		}
	}
	return from, to, nil
}
