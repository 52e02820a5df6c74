package valuation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductValuation is one product's slice of the tenant's inventory value.
type ProductValuation struct {
	ProductID      int64           `json:"product_id"`
	SoldQty        int64           `json:"sold_qty"`
	COGS           decimal.Decimal `json:"cogs"`
	AvgBuyPrice    decimal.Decimal `json:"avg_buy_price"`
	RemainingQty   int64           `json:"remaining_qty"`
	RemainingValue decimal.Decimal `json:"remaining_value"`
	// Provisional marks figures built on a shortfall; the upstream shipment
	// data needs correction before they can be trusted.
	Provisional bool     `json:"provisional"`
	Warnings    []string `json:"warnings,omitempty"`
}

// AssetValuation aggregates remaining inventory value across a tenant's
// products as of a date.
type AssetValuation struct {
	TenantID    uuid.UUID          `json:"tenant_id"`
	AsOf        time.Time          `json:"as_of"`
	TotalValue  decimal.Decimal    `json:"total_value"`
	Products    []ProductValuation `json:"products"`
	Provisional bool               `json:"provisional"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// StockStatus is the current refill-consumption view of one product: package
// sales deliberately do not drain these figures (see the costing service).
type StockStatus struct {
	ProductID      int64           `json:"product_id"`
	RemainingQty   int64           `json:"remaining_qty"`
	RemainingValue decimal.Decimal `json:"remaining_value"`
	AvgBuyPrice    decimal.Decimal `json:"avg_buy_price"`
	Provisional    bool            `json:"provisional"`
}
