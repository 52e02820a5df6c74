package costing

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleType enumerates the two ways a cylinder leaves the yard.
type SaleType string

const (
	// SaleTypeRefill sells gas only; the empty cylinder comes back.
	SaleTypeRefill SaleType = "REFILL"
	// SaleTypePackage sells gas and cylinder together.
	SaleTypePackage SaleType = "PACKAGE"
)

// Valid reports whether the sale type is one of the known values.
func (t SaleType) Valid() bool {
	return t == SaleTypeRefill || t == SaleTypePackage
}

var (
	// ErrInvalidSaleType indicates an unknown sale type value.
	ErrInvalidSaleType = errors.New("costing: invalid sale type")
	// ErrNoCostBasis indicates that no lot in the evaluation carries a usable unit cost.
	ErrNoCostBasis = errors.New("costing: no lot carries a unit cost")
	// ErrUnorderedLots indicates the lot stream is not ascending by date.
	ErrUnorderedLots = errors.New("costing: purchase lots not in date order")
	// ErrUnorderedSales indicates the sale stream is not ascending by date.
	ErrUnorderedSales = errors.New("costing: sale events not in date order")
)

// PurchaseLot is one completed incoming shipment of a product. Immutable once
// the shipment is marked complete; allocation never writes back to it.
type PurchaseLot struct {
	ID        int64
	TenantID  uuid.UUID
	ProductID int64
	Qty       int64
	// UnitCost is resolved at construction time for the sale-type context of
	// the evaluation: gas-only for REFILL, gas plus cylinder for PACKAGE.
	UnitCost decimal.Decimal
	// HasCost is false when neither a structured cost nor a parseable memo
	// price exists for the lot.
	HasCost   bool
	EventDate time.Time
	Memo      string
}

// SaleEvent is one sale transaction for a product.
type SaleEvent struct {
	ID             int64
	TenantID       uuid.UUID
	ProductID      int64
	CounterpartyID int64
	Qty            int64
	UnitPrice      decimal.Decimal
	TotalValue     decimal.Decimal
	Type           SaleType
	EventDate      time.Time
}

// RemainingLot reports the residual quantity of a lot after allocation,
// alongside the cost the residue is carried at.
type RemainingLot struct {
	LotID     int64
	Qty       int64
	UnitCost  decimal.Decimal
	EventDate time.Time
}

// AllocationResult is the outcome of one FIFO evaluation for one product.
type AllocationResult struct {
	SoldQty          int64
	COGS             decimal.Decimal
	AvgBuyPrice      decimal.Decimal
	AllocatedRevenue decimal.Decimal
	AvgSellPrice     decimal.Decimal
	RemainingValue   decimal.Decimal
	RemainingLots    []RemainingLot
	// ShortfallQty counts sale units that could not be matched to any lot.
	// Non-zero means recorded sales outran recorded shipments; callers must
	// treat the figures as provisional.
	ShortfallQty int64
	Warnings     []string
}

// Shortfall reports whether any sale unit went unmatched.
func (r AllocationResult) Shortfall() bool {
	return r.ShortfallQty > 0
}

// EvalRequest scopes one allocation run.
type EvalRequest struct {
	TenantID  uuid.UUID `validate:"required"`
	ProductID int64     `validate:"required,gt=0"`
	SaleType  SaleType  `validate:"required,oneof=REFILL PACKAGE"`
	From      time.Time
	To        time.Time `validate:"required"`
}
