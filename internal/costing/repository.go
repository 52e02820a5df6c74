package costing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads purchase lot and sale event streams from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListLots returns the full completed-shipment history for a product in
// ascending date order. The unit cost on each lot is already resolved for the
// sale-type context: the structured gas/cylinder components win, the memo
// parser fills in for legacy rows, and lots with neither are flagged costless.
func (r *Repository) ListLots(ctx context.Context, tenantID uuid.UUID, productID int64, saleType SaleType) ([]PurchaseLot, error) {
	if r == nil {
		return nil, errors.New("costing repository not initialised")
	}
	if !saleType.Valid() {
		return nil, ErrInvalidSaleType
	}
	rows, err := r.pool.Query(ctx, `SELECT id, qty, gas_unit_cost::text, cylinder_unit_cost::text, event_date, COALESCE(memo, '')
FROM purchase_lots
WHERE tenant_id=$1 AND product_id=$2 AND status='COMPLETED'
ORDER BY event_date ASC, id ASC`, tenantID, productID)
	if err != nil {
		return nil, fmt.Errorf("costing: list lots: %w", err)
	}
	defer rows.Close()

	var lots []PurchaseLot
	for rows.Next() {
		var (
			lot     PurchaseLot
			gasText *string
			cylText *string
		)
		if err := rows.Scan(&lot.ID, &lot.Qty, &gasText, &cylText, &lot.EventDate, &lot.Memo); err != nil {
			return nil, fmt.Errorf("costing: scan lot: %w", err)
		}
		lot.TenantID = tenantID
		lot.ProductID = productID
		lot.UnitCost, lot.HasCost = resolveLotCost(gasText, cylText, lot.Memo, saleType)
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("costing: iterate lots: %w", err)
	}
	return lots, nil
}

// ListSales returns sale events for a product, one sale type, within a date
// window, ascending by date.
func (r *Repository) ListSales(ctx context.Context, tenantID uuid.UUID, productID int64, saleType SaleType, from, to time.Time) ([]SaleEvent, error) {
	if r == nil {
		return nil, errors.New("costing repository not initialised")
	}
	if !saleType.Valid() {
		return nil, ErrInvalidSaleType
	}
	rows, err := r.pool.Query(ctx, `SELECT id, counterparty_id, qty, unit_price::text, total_value::text, event_date
FROM sale_events
WHERE tenant_id=$1 AND product_id=$2 AND sale_type=$3 AND event_date >= $4 AND event_date <= $5
ORDER BY event_date ASC, id ASC`, tenantID, productID, string(saleType), from, to)
	if err != nil {
		return nil, fmt.Errorf("costing: list sales: %w", err)
	}
	defer rows.Close()

	var sales []SaleEvent
	for rows.Next() {
		var (
			sale      SaleEvent
			priceText string
			valueText string
		)
		if err := rows.Scan(&sale.ID, &sale.CounterpartyID, &sale.Qty, &priceText, &valueText, &sale.EventDate); err != nil {
			return nil, fmt.Errorf("costing: scan sale: %w", err)
		}
		sale.TenantID = tenantID
		sale.ProductID = productID
		sale.Type = saleType
		if sale.UnitPrice, err = decimal.NewFromString(priceText); err != nil {
			return nil, fmt.Errorf("costing: parse unit price: %w", err)
		}
		if sale.TotalValue, err = decimal.NewFromString(valueText); err != nil {
			return nil, fmt.Errorf("costing: parse total value: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("costing: iterate sales: %w", err)
	}
	return sales, nil
}

// ListProducts returns the distinct products a tenant holds completed lots
// for, used by valuation fan-out.
func (r *Repository) ListProducts(ctx context.Context, tenantID uuid.UUID) ([]int64, error) {
	if r == nil {
		return nil, errors.New("costing repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT product_id FROM purchase_lots WHERE tenant_id=$1 AND status='COMPLETED' ORDER BY product_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("costing: list products: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("costing: scan product id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("costing: iterate products: %w", err)
	}
	return ids, nil
}

// resolveLotCost picks the unit cost for a lot under one sale-type context.
// Structured components take precedence over the memo fallback.
func resolveLotCost(gasText, cylText *string, memo string, saleType SaleType) (decimal.Decimal, bool) {
	if gasText != nil {
		gas, err := decimal.NewFromString(*gasText)
		if err == nil {
			if saleType == SaleTypeRefill {
				return gas, true
			}
			if cylText != nil {
				if cyl, err := decimal.NewFromString(*cylText); err == nil {
					return gas.Add(cyl), true
				}
			}
			return gas, true
		}
	}
	return ExtractMemoPrice(memo, saleType)
}
