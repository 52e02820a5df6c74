package valuation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/gasledger/gasledger/internal/costing"
)

// CostingPort abstracts the FIFO engine for valuation callers.
type CostingPort interface {
	Evaluate(ctx context.Context, req costing.EvalRequest) (costing.AllocationResult, error)
	Products(ctx context.Context, tenantID uuid.UUID) ([]int64, error)
}

// Service aggregates per-product allocation results into tenant-level
// figures. Results are cached and concurrent identical requests collapse into
// one computation.
type Service struct {
	costing CostingPort
	cache   *Cache
	logger  *slog.Logger
	group   singleflight.Group
	// fanout bounds concurrent product evaluations per request.
	fanout int
}

// NewService builds Service.
func NewService(costingSvc CostingPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{costing: costingSvc, cache: cache, logger: logger, fanout: 8}
}

// AssetValuation values the tenant's remaining inventory as of a date. The
// whole figure is flagged provisional when any product reported a shortfall.
func (s *Service) AssetValuation(ctx context.Context, tenantID uuid.UUID, asOf time.Time) (AssetValuation, error) {
	asOf = day(asOf)
	if cached, ok, err := s.cache.Get(ctx, tenantID, asOf); err != nil {
		if s.logger != nil {
			s.logger.Warn("valuation cache read failed", slog.Any("error", err))
		}
	} else if ok {
		return cached, nil
	}

	key := fmt.Sprintf("%s:%s", tenantID, asOf.Format("2006-01-02"))
	ch := s.group.DoChan(key, func() (any, error) {
		return s.build(ctx, tenantID, asOf)
	})
	select {
	case <-ctx.Done():
		return AssetValuation{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return AssetValuation{}, res.Err
		}
		return res.Val.(AssetValuation), nil
	}
}

// StockStatus reports the current refill-mode stock position of one product.
func (s *Service) StockStatus(ctx context.Context, tenantID uuid.UUID, productID int64) (StockStatus, error) {
	result, err := s.costing.Evaluate(ctx, costing.EvalRequest{
		TenantID:  tenantID,
		ProductID: productID,
		SaleType:  costing.SaleTypeRefill,
		To:        time.Now().UTC(),
	})
	if err != nil {
		return StockStatus{}, err
	}
	status := StockStatus{
		ProductID:      productID,
		RemainingValue: result.RemainingValue,
		AvgBuyPrice:    result.AvgBuyPrice,
		Provisional:    result.Shortfall(),
	}
	for _, lot := range result.RemainingLots {
		status.RemainingQty += lot.Qty
	}
	return status, nil
}

// Warm rebuilds and caches the tenant valuation, used by the nightly snapshot
// job. Any cached entry for the day is dropped first so the snapshot always
// recomputes from source data.
func (s *Service) Warm(ctx context.Context, tenantID uuid.UUID, asOf time.Time) error {
	asOf = day(asOf)
	if err := s.cache.Invalidate(ctx, tenantID, asOf); err != nil && s.logger != nil {
		s.logger.Warn("valuation cache invalidate failed", slog.Any("error", err))
	}
	_, err := s.AssetValuation(ctx, tenantID, asOf)
	return err
}

func (s *Service) build(ctx context.Context, tenantID uuid.UUID, asOf time.Time) (AssetValuation, error) {
	products, err := s.costing.Products(ctx, tenantID)
	if err != nil {
		return AssetValuation{}, err
	}

	results := make([]ProductValuation, len(products))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanout)
	for i, productID := range products {
		g.Go(func() error {
			result, err := s.costing.Evaluate(gctx, costing.EvalRequest{
				TenantID:  tenantID,
				ProductID: productID,
				SaleType:  costing.SaleTypeRefill,
				To:        asOf,
			})
			if err != nil {
				return fmt.Errorf("valuation: product %d: %w", productID, err)
			}
			pv := ProductValuation{
				ProductID:      productID,
				SoldQty:        result.SoldQty,
				COGS:           result.COGS,
				AvgBuyPrice:    result.AvgBuyPrice,
				RemainingValue: result.RemainingValue,
				Provisional:    result.Shortfall(),
				Warnings:       result.Warnings,
			}
			for _, lot := range result.RemainingLots {
				pv.RemainingQty += lot.Qty
			}
			results[i] = pv
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return AssetValuation{}, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].ProductID < results[j].ProductID })

	valuation := AssetValuation{
		TenantID:    tenantID,
		AsOf:        asOf,
		TotalValue:  decimal.Zero,
		Products:    results,
		GeneratedAt: time.Now().UTC(),
	}
	for _, pv := range results {
		valuation.TotalValue = valuation.TotalValue.Add(pv.RemainingValue)
		if pv.Provisional {
			valuation.Provisional = true
		}
	}

	if err := s.cache.Set(ctx, valuation); err != nil && s.logger != nil {
		s.logger.Warn("valuation cache write failed", slog.Any("error", err))
	}
	return valuation, nil
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
