package valuation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gasledger/gasledger/internal/costing"
)

type mockCosting struct {
	mu       sync.Mutex
	results  map[int64]costing.AllocationResult
	products []int64
	evals    int
}

func (m *mockCosting) Evaluate(ctx context.Context, req costing.EvalRequest) (costing.AllocationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evals++
	return m.results[req.ProductID], nil
}

func (m *mockCosting) Products(ctx context.Context, tenantID uuid.UUID) ([]int64, error) {
	return m.products, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService(t *testing.T, mock *mockCosting) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(mock, cache, logger)
}

func TestAssetValuationAggregatesProducts(t *testing.T) {
	mock := &mockCosting{
		products: []int64{3, 1, 2},
		results: map[int64]costing.AllocationResult{
			1: {RemainingValue: dec("1000"), RemainingLots: []costing.RemainingLot{{LotID: 1, Qty: 10}}},
			2: {RemainingValue: dec("500"), RemainingLots: []costing.RemainingLot{{LotID: 2, Qty: 4}}},
			3: {RemainingValue: dec("250")},
		},
	}
	svc := newTestService(t, mock)

	v, err := svc.AssetValuation(context.Background(), uuid.New(), time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.True(t, v.TotalValue.Equal(dec("1750")), "total = %s", v.TotalValue)
	require.False(t, v.Provisional)
	require.Len(t, v.Products, 3)
	// Products come back sorted regardless of listing order.
	require.Equal(t, int64(1), v.Products[0].ProductID)
	require.Equal(t, int64(3), v.Products[2].ProductID)
	require.Equal(t, int64(10), v.Products[0].RemainingQty)
}

func TestAssetValuationProvisionalPropagates(t *testing.T) {
	mock := &mockCosting{
		products: []int64{1, 2},
		results: map[int64]costing.AllocationResult{
			1: {RemainingValue: dec("1000")},
			2: {ShortfallQty: 3, Warnings: []string{"sale 9: 3 of 5 units had no lot to consume"}},
		},
	}
	svc := newTestService(t, mock)

	v, err := svc.AssetValuation(context.Background(), uuid.New(), time.Now())
	require.NoError(t, err)
	require.True(t, v.Provisional)
	require.False(t, v.Products[0].Provisional)
	require.True(t, v.Products[1].Provisional)
	require.NotEmpty(t, v.Products[1].Warnings)
}

func TestAssetValuationServesFromCache(t *testing.T) {
	mock := &mockCosting{
		products: []int64{1},
		results:  map[int64]costing.AllocationResult{1: {RemainingValue: dec("1000")}},
	}
	svc := newTestService(t, mock)
	tenant := uuid.New()
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.AssetValuation(context.Background(), tenant, asOf)
	require.NoError(t, err)
	evalsAfterFirst := mock.evals

	v, err := svc.AssetValuation(context.Background(), tenant, asOf)
	require.NoError(t, err)
	require.Equal(t, evalsAfterFirst, mock.evals)
	require.True(t, v.TotalValue.Equal(dec("1000")))
}

func TestWarmRecomputesOverStaleCache(t *testing.T) {
	mock := &mockCosting{
		products: []int64{1},
		results:  map[int64]costing.AllocationResult{1: {RemainingValue: dec("1000")}},
	}
	svc := newTestService(t, mock)
	tenant := uuid.New()
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.AssetValuation(context.Background(), tenant, asOf)
	require.NoError(t, err)

	mock.mu.Lock()
	mock.results[1] = costing.AllocationResult{RemainingValue: dec("1400")}
	mock.mu.Unlock()

	require.NoError(t, svc.Warm(context.Background(), tenant, asOf))

	// The rebuilt figure is now cached, so the read does not evaluate again.
	evalsAfterWarm := mock.evals
	v, err := svc.AssetValuation(context.Background(), tenant, asOf)
	require.NoError(t, err)
	require.Equal(t, evalsAfterWarm, mock.evals)
	require.True(t, v.TotalValue.Equal(dec("1400")), "total = %s", v.TotalValue)
}

func TestAssetValuationEmptyTenant(t *testing.T) {
	svc := newTestService(t, &mockCosting{})

	v, err := svc.AssetValuation(context.Background(), uuid.New(), time.Now())
	require.NoError(t, err)
	require.True(t, v.TotalValue.IsZero())
	require.Empty(t, v.Products)
}

func TestStockStatus(t *testing.T) {
	mock := &mockCosting{
		results: map[int64]costing.AllocationResult{
			7: {
				AvgBuyPrice:    dec("106.67"),
				RemainingValue: dec("600"),
				RemainingLots: []costing.RemainingLot{
					{LotID: 2, Qty: 5, UnitCost: dec("120")},
				},
			},
		},
	}
	svc := newTestService(t, mock)

	status, err := svc.StockStatus(context.Background(), uuid.New(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(7), status.ProductID)
	require.Equal(t, int64(5), status.RemainingQty)
	require.True(t, status.RemainingValue.Equal(dec("600")))
	require.False(t, status.Provisional)
}
