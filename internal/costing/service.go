package costing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// RepositoryPort abstracts event-stream reads for the service.
type RepositoryPort interface {
	ListLots(ctx context.Context, tenantID uuid.UUID, productID int64, saleType SaleType) ([]PurchaseLot, error)
	ListSales(ctx context.Context, tenantID uuid.UUID, productID int64, saleType SaleType, from, to time.Time) ([]SaleEvent, error)
	ListProducts(ctx context.Context, tenantID uuid.UUID) ([]int64, error)
}

// MetricsPort records engine outcomes.
type MetricsPort interface {
	ObserveAllocation(saleType string, shortfall bool)
}

// Service runs FIFO evaluations against the stored event streams.
type Service struct {
	repo     RepositoryPort
	logger   *slog.Logger
	metrics  MetricsPort
	validate *validator.Validate
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger, metrics MetricsPort) *Service {
	return &Service{
		repo:     repo,
		logger:   logger,
		metrics:  metrics,
		validate: validator.New(),
	}
}

// Evaluate loads the product's full lot history and the windowed sale stream
// for one sale type, then allocates. The sale-type scoping is deliberate:
// current stock status is evaluated against REFILL consumption only, and
// whether PACKAGE sales should also drain the same lots stays an explicit
// caller decision rather than something merged here.
func (s *Service) Evaluate(ctx context.Context, req EvalRequest) (AllocationResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return AllocationResult{}, fmt.Errorf("costing: invalid evaluation request: %w", err)
	}
	if req.From.After(req.To) {
		return AllocationResult{}, errors.New("costing: window start after end")
	}

	lots, err := s.repo.ListLots(ctx, req.TenantID, req.ProductID, req.SaleType)
	if err != nil {
		return AllocationResult{}, err
	}
	sales, err := s.repo.ListSales(ctx, req.TenantID, req.ProductID, req.SaleType, req.From, req.To)
	if err != nil {
		return AllocationResult{}, err
	}

	result, err := Allocate(lots, sales)
	if err != nil {
		return AllocationResult{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveAllocation(string(req.SaleType), result.Shortfall())
	}
	if result.Shortfall() && s.logger != nil {
		s.logger.Warn("allocation shortfall",
			slog.String("tenant", req.TenantID.String()),
			slog.Int64("product", req.ProductID),
			slog.Int64("shortfall_qty", result.ShortfallQty))
	}
	return result, nil
}

// Products lists the tenant's products with completed lot history.
func (s *Service) Products(ctx context.Context, tenantID uuid.UUID) ([]int64, error) {
	return s.repo.ListProducts(ctx, tenantID)
}
