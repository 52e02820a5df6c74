package receivable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gasledger/gasledger/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	DaysAfter(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, day time.Time) ([]time.Time, error)
	ListRange(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, from, to time.Time) ([]Balance, error)
}

// LockPort serialises writers per counterparty-day key.
type LockPort interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// CascadePort schedules forward recomputation of days invalidated by a
// retroactive change.
type CascadePort interface {
	EnqueueCascade(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, from time.Time) error
}

// MetricsPort records engine outcomes.
type MetricsPort interface {
	ObserveRecompute(outcome string)
}

// Service computes the day-over-day receivable recurrence.
type Service struct {
	repo    RepositoryPort
	locks   LockPort
	cascade CascadePort
	logger  *slog.Logger
	metrics MetricsPort
}

// NewService builds Service. cascade may be nil when the caller handles
// forward recomputation itself (the worker does).
func NewService(repo RepositoryPort, locks LockPort, cascade CascadePort, logger *slog.Logger, metrics MetricsPort) *Service {
	return &Service{repo: repo, locks: locks, cascade: cascade, logger: logger, metrics: metrics}
}

// Recompute rebuilds the balance for one counterparty-day from that day's
// transactions and the predecessor total, replacing any stored record for the
// key. Re-running with the same inputs always lands on the same record.
//
// When stored balances exist after the target day they are now stale; a
// cascade job is enqueued to rebuild them in order.
func (s *Service) Recompute(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, day time.Time) (Balance, error) {
	balance, err := s.recomputeDay(ctx, tenantID, counterpartyID, Day(day))
	if err != nil {
		s.observe("error")
		return Balance{}, err
	}

	later, err := s.repo.DaysAfter(ctx, tenantID, counterpartyID, balance.Day)
	if err != nil {
		return Balance{}, err
	}
	if len(later) > 0 && s.cascade != nil {
		if err := s.cascade.EnqueueCascade(ctx, tenantID, counterpartyID, balance.Day); err != nil {
			return Balance{}, fmt.Errorf("receivable: enqueue cascade: %w", err)
		}
		if s.logger != nil {
			s.logger.Info("cascade scheduled",
				slog.String("tenant", tenantID.String()),
				slog.Int64("counterparty", counterpartyID),
				slog.Time("from", balance.Day),
				slog.Int("stale_days", len(later)))
		}
	}
	s.observe("ok")
	return balance, nil
}

// RecomputeForward rebuilds every stored day strictly after from, oldest
// first, so each day reads the corrected predecessor. Run by the cascade
// worker.
func (s *Service) RecomputeForward(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, from time.Time) (int, error) {
	days, err := s.repo.DaysAfter(ctx, tenantID, counterpartyID, Day(from))
	if err != nil {
		return 0, err
	}
	for i, day := range days {
		if _, err := s.recomputeDay(ctx, tenantID, counterpartyID, day); err != nil {
			s.observe("cascade_error")
			return i, fmt.Errorf("receivable: cascade stopped at %s: %w", day.Format("2006-01-02"), err)
		}
	}
	s.observe("cascade_ok")
	return len(days), nil
}

// ListRange returns stored balances between two days inclusive.
func (s *Service) ListRange(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, from, to time.Time) ([]Balance, error) {
	if from.After(to) {
		return nil, errors.New("receivable: range start after end")
	}
	return s.repo.ListRange(ctx, tenantID, counterpartyID, Day(from), Day(to))
}

func (s *Service) recomputeDay(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, day time.Time) (Balance, error) {
	if counterpartyID <= 0 {
		return Balance{}, errors.New("receivable: counterparty required")
	}
	if tenantID == uuid.Nil {
		return Balance{}, shared.ErrTenantRequired
	}

	release, err := s.locks.Acquire(ctx, shared.ReceivableLockKey(tenantID, counterpartyID, day))
	if err != nil {
		return Balance{}, err
	}
	defer release()

	var balance Balance
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prev, err := tx.LatestBefore(ctx, tenantID, counterpartyID, day)
		if err != nil {
			return err
		}

		// A predecessor may be legitimately absent only for the first-ever
		// day. Any day with transactions between the predecessor (or the
		// beginning of time) and the target that has no stored balance means
		// the chain would be built on a wrong total.
		lower := time.Time{}
		if prev != nil {
			lower = prev.Day
		}
		gaps, err := tx.UncomputedActivityDays(ctx, tenantID, counterpartyID, lower, day)
		if err != nil {
			return err
		}
		if len(gaps) > 0 {
			return fmt.Errorf("%w: first uncomputed day %s", ErrOutOfOrder, gaps[0].Format("2006-01-02"))
		}

		prevCash := decimal.Zero
		var prevCylinders int64
		if prev != nil {
			prevCash = prev.CashTotal
			prevCylinders = prev.CylinderTotal
		}

		agg, err := tx.AggregateDay(ctx, tenantID, counterpartyID, day)
		if err != nil {
			return err
		}

		balance = Balance{
			TenantID:       tenantID,
			CounterpartyID: counterpartyID,
			Day:            day,
			CashDelta:      agg.CashDelta(),
			CylinderDelta:  agg.CylinderDelta(),
			CashTotal:      prevCash.Add(agg.CashDelta()),
			CylinderTotal:  prevCylinders + agg.CylinderDelta(),
		}
		return tx.Upsert(ctx, balance)
	})
	if err != nil {
		return Balance{}, err
	}
	return balance, nil
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveRecompute(outcome)
	}
}
