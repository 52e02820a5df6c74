package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/gasledger/gasledger/internal/shared"
)

// ForwardRecomputer rebuilds a counterparty's balance chain after a
// retroactive change. Satisfied by the receivable service.
type ForwardRecomputer interface {
	RecomputeForward(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, from time.Time) (int, error)
}

// CascadeEnqueuer schedules cascade tasks, collapsing duplicate requests for
// the same chain while one is still pending.
type CascadeEnqueuer struct {
	client *Client
	idem   *shared.IdempotencyStore
	logger *slog.Logger
}

// NewCascadeEnqueuer constructs CascadeEnqueuer.
func NewCascadeEnqueuer(client *Client, idem *shared.IdempotencyStore, logger *slog.Logger) *CascadeEnqueuer {
	return &CascadeEnqueuer{client: client, idem: idem, logger: logger}
}

// EnqueueCascade submits a forward-recompute task for the chain starting
// after from. A second request for an identical pending chain is a no-op.
func (e *CascadeEnqueuer) EnqueueCascade(ctx context.Context, tenantID uuid.UUID, counterpartyID int64, from time.Time) error {
	key := shared.CascadeKey(tenantID, counterpartyID, from)
	if err := e.idem.CheckAndInsert(ctx, key, "jobs"); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return nil
		}
		return err
	}
	task, err := NewReceivableCascadeTask(ReceivableCascadePayload{
		TenantID:       tenantID,
		CounterpartyID: counterpartyID,
		From:           from,
	})
	if err != nil {
		_ = e.idem.Delete(ctx, key)
		return err
	}
	if _, err := e.client.Enqueue(ctx, task, asynq.MaxRetry(5)); err != nil {
		_ = e.idem.Delete(ctx, key)
		return err
	}
	return nil
}

// NewReceivableCascadeHandler returns the worker-side handler. The pending
// key is released whether the cascade succeeds or fails, so a later request
// can schedule a fresh run.
func NewReceivableCascadeHandler(recomputer ForwardRecomputer, idem *shared.IdempotencyStore, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ReceivableCascadePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		defer func() {
			_ = idem.Delete(ctx, shared.CascadeKey(payload.TenantID, payload.CounterpartyID, payload.From))
		}()

		rebuilt, err := recomputer.RecomputeForward(ctx, payload.TenantID, payload.CounterpartyID, payload.From)
		if err != nil {
			if logger != nil {
				logger.Error("receivable cascade failed",
					slog.String("tenant", payload.TenantID.String()),
					slog.Int64("counterparty", payload.CounterpartyID),
					slog.Int("rebuilt", rebuilt),
					slog.Any("error", err))
			}
			return err
		}
		if logger != nil {
			logger.Info("receivable cascade complete",
				slog.String("tenant", payload.TenantID.String()),
				slog.Int64("counterparty", payload.CounterpartyID),
				slog.Int("rebuilt", rebuilt))
		}
		return nil
	}
}
