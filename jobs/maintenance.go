package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gasledger/gasledger/internal/shared"
)

const idempotencyRetention = 7 * 24 * time.Hour

// NewIdempotencySweepTask constructs the periodic cleanup task.
func NewIdempotencySweepTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencySweep, nil, asynq.Queue(QueueDefault))
}

// NewIdempotencySweepHandler returns the worker-side handler that deletes
// idempotency keys older than the retention window.
func NewIdempotencySweepHandler(store *shared.IdempotencyStore, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := store.Cleanup(ctx, idempotencyRetention); err != nil {
			if logger != nil {
				logger.Error("idempotency sweep failed", slog.Any("error", err))
			}
			return err
		}
		return nil
	}
}
