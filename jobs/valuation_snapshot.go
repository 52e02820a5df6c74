package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ValuationWarmer precomputes a tenant's asset valuation. Satisfied by the
// valuation service.
type ValuationWarmer interface {
	Warm(ctx context.Context, tenantID uuid.UUID, asOf time.Time) error
}

// NewValuationSnapshotHandler returns the worker-side handler for the nightly
// warmup. When the payload carries no tenant, every tenant with shipment
// history is warmed.
func NewValuationSnapshotHandler(warmer ValuationWarmer, pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ValuationSnapshotPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		asOf := payload.AsOf
		if asOf.IsZero() {
			asOf = time.Now().UTC()
		}

		tenants := []uuid.UUID{payload.TenantID}
		if payload.TenantID == uuid.Nil {
			var err error
			if tenants, err = listTenants(ctx, pool); err != nil {
				return err
			}
		}

		for _, tenantID := range tenants {
			if err := warmer.Warm(ctx, tenantID, asOf); err != nil {
				if logger != nil {
					logger.Warn("valuation warmup failed",
						slog.String("tenant", tenantID.String()),
						slog.Any("error", err))
				}
				continue
			}
		}
		return nil
	}
}

func listTenants(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT DISTINCT tenant_id FROM purchase_lots WHERE status='COMPLETED'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}
