package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReceivableCascade rebuilds a counterparty's balance chain forward
	// from a corrected day.
	TaskReceivableCascade = "receivable:cascade"
	// TaskValuationSnapshot warms the cached asset valuation for a tenant.
	TaskValuationSnapshot = "valuation:snapshot"
	// TaskIdempotencySweep purges idempotency keys past retention. Pending
	// keys are normally deleted by their handlers; the sweep catches keys
	// orphaned by crashes.
	TaskIdempotencySweep = "maintenance:idempotency_sweep"
)

// ReceivableCascadePayload identifies the chain to rebuild.
type ReceivableCascadePayload struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	CounterpartyID int64     `json:"counterparty_id"`
	From           time.Time `json:"from"`
}

// NewReceivableCascadeTask constructs an Asynq task for a forward recompute.
func NewReceivableCascadeTask(payload ReceivableCascadePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReceivableCascade, data, asynq.Queue(QueueDefault)), nil
}

// ValuationSnapshotPayload scopes the nightly warmup.
type ValuationSnapshotPayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
	AsOf     time.Time `json:"as_of"`
}

// NewValuationSnapshotTask constructs an Asynq task for valuation warmup.
func NewValuationSnapshotTask(payload ValuationSnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskValuationSnapshot, data, asynq.Queue(QueueDefault)), nil
}
