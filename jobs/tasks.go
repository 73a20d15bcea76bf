package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockIntegrityScan re-derives stock quantities from the audit
	// trail and reports drift.
	TaskStockIntegrityScan = "inventory:integrity_scan"
	// TaskLedgerIntegrityScan verifies journal entries still balance.
	TaskLedgerIntegrityScan = "ledger:integrity_scan"
	// TaskIdempotencyCleanup expires old idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// IntegrityScanPayload optionally narrows a scan to one tenant. A nil tenant
// scans everything.
type IntegrityScanPayload struct {
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`
}

// NewStockIntegrityScanTask constructs an Asynq task.
func NewStockIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockIntegrityScan, data), nil
}

// NewLedgerIntegrityScanTask constructs an Asynq task.
func NewLedgerIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrityScan, data), nil
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
