package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "purchasing:idempotency_cleanup"
	// TaskCatalogReindex rebuilds product search names and drops cached catalog pages.
	TaskCatalogReindex = "catalog:reindex"
)

// IdempotencyCleanupPayload carries the retention window in seconds. Zero uses
// the job default.
type IdempotencyCleanupPayload struct {
	RetentionSeconds int64 `json:"retention_seconds"`
}

// NewIdempotencyCleanupTask builds a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionSeconds: int64(retention / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// CatalogReindexPayload contains options for the reindex job.
type CatalogReindexPayload struct {
	Batch int  `json:"batch"`
	Force bool `json:"force"`
}

// NewCatalogReindexTask builds a reindex task. Force drops cached catalog
// pages even when no search name changed.
func NewCatalogReindexTask(batch int, force bool) (*asynq.Task, error) {
	body, err := json.Marshal(CatalogReindexPayload{Batch: batch, Force: force})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogReindex, body, asynq.Queue(QueueDefault)), nil
}
