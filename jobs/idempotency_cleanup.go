package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-purchasing/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// KeyPurger removes idempotency keys older than the retention window.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob purges processed request keys so clients may reuse them
// after the retention window.
type IdempotencyCleanupJob struct {
	Store     KeyPurger
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob wires dependencies for the cleanup handler.
func NewIdempotencyCleanupJob(store KeyPurger, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle processes cleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := j.Retention
	if payload.RetentionSeconds > 0 {
		retention = time.Duration(payload.RetentionSeconds) * time.Second
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	tracker := jobMetrics(j.Metrics).Track(TaskIdempotencyCleanup)
	purged, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		jobLogger(j.Logger, TaskIdempotencyCleanup).Error("purge idempotency keys", slog.Any("error", err))
		return tracker.End(err)
	}
	jobMetrics(j.Metrics).AddAffected(TaskIdempotencyCleanup, purged)
	jobLogger(j.Logger, TaskIdempotencyCleanup).Info("purged idempotency keys", slog.Int64("purged", purged), slog.Duration("retention", retention))
	return tracker.End(nil)
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger != nil {
		return logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func jobMetrics(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}
