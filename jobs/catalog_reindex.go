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

// CatalogIndexer is the catalog surface the reindex job drives.
type CatalogIndexer interface {
	ReindexSearchNames(ctx context.Context, batch int) (int, error)
	Invalidate(ctx context.Context)
}

// CatalogReindexJob refreshes normalized product search names.
type CatalogReindexJob struct {
	Catalog CatalogIndexer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCatalogReindexJob wires dependencies for the reindex handler.
func NewCatalogReindexJob(catalog CatalogIndexer, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogReindexJob {
	return &CatalogReindexJob{Catalog: catalog, Logger: logger, Metrics: metrics}
}

// Handle processes reindex tasks.
func (j *CatalogReindexJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Catalog == nil {
		return errors.New("catalog reindex: handler not configured")
	}
	var payload CatalogReindexPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := jobLogger(j.Logger, TaskCatalogReindex)
	tracker := jobMetrics(j.Metrics).Track(TaskCatalogReindex)
	start := time.Now()
	updated, err := j.Catalog.ReindexSearchNames(ctx, payload.Batch)
	if err != nil {
		logger.Error("reindex search names", slog.Any("error", err))
		return tracker.End(err)
	}
	if payload.Force && updated == 0 {
		j.Catalog.Invalidate(ctx)
	}
	jobMetrics(j.Metrics).AddAffected(TaskCatalogReindex, int64(updated))
	logger.Info("catalog reindexed", slog.Int("updated", updated), slog.Bool("force", payload.Force), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}
