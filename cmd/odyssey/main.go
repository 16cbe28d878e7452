package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-purchasing/internal/app"
	"github.com/odyssey-erp/odyssey-purchasing/internal/auth"
	"github.com/odyssey-erp/odyssey-purchasing/internal/catalog"
	"github.com/odyssey-erp/odyssey-purchasing/internal/inventory"
	"github.com/odyssey-erp/odyssey-purchasing/internal/observability"
	"github.com/odyssey-erp/odyssey-purchasing/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-purchasing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-purchasing/internal/platform/storage"
	"github.com/odyssey-erp/odyssey-purchasing/internal/procurement"
	"github.com/odyssey-erp/odyssey-purchasing/internal/rbac"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
	"github.com/odyssey-erp/odyssey-purchasing/jobs"
	"github.com/odyssey-erp/odyssey-purchasing/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if cfg.AutoMigrate {
		if err := db.Migrate(cfg.PGDSN, migrations.FS, logger); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLife})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	attachments, err := attachmentStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("attachment store", slog.Any("error", err))
		os.Exit(1)
	}

	verifier, err := auth.NewVerifier(cfg.AuthSecret, cfg.AuthIssuer)
	if err != nil {
		logger.Error("auth verifier", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()
	rbacMiddleware := rbac.Middleware{Logger: logger}

	inventoryService := inventory.NewService(inventory.NewRepository(dbpool))
	catalogService := catalog.NewService(
		catalog.NewRepository(dbpool),
		inventoryService,
		catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		auditLogger,
		logger,
	)
	procurementService := procurement.NewService(procurement.NewRepository(dbpool), procurement.Deps{
		Audit:              auditLogger,
		Idempotency:        idempotencyStore,
		Attachments:        attachments,
		Catalog:            catalogService,
		Metrics:            metrics,
		Logger:             logger,
		AttachmentMaxBytes: cfg.AttachmentMaxBytes,
	})

	asynqOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(asynqOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	jobClient, err := jobs.NewClient(asynqOpts)
	if err != nil {
		logger.Error("job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer jobClient.Close()
	if _, err := jobClient.EnqueueCatalogReindex(ctx, 0, false); err != nil {
		logger.Warn("enqueue catalog reindex", slog.Any("error", err))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Verifier:           verifier,
		RBACMiddleware:     rbacMiddleware,
		ProcurementHandler: procurement.NewHandler(logger, procurementService, rbacMiddleware, cfg.AttachmentMaxBytes),
		CatalogHandler:     catalog.NewHandler(logger, catalogService),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
		Database:           dbpool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// attachmentStore uses S3 when credentials or an endpoint are configured and
// falls back to process memory outside production.
func attachmentStore(ctx context.Context, cfg *app.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.S3AccessKey == "" && cfg.S3Endpoint == "" && !cfg.IsProduction() {
		logger.Warn("no object storage configured, invoice attachments are kept in memory")
		return storage.NewMemoryStore(), nil
	}
	return storage.NewS3Store(ctx, storage.S3Config{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		UsePathStyle: cfg.S3UsePathStyle,
	})
}
