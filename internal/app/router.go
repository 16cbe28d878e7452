package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-purchasing/internal/auth"
	"github.com/odyssey-erp/odyssey-purchasing/internal/catalog"
	"github.com/odyssey-erp/odyssey-purchasing/internal/inventory"
	"github.com/odyssey-erp/odyssey-purchasing/internal/observability"
	"github.com/odyssey-erp/odyssey-purchasing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-purchasing/internal/procurement"
	"github.com/odyssey-erp/odyssey-purchasing/internal/rbac"
	"github.com/odyssey-erp/odyssey-purchasing/jobs"
)

// Pinger reports whether a backing service answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Verifier           *auth.Verifier
	RBACMiddleware     rbac.Middleware
	ProcurementHandler *procurement.Handler
	CatalogHandler     *catalog.Handler
	InventoryHandler   *inventory.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
	Database           Pinger
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Verifier: params.Verifier,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Database != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Database.Ping(ctx); err != nil {
				params.Logger.Warn("healthz database", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.ProcurementHandler != nil {
			params.ProcurementHandler.MountRoutes(r)
		}
		if params.CatalogHandler != nil {
			r.Route("/catalog", func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireIdentity)
				params.CatalogHandler.MountRoutes(r)
			})
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireIdentity)
				params.InventoryHandler.MountRoutes(r)
			})
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
