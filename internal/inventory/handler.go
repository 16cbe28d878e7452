package inventory

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-purchasing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// Reader is the subset of Service used by the HTTP layer.
type Reader interface {
	Balance(ctx context.Context, productID, warehouseID int64) (Balance, error)
	SupplierBalances(ctx context.Context, productID, warehouseID int64) ([]SupplierBalance, error)
}

// Handler wires HTTP endpoints for ledger reads.
type Handler struct {
	logger  *slog.Logger
	service Reader
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service Reader) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances", h.handleBalance)
	r.Get("/products/{id}/suppliers", h.handleSupplierBalances)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bal, err := h.service.Balance(r.Context(), productID, warehouseID)
	if err != nil {
		h.fail(w, "inventory balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bal)
}

func (h *Handler) handleSupplierBalances(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.SupplierBalances(r.Context(), productID, warehouseID)
	if err != nil {
		h.fail(w, "inventory supplier balances", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if shared.IsServerError(err) {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
