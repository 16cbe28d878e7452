package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-purchasing/internal/inventory"
	"github.com/odyssey-erp/odyssey-purchasing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// ServicePort is the subset of Service used by the HTTP layer.
type ServicePort interface {
	ResolveCurrentPrice(ctx context.Context, productID, supplierID int64) (SupplierPrice, bool, error)
	RecordPrice(ctx context.Context, input RecordPriceInput) (SupplierPrice, error)
	CorrectPrice(ctx context.Context, input CorrectPriceInput) (SupplierPrice, error)
	DeletePrice(ctx context.Context, id int64) error
	ResolveCatalogItems(ctx context.Context, f SearchFilter) ([]Item, error)
	ProductInventory(ctx context.Context, productID int64) (ProductInventory, error)
}

// Handler exposes catalog endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ServicePort
	validator *validator.Validate
}

// NewHandler builds the catalog handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers catalog routes. Corrections and deletions are admin
// only; the service enforces it.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.handleItems)
	r.Get("/products/{id}/inventory", h.handleInventory)
	r.Get("/prices/current", h.handleCurrentPrice)
	r.Post("/prices", h.handleRecordPrice)
	r.Put("/prices/{id}", h.handleCorrectPrice)
	r.Delete("/prices/{id}", h.handleDeletePrice)
}

func (h *Handler) handleItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	supplierID, err := httpx.QueryInt64(r, "supplier_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			httpx.RespondError(w, shared.Invalid("limit", "must be a non-negative integer"))
			return
		}
	}
	items, err := h.service.ResolveCatalogItems(r.Context(), SearchFilter{
		Text:        q.Get("search"),
		Class:       inventory.ItemClass(q.Get("class")),
		SupplierID:  supplierID,
		WarehouseID: warehouseID,
		Limit:       limit,
	})
	if err != nil {
		h.fail(w, "catalog items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleInventory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.ProductInventory(r.Context(), id)
	if err != nil {
		h.fail(w, "catalog product inventory", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleCurrentPrice(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	supplierID, err := httpx.QueryInt64(r, "supplier_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	price, found, err := h.service.ResolveCurrentPrice(r.Context(), productID, supplierID)
	if err != nil {
		h.fail(w, "catalog current price", err)
		return
	}
	if !found {
		httpx.JSON(w, http.StatusOK, map[string]any{"price": nil})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"price": price})
}

func (h *Handler) handleRecordPrice(w http.ResponseWriter, r *http.Request) {
	var input RecordPriceInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validator, input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	price, err := h.service.RecordPrice(r.Context(), input)
	if err != nil {
		h.fail(w, "catalog record price", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, price)
}

func (h *Handler) handleCorrectPrice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input CorrectPriceInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validator, input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.ID = id
	price, err := h.service.CorrectPrice(r.Context(), input)
	if err != nil {
		h.fail(w, "catalog correct price", err)
		return
	}
	httpx.JSON(w, http.StatusOK, price)
}

func (h *Handler) handleDeletePrice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePrice(r.Context(), id); err != nil {
		h.fail(w, "catalog delete price", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if shared.IsServerError(err) {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
