package procurement

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-purchasing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-purchasing/internal/rbac"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// ServicePort is the subset of Service used by the HTTP layer.
type ServicePort interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (PurchaseOrder, error)
	EditOrder(ctx context.Context, input EditOrderInput) (PurchaseOrder, error)
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListOrders(ctx context.Context, f ListFilters) ([]PurchaseOrder, shared.Pagination, error)
	SetOrderStatus(ctx context.Context, id int64, target Status) (PurchaseOrder, error)
	ApproveOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ReturnableBalance(ctx context.Context, orderID int64) ([]ReturnableLine, error)
	RegisterInvoice(ctx context.Context, input RegisterInvoiceInput) (Invoice, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, f DocFilters) ([]Invoice, shared.Pagination, error)
	CreateReturn(ctx context.Context, input CreateReturnInput) (Return, error)
	GetReturn(ctx context.Context, id int64) (Return, error)
	ListReturns(ctx context.Context, f DocFilters) ([]Return, shared.Pagination, error)
}

// IdempotencyHeader carries the client supplied request key.
const IdempotencyHeader = "Idempotency-Key"

// multipart overhead allowed on top of the attachment ceiling
const formOverhead = 1 << 20

// Handler manages procurement endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ServicePort
	rbac      rbac.Middleware
	validator *validator.Validate
	maxBytes  int64
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service ServicePort, rbac rbac.Middleware, attachmentMaxBytes int64) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator(), maxBytes: attachmentMaxBytes}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireIdentity)
		r.Get("/orders", h.handleListOrders)
		r.Post("/orders", h.handleCreateOrder)
		r.Get("/orders/{id}", h.handleGetOrder)
		r.Put("/orders/{id}", h.handleEditOrder)
		r.Get("/invoices", h.handleListInvoices)
		r.Get("/invoices/{id}", h.handleGetInvoice)
		r.Get("/returns", h.handleListReturns)
		r.Get("/returns/{id}", h.handleGetReturn)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin)
		r.Post("/orders/{id}/status", h.handleSetStatus)
		r.Post("/orders/{id}/approve", h.handleApprove)
		r.Get("/orders/{id}/returnable", h.handleReturnable)
		r.Post("/orders/{id}/invoice", h.handleRegisterInvoice)
		r.Post("/orders/{id}/returns", h.handleCreateReturn)
	})
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	supplierID, err := httpx.QueryInt64(r, "supplier_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, perPage := paging(r)
	orders, meta, err := h.service.ListOrders(r.Context(), ListFilters{
		Statuses:   statusList(q["status"]),
		SupplierID: supplierID,
		Lifecycle:  Lifecycle(strings.ToUpper(q.Get("lifecycle"))),
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.fail(w, "list orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": orders, "pagination": meta})
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var payload orderPayload
	if err := h.decode(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.CreateOrder(r.Context(), payload.createInput(r.Header.Get(IdempotencyHeader)))
	if err != nil {
		h.fail(w, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.fail(w, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleEditOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload orderPayload
	if err := h.decode(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.EditOrder(r.Context(), payload.editInput(id))
	if err != nil {
		h.fail(w, "edit order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload statusPayload
	if err := h.decode(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.SetOrderStatus(r.Context(), id, Status(strings.ToUpper(strings.TrimSpace(payload.Status))))
	if err != nil {
		h.fail(w, "set order status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.ApproveOrder(r.Context(), id)
	if err != nil {
		h.fail(w, "approve order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleReturnable(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lines, err := h.service.ReturnableBalance(r.Context(), id)
	if err != nil {
		h.fail(w, "returnable balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": lines})
}

func (h *Handler) handleRegisterInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	input, err := h.invoiceInput(w, r, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.RegisterInvoice(r.Context(), input)
	if err != nil {
		h.fail(w, "register invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

// invoiceInput reads a multipart or urlencoded form. The optional file field
// is named "attachment".
func (h *Handler) invoiceInput(w http.ResponseWriter, r *http.Request, orderID int64) (RegisterInvoiceInput, error) {
	limit := h.maxBytes
	if limit <= 0 {
		limit = 25 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(limit + formOverhead); err != nil {
			return RegisterInvoiceInput{}, shared.Invalid("body", err.Error())
		}
	} else if err := r.ParseForm(); err != nil {
		return RegisterInvoiceInput{}, shared.Invalid("body", err.Error())
	}
	input := RegisterInvoiceInput{
		OrderID:        orderID,
		InvoiceNumber:  r.FormValue("invoice_number"),
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	}
	for field, dst := range map[string]*int64{
		"payment_method_id": &input.PaymentMethodID,
		"payment_terms_id":  &input.PaymentTermsID,
		"doc_type_id":       &input.DocTypeID,
	} {
		raw := strings.TrimSpace(r.FormValue(field))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return RegisterInvoiceInput{}, shared.Invalid(field, "must be a non-negative integer")
		}
		*dst = v
	}
	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["attachment"]; len(files) > 0 {
			f, err := files[0].Open()
			if err != nil {
				return RegisterInvoiceInput{}, shared.Invalid("attachment", err.Error())
			}
			defer f.Close()
			body, err := io.ReadAll(io.LimitReader(f, limit+1))
			if err != nil {
				return RegisterInvoiceInput{}, shared.Invalid("attachment", err.Error())
			}
			input.Attachment = &Attachment{Filename: files[0].Filename, Body: body}
		}
	}
	return input, nil
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	f, err := docFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, meta, err := h.service.ListInvoices(r.Context(), f)
	if err != nil {
		h.fail(w, "list invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": meta})
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload returnPayload
	if err := h.decode(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := h.service.CreateReturn(r.Context(), payload.input(id, r.Header.Get(IdempotencyHeader)))
	if err != nil {
		h.fail(w, "create return", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}

func (h *Handler) handleListReturns(w http.ResponseWriter, r *http.Request) {
	f, err := docFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, meta, err := h.service.ListReturns(r.Context(), f)
	if err != nil {
		h.fail(w, "list returns", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": meta})
}

func (h *Handler) handleGetReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := h.service.GetReturn(r.Context(), id)
	if err != nil {
		h.fail(w, "get return", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return err
	}
	return httpx.Validate(h.validator, dst)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if shared.IsServerError(err) {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func paging(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}

func docFilters(r *http.Request) (DocFilters, error) {
	orderID, err := httpx.QueryInt64(r, "order_id")
	if err != nil {
		return DocFilters{}, err
	}
	page, perPage := paging(r)
	return DocFilters{OrderID: orderID, Page: page, PerPage: perPage}, nil
}
