package procurement

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-purchasing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-purchasing/internal/rbac"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// testIdentity stands in for the JWT middleware: "X-User: 10" or "X-User: 1,admin".
func testIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User")
		if raw != "" {
			idPart, admin := strings.CutSuffix(raw, ",admin")
			id, _ := strconv.ParseInt(idPart, 10, 64)
			r = r.WithContext(shared.ContextWithIdentity(r.Context(), shared.Identity{UserID: id, Admin: admin}))
		}
		next.ServeHTTP(w, r)
	})
}

func newTestServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, f.svc, rbac.Middleware{Logger: logger}, 0)
	r := chi.NewRouter()
	r.Use(testIdentity)
	r.Route("/api/v1", h.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func doJSON(t *testing.T, method, url, user string, body any, headers ...string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User", user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandlerOrderLifecycle(t *testing.T) {
	f, srv := newTestServer(t)
	base := srv.URL + "/api/v1"

	resp := doJSON(t, http.MethodPost, base+"/orders", "10", `{
		"supplier_id": "7", "warehouse_id": 3, "lifecycle": "deferred",
		"items": {"0": {"item_id": "1", "quantity": "2", "unit_price": "5"}}
	}`, IdempotencyHeader, "create-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decodeBody[PurchaseOrder](t, resp)
	require.Equal(t, StatusPending, order.Status)
	require.Equal(t, LifecycleDeferred, order.Lifecycle)
	require.True(t, order.Total.Equal(qty("10")))

	resp = doJSON(t, http.MethodPost, base+"/orders", "10", `{
		"supplier_id": 7, "warehouse_id": 3,
		"items": [{"item_id": 1, "quantity": 2, "unit_price": 5}]
	}`, IdempotencyHeader, "create-1")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	orderURL := base + "/orders/" + strconv.FormatInt(order.ID, 10)
	resp = doJSON(t, http.MethodPost, orderURL+"/approve", "10", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, orderURL+"/approve", "1,admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	require.NoError(t, mw.WriteField("invoice_number", "INV-001"))
	require.NoError(t, mw.WriteField("payment_method_id", "2"))
	part, err := mw.CreateFormFile("attachment", "inv.pdf")
	require.NoError(t, err)
	_, err = part.Write(pdfBody)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, orderURL+"/invoice", &form)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User", "1,admin")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	inv := decodeBody[Invoice](t, resp)
	require.Equal(t, int64(2), inv.PaymentMethodID)
	require.NotEmpty(t, inv.AttachmentRef)
	requireStock(t, f.repo, productP, warehouseW, "2")

	resp = doJSON(t, http.MethodPost, orderURL+"/returns", "1,admin", `{"items":[{"product_id":1,"quantity":"3"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	problem := decodeBody[httpx.ProblemDetail](t, resp)
	require.Equal(t, "Quantity Exceeded", problem.Title)

	resp = doJSON(t, http.MethodPost, orderURL+"/returns", "1,admin", `{"items":[{"product_id":1,"quantity":"1","reason":"dented"}]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, orderURL+"/returnable", "1,admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balance := decodeBody[struct {
		Items []ReturnableLine `json:"items"`
	}](t, resp)
	require.Len(t, balance.Items, 1)
	require.True(t, balance.Items[0].Remaining.Equal(qty("1")))

	resp = doJSON(t, http.MethodGet, base+"/orders?status=completed", "10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[struct {
		Items      []PurchaseOrder   `json:"items"`
		Pagination shared.Pagination `json:"pagination"`
	}](t, resp)
	require.Len(t, list.Items, 1)
	require.Equal(t, 1, list.Pagination.Total)

	resp = doJSON(t, http.MethodGet, base+"/invoices?order_id="+strconv.FormatInt(order.ID, 10), "10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandlerRejections(t *testing.T) {
	_, srv := newTestServer(t)
	base := srv.URL + "/api/v1"

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		status int
	}{
		{"anonymous", http.MethodGet, "/orders", "", nil, http.StatusUnauthorized},
		{"malformed json", http.MethodPost, "/orders", "10", `{"supplier_id":`, http.StatusBadRequest},
		{"no items", http.MethodPost, "/orders", "10", `{"supplier_id":7,"warehouse_id":3,"items":[]}`, http.StatusBadRequest},
		{"bad items shape", http.MethodPost, "/orders", "10", `{"supplier_id":7,"items":"1"}`, http.StatusBadRequest},
		{"missing supplier", http.MethodPost, "/orders", "10", `{"warehouse_id":3,"items":[{"item_id":1,"quantity":1}]}`, http.StatusBadRequest},
		{"unknown warehouse", http.MethodPost, "/orders", "10", `{"supplier_id":7,"warehouse_id":99,"items":[{"item_id":1,"quantity":1}]}`, http.StatusNotFound},
		{"bad id", http.MethodGet, "/orders/abc", "10", nil, http.StatusBadRequest},
		{"missing order", http.MethodGet, "/orders/404", "10", nil, http.StatusNotFound},
		{"status needs admin", http.MethodPost, "/orders/1/status", "10", `{"status":"APPROVED"}`, http.StatusForbidden},
		{"bad status filter", http.MethodGet, "/orders?status=open", "10", nil, http.StatusBadRequest},
		{"bad order filter", http.MethodGet, "/returns?order_id=-1", "10", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, tc.method, base+tc.path, tc.user, tc.body)
			require.Equal(t, tc.status, resp.StatusCode)
			require.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
		})
	}
}

func TestHandlerSetStatusAndUrlencodedInvoice(t *testing.T) {
	f, srv := newTestServer(t)
	order := f.createOrder(t, LifecycleDirect)
	orderURL := srv.URL + "/api/v1/orders/" + strconv.FormatInt(order.ID, 10)

	resp := doJSON(t, http.MethodPost, orderURL+"/status", "1,admin", `{"status":"approved"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	requireStock(t, f.repo, productP, warehouseW, "2")

	resp = doJSON(t, http.MethodPost, orderURL+"/status", "1,admin", `{"status":"COMPLETED"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	form := url.Values{"invoice_number": {"INV-7"}, "doc_type_id": {"x"}}
	req, err := http.NewRequest(http.MethodPost, orderURL+"/invoice", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-User", "1,admin")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	form.Set("doc_type_id", "3")
	req, err = http.NewRequest(http.MethodPost, orderURL+"/invoice", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-User", "1,admin")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	inv := decodeBody[Invoice](t, resp)
	require.Equal(t, int64(3), inv.DocTypeID)
	require.Empty(t, inv.AttachmentRef)
	requireStock(t, f.repo, productP, warehouseW, "2")
}
