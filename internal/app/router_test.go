package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-purchasing/internal/auth"
	"github.com/odyssey-erp/odyssey-purchasing/internal/catalog"
	"github.com/odyssey-erp/odyssey-purchasing/internal/observability"
	"github.com/odyssey-erp/odyssey-purchasing/internal/rbac"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

type catalogStub struct {
	catalog.ServicePort
	caller shared.Identity
}

func (c *catalogStub) ResolveCatalogItems(ctx context.Context, f catalog.SearchFilter) ([]catalog.Item, error) {
	c.caller, _ = shared.IdentityFromContext(ctx)
	return []catalog.Item{{ItemID: 1, Name: "Tubo PVC"}}, nil
}

type pingStub struct{ err error }

func (p pingStub) Ping(ctx context.Context) error { return p.err }

func TestRouterAuthenticatesApiRoutes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier, err := auth.NewVerifier("0123456789abcdef0123", "odyssey")
	require.NoError(t, err)
	stub := &catalogStub{}
	metrics := observability.NewMetrics()

	router := NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppRequestTimeout: 5 * time.Second, RateLimitPerMin: 1000},
		Verifier:       verifier,
		RBACMiddleware: rbac.Middleware{Logger: logger},
		CatalogHandler: catalog.NewHandler(logger, stub),
		Metrics:        metrics,
		Database:       pingStub{},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/items", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	token, err := verifier.Issue(shared.Identity{UserID: 42}, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog/items?search=tubo", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Tubo PVC")
	require.Equal(t, int64(42), stub.caller.UserID)
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), "odyssey_http_requests_total"))
}

func TestHealthzReportsDatabaseFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(RouterParams{
		Logger:   logger,
		Config:   &Config{RateLimitPerMin: 1000},
		Database: pingStub{err: errors.New("connection refused")},
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
