package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

func TestMiddlewareGates(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	m := Middleware{}

	cases := []struct {
		name     string
		identity *shared.Identity
		admin    bool
		want     int
	}{
		{name: "anonymous identity", want: http.StatusUnauthorized},
		{name: "anonymous admin", admin: true, want: http.StatusUnauthorized},
		{name: "user identity", identity: &shared.Identity{UserID: 1}, want: http.StatusOK},
		{name: "user admin", identity: &shared.Identity{UserID: 1}, admin: true, want: http.StatusForbidden},
		{name: "admin admin", identity: &shared.Identity{UserID: 2, Admin: true}, admin: true, want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.identity != nil {
				req = req.WithContext(shared.ContextWithIdentity(req.Context(), *tc.identity))
			}
			var h http.Handler = m.RequireIdentity(ok)
			if tc.admin {
				h = m.RequireAdmin(ok)
			}
			res := httptest.NewRecorder()
			h.ServeHTTP(res, req)
			require.Equal(t, tc.want, res.Code)
		})
	}
}
