package rbac

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-purchasing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// Middleware gates route groups on the identity placed in context by auth.
type Middleware struct {
	Logger *slog.Logger
}

// RequireIdentity rejects anonymous requests with 401.
func (m Middleware) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := shared.RequireIdentity(r.Context()); err != nil {
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects anonymous requests with 401 and non-admins with 403.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := shared.RequireIdentity(r.Context())
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if !id.Admin {
			if m.Logger != nil {
				m.Logger.Info("rbac admin denied", slog.Int64("user_id", id.UserID), slog.String("path", r.URL.Path))
			}
			httpx.RespondError(w, shared.ErrPermission)
			return
		}
		next.ServeHTTP(w, r)
	})
}
