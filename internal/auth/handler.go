package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-purchasing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// Middleware attaches the bearer identity to the request context. Requests
// without an Authorization header pass through anonymously; a present but
// invalid token is rejected with 401.
func Middleware(v *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			id, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				if logger != nil {
					logger.Debug("reject bearer token", slog.Any("error", err))
				}
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), id)))
		})
	}
}
