package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-purchasing/internal/auth"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

const secret = "0123456789abcdef0123456789abcdef"

func newVerifier(t *testing.T) *auth.Verifier {
	t.Helper()
	v, err := auth.NewVerifier(secret, "odyssey")
	require.NoError(t, err)
	return v
}

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := shared.IdentityFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if id.Admin {
			w.Header().Set("X-Admin", "1")
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestVerifierRoundTrip(t *testing.T) {
	v := newVerifier(t)
	token, err := v.Issue(shared.Identity{UserID: 9, Admin: true}, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, shared.Identity{UserID: 9, Admin: true}, id)
}

func TestVerifierRejects(t *testing.T) {
	v := newVerifier(t)

	expired, err := v.Issue(shared.Identity{UserID: 9}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	require.ErrorIs(t, err, auth.ErrExpiredToken)

	other, err := auth.NewVerifier("ffffffffffffffffffffffffffffffff", "odyssey")
	require.NoError(t, err)
	forged, err := other.Issue(shared.Identity{UserID: 9}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(forged)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	anon, err := v.Issue(shared.Identity{}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(anon)
	require.ErrorIs(t, err, auth.ErrMissingUser)

	_, err = auth.NewVerifier("short", "")
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	v := newVerifier(t)
	handler := auth.Middleware(v, nil)(echoIdentity())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, res.Code)

	token, err := v.Issue(shared.Identity{UserID: 4, Admin: true}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "1", res.Header().Get("X-Admin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}
