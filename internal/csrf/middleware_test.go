package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireToken(t *testing.T) {
	store := NewTokenStore(time.Hour, 0)
	defer store.Close()

	session := func(r *http.Request) string { return r.Header.Get("X-Session") }
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireToken(store, session)(ok)

	token, _, err := store.Issue("s1")
	require.NoError(t, err)

	t.Run("safe method passes without token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/resumes", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/resumes", nil)
		req.Header.Set("X-Session", "s1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.JSONEq(t, `{"error":"CSRF validation failed: Invalid token"}`, rr.Body.String())
	})

	t.Run("valid token accepted once", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/resumes", nil)
		req.Header.Set("X-Session", "s1")
		req.Header.Set(TokenHeader, token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)

		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}
