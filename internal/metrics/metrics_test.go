package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthOutcome(t *testing.T) {
	m := New()
	m.AuthOutcome("login", "success")
	m.AuthOutcome("login", "success")
	m.AuthOutcome("login", "invalid_credentials")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authAttempts.WithLabelValues("login", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authAttempts.WithLabelValues("login", "invalid_credentials")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/admin/users/{accountID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users/12", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/admin/users/{accountID}", "418")))

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(scrape.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "spotseeker_identity_http_requests_total")
}
