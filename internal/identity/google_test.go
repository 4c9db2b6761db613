package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoogleServer(t *testing.T, users map[string]map[string]any) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/auth",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/certs",
			"userinfo_endpoint":      srv.URL + "/userinfo",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		user, ok := users[r.Header.Get("Authorization")]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(user)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGoogle_Resolve(t *testing.T) {
	srv := newGoogleServer(t, map[string]map[string]any{
		"Bearer verified": {
			"sub": "g-1", "name": "Jane Doe", "email": "jane@example.com",
			"email_verified": true, "picture": "https://lh3/p.jpg",
		},
		"Bearer unverified": {
			"sub": "g-2", "name": "Mallory", "email": "jane@example.com", "email_verified": false,
		},
	})

	g, err := newGoogle(context.Background(), srv.URL)
	require.NoError(t, err)

	t.Run("verified email", func(t *testing.T) {
		ident, err := g.Resolve(context.Background(), "verified")
		require.NoError(t, err)
		assert.Equal(t, ExternalIdentity{
			ID:     "g-1",
			Name:   "Jane Doe",
			Email:  "jane@example.com",
			Avatar: "https://lh3/p.jpg",
		}, ident)
	})

	t.Run("unverified email", func(t *testing.T) {
		_, err := g.Resolve(context.Background(), "unverified")
		assert.ErrorIs(t, err, ErrEmailNotVerified)
	})

	t.Run("unverified email through the gateway", func(t *testing.T) {
		gw := NewGateway(time.Second)
		require.NoError(t, gw.Use("google", g))

		_, err := gw.Resolve(context.Background(), "google", "unverified")
		assert.ErrorIs(t, err, ErrProviderFailure)
		assert.ErrorIs(t, err, ErrEmailNotVerified)
	})

	t.Run("rejected token", func(t *testing.T) {
		_, err := g.Resolve(context.Background(), "expired")
		assert.ErrorContains(t, err, "userinfo")
	})
}
