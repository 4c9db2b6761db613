package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacebook_Resolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me", r.URL.Path)
		assert.Equal(t, "id,name,email,picture.type(large)", r.URL.Query().Get("fields"))
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token."}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"fb-9","name":"Jane Doe","email":"jane@example.com","picture":{"data":{"url":"https://cdn/p.jpg"}}}`))
	}))
	defer srv.Close()

	fb := NewFacebook(srv.URL + "/")

	t.Run("valid token", func(t *testing.T) {
		ident, err := fb.Resolve(context.Background(), "good-token")
		require.NoError(t, err)
		assert.Equal(t, ExternalIdentity{
			ID:     "fb-9",
			Name:   "Jane Doe",
			Email:  "jane@example.com",
			Avatar: "https://cdn/p.jpg",
		}, ident)
	})

	t.Run("rejected token", func(t *testing.T) {
		_, err := fb.Resolve(context.Background(), "bad-token")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "graph status 401")
	})
}
