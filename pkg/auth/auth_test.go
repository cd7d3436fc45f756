package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestVerifier(t *testing.T) (string, *Verifier) {
	t.Helper()
	key := "test-key"
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)

	v, err := NewVerifier(string(hash))
	require.NoError(t, err)
	return key, v
}

func TestGenerateAPIKey(t *testing.T) {
	key, hash, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.NotEqual(t, key, hash)

	v, err := NewVerifier(hash)
	require.NoError(t, err)
	assert.NoError(t, v.Verify(key))
}

func TestVerifier(t *testing.T) {
	key, v := newTestVerifier(t)

	assert.NoError(t, v.Verify(key))
	assert.NoError(t, v.Verify(key), "cached")
	assert.ErrorIs(t, v.Verify("wrong"), ErrInvalidKey)
	assert.ErrorIs(t, v.Verify(""), ErrMissingKey)
}

func TestNewVerifier_InvalidHash(t *testing.T) {
	_, err := NewVerifier("not-a-bcrypt-hash")
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	key, v := newTestVerifier(t)
	handler := Middleware(v, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		path   string
		header string
		code   int
	}{
		{"skipped path", "/health", "", http.StatusNoContent},
		{"missing header", "/summaries", "", http.StatusUnauthorized},
		{"wrong scheme", "/summaries", "Basic " + key, http.StatusUnauthorized},
		{"wrong key", "/summaries", "Bearer nope", http.StatusUnauthorized},
		{"valid key", "/summaries", "Bearer " + key, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}
