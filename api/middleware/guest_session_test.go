package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuestSessionIssuesWhenMissing(t *testing.T) {
	var seen string
	handler := GuestSession(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GuestSessionFromContext(r.Context())
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/cart", nil))

	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, resp.Header().Get(GuestSessionHeader))
}

func TestGuestSessionKeepsClientValue(t *testing.T) {
	existing := uuid.NewString()
	var seen string
	handler := GuestSession(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GuestSessionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(GuestSessionHeader, existing)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.Equal(t, existing, seen)
	assert.Equal(t, existing, resp.Header().Get(GuestSessionHeader))
}

func TestGuestSessionReplacesMalformedValue(t *testing.T) {
	var seen string
	handler := GuestSession(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GuestSessionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(GuestSessionHeader, "../../etc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotEqual(t, "../../etc", seen)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}
