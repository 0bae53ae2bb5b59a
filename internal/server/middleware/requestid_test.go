package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDReusesWellFormedHeader(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/directions", nil)
	req.Header.Set(RequestIDHeader, "gw-2026.10:abc_123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "gw-2026.10:abc_123", seen)
	assert.Equal(t, "gw-2026.10:abc_123", rec.Header().Get(RequestIDHeader))
}

func TestRequestIDReplacesUnsafeHeader(t *testing.T) {
	for _, inbound := range []string{"", "has space", "line\nbreak", strings.Repeat("a", MaxRequestIDLength+1)} {
		var seen string
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		if inbound != "" {
			req.Header[RequestIDHeader] = []string{inbound}
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		parsed, err := uuid.Parse(seen)
		require.NoError(t, err, "inbound %q", inbound)
		assert.Equal(t, uuid.Version(7), parsed.Version())
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	}
}

func TestGetRequestIDWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	assert.Empty(t, GetRequestID(req.Context()))
}
