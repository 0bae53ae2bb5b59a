package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCallerAuthResolve(t *testing.T) {
	auth := CallerAuth{
		APIKeys: map[string]string{"s3cret": "mobile-app"},
		Header:  "X-Caller-ID",
	}

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "api key", headers: map[string]string{"Authorization": "Bearer s3cret"}, want: "mobile-app"},
		{name: "lowercase scheme", headers: map[string]string{"Authorization": "bearer s3cret"}, want: "mobile-app"},
		{name: "unknown key ignores header", headers: map[string]string{"Authorization": "Bearer nope", "X-Caller-ID": "user-1"}, want: ""},
		{name: "gateway header", headers: map[string]string{"X-Caller-ID": " user-1 "}, want: "user-1"},
		{name: "nothing", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/directions", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, auth.Resolve(req))
		})
	}
}

func TestCallerAuthHeaderDisabled(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/directions", nil)
	req.Header.Set("X-Caller-ID", "user-1")
	require.Empty(t, CallerAuth{}.Resolve(req))
}

func TestCallerMiddlewareStoresCaller(t *testing.T) {
	var got string
	handler := CallerAuth{Header: "X-Caller-ID"}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CallerFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/pois", nil)
	req.Header.Set("X-Caller-ID", "user-7")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "user-7", got)
}

func TestRecoveryWritesEnvelope(t *testing.T) {
	handler := RequestID(Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	})))

	req := httptest.NewRequest(http.MethodGet, "/v1/pois", nil)
	req.Header.Set(RequestIDHeader, "req-9")
	rec := httptest.NewRecorder()
	require.NotPanics(t, func() { handler.ServeHTTP(rec, req) })

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":{"code":"INTERNAL_ERROR","message":"internal error","request_id":"req-9"}}`, rec.Body.String())
}
