package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type callerContextKey struct{}

// CallerAuth resolves the caller identity for broker requests. A bearer
// token listed in APIKeys wins; otherwise the trusted gateway header is used
// when configured.
type CallerAuth struct {
	// APIKeys maps bearer tokens to caller IDs.
	APIKeys map[string]string
	// Header names a caller header set by a trusted gateway.
	Header string
}

// Resolve returns the caller for r, or "" when none can be established.
func (a CallerAuth) Resolve(r *http.Request) string {
	if token, ok := bearerToken(r); ok {
		for key, caller := range a.APIKeys {
			if subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1 {
				return caller
			}
		}
		return ""
	}
	if a.Header != "" {
		return strings.TrimSpace(r.Header.Get(a.Header))
	}
	return ""
}

// Middleware stores the resolved caller on the request context. It never
// rejects; operations report unauthenticated themselves.
func (a CallerAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if caller := a.Resolve(r); caller != "" {
			r = r.WithContext(WithCaller(r.Context(), caller))
		}
		next.ServeHTTP(w, r)
	})
}

// WithCaller returns ctx carrying caller.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// CallerFromContext returns the caller stored by Middleware.
func CallerFromContext(ctx context.Context) string {
	caller, _ := ctx.Value(callerContextKey{}).(string)
	return caller
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}
