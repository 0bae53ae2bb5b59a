package driver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/waypointhq/waypoint/internal/core"
)

// ProviderError is returned when a provider responds with a non-2xx status.
//
// RawResponse must never include API keys.
type ProviderError struct {
	Provider    string
	StatusCode  int
	Message     string
	RetryAfter  time.Duration
	RawResponse []byte
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
}

// Classify converts the provider status into a broker error. Quota and auth
// refusals are soft blocks so the next model gets a chance.
func (e *ProviderError) Classify() error {
	if e == nil {
		return nil
	}
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
		blocked := core.SoftBlock(fmt.Sprintf("%s status %d", e.Provider, e.StatusCode))
		blocked.RetryAfter = e.RetryAfter
		blocked.Err = e
		return blocked
	default:
		return core.TransportFailure(e)
	}
}
