// Package upstream holds helpers shared by the third-party API clients.
package upstream

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/waypointhq/waypoint/internal/core"
)

// DefaultTimeout applies when a client is built without an explicit timeout.
const DefaultTimeout = 10 * time.Second

// HTTPClient returns client, or a new one with timeout when client is nil.
func HTTPClient(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// ReadBody reads at most limit bytes of the response body. A limit of zero
// or less reads everything.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, nil
	}
	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit)
	}
	return io.ReadAll(r)
}

// RetryAfter parses the Retry-After header as seconds or an HTTP date.
func RetryAfter(resp *http.Response) (time.Duration, map[string]any) {
	if resp == nil || resp.Header == nil {
		return 0, nil
	}

	retry := resp.Header.Get("Retry-After")
	if retry == "" {
		return 0, nil
	}

	if seconds, err := time.ParseDuration(retry + "s"); err == nil {
		return seconds, map[string]any{"retry_after": retry}
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		return time.Until(parsed), map[string]any{"retry_after": retry}
	}

	return 0, map[string]any{"retry_after": retry}
}

// StatusError classifies a non-success response. Throttling and access
// denials are soft blocks; everything else is a transport failure.
func StatusError(provider string, resp *http.Response) error {
	if resp == nil {
		return core.TransportFailure(fmt.Errorf("%s: no response", provider))
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusForbidden, http.StatusUnauthorized:
		blocked := core.SoftBlock(fmt.Sprintf("%s returned %d", provider, resp.StatusCode))
		if wait, details := RetryAfter(resp); details != nil {
			blocked.Details = details
			blocked.RetryAfter = wait
		}
		return blocked
	}
	return core.TransportFailure(fmt.Errorf("%s returned %d", provider, resp.StatusCode))
}

// JoinPath appends path to base without doubling slashes.
func JoinPath(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
