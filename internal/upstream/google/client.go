// Package google talks to the Google Maps Platform directions, geocoding and
// places APIs.
package google

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/upstream"
)

const (
	providerName         = "google"
	defaultMapsBaseURL   = "https://maps.googleapis.com/maps/api"
	defaultPlacesBaseURL = "https://places.googleapis.com/v1"
	maxPhotoBytes        = 10 << 20
)

// Client calls Google APIs with a server-side key.
type Client struct {
	HTTP          *http.Client
	APIKey        string
	MapsBaseURL   string
	PlacesBaseURL string
}

// New builds a Client from configuration.
func New(cfg config.GoogleConfig, timeout time.Duration) *Client {
	return &Client{
		HTTP:          upstream.HTTPClient(nil, timeout),
		APIKey:        cfg.APIKey,
		MapsBaseURL:   cfg.MapsBaseURL,
		PlacesBaseURL: cfg.PlacesBaseURL,
	}
}

// Name identifies the provider in profiles and results.
func (c *Client) Name() string {
	return providerName
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.APIKey) != ""
}

func (c *Client) mapsURL(path string, query url.Values) string {
	base := c.MapsBaseURL
	if base == "" {
		base = defaultMapsBaseURL
	}
	query.Set("key", c.APIKey)
	return upstream.JoinPath(base, path) + "?" + query.Encode()
}

func (c *Client) placesURL(path string) string {
	base := c.PlacesBaseURL
	if base == "" {
		base = defaultPlacesBaseURL
	}
	return upstream.JoinPath(base, path)
}

// do sends req and decodes a JSON body into out.
func (c *Client) do(req *http.Request, out any) error {
	if !c.Configured() {
		return core.TransportFailure(errors.New("google api key is not configured"))
	}
	resp, err := upstream.HTTPClient(c.HTTP, 0).Do(req)
	if err != nil {
		return core.TransportFailure(err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode == http.StatusBadRequest {
		return core.InvalidInput("google rejected the request parameters")
	}
	if resp.StatusCode != http.StatusOK {
		return upstream.StatusError(providerName, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode google response: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, headers map[string]string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req, out)
}

// statusError maps the status field of the legacy Maps web services.
func statusError(status, message string) error {
	switch status {
	case "OK":
		return nil
	case "ZERO_RESULTS", "NOT_FOUND":
		return core.ErrNoRoute
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT", "REQUEST_DENIED":
		return core.SoftBlock(fmt.Sprintf("google status %s", status))
	case "INVALID_REQUEST", "MAX_WAYPOINTS_EXCEEDED", "MAX_ROUTE_LENGTH_EXCEEDED":
		return core.InvalidInput("google rejected the request: %s", status)
	}
	if message != "" {
		return core.TransportFailure(fmt.Errorf("google status %s: %s", status, message))
	}
	return core.TransportFailure(fmt.Errorf("google status %s", status))
}
