package overpass

import (
	"context"
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

const providerName = "overpass"

// Element is an OSM node returned by Overpass.
type Element struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Lat  float64           `json:"lat"`
	Lon  float64           `json:"lon"`
	Tags map[string]string `json:"tags"`
}

// Response is the JSON output of an Overpass query.
type Response struct {
	Elements []Element `json:"elements"`
}

// Client posts queries to Overpass interpreters.
type Client struct {
	HTTP      *http.Client
	Endpoints []string
	Timeout   time.Duration
}

// New builds a Client from configuration.
func New(cfg config.OverpassConfig) *Client {
	return &Client{
		HTTP:      upstream.HTTPClient(nil, cfg.Timeout),
		Endpoints: cfg.Endpoints,
		Timeout:   cfg.Timeout,
	}
}

// ServerTimeoutSeconds is the [timeout:N] value sent with queries.
func (c *Client) ServerTimeoutSeconds() int {
	if c == nil || c.Timeout <= 0 {
		return 25
	}
	return int(c.Timeout / time.Second)
}

// Query runs query against one interpreter endpoint.
func (c *Client) Query(ctx context.Context, endpoint, query string) (Response, error) {
	form := url.Values{}
	form.Set("data", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := upstream.HTTPClient(c.HTTP, 0).Do(req)
	if err != nil {
		return Response{}, core.TransportFailure(err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode != http.StatusOK {
		return Response{}, upstream.StatusError(providerName, resp)
	}
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode overpass response: %w", err)
	}
	return out, nil
}
