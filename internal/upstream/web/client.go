// Package web fetches public pages for metadata extraction using ordered
// request profiles.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/fallback"
	"github.com/waypointhq/waypoint/internal/upstream"
)

const (
	defaultMaxBodyBytes = 2 << 20
	defaultMaxRedirects = 5
)

// Response is a fetched page.
type Response struct {
	URL    *url.URL
	Status int
	Header http.Header
	Body   []byte
}

// Client issues profile-shaped GET requests. Requests to the same host are
// paced by a token bucket so retries across profiles do not hammer a site.
type Client struct {
	HTTP         *http.Client
	MaxBodyBytes int64
	HostRPS      float64
	HostBurst    int
	Logger       core.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient builds a Client from configuration. Unless
// cfg.AllowPrivateNetworks is set, connections to non-public addresses are
// refused after DNS resolution.
func NewClient(cfg config.WebConfig, logger core.Logger) *Client {
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}
	httpClient := upstream.HTTPClient(nil, cfg.Timeout)
	httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	if !cfg.AllowPrivateNetworks {
		httpClient.Transport = publicOnlyTransport()
	}
	return &Client{
		HTTP:         httpClient,
		MaxBodyBytes: cfg.MaxBodyBytes,
		HostRPS:      cfg.HostRPS,
		HostBurst:    cfg.HostBurst,
		Logger:       logger,
	}
}

// Fetch requests target with the headers of profile p. Non-2xx responses are
// returned, not treated as errors, so the caller can classify them.
func (c *Client) Fetch(ctx context.Context, target *url.URL, p fallback.Profile) (*Response, error) {
	if target == nil {
		return nil, errors.New("target url is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := c.wait(ctx, target.Hostname()); err != nil {
		return nil, core.TransportFailure(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	origin := target.Scheme + "://" + target.Host + "/"
	for key, value := range p.Headers {
		req.Header.Set(key, strings.ReplaceAll(value, "${origin}", origin))
	}

	client := upstream.HTTPClient(c.HTTP, 0)
	resp, err := client.Do(req)
	if errors.Is(err, ErrPrivateAddress) {
		return nil, &core.Error{Kind: core.KindInvalidInput, Message: "url must resolve to a public address", Err: err}
	}
	if err != nil {
		return nil, core.TransportFailure(err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := upstream.ReadBody(resp, limit)
	if err != nil {
		return nil, core.TransportFailure(err)
	}

	core.LoggerOrNop(c.Logger).Debug("Fetched page",
		zap.String("profile", p.Name),
		zap.String("host", target.Hostname()),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)))

	final := target
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	if resp.StatusCode >= 500 {
		return nil, core.TransportFailure(fmt.Errorf("%s returned %d", target.Hostname(), resp.StatusCode))
	}
	return &Response{URL: final, Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) wait(ctx context.Context, host string) error {
	if c.HostRPS <= 0 || host == "" {
		return nil
	}
	c.mu.Lock()
	if c.limiters == nil {
		c.limiters = make(map[string]*rate.Limiter)
	}
	limiter, ok := c.limiters[host]
	if !ok {
		burst := c.HostBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(c.HostRPS), burst)
		c.limiters[host] = limiter
	}
	c.mu.Unlock()
	return limiter.Wait(ctx)
}

// ParseTarget validates an http(s) URL supplied by a caller.
func ParseTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, core.InvalidInput("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, core.InvalidInput("url is not valid")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, core.InvalidInput("url scheme must be http or https")
	}
	return u, nil
}
