// Package mapbox wraps the Mapbox directions, geocoding and terrain tile APIs.
package mapbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/patrickmn/go-cache"

	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/upstream"
)

const (
	providerName   = "mapbox"
	defaultBaseURL = "https://api.mapbox.com"
	defaultTileTTL = time.Hour
	maxTileBytes   = 4 << 20
)

// Client calls Mapbox with a secret token. Decoded terrain tiles are kept in
// memory because neighbouring samples usually share a tile.
type Client struct {
	HTTP    *http.Client
	Token   string
	BaseURL string

	tiles *cache.Cache
}

// New builds a Client from configuration.
func New(cfg config.MapboxConfig, timeout time.Duration) *Client {
	ttl := cfg.TileCacheTTL
	if ttl <= 0 {
		ttl = defaultTileTTL
	}
	return &Client{
		HTTP:    upstream.HTTPClient(nil, timeout),
		Token:   cfg.Token,
		BaseURL: cfg.BaseURL,
		tiles:   cache.New(ttl, 2*ttl),
	}
}

// Name identifies the provider in profiles and results.
func (c *Client) Name() string {
	return providerName
}

// Configured reports whether a token is present.
func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.Token) != ""
}

func (c *Client) endpoint(path string, query url.Values) string {
	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("access_token", c.Token)
	return upstream.JoinPath(base, path) + "?" + query.Encode()
}

func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	if !c.Configured() {
		return nil, core.TransportFailure(errors.New("mapbox token is not configured"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := upstream.HTTPClient(c.HTTP, 0).Do(req)
	if err != nil {
		return nil, core.TransportFailure(err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	// Directions reports NoRoute with a 422 and a JSON body.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnprocessableEntity {
		return upstream.StatusError(providerName, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode mapbox response: %w", err)
	}
	return nil
}

type directionsResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

// Directions requests a route. Transit is not offered by Mapbox and is
// reported as a soft block so the next provider is tried.
func (c *Client) Directions(ctx context.Context, req upstream.DirectionsRequest) (upstream.Route, error) {
	if len(req.Waypoints) < 2 {
		return upstream.Route{}, core.InvalidInput("at least 2 waypoints are required")
	}
	profile, ok := profileForMode(req.Mode)
	if !ok {
		return upstream.Route{}, core.SoftBlock(fmt.Sprintf("mapbox does not support %s", req.Mode))
	}

	coords := make([]string, 0, len(req.Waypoints))
	for _, w := range req.Waypoints {
		coords = append(coords, fmt.Sprintf("%g,%g", w.Lng, w.Lat))
	}
	query := url.Values{}
	query.Set("geometries", "geojson")
	query.Set("overview", "full")

	var payload directionsResponse
	path := "directions/v5/mapbox/" + profile + "/" + strings.Join(coords, ";")
	if err := c.getJSON(ctx, c.endpoint(path, query), &payload); err != nil {
		return upstream.Route{}, err
	}
	switch payload.Code {
	case "Ok":
	case "NoRoute", "NoSegment":
		return upstream.Route{}, core.ErrNoRoute
	default:
		return upstream.Route{}, core.TransportFailure(fmt.Errorf("mapbox code %s: %s", payload.Code, payload.Message))
	}
	if len(payload.Routes) == 0 {
		return upstream.Route{}, core.ErrNoRoute
	}

	route := payload.Routes[0]
	return upstream.Route{
		Coordinates: route.Geometry.Coordinates,
		DistanceM:   route.Distance,
		DurationS:   route.Duration,
	}, nil
}

type matchResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Matchings []struct {
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"matchings"`
}

// Match snaps a recorded trace onto the paths of the mode's profile.
func (c *Client) Match(ctx context.Context, req upstream.MatchRequest) (upstream.Route, error) {
	if len(req.Points) < 2 {
		return upstream.Route{}, core.InvalidInput("at least 2 points are required")
	}
	profile, ok := profileForMode(req.Mode)
	if !ok {
		return upstream.Route{}, core.SoftBlock(fmt.Sprintf("mapbox does not match %s traces", req.Mode))
	}

	coords := make([]string, 0, len(req.Points))
	for _, p := range req.Points {
		coords = append(coords, fmt.Sprintf("%g,%g", p.Lng, p.Lat))
	}
	query := url.Values{}
	query.Set("geometries", "geojson")
	query.Set("overview", "full")
	query.Set("tidy", "true")

	var payload matchResponse
	path := "matching/v5/mapbox/" + profile + "/" + strings.Join(coords, ";")
	if err := c.getJSON(ctx, c.endpoint(path, query), &payload); err != nil {
		return upstream.Route{}, err
	}
	switch payload.Code {
	case "Ok":
	case "NoMatch", "NoSegment":
		return upstream.Route{}, core.ErrNoMatch
	case "TooManyCoordinates", "InvalidInput":
		return upstream.Route{}, core.InvalidInput("mapbox rejected the trace: %s", payload.Message)
	default:
		return upstream.Route{}, core.TransportFailure(fmt.Errorf("mapbox code %s: %s", payload.Code, payload.Message))
	}
	if len(payload.Matchings) == 0 {
		return upstream.Route{}, core.ErrNoMatch
	}

	m := payload.Matchings[0]
	return upstream.Route{
		Coordinates: m.Geometry.Coordinates,
		DistanceM:   m.Distance,
		DurationS:   m.Duration,
	}, nil
}

func profileForMode(mode string) (string, bool) {
	switch mode {
	case "", upstream.ModeWalking:
		return "walking", true
	case upstream.ModeDriving:
		return "driving", true
	case upstream.ModeBicycling:
		return "cycling", true
	}
	return "", false
}

// Geocode resolves an address with the forward geocoding API.
func (c *Client) Geocode(ctx context.Context, address string) (core.LatLng, bool, error) {
	query := url.Values{}
	query.Set("q", address)
	query.Set("limit", "1")

	var payload struct {
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := c.getJSON(ctx, c.endpoint("search/geocode/v6/forward", query), &payload); err != nil {
		return core.LatLng{}, false, err
	}
	if len(payload.Features) == 0 || len(payload.Features[0].Geometry.Coordinates) < 2 {
		return core.LatLng{}, false, nil
	}
	coords := payload.Features[0].Geometry.Coordinates
	return core.LatLng{Lat: coords[1], Lng: coords[0]}, true, nil
}
