package google

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/twpayne/go-polyline"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/upstream"
)

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Legs []struct {
			Distance struct {
				Value float64 `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value float64 `json:"value"`
			} `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

// Directions requests a route through the waypoints. Distance and duration
// are summed over every leg.
func (c *Client) Directions(ctx context.Context, req upstream.DirectionsRequest) (upstream.Route, error) {
	if len(req.Waypoints) < 2 {
		return upstream.Route{}, core.InvalidInput("at least 2 waypoints are required")
	}

	query := url.Values{}
	query.Set("origin", formatLatLng(req.Waypoints[0]))
	query.Set("destination", formatLatLng(req.Waypoints[len(req.Waypoints)-1]))
	if len(req.Waypoints) > 2 {
		parts := make([]string, 0, len(req.Waypoints)-1)
		if req.Optimize {
			parts = append(parts, "optimize:true")
		}
		for _, w := range req.Waypoints[1 : len(req.Waypoints)-1] {
			parts = append(parts, formatLatLng(w))
		}
		query.Set("waypoints", strings.Join(parts, "|"))
	}
	if req.Mode != "" {
		query.Set("mode", req.Mode)
	}

	var payload directionsResponse
	if err := c.getJSON(ctx, c.mapsURL("directions/json", query), nil, &payload); err != nil {
		return upstream.Route{}, err
	}
	if err := statusError(payload.Status, payload.ErrorMessage); err != nil {
		return upstream.Route{}, err
	}
	if len(payload.Routes) == 0 {
		return upstream.Route{}, core.ErrNoRoute
	}

	route := payload.Routes[0]
	coords, _, err := polyline.DecodeCoords([]byte(route.OverviewPolyline.Points))
	if err != nil {
		return upstream.Route{}, fmt.Errorf("decode polyline: %w", err)
	}
	if len(coords) == 0 {
		return upstream.Route{}, errors.New("route has no geometry")
	}

	out := upstream.Route{Coordinates: make([][2]float64, 0, len(coords))}
	for _, pt := range coords {
		out.Coordinates = append(out.Coordinates, [2]float64{pt[1], pt[0]})
	}
	for _, leg := range route.Legs {
		out.DistanceM += leg.Distance.Value
		out.DurationS += leg.Duration.Value
	}
	return out, nil
}

func formatLatLng(p core.LatLng) string {
	return fmt.Sprintf("%g,%g", p.Lat, p.Lng)
}
