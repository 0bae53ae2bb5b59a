package broker

import (
	"context"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
	"github.com/waypointhq/waypoint/internal/core/fallback"
	"github.com/waypointhq/waypoint/internal/upstream"
)

// MaxMatchPoints bounds a route match trace.
const MaxMatchPoints = 100

// RouteMatcher snaps traces onto a path network.
type RouteMatcher interface {
	Name() string
	Match(ctx context.Context, req upstream.MatchRequest) (upstream.Route, error)
}

// RouteMatchInput is the route match request payload. SnapToTrail defaults
// to true.
type RouteMatchInput struct {
	Points      []core.LatLng `json:"points"`
	SnapToTrail *bool         `json:"snap_to_trail,omitempty"`
	Mode        string        `json:"mode"`
}

// RouteMatch is a trace snapped onto trails. Distance and duration are null
// when the points were passed through unsnapped. Error is "no_match" when no
// provider could snap the trace.
type RouteMatch struct {
	Geometry  *LineString `json:"geometry,omitempty"`
	DistanceM *float64    `json:"distance_m"`
	DurationS *float64    `json:"duration_s"`
	Provider  string      `json:"provider,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// RouteMatch snaps hand-drawn or recorded points onto trails. With
// snap_to_trail disabled the points come back as a line without touching
// any provider, the cache or the rate limiter.
func (b *Broker) RouteMatch(ctx context.Context, callerID string, in RouteMatchInput) (RouteMatch, core.Provenance, error) {
	prov, err := requireCaller(core.OpRouteMatch, callerID)
	if err != nil {
		return RouteMatch{}, prov, err
	}
	if err := validatePoints("points", in.Points, 2, MaxMatchPoints); err != nil {
		return RouteMatch{}, prov, err
	}
	mode, err := b.travelMode(in.Mode)
	if err != nil {
		return RouteMatch{}, prov, err
	}
	if in.SnapToTrail != nil && !*in.SnapToTrail {
		return RouteMatch{Geometry: lineOf(in.Points)}, prov, nil
	}
	req := upstream.MatchRequest{Points: append([]core.LatLng(nil), in.Points...), Mode: mode}

	matchers := make(map[string]RouteMatcher, len(b.Matchers))
	names := make([]string, 0, len(b.Matchers))
	for _, m := range b.Matchers {
		matchers[m.Name()] = m
		names = append(names, m.Name())
	}

	return engine.Execute(ctx, b.Orchestrator, engine.Operation[RouteMatch]{
		Name:     core.OpRouteMatch,
		CallerID: callerID,
		Key:      req,
		Run: func(ctx context.Context) (RouteMatch, fallback.Report, error) {
			noMatch := 0
			pipeline := wholePipeline(b, core.OpRouteMatch, namedProfiles(names...),
				func(ctx context.Context, p fallback.Profile) (RouteMatch, error) {
					route, err := matchers[p.Name].Match(ctx, req)
					if core.IsKind(err, core.KindNoMatch) {
						noMatch++
						return RouteMatch{}, core.SoftBlock(p.Name + ": no match")
					}
					if err != nil {
						return RouteMatch{}, err
					}
					distance, duration := route.DistanceM, route.DurationS
					return RouteMatch{
						Geometry:  &LineString{Type: "LineString", Coordinates: route.Coordinates},
						DistanceM: &distance,
						DurationS: &duration,
						Provider:  p.Name,
					}, nil
				})

			result, report, err := runWhole(ctx, pipeline)
			if err != nil && len(names) > 0 && noMatch == len(report.Attempts) && len(report.Attempts) == len(names) {
				return RouteMatch{Error: string(core.KindNoMatch)}, report, nil
			}
			return result, report, err
		},
		Cacheable: func(m RouteMatch) bool {
			return m.Error == "" && m.Geometry != nil
		},
	})
}

func lineOf(points []core.LatLng) *LineString {
	coords := make([][2]float64, 0, len(points))
	for _, p := range points {
		coords = append(coords, [2]float64{p.Lng, p.Lat})
	}
	return &LineString{Type: "LineString", Coordinates: coords}
}
