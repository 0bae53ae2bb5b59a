package broker

import (
	"context"
	"strings"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
	"github.com/waypointhq/waypoint/internal/core/fallback"
	"github.com/waypointhq/waypoint/internal/upstream"
)

// MaxWaypoints bounds a directions request.
const MaxWaypoints = 25

// DirectionsInput is the directions request payload.
type DirectionsInput struct {
	Waypoints []core.LatLng `json:"waypoints"`
	Mode      string        `json:"mode"`
	Optimize  bool          `json:"optimize"`
}

// LineString is a GeoJSON line with [lng, lat] positions.
type LineString struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// Directions is the directions result. Error is "no_route" when no provider
// could route between the waypoints.
type Directions struct {
	Geometry  *LineString `json:"geometry,omitempty"`
	DistanceM float64     `json:"distance_m"`
	DurationS float64     `json:"duration_s"`
	Provider  string      `json:"provider,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Directions routes between the waypoints with the first provider that
// succeeds.
func (b *Broker) Directions(ctx context.Context, callerID string, in DirectionsInput) (Directions, core.Provenance, error) {
	if prov, err := requireCaller(core.OpDirections, callerID); err != nil {
		return Directions{}, prov, err
	}
	req, err := b.validateDirections(in)
	if err != nil {
		return Directions{}, core.Provenance{Operation: core.OpDirections}, err
	}

	routers := make(map[string]Router, len(b.Routers))
	names := make([]string, 0, len(b.Routers))
	for _, r := range b.Routers {
		routers[r.Name()] = r
		names = append(names, r.Name())
	}

	return engine.Execute(ctx, b.Orchestrator, engine.Operation[Directions]{
		Name:     core.OpDirections,
		CallerID: callerID,
		Key:      req,
		Run: func(ctx context.Context) (Directions, fallback.Report, error) {
			noRoute := 0
			pipeline := wholePipeline(b, core.OpDirections, namedProfiles(names...),
				func(ctx context.Context, p fallback.Profile) (Directions, error) {
					route, err := routers[p.Name].Directions(ctx, req)
					if core.IsKind(err, core.KindNoRoute) {
						noRoute++
						return Directions{}, core.SoftBlock(p.Name + ": no route")
					}
					if err != nil {
						return Directions{}, err
					}
					return Directions{
						Geometry:  &LineString{Type: "LineString", Coordinates: route.Coordinates},
						DistanceM: route.DistanceM,
						DurationS: route.DurationS,
						Provider:  p.Name,
					}, nil
				})

			result, report, err := runWhole(ctx, pipeline)
			if err != nil && len(names) > 0 && noRoute == len(report.Attempts) && len(report.Attempts) == len(names) {
				return Directions{Error: string(core.KindNoRoute)}, report, nil
			}
			return result, report, err
		},
		Cacheable: func(d Directions) bool {
			return d.Error == "" && d.Geometry != nil
		},
	})
}

func (b *Broker) validateDirections(in DirectionsInput) (upstream.DirectionsRequest, error) {
	if len(in.Waypoints) < 2 {
		return upstream.DirectionsRequest{}, core.InvalidInput("at least two waypoints are required")
	}
	if len(in.Waypoints) > MaxWaypoints {
		return upstream.DirectionsRequest{}, core.InvalidInput("at most %d waypoints are allowed", MaxWaypoints)
	}
	for i, p := range in.Waypoints {
		if err := p.Validate(); err != nil {
			return upstream.DirectionsRequest{}, core.InvalidInput("waypoint %d: %v", i, err)
		}
	}

	mode, err := b.travelMode(in.Mode)
	if err != nil {
		return upstream.DirectionsRequest{}, err
	}

	return upstream.DirectionsRequest{
		Waypoints: append([]core.LatLng(nil), in.Waypoints...),
		Mode:      mode,
		Optimize:  in.Optimize && len(in.Waypoints) > 2,
	}, nil
}

// travelMode normalises a requested mode, falling back to the configured
// default and then walking.
func (b *Broker) travelMode(raw string) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(raw))
	if mode == "" {
		mode = b.DefaultMode
	}
	if mode == "" {
		mode = upstream.ModeWalking
	}
	if !upstream.ValidMode(mode) {
		return "", core.InvalidInput("unsupported travel mode %q", raw)
	}
	return mode, nil
}

// validatePoints checks a coordinate list against a size range.
func validatePoints(name string, points []core.LatLng, minLen, maxLen int) error {
	if len(points) < minLen {
		return core.InvalidInput("at least %d %s are required", minLen, name)
	}
	if len(points) > maxLen {
		return core.InvalidInput("at most %d %s are allowed", maxLen, name)
	}
	for i, p := range points {
		if err := p.Validate(); err != nil {
			return core.InvalidInput("%s %d: %v", strings.TrimSuffix(name, "s"), i, err)
		}
	}
	return nil
}
