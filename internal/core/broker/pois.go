package broker

import (
	"context"
	"math"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
	"github.com/waypointhq/waypoint/internal/core/fallback"
	"github.com/waypointhq/waypoint/internal/upstream/overpass"
)

const (
	DefaultPOILimit = 200
	MaxPOILimit     = 1000
	// MaxPOIAreaKm2 is the largest bounding box accepted, roughly 100x100 km.
	MaxPOIAreaKm2 = 10000.0
)

// POIInput selects POI types inside a bounding box.
type POIInput struct {
	Bounds *core.BoundingBox `json:"bounds"`
	Types  []string          `json:"types"`
	Limit  int               `json:"limit"`
}

type poiKey struct {
	Bounds core.BoundingBox `json:"bounds"`
	Types  []string         `json:"types"`
	Limit  int              `json:"limit"`
}

// POIs queries OpenStreetMap through the Overpass endpoints in order.
// Invalid boxes and unknown types are rejected before any upstream call.
func (b *Broker) POIs(ctx context.Context, callerID string, in POIInput) (overpass.FeatureCollection, core.Provenance, error) {
	if prov, err := requireCaller(core.OpPOIs, callerID); err != nil {
		return overpass.FeatureCollection{}, prov, err
	}
	key, err := validatePOIs(in)
	if err != nil {
		return overpass.FeatureCollection{}, core.Provenance{Operation: core.OpPOIs}, err
	}

	var (
		endpoints     []string
		serverTimeout int
	)
	if b.Overpass != nil {
		endpoints = b.OverpassEndpoints
		serverTimeout = b.Overpass.ServerTimeoutSeconds()
	}
	profiles := make([]fallback.Profile, 0, len(endpoints))
	for _, endpoint := range endpoints {
		profiles = append(profiles, fallback.Profile{Name: endpoint, Endpoint: endpoint})
	}

	return engine.Execute(ctx, b.Orchestrator, engine.Operation[overpass.FeatureCollection]{
		Name:     core.OpPOIs,
		CallerID: callerID,
		Key:      key,
		Run: func(ctx context.Context) (overpass.FeatureCollection, fallback.Report, error) {
			query := overpass.BuildQuery(key.Bounds, key.Types, key.Limit, serverTimeout)
			return runWhole(ctx, wholePipeline(b, core.OpPOIs, profiles,
				func(ctx context.Context, p fallback.Profile) (overpass.FeatureCollection, error) {
					resp, err := b.Overpass.Query(ctx, p.Endpoint, query)
					if err != nil {
						return overpass.FeatureCollection{}, err
					}
					return overpass.ToFeatureCollection(resp), nil
				}))
		},
	})
}

func validatePOIs(in POIInput) (poiKey, error) {
	if in.Bounds == nil {
		return poiKey{}, core.InvalidInput("bounds are required")
	}
	bb := *in.Bounds
	for _, v := range []float64{bb.South, bb.West, bb.North, bb.East} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return poiKey{}, core.InvalidInput("bounds must be numbers")
		}
	}
	if err := (core.LatLng{Lat: bb.South, Lng: bb.West}).Validate(); err != nil {
		return poiKey{}, core.InvalidInput("bounds: %v", err)
	}
	if err := (core.LatLng{Lat: bb.North, Lng: bb.East}).Validate(); err != nil {
		return poiKey{}, core.InvalidInput("bounds: %v", err)
	}
	if bb.South >= bb.North || bb.West >= bb.East {
		return poiKey{}, core.InvalidInput("bounds must satisfy south < north and west < east")
	}
	if area := bb.ApproxAreaKm2(); area > MaxPOIAreaKm2 {
		return poiKey{}, core.InvalidInput("bounds cover about %.0f km², the maximum is %.0f km²", area, MaxPOIAreaKm2)
	}

	types := engine.SortedSet(in.Types)
	if len(types) == 0 {
		return poiKey{}, core.InvalidInput("at least one POI type is required")
	}
	for _, t := range types {
		if !overpass.KnownType(t) {
			return poiKey{}, core.InvalidInput("unknown POI type %q", t)
		}
	}

	limit := in.Limit
	if limit == 0 {
		limit = DefaultPOILimit
	}
	if limit < 1 || limit > MaxPOILimit {
		return poiKey{}, core.InvalidInput("limit must be between 1 and %d", MaxPOILimit)
	}

	return poiKey{Bounds: bb, Types: types, Limit: limit}, nil
}
