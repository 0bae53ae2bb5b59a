package core

import (
	"fmt"
	"math"
	"time"
)

// Operation names. They double as rate limit endpoints, cache namespaces and
// configuration keys.
const (
	OpDirections     = "directions"
	OpDistanceMatrix = "distance_matrix"
	OpRouteMatch     = "route_match"
	OpPlacesSearch   = "places_search"
	OpPlacesDetails  = "places_details"
	OpPlacesGeocode  = "places_geocode"
	OpPlacesPhoto    = "places_photo"
	OpElevation      = "elevation"
	OpPOIs           = "pois"
	OpLinkMetadata   = "link_metadata"
	OpRouteMetadata  = "route_metadata"
	OpTravelContext  = "travel_context"
)

// Operations lists every brokered operation.
var Operations = []string{
	OpDirections,
	OpDistanceMatrix,
	OpRouteMatch,
	OpPlacesSearch,
	OpPlacesDetails,
	OpPlacesGeocode,
	OpPlacesPhoto,
	OpElevation,
	OpPOIs,
	OpLinkMetadata,
	OpRouteMetadata,
	OpTravelContext,
}

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate rejects coordinates outside the valid range.
func (p LatLng) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return fmt.Errorf("coordinate is not a number")
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("longitude %v out of range", p.Lng)
	}
	return nil
}

// BoundingBox is an axis-aligned area in degrees.
type BoundingBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// ApproxAreaKm2 estimates the box area using 111 km per degree on both axes.
func (b BoundingBox) ApproxAreaKm2() float64 {
	return math.Abs(b.North-b.South) * math.Abs(b.East-b.West) * 111 * 111
}

// Provenance describes how an operation result was produced.
type Provenance struct {
	Operation  string    `json:"operation"`
	RequestID  string    `json:"request_id,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
	FromCache  bool      `json:"from_cache"`
	Profile    string    `json:"profile,omitempty"`
	Attempts   int       `json:"attempts"`
}
