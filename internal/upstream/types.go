package upstream

import "github.com/waypointhq/waypoint/internal/core"

// Travel modes accepted by the routing providers.
const (
	ModeDriving   = "driving"
	ModeWalking   = "walking"
	ModeBicycling = "bicycling"
	ModeTransit   = "transit"
)

// ValidMode reports whether mode is a known travel mode.
func ValidMode(mode string) bool {
	switch mode {
	case ModeDriving, ModeWalking, ModeBicycling, ModeTransit:
		return true
	}
	return false
}

// DirectionsRequest asks a provider for a route through the waypoints.
type DirectionsRequest struct {
	Waypoints []core.LatLng
	Mode      string
	Optimize  bool
}

// Route is a provider-neutral routing answer. Coordinates are [lng, lat].
type Route struct {
	Coordinates [][2]float64
	DistanceM   float64
	DurationS   float64
}

// MatrixRequest asks for travel between every origin and every destination.
type MatrixRequest struct {
	Origins      []core.LatLng
	Destinations []core.LatLng
	Mode         string
}

// MatrixCell is the travel cost of one origin-destination pair.
type MatrixCell struct {
	DistanceM float64 `json:"distance"`
	DurationS float64 `json:"duration"`
}

// MatchRequest asks a provider to snap a recorded trace onto its paths.
type MatchRequest struct {
	Points []core.LatLng
	Mode   string
}
