package broker

import (
	"context"
	"image"
	"math"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
	"github.com/waypointhq/waypoint/internal/core/fallback"
	"github.com/waypointhq/waypoint/internal/upstream/mapbox"
)

const (
	DefaultElevationZoom   = 15
	MaxElevationZoom       = 15
	DefaultSampleEveryM    = 50.0
	MaxElevationPoints     = 10000
	earthRadiusM           = 6371000.0
	maxMercatorLatitudeDeg = 85.05112878
)

// ElevationInput is a line to profile. Coordinates are [lng, lat].
type ElevationInput struct {
	Coordinates  [][2]float64 `json:"coordinates"`
	Zoom         int          `json:"zoom"`
	SampleEveryM float64      `json:"sample_every_m"`
}

// ElevationPoint is the height at a distance along the line.
type ElevationPoint struct {
	Distance  float64 `json:"distance"`
	Elevation float64 `json:"elevation"`
}

// ElevationProfile is the sampled profile with total climb and drop.
type ElevationProfile struct {
	Elevations []ElevationPoint `json:"elevations"`
	Ascent     float64          `json:"ascent"`
	Descent    float64          `json:"descent"`
	Source     string           `json:"source,omitempty"`
}

// Elevation samples the line and reads heights from terrain tiles, trying
// each tile source in order.
func (b *Broker) Elevation(ctx context.Context, callerID string, in ElevationInput) (ElevationProfile, core.Provenance, error) {
	if prov, err := requireCaller(core.OpElevation, callerID); err != nil {
		return ElevationProfile{}, prov, err
	}
	in, err := validateElevation(in)
	if err != nil {
		return ElevationProfile{}, core.Provenance{Operation: core.OpElevation}, err
	}
	sampled := SamplePath(in.Coordinates, in.SampleEveryM)

	var sources []string
	if b.Terrain != nil {
		sources = b.TerrainSources
		if len(sources) == 0 {
			sources = []string{mapbox.TerrainPNGRaw}
		}
	}

	return engine.Execute(ctx, b.Orchestrator, engine.Operation[ElevationProfile]{
		Name:     core.OpElevation,
		CallerID: callerID,
		Key:      in,
		Run: func(ctx context.Context) (ElevationProfile, fallback.Report, error) {
			return runWhole(ctx, wholePipeline(b, core.OpElevation, namedProfiles(sources...),
				func(ctx context.Context, p fallback.Profile) (ElevationProfile, error) {
					return b.profileElevation(ctx, p.Name, sampled, in.Zoom)
				}))
		},
	})
}

func (b *Broker) profileElevation(ctx context.Context, source string, sampled [][2]float64, zoom int) (ElevationProfile, error) {
	tiles := map[[2]int]image.Image{}
	out := ElevationProfile{Elevations: make([]ElevationPoint, 0, len(sampled)), Source: source}

	var distance float64
	for i, pt := range sampled {
		tx, ty, px, py := TilePixel(pt[1], pt[0], zoom)
		tile, ok := tiles[[2]int{tx, ty}]
		if !ok {
			img, err := b.Terrain.TerrainTile(ctx, source, zoom, tx, ty)
			if err != nil {
				return ElevationProfile{}, err
			}
			tile = img
			tiles[[2]int{tx, ty}] = img
		}
		if i > 0 {
			distance += Haversine(sampled[i-1], pt)
		}
		out.Elevations = append(out.Elevations, ElevationPoint{
			Distance:  distance,
			Elevation: mapbox.ElevationAt(tile, px, py),
		})
	}
	out.Ascent, out.Descent = ClimbTotals(out.Elevations)
	return out, nil
}

func validateElevation(in ElevationInput) (ElevationInput, error) {
	if len(in.Coordinates) < 2 {
		return in, core.InvalidInput("at least two coordinates are required")
	}
	if len(in.Coordinates) > MaxElevationPoints {
		return in, core.InvalidInput("at most %d coordinates are allowed", MaxElevationPoints)
	}
	for i, c := range in.Coordinates {
		if err := (core.LatLng{Lat: c[1], Lng: c[0]}).Validate(); err != nil {
			return in, core.InvalidInput("coordinate %d: %v", i, err)
		}
	}
	if in.Zoom == 0 {
		in.Zoom = DefaultElevationZoom
	}
	if in.Zoom < 1 || in.Zoom > MaxElevationZoom {
		return in, core.InvalidInput("zoom must be between 1 and %d", MaxElevationZoom)
	}
	if in.SampleEveryM == 0 {
		in.SampleEveryM = DefaultSampleEveryM
	}
	if math.IsNaN(in.SampleEveryM) || in.SampleEveryM < 1 {
		return in, core.InvalidInput("sample_every_m must be at least 1")
	}
	return in, nil
}

// Haversine returns the great-circle distance in meters between two
// [lng, lat] positions.
func Haversine(a, b [2]float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b[1] - a[1])
	dLng := toRad(b[0] - a[0])
	lat1 := toRad(a[1])
	lat2 := toRad(b[1])
	h := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLng/2), 2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}

// SamplePath keeps the first point, every point at which the distance
// accumulated since the last kept point reaches every meters, and the last
// point.
func SamplePath(coords [][2]float64, every float64) [][2]float64 {
	if len(coords) == 0 {
		return nil
	}
	out := [][2]float64{coords[0]}
	lastKept := 0
	var accum float64
	for i := 1; i < len(coords); i++ {
		accum += Haversine(coords[i-1], coords[i])
		if accum >= every {
			out = append(out, coords[i])
			lastKept = i
			accum = 0
		}
	}
	if lastKept != len(coords)-1 {
		out = append(out, coords[len(coords)-1])
	}
	return out
}

// TilePixel maps a position to its Web Mercator tile and the pixel inside
// that tile.
func TilePixel(lat, lng float64, zoom int) (tx, ty, px, py int) {
	lat = math.Max(-maxMercatorLatitudeDeg, math.Min(maxMercatorLatitudeDeg, lat))
	n := math.Exp2(float64(zoom))
	latRad := lat * math.Pi / 180
	worldX := (lng + 180) / 360 * n * mapbox.TileSize
	worldY := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n * mapbox.TileSize

	maxTile := int(n) - 1
	tx = clamp(int(math.Floor(worldX/mapbox.TileSize)), 0, maxTile)
	ty = clamp(int(math.Floor(worldY/mapbox.TileSize)), 0, maxTile)
	px = clamp(int(math.Floor(worldX))-tx*mapbox.TileSize, 0, mapbox.TileSize-1)
	py = clamp(int(math.Floor(worldY))-ty*mapbox.TileSize, 0, mapbox.TileSize-1)
	return tx, ty, px, py
}

// ClimbTotals sums positive and negative height changes.
func ClimbTotals(points []ElevationPoint) (ascent, descent float64) {
	for i := 1; i < len(points); i++ {
		diff := points[i].Elevation - points[i-1].Elevation
		if diff > 0 {
			ascent += diff
		} else {
			descent -= diff
		}
	}
	return ascent, descent
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
