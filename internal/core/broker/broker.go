// Package broker implements the brokered operations. Every operation
// validates its input, then runs through the engine orchestrator: cache
// lookup, rate limit admission, a fallback pipeline over the operation's
// profiles, and a cache store.
package broker

import (
	"context"
	"image"
	"net/url"
	"strings"
	"time"

	"github.com/waypointhq/waypoint/internal/ailink"
	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
	"github.com/waypointhq/waypoint/internal/core/fallback"
	"github.com/waypointhq/waypoint/internal/upstream"
	"github.com/waypointhq/waypoint/internal/upstream/blob"
	"github.com/waypointhq/waypoint/internal/upstream/google"
	"github.com/waypointhq/waypoint/internal/upstream/overpass"
	"github.com/waypointhq/waypoint/internal/upstream/web"
)

// Router computes routes between waypoints.
type Router interface {
	Name() string
	Directions(ctx context.Context, req upstream.DirectionsRequest) (upstream.Route, error)
}

// Geocoder resolves free-text addresses.
type Geocoder interface {
	Name() string
	Geocode(ctx context.Context, address string) (core.LatLng, bool, error)
}

// PlacesProvider searches and describes places.
type PlacesProvider interface {
	Autocomplete(ctx context.Context, req google.AutocompleteRequest) ([]google.Prediction, error)
	Details(ctx context.Context, placeID string) (google.Place, error)
	Photo(ctx context.Context, reference string, maxWidth int) ([]byte, string, error)
}

// TerrainProvider returns elevation-encoded raster tiles.
type TerrainProvider interface {
	TerrainTile(ctx context.Context, source string, z, x, y int) (image.Image, error)
}

// POIProvider runs Overpass queries.
type POIProvider interface {
	Query(ctx context.Context, endpoint, query string) (overpass.Response, error)
	ServerTimeoutSeconds() int
}

// PageFetcher downloads web pages using a request profile.
type PageFetcher interface {
	Fetch(ctx context.Context, target *url.URL, p fallback.Profile) (*web.Response, error)
}

// BlobStore persists downloaded photos.
type BlobStore interface {
	Key(name string) string
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, obj blob.Object) error
	PublicURL(key string) string
}

// TravelGenerator produces travel context with a given model.
type TravelGenerator interface {
	Generate(ctx context.Context, model string, req ailink.TravelRequest) (ailink.TravelContext, error)
	RequiredSections() []string
}

// Broker holds the collaborators of every operation. Collaborators left nil
// make their operations fail with upstream_exhausted.
type Broker struct {
	Orchestrator *engine.Orchestrator

	Routers         []Router
	MatrixProviders []MatrixProvider
	Matchers        []RouteMatcher
	DefaultMode     string
	Geocoders       []Geocoder
	Places          PlacesProvider

	Terrain        TerrainProvider
	TerrainSources []string

	Overpass          POIProvider
	OverpassEndpoints []string

	Pages   PageFetcher
	Catalog web.Catalog

	Blobs BlobStore

	Travel       TravelGenerator
	TravelModels []string

	// Timeout bounds each pipeline attempt. OperationTimeouts overrides it
	// per operation.
	Timeout           time.Duration
	OperationTimeouts map[string]time.Duration
	Logger            core.Logger
	Clock             func() time.Time
}

// whole accumulates a result that is only meaningful as a unit, so the
// first profile to produce one wins.
type whole[T any] struct {
	fallback.Field[T]
}

func wholeOf[T any](v T) whole[T] {
	return whole[T]{fallback.Some(v)}
}

func (w whole[T]) Merge(next whole[T]) whole[T] {
	return whole[T]{w.Or(next.Field)}
}

func (w whole[T]) HasSignal() bool {
	return w.IsSet()
}

func newPipeline[R any, T fallback.Mergeable[T]](b *Broker, operation string, profiles []fallback.Profile) *fallback.Pipeline[R, T] {
	p := &fallback.Pipeline[R, T]{
		Name:     operation,
		Profiles: profiles,
		Timeout:  b.attemptTimeout(operation),
		Logger:   b.Logger,
		Clock:    b.Clock,
	}
	if b.Orchestrator != nil && b.Orchestrator.Hooks.Attempt != nil {
		p.Observe = b.Orchestrator.Hooks.Attempt
	}
	return p
}

// wholePipeline builds a pipeline whose fetch result is the whole answer.
func wholePipeline[T any](b *Broker, operation string, profiles []fallback.Profile, fetch func(ctx context.Context, p fallback.Profile) (T, error)) *fallback.Pipeline[T, whole[T]] {
	p := newPipeline[T, whole[T]](b, operation, profiles)
	p.Fetch = fetch
	p.Parse = func(_ fallback.Profile, raw T) (whole[T], error) {
		return wholeOf(raw), nil
	}
	p.Complete = func(acc whole[T]) bool {
		return acc.IsSet()
	}
	return p
}

func runWhole[T any](ctx context.Context, p *fallback.Pipeline[T, whole[T]]) (T, fallback.Report, error) {
	acc, report, err := p.Run(ctx, whole[T]{})
	if err != nil {
		var zero T
		return zero, report, err
	}
	return acc.Value(), report, nil
}

func namedProfiles(names ...string) []fallback.Profile {
	profiles := make([]fallback.Profile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, fallback.Profile{Name: name})
	}
	return profiles
}

// requireCaller rejects anonymous calls before any input is inspected.
func requireCaller(operation, callerID string) (core.Provenance, error) {
	prov := core.Provenance{Operation: operation}
	if strings.TrimSpace(callerID) == "" {
		return prov, core.Unauthenticated("caller identity is required")
	}
	return prov, nil
}

func (b *Broker) attemptTimeout(operation string) time.Duration {
	if d, ok := b.OperationTimeouts[operation]; ok && d > 0 {
		return d
	}
	return b.Timeout
}

func (b *Broker) logger() core.Logger {
	return core.LoggerOrNop(b.Logger)
}
