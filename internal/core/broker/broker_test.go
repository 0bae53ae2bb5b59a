package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/waypointhq/waypoint/internal/ailink"
	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
	"github.com/waypointhq/waypoint/internal/core/memstore"
	"github.com/waypointhq/waypoint/internal/upstream"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBroker(clock *fakeClock, overrides map[string]engine.RateLimit) *Broker {
	store := memstore.New()
	limiter := &engine.RateLimiter{Store: store, Clock: clock.Now}
	limiter.ApplyOverrides(overrides)
	return &Broker{
		Orchestrator: &engine.Orchestrator{Cache: store, Limiter: limiter, Clock: clock.Now},
		Clock:        clock.Now,
	}
}

type fakeRouter struct {
	name  string
	route upstream.Route
	err   error
	calls int
	last  upstream.DirectionsRequest
}

func (f *fakeRouter) Name() string { return f.name }

func (f *fakeRouter) Directions(_ context.Context, req upstream.DirectionsRequest) (upstream.Route, error) {
	f.calls++
	f.last = req
	return f.route, f.err
}

var (
	stockholm = core.LatLng{Lat: 59.3293, Lng: 18.0686}
	uppsala   = core.LatLng{Lat: 59.8586, Lng: 17.6389}
)

func sampleRoute() upstream.Route {
	return upstream.Route{
		Coordinates: [][2]float64{{18.0686, 59.3293}, {17.6389, 59.8586}},
		DistanceM:   71000,
		DurationS:   3000,
	}
}

func TestDirectionsSecondCallServedFromCache(t *testing.T) {
	clock := newFakeClock()
	b := newTestBroker(clock, nil)
	router := &fakeRouter{name: "google", route: sampleRoute()}
	b.Routers = []Router{router}

	in := DirectionsInput{Waypoints: []core.LatLng{stockholm, uppsala}, Mode: "driving"}
	first, prov, err := b.Directions(context.Background(), "caller-1", in)
	require.NoError(t, err)
	require.False(t, prov.FromCache)
	require.Equal(t, "google", first.Provider)
	require.Equal(t, "LineString", first.Geometry.Type)
	require.Equal(t, 71000.0, first.DistanceM)

	clock.Advance(time.Minute)
	second, prov, err := b.Directions(context.Background(), "caller-2", in)
	require.NoError(t, err)
	require.True(t, prov.FromCache)
	require.Equal(t, first, second)
	require.Equal(t, 1, router.calls)

	clock.Advance(10 * time.Minute)
	_, prov, err = b.Directions(context.Background(), "caller-1", in)
	require.NoError(t, err)
	require.False(t, prov.FromCache)
	require.Equal(t, 2, router.calls)
}

func TestDirectionsFallsBackToNextProvider(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	google := &fakeRouter{name: "google", err: core.TransportFailure(errors.New("dial tcp: timeout"))}
	mapbox := &fakeRouter{name: "mapbox", route: sampleRoute()}
	b.Routers = []Router{google, mapbox}

	got, prov, err := b.Directions(context.Background(), "caller", DirectionsInput{Waypoints: []core.LatLng{stockholm, uppsala}})
	require.NoError(t, err)
	require.Equal(t, "mapbox", got.Provider)
	require.Equal(t, "mapbox", prov.Profile)
	require.Equal(t, 2, prov.Attempts)
	require.Equal(t, upstream.ModeWalking, mapbox.last.Mode)
}

func TestDirectionsStopsAtFirstSuccess(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	google := &fakeRouter{name: "google", route: sampleRoute()}
	mapbox := &fakeRouter{name: "mapbox", route: sampleRoute()}
	b.Routers = []Router{google, mapbox}

	_, _, err := b.Directions(context.Background(), "caller", DirectionsInput{Waypoints: []core.LatLng{stockholm, uppsala}})
	require.NoError(t, err)
	require.Equal(t, 1, google.calls)
	require.Zero(t, mapbox.calls)
}

func TestDirectionsNoRouteIsNotCached(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	google := &fakeRouter{name: "google", err: core.ErrNoRoute}
	mapbox := &fakeRouter{name: "mapbox", err: core.ErrNoRoute}
	b.Routers = []Router{google, mapbox}
	in := DirectionsInput{Waypoints: []core.LatLng{stockholm, uppsala}}

	got, _, err := b.Directions(context.Background(), "caller", in)
	require.NoError(t, err)
	require.Equal(t, "no_route", got.Error)
	require.Nil(t, got.Geometry)

	_, prov, err := b.Directions(context.Background(), "caller", in)
	require.NoError(t, err)
	require.False(t, prov.FromCache)
	require.Equal(t, 2, google.calls)
	require.Equal(t, 2, mapbox.calls)
}

func TestDirectionsMixedFailuresAreExhausted(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	b.Routers = []Router{
		&fakeRouter{name: "google", err: core.ErrNoRoute},
		&fakeRouter{name: "mapbox", err: core.TransportFailure(errors.New("reset"))},
	}

	_, _, err := b.Directions(context.Background(), "caller", DirectionsInput{Waypoints: []core.LatLng{stockholm, uppsala}})
	require.Error(t, err)
	require.True(t, core.IsKind(err, core.KindUpstreamExhausted))
}

func TestDirectionsRateLimitedAfterSustainedMax(t *testing.T) {
	b := newTestBroker(newFakeClock(), map[string]engine.RateLimit{
		core.OpDirections: {SustainedMax: 3},
	})
	router := &fakeRouter{name: "google", route: sampleRoute()}
	b.Routers = []Router{router}

	input := func(i int) DirectionsInput {
		end := uppsala
		end.Lng += float64(i) * 0.01
		return DirectionsInput{Waypoints: []core.LatLng{stockholm, end}}
	}

	for i := 0; i < 3; i++ {
		_, _, err := b.Directions(context.Background(), "caller", input(i))
		require.NoError(t, err)
	}
	_, _, err := b.Directions(context.Background(), "caller", input(3))
	require.Error(t, err)
	require.True(t, core.IsKind(err, core.KindRateLimited))
	require.Equal(t, 3, router.calls)

	var typed *core.Error
	require.ErrorAs(t, err, &typed)
	require.Positive(t, typed.RetryAfter)

	// Cached answers are served without consulting the limiter.
	_, prov, err := b.Directions(context.Background(), "caller", input(0))
	require.NoError(t, err)
	require.True(t, prov.FromCache)

	// Other callers have their own budget.
	_, _, err = b.Directions(context.Background(), "someone-else", input(3))
	require.NoError(t, err)
}

func TestDirectionsValidation(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	router := &fakeRouter{name: "google", route: sampleRoute()}
	b.Routers = []Router{router}

	tests := []DirectionsInput{
		{Waypoints: []core.LatLng{stockholm}},
		{Waypoints: []core.LatLng{stockholm, {Lat: 91, Lng: 0}}},
		{Waypoints: []core.LatLng{stockholm, uppsala}, Mode: "teleport"},
		{Waypoints: make([]core.LatLng, MaxWaypoints+1)},
	}
	for _, in := range tests {
		_, _, err := b.Directions(context.Background(), "caller", in)
		require.Error(t, err)
		require.True(t, core.IsKind(err, core.KindInvalidInput), err.Error())
	}
	require.Zero(t, router.calls)
}

func TestDirectionsRequiresCaller(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	router := &fakeRouter{name: "google", route: sampleRoute()}
	b.Routers = []Router{router}

	_, _, err := b.Directions(context.Background(), " ", DirectionsInput{Waypoints: []core.LatLng{stockholm, uppsala}})
	require.True(t, core.IsKind(err, core.KindUnauthenticated))
	require.Zero(t, router.calls)
}

func TestDirectionsOptimizeNeedsIntermediateStops(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)

	req, err := b.validateDirections(DirectionsInput{Waypoints: []core.LatLng{stockholm, uppsala}, Optimize: true, Mode: " Bicycling "})
	require.NoError(t, err)
	require.False(t, req.Optimize)
	require.Equal(t, upstream.ModeBicycling, req.Mode)

	req, err = b.validateDirections(DirectionsInput{Waypoints: []core.LatLng{stockholm, uppsala, stockholm}, Optimize: true})
	require.NoError(t, err)
	require.True(t, req.Optimize)
}

func TestOperationsWithoutProvidersAreExhausted(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)

	_, _, err := b.Directions(context.Background(), "caller", DirectionsInput{Waypoints: []core.LatLng{stockholm, uppsala}})
	require.True(t, core.IsKind(err, core.KindUpstreamExhausted))

	_, _, err = b.PlaceDetails(context.Background(), "caller", DetailsInput{PlaceID: "abc"})
	require.True(t, core.IsKind(err, core.KindUpstreamExhausted))

	_, _, err = b.DistanceMatrix(context.Background(), "caller", DistanceMatrixInput{
		Origins:      []core.LatLng{stockholm},
		Destinations: []core.LatLng{uppsala},
	})
	require.True(t, core.IsKind(err, core.KindUpstreamExhausted))

	_, _, err = b.RouteMatch(context.Background(), "caller", RouteMatchInput{Points: []core.LatLng{stockholm, uppsala}})
	require.True(t, core.IsKind(err, core.KindUpstreamExhausted))

	require.NotPanics(t, func() {
		_, _, err = b.POIs(context.Background(), "caller", POIInput{
			Bounds: &core.BoundingBox{South: 59.3, West: 18.0, North: 59.4, East: 18.1},
			Types:  []string{"campsite"},
		})
	})
	require.True(t, core.IsKind(err, core.KindUpstreamExhausted))

	_, _, err = b.Elevation(context.Background(), "caller", ElevationInput{Coordinates: [][2]float64{{18.0, 59.3}, {18.1, 59.4}}})
	require.True(t, core.IsKind(err, core.KindUpstreamExhausted))
}

func TestOperationsRejectAnonymousCallersBeforeInput(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	ctx := context.Background()

	checks := map[string]func() error{
		core.OpDirections: func() error {
			_, _, err := b.Directions(ctx, "", DirectionsInput{})
			return err
		},
		core.OpDistanceMatrix: func() error {
			_, _, err := b.DistanceMatrix(ctx, "", DistanceMatrixInput{})
			return err
		},
		core.OpRouteMatch: func() error {
			_, _, err := b.RouteMatch(ctx, "", RouteMatchInput{})
			return err
		},
		core.OpPlacesSearch: func() error {
			_, _, err := b.SearchPlaces(ctx, " ", SearchInput{Query: "a"})
			return err
		},
		core.OpPlacesDetails: func() error {
			_, _, err := b.PlaceDetails(ctx, "", DetailsInput{})
			return err
		},
		core.OpPlacesGeocode: func() error {
			_, _, err := b.Geocode(ctx, "", GeocodeInput{})
			return err
		},
		core.OpPlacesPhoto: func() error {
			_, _, err := b.Photo(ctx, "", PhotoInput{})
			return err
		},
		core.OpElevation: func() error {
			_, _, err := b.Elevation(ctx, "", ElevationInput{})
			return err
		},
		core.OpPOIs: func() error {
			_, _, err := b.POIs(ctx, "", POIInput{})
			return err
		},
		core.OpLinkMetadata: func() error {
			_, _, err := b.LinkMetadata(ctx, "", URLInput{URL: "ftp://nope"})
			return err
		},
		core.OpRouteMetadata: func() error {
			_, _, err := b.RouteMetadata(ctx, "", URLInput{})
			return err
		},
		core.OpTravelContext: func() error {
			_, _, err := b.TravelContext(ctx, "", ailink.TravelRequest{})
			return err
		},
	}
	for op, call := range checks {
		t.Run(op, func(t *testing.T) {
			err := call()
			require.True(t, core.IsKind(err, core.KindUnauthenticated), "got %v", err)
		})
	}
}

func TestAttemptTimeoutPerOperation(t *testing.T) {
	b := &Broker{
		Timeout:           10 * time.Second,
		OperationTimeouts: map[string]time.Duration{core.OpTravelContext: time.Minute},
	}
	require.Equal(t, time.Minute, b.attemptTimeout(core.OpTravelContext))
	require.Equal(t, 10*time.Second, b.attemptTimeout(core.OpDirections))

	p := newPipeline[int, whole[int]](b, core.OpTravelContext, namedProfiles("model-a"))
	require.Equal(t, time.Minute, p.Timeout)
}
