package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/upstream"
)

type fakeMatcher struct {
	name  string
	route upstream.Route
	err   error
	calls int
}

func (f *fakeMatcher) Name() string { return f.name }

func (f *fakeMatcher) Match(_ context.Context, _ upstream.MatchRequest) (upstream.Route, error) {
	f.calls++
	return f.route, f.err
}

func TestRouteMatchSnapsAndCaches(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	matcher := &fakeMatcher{name: "mapbox", route: sampleRoute()}
	b.Matchers = []RouteMatcher{matcher}
	in := RouteMatchInput{Points: []core.LatLng{stockholm, uppsala}}

	got, _, err := b.RouteMatch(context.Background(), "caller", in)
	require.NoError(t, err)
	require.NotNil(t, got.Geometry)
	assert.Equal(t, "mapbox", got.Provider)
	require.NotNil(t, got.DistanceM)
	assert.Equal(t, 71000.0, *got.DistanceM)

	_, prov, err := b.RouteMatch(context.Background(), "caller", in)
	require.NoError(t, err)
	assert.True(t, prov.FromCache)
	assert.Equal(t, 1, matcher.calls)
}

func TestRouteMatchWithoutSnappingPassesPointsThrough(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	matcher := &fakeMatcher{name: "mapbox", route: sampleRoute()}
	b.Matchers = []RouteMatcher{matcher}
	snap := false

	got, prov, err := b.RouteMatch(context.Background(), "caller", RouteMatchInput{
		Points:      []core.LatLng{stockholm, uppsala},
		SnapToTrail: &snap,
	})
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{18.0686, 59.3293}, {17.6389, 59.8586}}, got.Geometry.Coordinates)
	assert.Nil(t, got.DistanceM)
	assert.Nil(t, got.DurationS)
	assert.Empty(t, got.Provider)
	assert.Equal(t, core.OpRouteMatch, prov.Operation)
	assert.Zero(t, matcher.calls)
}

func TestRouteMatchNoMatchIsNotCached(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	matcher := &fakeMatcher{name: "mapbox", err: core.ErrNoMatch}
	b.Matchers = []RouteMatcher{matcher}
	in := RouteMatchInput{Points: []core.LatLng{stockholm, uppsala}}

	got, _, err := b.RouteMatch(context.Background(), "caller", in)
	require.NoError(t, err)
	assert.Equal(t, "no_match", got.Error)
	assert.Nil(t, got.Geometry)

	_, prov, err := b.RouteMatch(context.Background(), "caller", in)
	require.NoError(t, err)
	assert.False(t, prov.FromCache)
	assert.Equal(t, 2, matcher.calls)
}

func TestRouteMatchTransportFailureIsExhausted(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	b.Matchers = []RouteMatcher{&fakeMatcher{name: "mapbox", err: core.TransportFailure(errors.New("reset"))}}

	_, _, err := b.RouteMatch(context.Background(), "caller", RouteMatchInput{Points: []core.LatLng{stockholm, uppsala}})
	require.True(t, core.IsKind(err, core.KindUpstreamExhausted), "got %v", err)
}

func TestRouteMatchValidation(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)

	_, _, err := b.RouteMatch(context.Background(), "caller", RouteMatchInput{Points: []core.LatLng{stockholm}})
	require.True(t, core.IsKind(err, core.KindInvalidInput))

	_, _, err = b.RouteMatch(context.Background(), "caller", RouteMatchInput{Points: make([]core.LatLng, MaxMatchPoints+1)})
	require.True(t, core.IsKind(err, core.KindInvalidInput))
}
