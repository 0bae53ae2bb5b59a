package broker

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/upstream/overpass"
)

type fakeOverpass struct {
	responses map[string]overpass.Response
	endpoints []string
	queries   []string
}

func (f *fakeOverpass) Query(_ context.Context, endpoint, query string) (overpass.Response, error) {
	f.endpoints = append(f.endpoints, endpoint)
	f.queries = append(f.queries, query)
	resp, ok := f.responses[endpoint]
	if !ok {
		return overpass.Response{}, core.TransportFailure(errors.New("504 gateway timeout"))
	}
	return resp, nil
}

func (f *fakeOverpass) ServerTimeoutSeconds() int { return 25 }

const (
	primaryOverpass   = "https://overpass-api.de/api/interpreter"
	secondaryOverpass = "https://overpass.kumi.systems/api/interpreter"
)

func abiskoBounds() *core.BoundingBox {
	return &core.BoundingBox{South: 68.30, West: 18.70, North: 68.40, East: 18.90}
}

func TestPOIsFallBackToSecondEndpoint(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	op := &fakeOverpass{responses: map[string]overpass.Response{
		secondaryOverpass: {Elements: []overpass.Element{
			{Type: "node", ID: 7, Lat: 68.35, Lon: 18.83, Tags: map[string]string{"tourism": "wilderness_hut", "name": "Abiskojaure"}},
		}},
	}}
	b.Overpass = op
	b.OverpassEndpoints = []string{primaryOverpass, secondaryOverpass}

	got, prov, err := b.POIs(context.Background(), "caller", POIInput{Bounds: abiskoBounds(), Types: []string{"hut", "water"}})
	require.NoError(t, err)
	require.Equal(t, "FeatureCollection", got.Type)
	require.Len(t, got.Features, 1)
	require.Equal(t, "hut", got.Features[0].Properties.Type)
	require.Equal(t, "Abiskojaure", got.Features[0].Properties.Name)
	require.Equal(t, [2]float64{18.83, 68.35}, got.Features[0].Geometry.Coordinates)
	require.Equal(t, []string{primaryOverpass, secondaryOverpass}, op.endpoints)
	require.Equal(t, secondaryOverpass, prov.Profile)
	require.Equal(t, op.queries[0], op.queries[1])
}

func TestPOIsCacheIgnoresTypeOrder(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	op := &fakeOverpass{responses: map[string]overpass.Response{primaryOverpass: {}}}
	b.Overpass = op
	b.OverpassEndpoints = []string{primaryOverpass}

	_, _, err := b.POIs(context.Background(), "caller", POIInput{Bounds: abiskoBounds(), Types: []string{"hut", "water"}})
	require.NoError(t, err)
	_, prov, err := b.POIs(context.Background(), "caller", POIInput{Bounds: abiskoBounds(), Types: []string{"water", "hut"}})
	require.NoError(t, err)
	require.True(t, prov.FromCache)
	require.Len(t, op.endpoints, 1)
}

func TestPOIsLargeAreaRejectedBeforeUpstream(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	op := &fakeOverpass{}
	b.Overpass = op
	b.OverpassEndpoints = []string{primaryOverpass}

	_, _, err := b.POIs(context.Background(), "caller", POIInput{
		Bounds: &core.BoundingBox{South: 60, West: 10, North: 62, East: 12},
		Types:  []string{"hut"},
	})
	require.True(t, core.IsKind(err, core.KindInvalidInput))
	require.Empty(t, op.endpoints)
}

func TestValidatePOIs(t *testing.T) {
	tests := []struct {
		name string
		in   POIInput
	}{
		{name: "missing bounds", in: POIInput{Types: []string{"hut"}}},
		{name: "nan", in: POIInput{Bounds: &core.BoundingBox{South: math.NaN(), West: 18.7, North: 68.4, East: 18.9}, Types: []string{"hut"}}},
		{name: "inverted", in: POIInput{Bounds: &core.BoundingBox{South: 68.4, West: 18.7, North: 68.3, East: 18.9}, Types: []string{"hut"}}},
		{name: "out of range", in: POIInput{Bounds: &core.BoundingBox{South: 89.5, West: 18.7, North: 91, East: 18.9}, Types: []string{"hut"}}},
		{name: "no types", in: POIInput{Bounds: abiskoBounds()}},
		{name: "unknown type", in: POIInput{Bounds: abiskoBounds(), Types: []string{"casino"}}},
		{name: "limit too high", in: POIInput{Bounds: abiskoBounds(), Types: []string{"hut"}, Limit: MaxPOILimit + 1}},
		{name: "negative limit", in: POIInput{Bounds: abiskoBounds(), Types: []string{"hut"}, Limit: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validatePOIs(tt.in)
			require.True(t, core.IsKind(err, core.KindInvalidInput))
		})
	}

	key, err := validatePOIs(POIInput{Bounds: abiskoBounds(), Types: []string{"water", "hut", "water"}})
	require.NoError(t, err)
	require.Equal(t, DefaultPOILimit, key.Limit)
	require.Equal(t, []string{"hut", "water"}, key.Types)
}
