package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waypointhq/waypoint/internal/core"
)

func TestBuildQuery(t *testing.T) {
	bounds := core.BoundingBox{South: 68.3, West: 18.7, North: 68.4, East: 18.9}
	query := BuildQuery(bounds, []string{"water", "hut", "unknown", "hut"}, 200, 25)

	require.Equal(t, `[out:json][timeout:25];
(
  node["amenity"="drinking_water"](68.3,18.7,68.4,18.9);
  node["natural"="spring"](68.3,18.7,68.4,18.9);
  node["tourism"~"wilderness_hut|alpine_hut"](68.3,18.7,68.4,18.9);
);
out body qt 200;`, query)
}

func TestKnownTypes(t *testing.T) {
	require.Len(t, KnownTypes(), 17)
	require.Len(t, poiOrder, 17)
	for _, name := range poiOrder {
		require.True(t, KnownType(name), name)
	}
	require.False(t, KnownType("castle"))
}

func TestDetectType(t *testing.T) {
	require.Equal(t, "hut", DetectType(map[string]string{"tourism": "alpine_hut"}))
	require.Equal(t, "water", DetectType(map[string]string{"natural": "spring"}))
	require.Equal(t, "informationBoard", DetectType(map[string]string{"tourism": "information", "information": "board"}))
	require.Equal(t, "guidepost", DetectType(map[string]string{"tourism": "information", "information": "guidepost"}))
	require.Equal(t, TypeOther, DetectType(map[string]string{"shop": "bakery"}))
}

func TestToFeatureCollection(t *testing.T) {
	fc := ToFeatureCollection(Response{Elements: []Element{
		{ID: 1, Lat: 68.35, Lon: 18.83, Tags: map[string]string{"tourism": "viewpoint", "name:sv": "Utsikt", "note": "windy"}},
		{ID: 2, Lat: 68.36, Lon: 18.84},
		{ID: 3},
	}})

	require.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	first := fc.Features[0]
	require.Equal(t, [2]float64{18.83, 68.35}, first.Geometry.Coordinates)
	require.Equal(t, "1", first.Properties.ID)
	require.Equal(t, "viewpoint", first.Properties.Type)
	require.Equal(t, "Utsikt", first.Properties.Name)
	require.Equal(t, "windy", first.Properties.Description)
	require.Equal(t, "Unnamed", fc.Features[1].Properties.Name)
	require.Equal(t, TypeOther, fc.Features[1].Properties.Type)
}

func TestQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Contains(t, r.PostForm.Get("data"), "[out:json]")
		_, _ = w.Write([]byte(`{"elements":[{"type":"node","id":7,"lat":1.5,"lon":2.5,"tags":{"amenity":"bench"}}]}`))
	}))
	defer server.Close()

	client := &Client{HTTP: server.Client()}
	resp, err := client.Query(context.Background(), server.URL, "[out:json];node(1);out;")
	require.NoError(t, err)
	require.Len(t, resp.Elements, 1)
	require.Equal(t, int64(7), resp.Elements[0].ID)
	require.Equal(t, 25, client.ServerTimeoutSeconds())
}

func TestQueryThrottled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := &Client{HTTP: server.Client()}
	_, err := client.Query(context.Background(), server.URL, "x")
	require.True(t, core.IsKind(err, core.KindUpstreamSoftBlock))
}
