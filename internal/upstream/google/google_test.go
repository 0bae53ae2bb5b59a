package google

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/upstream"
)

const samplePolyline = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &Client{
		HTTP:          server.Client(),
		APIKey:        "test-key",
		MapsBaseURL:   server.URL + "/maps/api",
		PlacesBaseURL: server.URL + "/v1",
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestDirectionsSumsLegs(t *testing.T) {
	var gotQuery map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/maps/api/directions/json", r.URL.Path)
		gotQuery = r.URL.Query()
		writeJSON(w, map[string]any{
			"status": "OK",
			"routes": []any{map[string]any{
				"overview_polyline": map[string]any{"points": samplePolyline},
				"legs": []any{
					map[string]any{"distance": map[string]any{"value": 1000}, "duration": map[string]any{"value": 600}},
					map[string]any{"distance": map[string]any{"value": 2500}, "duration": map[string]any{"value": 900}},
				},
			}},
		})
	})

	route, err := client.Directions(context.Background(), upstream.DirectionsRequest{
		Waypoints: []core.LatLng{{Lat: 38.5, Lng: -120.2}, {Lat: 40.7, Lng: -120.95}, {Lat: 43.252, Lng: -126.453}},
		Mode:      upstream.ModeWalking,
		Optimize:  true,
	})
	require.NoError(t, err)
	require.Equal(t, 3500.0, route.DistanceM)
	require.Equal(t, 1500.0, route.DurationS)
	require.Len(t, route.Coordinates, 3)
	require.InDelta(t, -120.2, route.Coordinates[0][0], 1e-9)
	require.InDelta(t, 38.5, route.Coordinates[0][1], 1e-9)

	require.Equal(t, []string{"38.5,-120.2"}, gotQuery["origin"])
	require.Equal(t, []string{"optimize:true|40.7,-120.95"}, gotQuery["waypoints"])
	require.Equal(t, []string{"walking"}, gotQuery["mode"])
	require.Equal(t, []string{"test-key"}, gotQuery["key"])
}

func TestDirectionsStatuses(t *testing.T) {
	tests := []struct {
		status string
		kind   core.ErrorKind
	}{
		{"ZERO_RESULTS", core.KindNoRoute},
		{"OVER_QUERY_LIMIT", core.KindUpstreamSoftBlock},
		{"UNKNOWN_ERROR", core.KindUpstreamTransportFailure},
	}
	for _, tc := range tests {
		t.Run(tc.status, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, map[string]any{"status": tc.status})
			})
			_, err := client.Directions(context.Background(), upstream.DirectionsRequest{
				Waypoints: []core.LatLng{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}},
			})
			require.True(t, core.IsKind(err, tc.kind), "got %v", err)
		})
	}
}

func TestDirectionsRequiresKey(t *testing.T) {
	client := &Client{}
	_, err := client.Directions(context.Background(), upstream.DirectionsRequest{
		Waypoints: []core.LatLng{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}},
	})
	require.True(t, core.IsKind(err, core.KindUpstreamTransportFailure))
}

func TestAutocomplete(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/places:autocomplete", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))

		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		require.Equal(t, "abisko", body["input"])
		require.Contains(t, body, "locationBias")
		require.Equal(t, []any{"lodging"}, body["includedPrimaryTypes"])

		var suggestions []any
		suggestions = append(suggestions, map[string]any{"queryPrediction": map[string]any{}})
		for i := 0; i < 7; i++ {
			suggestions = append(suggestions, map[string]any{"placePrediction": map[string]any{
				"placeId": "id-" + string(rune('a'+i)),
				"text":    map[string]any{"text": "Abisko"},
			}})
		}
		writeJSON(w, map[string]any{"suggestions": suggestions})
	})

	preds, err := client.Autocomplete(context.Background(), AutocompleteRequest{
		Query: " abisko ",
		Bias:  &core.LatLng{Lat: 68.3, Lng: 18.8},
		Types: []string{"lodging", " "},
	})
	require.NoError(t, err)
	require.Len(t, preds, 5)
	require.Equal(t, "id-a", preds[0].PlaceID)
}

func TestDetails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/places/abc", r.URL.Path)
		writeJSON(w, map[string]any{
			"id":               "abc",
			"displayName":      map[string]any{"text": "Abisko Turiststation"},
			"formattedAddress": "981 07 Abisko, Sweden",
			"location":         map[string]any{"latitude": 68.35, "longitude": 18.78},
			"rating":           4.6,
			"photos":           []any{map[string]any{"name": "places/abc/photos/p1"}},
		})
	})

	place, err := client.Details(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "Abisko Turiststation", place.Name)
	require.Equal(t, core.LatLng{Lat: 68.35, Lng: 18.78}, place.Location)
	require.Equal(t, "places/abc/photos/p1", place.PhotoReference)
	require.Empty(t, place.Types)
}

func TestGeocode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("address") == "nowhere" {
			writeJSON(w, map[string]any{"status": "ZERO_RESULTS"})
			return
		}
		writeJSON(w, map[string]any{"status": "OK", "results": []any{
			map[string]any{"geometry": map[string]any{"location": map[string]any{"lat": 59.33, "lng": 18.06}}},
		}})
	})

	loc, found, err := client.Geocode(context.Background(), "Stockholm")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, core.LatLng{Lat: 59.33, Lng: 18.06}, loc)

	_, found, err = client.Geocode(context.Background(), "nowhere")
	require.NoError(t, err)
	require.False(t, found)
}

func TestPhoto(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/places/abc/photos/p1/media", r.URL.Path)
		require.Equal(t, "640", r.URL.Query().Get("maxWidthPx"))
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff})
	})

	data, contentType, err := client.Photo(context.Background(), "places/abc/photos/p1", 640)
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0xd8, 0xff}, data)
	require.Equal(t, "image/jpeg", contentType)
}

func TestDistanceMatrixKeepsUnroutablePairsAsNil(t *testing.T) {
	var gotQuery map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/maps/api/distancematrix/json", r.URL.Path)
		gotQuery = r.URL.Query()
		writeJSON(w, map[string]any{
			"status": "OK",
			"rows": []any{
				map[string]any{"elements": []any{
					map[string]any{"status": "OK", "distance": map[string]any{"value": 4200}, "duration": map[string]any{"value": 3100}},
					map[string]any{"status": "ZERO_RESULTS"},
				}},
			},
		})
	})

	rows, err := client.DistanceMatrix(context.Background(), upstream.MatrixRequest{
		Origins:      []core.LatLng{{Lat: 68.35, Lng: 18.83}},
		Destinations: []core.LatLng{{Lat: 68.36, Lng: 18.78}, {Lat: 64.1, Lng: -21.9}},
		Mode:         upstream.ModeWalking,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0], 2)
	require.Equal(t, &upstream.MatrixCell{DistanceM: 4200, DurationS: 3100}, rows[0][0])
	require.Nil(t, rows[0][1])

	require.Equal(t, []string{"68.35,18.83"}, gotQuery["origins"])
	require.Equal(t, []string{"68.36,18.78|64.1,-21.9"}, gotQuery["destinations"])
	require.Equal(t, []string{"walking"}, gotQuery["mode"])
}

func TestDistanceMatrixStatuses(t *testing.T) {
	for status, kind := range map[string]core.ErrorKind{
		"OVER_QUERY_LIMIT": core.KindUpstreamSoftBlock,
		"INVALID_REQUEST":  core.KindInvalidInput,
		"UNKNOWN_ERROR":    core.KindUpstreamTransportFailure,
	} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"status": status})
		})
		_, err := client.DistanceMatrix(context.Background(), upstream.MatrixRequest{
			Origins:      []core.LatLng{{Lat: 1, Lng: 1}},
			Destinations: []core.LatLng{{Lat: 2, Lng: 2}},
		})
		require.True(t, core.IsKind(err, kind), "%s: %v", status, err)
	}
}
