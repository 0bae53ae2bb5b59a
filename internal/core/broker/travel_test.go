package broker

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/waypointhq/waypoint/internal/ailink"
	"github.com/waypointhq/waypoint/internal/core"
)

type fakeTravel struct {
	results map[string]ailink.TravelContext
	errs    map[string]error
	models  []string
}

func (f *fakeTravel) Generate(_ context.Context, model string, _ ailink.TravelRequest) (ailink.TravelContext, error) {
	f.models = append(f.models, model)
	if err := f.errs[model]; err != nil {
		return nil, err
	}
	return f.results[model], nil
}

func (f *fakeTravel) RequiredSections() []string {
	return []string{"prepare", "local_tips"}
}

func section(entries map[string]string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(entries))
	for k, v := range entries {
		out[k] = json.RawMessage(`"` + v + `"`)
	}
	return out
}

func abiskoTrip() ailink.TravelRequest {
	return ailink.TravelRequest{
		Location:    "Abisko, Sweden",
		Title:       "Kungsleden north",
		Description: "Five days hut to hut from Abisko to Nikkaluokta",
	}
}

func TestTravelContextFallsBackToNextModel(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	travel := &fakeTravel{
		errs: map[string]error{"model-a": core.SoftBlock("openrouter: rate limited")},
		results: map[string]ailink.TravelContext{"model-b": {
			"prepare":    section(map[string]string{"gear": "Bring a mosquito head net"}),
			"local_tips": section(map[string]string{"food": "Resupply at Alesjaure"}),
		}},
	}
	b.Travel = travel
	b.TravelModels = []string{"model-a", "model-b"}

	got, prov, err := b.TravelContext(context.Background(), "caller", abiskoTrip())
	require.NoError(t, err)
	require.Equal(t, []string{"model-a", "model-b"}, travel.models)
	require.Equal(t, "model-b", prov.Profile)
	require.JSONEq(t, `"Bring a mosquito head net"`, string(got["prepare"]["gear"]))

	_, prov, err = b.TravelContext(context.Background(), "caller", abiskoTrip())
	require.NoError(t, err)
	require.True(t, prov.FromCache)
	require.Len(t, travel.models, 2)
}

func TestTravelContextMergesPartialSections(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	travel := &fakeTravel{results: map[string]ailink.TravelContext{
		"model-a": {"prepare": section(map[string]string{"gear": "first"})},
		"model-b": {
			"prepare":    section(map[string]string{"gear": "second", "permits": "None needed"}),
			"local_tips": section(map[string]string{"food": "Resupply at Alesjaure"}),
		},
	}}
	b.Travel = travel
	b.TravelModels = []string{"model-a", "model-b"}

	got, _, err := b.TravelContext(context.Background(), "caller", abiskoTrip())
	require.NoError(t, err)
	require.JSONEq(t, `"first"`, string(got["prepare"]["gear"]))
	require.JSONEq(t, `"None needed"`, string(got["prepare"]["permits"]))
	require.Contains(t, got, "local_tips")
}

func TestTravelContextIncompleteIsNotCached(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	travel := &fakeTravel{results: map[string]ailink.TravelContext{
		"model-a": {"prepare": section(map[string]string{"gear": "first"})},
	}}
	b.Travel = travel
	b.TravelModels = []string{"model-a"}

	got, _, err := b.TravelContext(context.Background(), "caller", abiskoTrip())
	require.NoError(t, err)
	require.NotContains(t, got, "local_tips")

	_, prov, err := b.TravelContext(context.Background(), "caller", abiskoTrip())
	require.NoError(t, err)
	require.False(t, prov.FromCache)
	require.Len(t, travel.models, 2)
}

func TestTravelContextValidation(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)
	travel := &fakeTravel{}
	b.Travel = travel
	b.TravelModels = []string{"model-a"}

	_, _, err := b.TravelContext(context.Background(), "caller", ailink.TravelRequest{Location: "Abisko"})
	require.True(t, core.IsKind(err, core.KindInvalidInput))
	require.Contains(t, err.Error(), "title, description")
	require.Empty(t, travel.models)
}

func TestTravelContextWithoutGeneratorIsExhausted(t *testing.T) {
	b := newTestBroker(newFakeClock(), nil)

	_, _, err := b.TravelContext(context.Background(), "caller", abiskoTrip())
	require.True(t, core.IsKind(err, core.KindUpstreamExhausted))
}
