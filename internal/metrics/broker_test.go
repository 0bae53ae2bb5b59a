package metrics

import (
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/require"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/fallback"
	"github.com/waypointhq/waypoint/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() {
		observability.TelemetrySystem = original
	})
	return collector
}

func TestHooksEmitBrokerMetrics(t *testing.T) {
	collector := setupTelemetry(t)
	hooks := Hooks()

	hooks.CacheLookup("directions", false)
	hooks.RateLimit("directions", true)
	hooks.Attempt("directions", fallback.Attempt{Profile: "google", Outcome: fallback.OutcomeUsable, Duration: 40 * time.Millisecond})
	hooks.Outcome("directions", "", 55*time.Millisecond)
	hooks.Outcome("directions", core.KindRateLimited, time.Millisecond)

	require.Equal(t, 1, collector.CountMetricsByName(CacheLookupsTotal))
	require.Equal(t, 1, collector.CountMetricsByName(RateLimitChecksTotal))
	require.Equal(t, 1, collector.CountMetricsByName(PipelineAttemptsTotal))
	require.Equal(t, 2, collector.CountMetricsByName(OperationsTotal))
	require.Equal(t, 2, collector.CountMetricsByName(OperationDuration))
}

func TestRecordersWithoutTelemetry(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.TelemetrySystem = original
	})

	require.NotPanics(t, func() {
		RecordCacheLookup("pois", true)
		RecordRateLimit("pois", false)
		RecordAttempt("pois", fallback.Attempt{Profile: "overpass"})
		RecordOutcome("pois", core.KindUpstreamExhausted, time.Second)
		RecordHTTPError("/v1/pois", "UPSTREAM_EXHAUSTED", 502)
		RecordPanic("")
		SetActiveConnections(3)
		RecordHealthCheck("state_store", false, time.Millisecond)
	})
}

func TestRecordHTTPErrorLabels(t *testing.T) {
	collector := setupTelemetry(t)

	RecordHTTPError("/v1/places/search", "RATE_LIMITED", 429)
	RecordHTTPError("", "NOT_FOUND", 404)
	RecordPanic("/v1/directions")

	require.Equal(t, 2, collector.CountMetricsByName(HTTPErrorsTotal))
	require.Equal(t, 1, collector.CountMetricsByName(PanicsTotal))
}

func TestTrackUptimePublishesStart(t *testing.T) {
	collector := setupTelemetry(t)

	stop := make(chan struct{})
	defer close(stop)
	TrackUptime(time.Unix(1_790_000_000, 0), 0, stop)

	require.Equal(t, 1, collector.CountMetricsByName(ServerStartTime))
	require.Equal(t, 1, collector.CountMetricsByName(ServerUptime))
}
