package metrics

import (
	"time"

	"github.com/waypointhq/waypoint/internal/observability"
)

// Server metric names.
const (
	ActiveConnections   = "server_active_connections"
	HealthCheckTotal    = "server_health_checks_total"
	HealthCheckDuration = "server_health_check_duration_ms"
	ServerStartTime     = "server_start_time_seconds"
	ServerUptime        = "server_uptime_seconds"
)

func gauge(name string, value float64, tags map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(name, value, tags)
	}
}

func counter(name string, tags map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, 1, tags)
	}
}

func histogram(name string, d time.Duration, tags map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Histogram(name, d, tags)
	}
}

func SetActiveConnections(count int64) {
	gauge(ActiveConnections, float64(count), nil)
}

// RecordHealthCheck counts one checker run behind a probe.
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	counter(HealthCheckTotal, map[string]string{"check": checkName, "status": status})
	histogram(HealthCheckDuration, duration, map[string]string{"check": checkName})
}

// TrackUptime publishes the start time once and refreshes the uptime gauge
// every interval until stop is closed.
func TrackUptime(startedAt time.Time, interval time.Duration, stop <-chan struct{}) {
	gauge(ServerStartTime, float64(startedAt.Unix()), nil)
	gauge(ServerUptime, 0, nil)
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				gauge(ServerUptime, now.Sub(startedAt).Truncate(time.Second).Seconds(), nil)
			}
		}
	}()
}
