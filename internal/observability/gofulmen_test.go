package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

func TestInitLoggers(t *testing.T) {
	t.Run("CLI logger", func(t *testing.T) {
		InitCLILogger("waypoint-test", true)
		if CLILogger == nil {
			t.Fatal("CLI logger should not be nil after initialization")
		}
		CLILogger.Debug("cli logger ready", zap.String("test", "value"))
	})

	t.Run("structured server logger", func(t *testing.T) {
		InitServerLogger(ServerLogOptions{Service: "waypoint-test", Level: "debug", Namespace: "waypoint"})
		if ServerLogger == nil {
			t.Fatal("Server logger should not be nil after initialization")
		}
		ServerLogger.Info("server logger ready",
			zap.String("component", "test"),
			zap.String("caller_id", "mobile-app"))
	})

	t.Run("simple server logger", func(t *testing.T) {
		InitServerLogger(ServerLogOptions{Service: "waypoint-test", Profile: "SIMPLE", Environment: "development"})
		if ServerLogger == nil {
			t.Fatal("Server logger should not be nil after initialization")
		}
	})
}

func TestServerLoggerConfig(t *testing.T) {
	cfg := serverLoggerConfig(ServerLogOptions{Service: "waypoint", Level: "WARN", Namespace: "edge"})
	if cfg.Profile != logging.ProfileStructured {
		t.Fatalf("expected structured profile, got %v", cfg.Profile)
	}
	if cfg.DefaultLevel != "WARN" {
		t.Fatalf("expected WARN, got %s", cfg.DefaultLevel)
	}
	if cfg.Environment != "production" {
		t.Fatalf("expected production environment default, got %s", cfg.Environment)
	}
	if cfg.StaticFields["namespace"] != "edge" {
		t.Fatalf("expected namespace static field, got %v", cfg.StaticFields)
	}

	simple := serverLoggerConfig(ServerLogOptions{Service: "waypoint", Profile: "simple"})
	if simple.Profile != logging.ProfileSimple {
		t.Fatalf("expected simple profile, got %v", simple.Profile)
	}
	if len(simple.Middleware) != 0 {
		t.Fatal("simple profile should not configure middleware")
	}
	if simple.Sinks[0].Format != "console" {
		t.Fatalf("expected console format, got %s", simple.Sinks[0].Format)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   "TRACE",
		"debug":   "DEBUG",
		" Warn ":  "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"verbose": "INFO",
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCrucibleVersion(t *testing.T) {
	version := crucible.GetVersion()
	if version.Gofulmen == "" {
		t.Error("Gofulmen version should not be empty")
	}
	if version.Crucible == "" {
		t.Error("Crucible version should not be empty")
	}
}

func TestResolvePort(t *testing.T) {
	port, err := resolvePort("[::]:9464")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if port != 9464 {
		t.Fatalf("expected 9464, got %d", port)
	}
	if _, err := resolvePort("no-port"); err == nil {
		t.Fatal("expected error for address without port")
	}
}

func TestMetricNamespace(t *testing.T) {
	tests := []struct {
		opts MetricsOptions
		want string
	}{
		{opts: MetricsOptions{Service: "waypoint"}, want: "waypoint"},
		{opts: MetricsOptions{Service: "waypoint", Namespace: "Trip-Broker.eu"}, want: "trip_broker_eu"},
		{opts: MetricsOptions{}, want: "waypoint"},
	}
	for _, tt := range tests {
		if got := metricNamespace(tt.opts); got != tt.want {
			t.Fatalf("metricNamespace(%+v) = %q, want %q", tt.opts, got, tt.want)
		}
	}
}

func TestInitAndShutdownMetrics(t *testing.T) {
	if err := InitMetrics(MetricsOptions{Service: "waypoint-test", Host: "127.0.0.1", Port: 0}); err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	if !MetricsEnabled() {
		t.Fatal("expected metrics to be enabled after init")
	}
	if GetMetricsPort() == 0 {
		t.Fatal("expected a bound metrics port")
	}
	if err := ShutdownMetrics(); err != nil {
		t.Fatalf("ShutdownMetrics: %v", err)
	}
	if MetricsEnabled() || PrometheusExporter != nil {
		t.Fatal("expected globals cleared after shutdown")
	}
	if err := ShutdownMetrics(); err != nil {
		t.Fatalf("second ShutdownMetrics: %v", err)
	}
}

func TestMetricsScrapeURL(t *testing.T) {
	origHost, origPort := metricsHost, metricsPort
	t.Cleanup(func() { metricsHost, metricsPort = origHost, origPort })

	tests := []struct {
		host string
		port int
		want string
	}{
		{host: "", port: 9464, want: "http://127.0.0.1:9464/metrics"},
		{host: "0.0.0.0", port: 9464, want: "http://127.0.0.1:9464/metrics"},
		{host: "::", port: 9464, want: "http://127.0.0.1:9464/metrics"},
		{host: "10.0.4.2", port: 9464, want: "http://10.0.4.2:9464/metrics"},
		{host: "::1", port: 0, want: "http://[::1]:9090/metrics"},
	}
	for _, tt := range tests {
		metricsHost, metricsPort = tt.host, tt.port
		if got := MetricsScrapeURL(); got != tt.want {
			t.Fatalf("MetricsScrapeURL(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}
