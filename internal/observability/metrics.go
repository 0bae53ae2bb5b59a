package observability

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

var (
	TelemetrySystem    *telemetry.System
	PrometheusExporter *exporters.PrometheusExporter

	metricsHost string
	metricsPort int
)

// DefaultMetricsPort is reported when the exporter was asked for an
// ephemeral port and its bound address could not be read back.
const DefaultMetricsPort = 9090

// MetricsOptions configures the Prometheus exporter behind the broker's
// telemetry system.
type MetricsOptions struct {
	Service   string
	Namespace string // defaults to Service
	Host      string // empty binds every interface
	Port      int    // 0 picks a free port
}

// InitMetrics starts the exporter and installs the global telemetry system.
// Calling it again replaces the previous exporter after stopping it.
func InitMetrics(opts MetricsOptions) error {
	if PrometheusExporter != nil {
		_ = ShutdownMetrics()
	}

	port := opts.Port
	if port < 0 {
		port = 0
	}
	metricsHost = opts.Host
	metricsPort = port

	namespace := metricNamespace(opts)
	exporter := exporters.NewPrometheusExporter(namespace, net.JoinHostPort(opts.Host, strconv.Itoa(port)))
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("start prometheus exporter on port %d: %w", port, err)
	}

	if actual, err := resolvePort(exporter.GetAddr()); err == nil {
		metricsPort = actual
	} else if port == 0 {
		metricsPort = DefaultMetricsPort
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: exporter})
	if err != nil {
		_ = exporter.Stop()
		return err
	}

	PrometheusExporter = exporter
	TelemetrySystem = sys
	return nil
}

// ShutdownMetrics stops the exporter. Emission helpers become no-ops
// afterwards.
func ShutdownMetrics() error {
	exporter := PrometheusExporter
	PrometheusExporter = nil
	TelemetrySystem = nil
	if exporter == nil {
		return nil
	}
	return exporter.Stop()
}

// MetricsEnabled reports whether broker metrics are being recorded.
func MetricsEnabled() bool {
	return TelemetrySystem != nil
}

func GetMetricsPort() int {
	return metricsPort
}

// MetricsScrapeURL is the loopback-reachable address of the exporter's
// /metrics endpoint. Wildcard binds are scraped through 127.0.0.1.
func MetricsScrapeURL() string {
	host := metricsHost
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	port := metricsPort
	if port == 0 {
		port = DefaultMetricsPort
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/metrics"
}

// metricNamespace turns a service name like "waypoint-broker" into a valid
// Prometheus namespace.
func metricNamespace(opts MetricsOptions) string {
	ns := strings.TrimSpace(opts.Namespace)
	if ns == "" {
		ns = strings.TrimSpace(opts.Service)
	}
	ns = strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(strings.ToLower(ns))
	if ns == "" {
		return "waypoint"
	}
	return ns
}

func resolvePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
