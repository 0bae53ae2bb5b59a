package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/goccy/go-json"

	"github.com/waypointhq/waypoint/internal/metrics"
)

// Probe names a health endpoint.
type Probe string

const (
	ProbeLive    Probe = "live"
	ProbeReady   Probe = "ready"
	ProbeStartup Probe = "startup"
)

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function to HealthChecker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

type registration struct {
	checker HealthChecker
	probes  map[Probe]bool
}

// HealthManager runs registered checks for the liveness, readiness and
// startup probes. The aggregate /health endpoint runs every check.
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]registration
	version  string
	started  bool
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]registration),
		version:  version,
	}
}

// RegisterChecker registers checker for the given probes. No probes means
// every probe.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker, probes ...Probe) {
	reg := registration{checker: checker, probes: map[Probe]bool{}}
	if len(probes) == 0 {
		probes = []Probe{ProbeLive, ProbeReady, ProbeStartup}
	}
	for _, p := range probes {
		reg.probes[p] = true
	}
	hm.mu.Lock()
	hm.checkers[name] = reg
	hm.mu.Unlock()
}

// MarkStarted flips the startup probe to healthy once initialization is done.
func (hm *HealthManager) MarkStarted() {
	hm.mu.Lock()
	hm.started = true
	hm.mu.Unlock()
}

func (hm *HealthManager) runHealthChecks(ctx context.Context, probe Probe) map[string]string {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checkers))
	for name, reg := range hm.checkers {
		if probe == "" || reg.probes[probe] {
			names = append(names, name)
		}
	}
	regs := make(map[string]registration, len(names))
	for _, name := range names {
		regs[name] = hm.checkers[name]
	}
	started := hm.started
	hm.mu.RUnlock()
	sort.Strings(names)

	checks := make(map[string]string, len(names)+1)
	if probe == ProbeStartup && !started {
		checks["startup"] = "unhealthy"
	}
	for _, name := range names {
		if ctx.Err() != nil {
			checks[name] = "timeout"
			continue
		}
		begin := time.Now()
		err := regs[name].checker.CheckHealth(ctx)
		metrics.RecordHealthCheck(name, err == nil, time.Since(begin))
		if err != nil {
			checks[name] = "unhealthy"
		} else {
			checks[name] = "healthy"
		}
	}
	return checks
}

func determineOverallStatus(checks map[string]string) string {
	degraded := false
	for _, status := range checks {
		if status == "unhealthy" {
			return "unhealthy"
		}
		if status == "timeout" {
			degraded = true
		}
	}
	if degraded {
		return "degraded"
	}
	return "healthy"
}

// HealthHandler handles aggregate health check requests
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checkCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := hm.runHealthChecks(checkCtx, "")
	status := determineOverallStatus(checks)
	if status == "unhealthy" {
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "aggregate health check failed")
		respondWithError(w, r, enrichHealthEnvelope(envelope, "", status, checks))
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   hm.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// ProbeHandler returns the handler for one probe.
func (hm *HealthManager) ProbeHandler(probe Probe, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		checks := hm.runHealthChecks(checkCtx, probe)
		status := determineOverallStatus(checks)
		if status == "unhealthy" {
			envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", string(probe)+" probe failed")
			respondWithError(w, r, enrichHealthEnvelope(envelope, string(probe), status, checks))
			return
		}

		writeJSON(w, http.StatusOK, ProbeResponse{
			Status:    status,
			Timestamp: time.Now().UTC(),
		})
	}
}

func enrichHealthEnvelope(envelope *errors.ErrorEnvelope, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	details := map[string]interface{}{
		"status": status,
	}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	if probe != "" {
		details["probe"] = probe
	}
	envelope = envelope.WithDetails(details)

	var unhealthy []string
	for name, result := range checks {
		if result != "healthy" {
			unhealthy = append(unhealthy, name)
		}
	}
	if len(unhealthy) > 0 {
		sort.Strings(unhealthy)
		envelope, _ = envelope.WithContext(map[string]interface{}{
			"unhealthy_checks": unhealthy,
		})
	}
	return envelope
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
