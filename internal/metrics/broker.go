package metrics

import (
	"time"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
	"github.com/waypointhq/waypoint/internal/core/fallback"
)

// Broker metric names.
const (
	CacheLookupsTotal     = "broker_cache_lookups_total"
	RateLimitChecksTotal  = "broker_rate_limit_checks_total"
	PipelineAttemptsTotal = "broker_pipeline_attempts_total"
	OperationsTotal       = "broker_operations_total"
	OperationDuration     = "broker_operation_duration_ms"
	AttemptDuration       = "broker_attempt_duration_ms"
)

// RecordCacheLookup counts a response cache hit or miss.
func RecordCacheLookup(operation string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	counter(CacheLookupsTotal, map[string]string{"operation": operation, "result": result})
}

// RecordRateLimit counts an admission decision.
func RecordRateLimit(operation string, allowed bool) {
	decision := "rejected"
	if allowed {
		decision = "admitted"
	}
	counter(RateLimitChecksTotal, map[string]string{"operation": operation, "decision": decision})
}

// RecordAttempt counts one pipeline attempt by profile and outcome.
func RecordAttempt(operation string, attempt fallback.Attempt) {
	counter(PipelineAttemptsTotal, map[string]string{
		"operation": operation,
		"profile":   attempt.Profile,
		"outcome":   string(attempt.Outcome),
	})
	histogram(AttemptDuration, attempt.Duration, map[string]string{
		"operation": operation,
		"profile":   attempt.Profile,
	})
}

// RecordOutcome counts a finished operation and its latency. A nil error
// kind is reported as "ok".
func RecordOutcome(operation string, kind core.ErrorKind, elapsed time.Duration) {
	status := string(kind)
	if status == "" {
		status = "ok"
	}
	counter(OperationsTotal, map[string]string{"operation": operation, "status": status})
	histogram(OperationDuration, elapsed, map[string]string{"operation": operation})
}

// Hooks routes orchestrator events to telemetry.
func Hooks() engine.Hooks {
	return engine.Hooks{
		CacheLookup: RecordCacheLookup,
		RateLimit:   RecordRateLimit,
		Attempt:     RecordAttempt,
		Outcome:     RecordOutcome,
	}
}
