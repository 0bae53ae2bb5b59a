package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/fallback"
)

// Hooks receive orchestration events, typically for metrics.
type Hooks struct {
	CacheLookup func(operation string, hit bool)
	RateLimit   func(operation string, allowed bool)
	Attempt     func(operation string, attempt fallback.Attempt)
	Outcome     func(operation string, kind core.ErrorKind, elapsed time.Duration)
}

// Orchestrator composes the response cache, the rate limiter and an
// operation's fallback pipeline.
type Orchestrator struct {
	Cache    ResponseCache
	Limiter  *RateLimiter
	Policies map[string]CachePolicy
	Logger   core.Logger
	Clock    func() time.Time
	Hooks    Hooks
}

// Operation describes one orchestrated call.
type Operation[T any] struct {
	Name     string
	CallerID string
	// Key holds the fields the cache fingerprint is derived from. It must not
	// include the caller.
	Key any
	// Run executes the fallback pipeline.
	Run func(ctx context.Context) (T, fallback.Report, error)
	// Cacheable decides whether a successful result may be stored. Nil
	// caches every success.
	Cacheable func(T) bool
}

// Execute runs op: cache lookup, admission, pipeline, cache store. Cache
// failures are logged and treated as misses.
func Execute[T any](ctx context.Context, o *Orchestrator, op Operation[T]) (T, core.Provenance, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	if o == nil {
		o = &Orchestrator{}
	}
	started := o.now()
	prov := core.Provenance{Operation: op.Name}

	value, prov, err := execute(ctx, o, op, prov)
	prov.ResolvedAt = o.now()
	if o.Hooks.Outcome != nil {
		o.Hooks.Outcome(op.Name, core.KindOf(err), prov.ResolvedAt.Sub(started))
	}
	if err != nil {
		return zero, prov, err
	}
	return value, prov, nil
}

func execute[T any](ctx context.Context, o *Orchestrator, op Operation[T], prov core.Provenance) (T, core.Provenance, error) {
	var zero T
	logger := core.LoggerOrNop(o.Logger)
	opField := zap.String("operation", op.Name)
	if strings.TrimSpace(op.CallerID) == "" {
		return zero, prov, core.Unauthenticated("caller identity is required")
	}
	if op.Run == nil {
		return zero, prov, fmt.Errorf("operation %s has no pipeline", op.Name)
	}

	policy := o.policy(op.Name)
	caching := o.Cache != nil && policy.Enabled() && op.Key != nil

	var fingerprint string
	if caching {
		fp, err := Fingerprint(op.Name, op.Key)
		if err != nil {
			return zero, prov, err
		}
		fingerprint = fp

		payload, ok, err := o.Cache.GetResponse(ctx, op.Name, fingerprint, policy, o.now())
		if err != nil {
			logger.Warn("Cache read failed, continuing without cache", opField, zap.Error(err))
			ok = false
		}
		if ok {
			var cached T
			if err := json.Unmarshal(payload, &cached); err != nil {
				logger.Warn("Discarding undecodable cache entry", opField, zap.Error(err))
			} else {
				o.cacheLookup(op.Name, true)
				prov.FromCache = true
				return cached, prov, nil
			}
		}
		o.cacheLookup(op.Name, false)
	}

	decision, err := o.Limiter.Admit(ctx, op.CallerID, op.Name)
	if err != nil {
		o.rateLimit(op.Name, false)
		return zero, prov, err
	}
	o.rateLimit(op.Name, decision.Allowed)
	if !decision.Allowed {
		logger.Info("Rate limit exceeded", opField, zap.Duration("retry_after", decision.RetryAfter))
		return zero, prov, core.RateLimited(op.Name, decision.RetryAfter)
	}

	value, report, err := op.Run(ctx)
	prov.Attempts = len(report.Attempts)
	prov.Profile = report.Profile
	if err != nil {
		return zero, prov, err
	}

	if caching && (op.Cacheable == nil || op.Cacheable(value)) {
		payload, err := json.Marshal(value)
		if err != nil {
			logger.Warn("Cache encode failed", opField, zap.Error(err))
		} else if err := o.Cache.PutResponse(ctx, op.Name, fingerprint, payload, policy, o.now()); err != nil {
			logger.Warn("Cache write failed", opField, zap.Error(err))
		}
	}

	return value, prov, nil
}

// Policy returns the cache policy for an operation.
func (o *Orchestrator) Policy(operation string) CachePolicy {
	return o.policy(operation)
}

func (o *Orchestrator) policy(operation string) CachePolicy {
	policies := o.Policies
	if policies == nil {
		policies = DefaultCachePolicies
	}
	return policies[operation]
}

func (o *Orchestrator) cacheLookup(operation string, hit bool) {
	if o.Hooks.CacheLookup != nil {
		o.Hooks.CacheLookup(operation, hit)
	}
}

func (o *Orchestrator) rateLimit(operation string, allowed bool) {
	if o.Hooks.RateLimit != nil {
		o.Hooks.RateLimit(operation, allowed)
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}
