package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/waypointhq/waypoint/internal/core"
)

// RateLimiter enforces per-caller, per-endpoint burst and sustained limits.
type RateLimiter struct {
	Store  RateLimitStore
	Limits map[string]RateLimit
	Clock  func() time.Time
	Margin float64
	Logger core.Logger
}

// RateLimit configures the two counting windows for an endpoint. A window
// with a non-positive max or duration is disabled.
type RateLimit struct {
	BurstMax        int
	BurstWindow     time.Duration
	SustainedMax    int
	SustainedWindow time.Duration
}

// RateLimitStore performs the load, advance, persist sequence for one key as
// a single atomic unit and returns the updated record.
type RateLimitStore interface {
	IncrementRateLimit(ctx context.Context, key core.RateLimitKey, limit RateLimit, now time.Time) (core.RateLimitRecord, error)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Record     core.RateLimitRecord
	Limit      RateLimit
}

// DefaultLimits are the per-operation limits used when no override is configured.
var DefaultLimits = map[string]RateLimit{
	core.OpDirections:     {BurstMax: 10, BurstWindow: 10 * time.Second, SustainedMax: 100, SustainedWindow: 5 * time.Minute},
	core.OpDistanceMatrix: {BurstMax: 10, BurstWindow: 10 * time.Second, SustainedMax: 100, SustainedWindow: 5 * time.Minute},
	core.OpRouteMatch:     {BurstMax: 10, BurstWindow: 10 * time.Second, SustainedMax: 100, SustainedWindow: time.Hour},
	core.OpPlacesSearch:   {BurstMax: 10, BurstWindow: 10 * time.Second, SustainedMax: 100, SustainedWindow: time.Hour},
	core.OpPlacesDetails:  {BurstMax: 10, BurstWindow: 10 * time.Second, SustainedMax: 100, SustainedWindow: time.Hour},
	core.OpPlacesGeocode:  {BurstMax: 10, BurstWindow: 10 * time.Second, SustainedMax: 100, SustainedWindow: time.Hour},
	core.OpPlacesPhoto:    {BurstMax: 10, BurstWindow: 10 * time.Second, SustainedMax: 100, SustainedWindow: time.Hour},
	core.OpElevation:      {BurstMax: 10, BurstWindow: time.Minute, SustainedMax: 200, SustainedWindow: time.Hour},
	core.OpPOIs:           {BurstMax: 5, BurstWindow: 10 * time.Second, SustainedMax: 60, SustainedWindow: 10 * time.Minute},
	core.OpLinkMetadata:   {BurstMax: 10, BurstWindow: 10 * time.Second, SustainedMax: 120, SustainedWindow: time.Hour},
	core.OpRouteMetadata:  {BurstMax: 5, BurstWindow: 10 * time.Second, SustainedMax: 60, SustainedWindow: time.Hour},
	core.OpTravelContext:  {BurstMax: 3, BurstWindow: time.Minute, SustainedMax: 30, SustainedWindow: time.Hour},
}

// BurstEnabled reports whether the burst window is active.
func (l RateLimit) BurstEnabled() bool {
	return l.BurstMax > 0 && l.BurstWindow > 0
}

// SustainedEnabled reports whether the sustained window is active.
func (l RateLimit) SustainedEnabled() bool {
	return l.SustainedMax > 0 && l.SustainedWindow > 0
}

// Enabled reports whether any window is active.
func (l RateLimit) Enabled() bool {
	return l.BurstEnabled() || l.SustainedEnabled()
}

// TTL is how long a record stays relevant after its last update.
func (l RateLimit) TTL() time.Duration {
	ttl := l.SustainedWindow
	if l.BurstWindow > ttl {
		ttl = l.BurstWindow
	}
	return ttl
}

// AdvanceRecord applies one request at now. Each window restarts at a count
// of one once more than its duration has elapsed, and increments otherwise.
func AdvanceRecord(rec core.RateLimitRecord, limit RateLimit, now time.Time) core.RateLimitRecord {
	if rec.WindowStart.IsZero() || now.Sub(rec.WindowStart) > limit.SustainedWindow {
		rec.WindowCount = 1
		rec.WindowStart = now
	} else {
		rec.WindowCount++
	}

	if rec.BurstStart.IsZero() || now.Sub(rec.BurstStart) > limit.BurstWindow {
		rec.BurstCount = 1
		rec.BurstStart = now
	} else {
		rec.BurstCount++
	}
	return rec
}

// Exceeded evaluates an already advanced record and returns how long the
// caller should wait when a window is over its max.
func Exceeded(rec core.RateLimitRecord, limit RateLimit, now time.Time) (bool, time.Duration) {
	var (
		exceeded bool
		wait     time.Duration
	)
	if limit.SustainedEnabled() && rec.WindowCount > limit.SustainedMax {
		exceeded = true
		wait = maxDuration(wait, rec.WindowStart.Add(limit.SustainedWindow).Sub(now))
	}
	if limit.BurstEnabled() && rec.BurstCount > limit.BurstMax {
		exceeded = true
		wait = maxDuration(wait, rec.BurstStart.Add(limit.BurstWindow).Sub(now))
	}
	if exceeded && wait < time.Second {
		wait = time.Second
	}
	return exceeded, wait
}

// Admit counts the request and decides whether it may proceed. Store failures
// deny the request.
func (r *RateLimiter) Admit(ctx context.Context, callerID, endpoint string) (Decision, error) {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return Decision{}, core.Unauthenticated("caller identity is required")
	}
	if r == nil {
		return Decision{Allowed: true}, nil
	}

	limit, ok := r.getLimit(endpoint)
	if !ok {
		return Decision{Allowed: true}, nil
	}
	if r.Store == nil {
		return Decision{Limit: limit}, core.StorageFailure(errors.New("rate limit store is not configured"))
	}

	now := r.now()
	key := core.RateLimitKey{CallerID: callerID, Endpoint: endpoint}
	rec, err := r.Store.IncrementRateLimit(ctx, key, limit, now)
	if err != nil {
		core.LoggerOrNop(r.Logger).Error("Rate limit store failed, denying request",
			zap.String("endpoint", endpoint), zap.Error(err))
		return Decision{Limit: limit}, core.StorageFailure(err)
	}

	exceeded, wait := Exceeded(rec, limit, now)
	return Decision{
		Allowed:    !exceeded,
		RetryAfter: wait,
		Record:     rec,
		Limit:      limit,
	}, nil
}

// ApplyOverrides replaces per-endpoint limits. Zero fields keep the current
// value for that endpoint.
func (r *RateLimiter) ApplyOverrides(overrides map[string]RateLimit) {
	if r == nil || len(overrides) == 0 {
		return
	}

	if r.Limits == nil {
		r.Limits = make(map[string]RateLimit, len(DefaultLimits))
		for key, limit := range DefaultLimits {
			r.Limits[key] = limit
		}
	}

	for endpoint, value := range overrides {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint == "" {
			continue
		}
		current := r.Limits[endpoint]
		if value.BurstMax != 0 {
			current.BurstMax = value.BurstMax
		}
		if value.BurstWindow != 0 {
			current.BurstWindow = value.BurstWindow
		}
		if value.SustainedMax != 0 {
			current.SustainedMax = value.SustainedMax
		}
		if value.SustainedWindow != 0 {
			current.SustainedWindow = value.SustainedWindow
		}
		r.Limits[endpoint] = current
	}
}

// ApplySafetyMargin adjusts the effective request limits by a ratio (0-1].
func (r *RateLimiter) ApplySafetyMargin(margin float64) {
	if r == nil {
		return
	}
	if margin <= 0 || margin > 1 {
		return
	}
	r.Margin = margin
}

// Limit returns the effective limit for an endpoint.
func (r *RateLimiter) Limit(endpoint string) (RateLimit, bool) {
	return r.getLimit(endpoint)
}

func (r *RateLimiter) getLimit(endpoint string) (RateLimit, bool) {
	limits := r.Limits
	if limits == nil {
		limits = DefaultLimits
	}

	limit, ok := limits[endpoint]
	if !ok || !limit.Enabled() {
		return RateLimit{}, false
	}
	return r.applyMargin(limit), true
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

func (r *RateLimiter) applyMargin(limit RateLimit) RateLimit {
	if r == nil || r.Margin <= 0 || r.Margin > 1 {
		return limit
	}
	limit.BurstMax = scaleMax(limit.BurstMax, r.Margin)
	limit.SustainedMax = scaleMax(limit.SustainedMax, r.Margin)
	return limit
}

func scaleMax(max int, margin float64) int {
	if max <= 0 {
		return max
	}
	adjusted := int(math.Floor(float64(max) * margin))
	if adjusted < 1 {
		adjusted = 1
	}
	return adjusted
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
