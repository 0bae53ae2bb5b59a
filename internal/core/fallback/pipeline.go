// Package fallback runs an ordered list of attempt profiles against an
// upstream, merging partial results until the accumulated value is complete.
package fallback

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/waypointhq/waypoint/internal/core"
)

// Profile is one way of issuing the same logical request. Everything but the
// name is opaque to the pipeline.
type Profile struct {
	Name     string            `json:"name" yaml:"name"`
	Endpoint string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Options  map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Option returns a profile option or fallback when absent.
func (p Profile) Option(key, fallback string) string {
	if v, ok := p.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Mergeable is implemented by accumulated results.
type Mergeable[T any] interface {
	// Merge fills fields that are still empty from next.
	Merge(next T) T
	// HasSignal reports whether any field is filled.
	HasSignal() bool
}

// Outcome classifies a single attempt.
type Outcome string

const (
	OutcomeUsable           Outcome = "usable"
	OutcomeSoftBlock        Outcome = "soft_block"
	OutcomeTransportFailure Outcome = "transport_failure"
	OutcomeParseFailure     Outcome = "parse_failure"
)

// Attempt records what happened for one profile.
type Attempt struct {
	Profile  string        `json:"profile"`
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Reason   string        `json:"reason,omitempty"`
	Err      error         `json:"-"`
}

// Report summarizes a pipeline run.
type Report struct {
	Attempts  []Attempt `json:"attempts"`
	Completed bool      `json:"completed"`
	// Profile is the first profile whose response contributed usable data.
	Profile string `json:"profile,omitempty"`
}

// Pipeline tries profiles strictly in order. R is the raw response type and T
// the accumulated result.
type Pipeline[R any, T Mergeable[T]] struct {
	Name     string
	Profiles []Profile

	// Fetch issues the request for one profile. Errors of kind
	// upstream_soft_block are treated as soft blocks, anything else as a
	// transport failure.
	Fetch func(ctx context.Context, p Profile) (R, error)
	// Classify returns a non-nil error when the response is a soft block.
	// Nil means every response is usable.
	Classify func(p Profile, raw R) error
	// Parse extracts a partial result from a usable response.
	Parse func(p Profile, raw R) (T, error)
	// Salvage extracts whatever signal a blocked response still carries.
	Salvage func(p Profile, raw R) (T, bool)
	// Complete reports whether the accumulator is good enough to stop.
	Complete func(acc T) bool

	Timeout time.Duration
	Logger  core.Logger
	Clock   func() time.Time
	// Observe is invoked after every attempt.
	Observe func(pipeline string, a Attempt)
}

// Run executes the pipeline starting from seed. It returns the accumulated
// result unless no profile produced any signal, in which case the error has
// kind upstream_exhausted.
func (p *Pipeline[R, T]) Run(ctx context.Context, seed T) (T, Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := core.LoggerOrNop(p.Logger)
	acc := seed
	report := Report{}
	var lastErr error

	for _, profile := range p.Profiles {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		attempt := p.attempt(ctx, profile, &acc)
		report.Attempts = append(report.Attempts, attempt)
		if p.Observe != nil {
			p.Observe(p.Name, attempt)
		}

		fields := []zap.Field{
			zap.String("pipeline", p.Name),
			zap.String("profile", profile.Name),
			zap.String("outcome", string(attempt.Outcome)),
			zap.Duration("duration", attempt.Duration),
		}
		switch attempt.Outcome {
		case OutcomeTransportFailure:
			logger.Warn("Fallback attempt failed", append(fields, zap.Error(attempt.Err))...)
		case OutcomeUsable:
			logger.Debug("Fallback attempt usable", fields...)
			if report.Profile == "" {
				report.Profile = profile.Name
			}
		default:
			logger.Debug("Fallback attempt unusable", append(fields, zap.String("reason", attempt.Reason))...)
		}
		if attempt.Err != nil {
			lastErr = attempt.Err
		}

		if p.Complete != nil && acc.HasSignal() && p.Complete(acc) {
			report.Completed = true
			return acc, report, nil
		}
	}

	if acc.HasSignal() {
		return acc, report, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no profiles produced data")
	}
	return acc, report, core.Exhausted(p.Name, lastErr)
}

func (p *Pipeline[R, T]) attempt(ctx context.Context, profile Profile, acc *T) Attempt {
	started := p.now()
	attempt := Attempt{Profile: profile.Name}

	fetchCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	raw, err := p.Fetch(fetchCtx, profile)
	attempt.Duration = p.now().Sub(started)
	if err != nil {
		attempt.Err = err
		if core.IsKind(err, core.KindUpstreamSoftBlock) {
			attempt.Outcome = OutcomeSoftBlock
			attempt.Reason = err.Error()
		} else {
			attempt.Outcome = OutcomeTransportFailure
		}
		return attempt
	}

	if p.Classify != nil {
		if blocked := p.Classify(profile, raw); blocked != nil {
			attempt.Outcome = OutcomeSoftBlock
			attempt.Reason = blocked.Error()
			attempt.Err = blocked
			if p.Salvage != nil {
				if partial, ok := p.Salvage(profile, raw); ok {
					*acc = (*acc).Merge(partial)
				}
			}
			return attempt
		}
	}

	partial, err := p.Parse(profile, raw)
	if err != nil {
		attempt.Outcome = OutcomeParseFailure
		attempt.Reason = err.Error()
		attempt.Err = err
		return attempt
	}
	*acc = (*acc).Merge(partial)
	attempt.Outcome = OutcomeUsable
	return attempt
}

func (p *Pipeline[R, T]) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}
