package broker

import (
	"context"

	"github.com/waypointhq/waypoint/internal/ailink"
	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
	"github.com/waypointhq/waypoint/internal/core/fallback"
)

// TravelContext asks the configured models in order for preparation notes
// and local tips. Sections from later models only fill keys earlier ones
// left out.
func (b *Broker) TravelContext(ctx context.Context, callerID string, in ailink.TravelRequest) (ailink.TravelContext, core.Provenance, error) {
	if prov, err := requireCaller(core.OpTravelContext, callerID); err != nil {
		return nil, prov, err
	}
	req, err := in.Normalize()
	if err != nil {
		return nil, core.Provenance{Operation: core.OpTravelContext}, err
	}

	var models []string
	var required []string
	if b.Travel != nil {
		models = b.TravelModels
		required = b.Travel.RequiredSections()
	}

	return engine.Execute(ctx, b.Orchestrator, engine.Operation[ailink.TravelContext]{
		Name:     core.OpTravelContext,
		CallerID: callerID,
		Key:      req,
		Run: func(ctx context.Context) (ailink.TravelContext, fallback.Report, error) {
			pipeline := newPipeline[ailink.TravelContext, ailink.TravelContext](b, core.OpTravelContext, namedProfiles(models...))
			pipeline.Fetch = func(ctx context.Context, p fallback.Profile) (ailink.TravelContext, error) {
				return b.Travel.Generate(ctx, p.Name, req)
			}
			pipeline.Parse = func(_ fallback.Profile, raw ailink.TravelContext) (ailink.TravelContext, error) {
				return raw, nil
			}
			pipeline.Complete = func(acc ailink.TravelContext) bool {
				return acc.HasSections(required)
			}
			return pipeline.Run(ctx, ailink.TravelContext{})
		},
		Cacheable: func(c ailink.TravelContext) bool {
			return c.HasSections(required)
		},
	})
}
