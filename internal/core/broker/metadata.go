package broker

import (
	"context"
	"errors"
	"net/url"

	"go.uber.org/zap"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
	"github.com/waypointhq/waypoint/internal/core/extract"
	"github.com/waypointhq/waypoint/internal/core/fallback"
	"github.com/waypointhq/waypoint/internal/upstream/web"
)

// URLInput is a page address.
type URLInput struct {
	URL string `json:"url"`
}

// LinkMetadata is the preview of a page.
type LinkMetadata struct {
	extract.Link
	URL string `json:"url"`

	urlOnly bool
}

// RouteMetadata is the route summary scraped from a trail site.
type RouteMetadata struct {
	extract.Route
	Source string `json:"source"`
	URL    string `json:"url"`
}

// LinkMetadata scrapes a page preview with escalating request profiles.
// Gaps left after the pipeline are filled from the URL itself; a result
// derived only from the URL is returned but not cached.
func (b *Broker) LinkMetadata(ctx context.Context, callerID string, in URLInput) (LinkMetadata, core.Provenance, error) {
	if prov, err := requireCaller(core.OpLinkMetadata, callerID); err != nil {
		return LinkMetadata{}, prov, err
	}
	target, err := web.ParseTarget(in.URL)
	if err != nil {
		return LinkMetadata{}, core.Provenance{Operation: core.OpLinkMetadata}, err
	}
	set := b.Catalog.LinkMetadata
	profiles := set.Profiles
	if b.Pages == nil {
		profiles = nil
	}

	return engine.Execute(ctx, b.Orchestrator, engine.Operation[LinkMetadata]{
		Name:     core.OpLinkMetadata,
		CallerID: callerID,
		Key:      target.String(),
		Run: func(ctx context.Context) (LinkMetadata, fallback.Report, error) {
			pipeline := newPipeline[*web.Response, extract.Link](b, core.OpLinkMetadata, profiles)
			pipeline.Fetch = func(ctx context.Context, p fallback.Profile) (*web.Response, error) {
				return b.Pages.Fetch(ctx, target, p)
			}
			pipeline.Classify = set.Classify
			pipeline.Parse = func(_ fallback.Profile, raw *web.Response) (extract.Link, error) {
				return extract.ParseLink(extract.Parse(raw.Body), pageURL(raw, target)), nil
			}
			pipeline.Salvage = func(_ fallback.Profile, raw *web.Response) (extract.Link, bool) {
				return extract.SalvageLink(raw.Body, pageURL(raw, target))
			}
			pipeline.Complete = extract.Link.Complete

			link, report, err := pipeline.Run(ctx, extract.Link{})
			if refused := refusedTarget(report); refused != nil {
				return LinkMetadata{}, report, refused
			}
			if err != nil && !core.IsKind(err, core.KindUpstreamExhausted) {
				return LinkMetadata{}, report, err
			}
			if err != nil {
				b.logger().Info("Link scrape exhausted, using URL fallback",
					zap.String("host", target.Host), zap.Error(err))
			}

			urlOnly := !link.HasSignal()
			link = link.Merge(extract.URLHints(target)).Merge(extract.URLFallback(target))
			return LinkMetadata{Link: link, URL: target.String(), urlOnly: urlOnly}, report, nil
		},
		Cacheable: func(m LinkMetadata) bool {
			return !m.urlOnly
		},
	})
}

// RouteMetadata extracts distance, climb and duration from a Komoot or
// AllTrails page.
func (b *Broker) RouteMetadata(ctx context.Context, callerID string, in URLInput) (RouteMetadata, core.Provenance, error) {
	prov, err := requireCaller(core.OpRouteMetadata, callerID)
	if err != nil {
		return RouteMetadata{}, prov, err
	}
	target, err := web.ParseTarget(in.URL)
	if err != nil {
		return RouteMetadata{}, prov, err
	}
	source, ok := extract.RouteSource(target)
	if !ok {
		return RouteMetadata{}, prov, core.InvalidInput("only komoot and alltrails urls are supported")
	}
	set := b.Catalog.RouteMetadata
	profiles := set.Profiles
	if b.Pages == nil {
		profiles = nil
	}

	return engine.Execute(ctx, b.Orchestrator, engine.Operation[RouteMetadata]{
		Name:     core.OpRouteMetadata,
		CallerID: callerID,
		Key:      target.String(),
		Run: func(ctx context.Context) (RouteMetadata, fallback.Report, error) {
			pipeline := newPipeline[*web.Response, extract.Route](b, core.OpRouteMetadata, profiles)
			pipeline.Fetch = func(ctx context.Context, p fallback.Profile) (*web.Response, error) {
				return b.Pages.Fetch(ctx, target, p)
			}
			pipeline.Classify = set.Classify
			pipeline.Parse = func(_ fallback.Profile, raw *web.Response) (extract.Route, error) {
				return extract.ParseRoute(extract.Parse(raw.Body), source), nil
			}
			pipeline.Complete = extract.Route.Complete

			route, report, err := pipeline.Run(ctx, extract.Route{})
			if refused := refusedTarget(report); refused != nil {
				return RouteMetadata{}, report, refused
			}
			if err != nil {
				return RouteMetadata{}, report, err
			}
			return RouteMetadata{Route: route, Source: source, URL: target.String()}, report, nil
		},
	})
}

// refusedTarget returns invalid_input when any attempt, redirects included,
// was steered to a non-public address.
func refusedTarget(report fallback.Report) error {
	for _, a := range report.Attempts {
		if errors.Is(a.Err, web.ErrPrivateAddress) {
			return core.InvalidInput("url must resolve to a public address")
		}
	}
	return nil
}

func pageURL(resp *web.Response, fallbackURL *url.URL) *url.URL {
	if resp != nil && resp.URL != nil {
		return resp.URL
	}
	return fallbackURL
}
