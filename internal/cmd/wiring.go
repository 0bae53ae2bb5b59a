package cmd

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/waypointhq/waypoint/internal/ailink"
	"github.com/waypointhq/waypoint/internal/ailink/driver/openrouter"
	"github.com/waypointhq/waypoint/internal/ailink/prompt"
	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/broker"
	"github.com/waypointhq/waypoint/internal/core/engine"
	"github.com/waypointhq/waypoint/internal/metrics"
	"github.com/waypointhq/waypoint/internal/upstream"
	"github.com/waypointhq/waypoint/internal/upstream/blob"
	"github.com/waypointhq/waypoint/internal/upstream/google"
	"github.com/waypointhq/waypoint/internal/upstream/mapbox"
	"github.com/waypointhq/waypoint/internal/upstream/overpass"
	"github.com/waypointhq/waypoint/internal/upstream/web"
)

// buildBroker wires every collaborator from cfg on top of st. Providers
// without credentials are left out, so their operations report
// upstream_exhausted instead of failing at startup.
func buildBroker(ctx context.Context, cfg *config.Config, st stateStore, logger core.Logger) (*broker.Broker, error) {
	logger = core.LoggerOrNop(logger)

	limiter := &engine.RateLimiter{Store: st, Logger: logger}
	limiter.ApplyOverrides(cfg.RateLimitOverrides())
	limiter.ApplySafetyMargin(cfg.RateLimitMargin)

	b := &broker.Broker{
		Orchestrator: &engine.Orchestrator{
			Cache:    st,
			Limiter:  limiter,
			Policies: cfg.CachePolicies(),
			Logger:   logger,
			Hooks:    metrics.Hooks(),
		},
		DefaultMode: cfg.Upstream.Directions.DefaultMode,
		Timeout:     cfg.AttemptTimeout(0),
		OperationTimeouts: map[string]time.Duration{
			// Overpass answers within its server-side timeout; allow for transfer.
			core.OpPOIs:          cfg.AttemptTimeout(cfg.Upstream.Overpass.Timeout) + 5*time.Second,
			core.OpLinkMetadata:  cfg.AttemptTimeout(cfg.Upstream.Web.Timeout),
			core.OpRouteMetadata: cfg.AttemptTimeout(cfg.Upstream.Web.Timeout),
			core.OpTravelContext: cfg.AttemptTimeout(cfg.Upstream.OpenRouter.Timeout),
		},
		Logger: logger,
	}

	googleClient := google.New(cfg.Upstream.Google, cfg.AttemptTimeout(0))
	mapboxClient := mapbox.New(cfg.Upstream.Mapbox, cfg.AttemptTimeout(0))
	if googleClient.Configured() {
		b.Places = googleClient
	}

	for _, name := range cfg.Upstream.Directions.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case googleClient.Name():
			if googleClient.Configured() {
				b.Routers = append(b.Routers, googleClient)
			}
		case mapboxClient.Name():
			if mapboxClient.Configured() {
				b.Routers = append(b.Routers, mapboxClient)
			}
		default:
			logger.Warn("Ignoring unknown directions provider", zap.String("provider", name))
		}
	}
	for _, name := range cfg.Upstream.Geocode.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case googleClient.Name():
			if googleClient.Configured() {
				b.Geocoders = append(b.Geocoders, googleClient)
			}
		case mapboxClient.Name():
			if mapboxClient.Configured() {
				b.Geocoders = append(b.Geocoders, mapboxClient)
			}
		default:
			logger.Warn("Ignoring unknown geocode provider", zap.String("provider", name))
		}
	}
	if googleClient.Configured() {
		b.MatrixProviders = append(b.MatrixProviders, googleClient)
	}
	if mapboxClient.Configured() {
		b.Matchers = append(b.Matchers, mapboxClient)
		b.Terrain = mapboxClient
		b.TerrainSources = cfg.Upstream.Mapbox.TerrainSources
	}

	if len(cfg.Upstream.Overpass.Endpoints) > 0 {
		b.Overpass = overpass.New(cfg.Upstream.Overpass)
		b.OverpassEndpoints = cfg.Upstream.Overpass.Endpoints
	}

	catalog, err := web.LoadCatalog(cfg.Upstream.Web.ProfilesFile)
	if err != nil {
		return nil, err
	}
	b.Catalog = catalog
	b.Pages = web.NewClient(cfg.Upstream.Web, logger)

	if strings.TrimSpace(cfg.Blob.Bucket) != "" {
		bucket, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			return nil, err
		}
		b.Blobs = bucket
	}

	if strings.TrimSpace(cfg.Upstream.OpenRouter.APIKey) != "" {
		prompts, err := prompt.BuildRegistry(cfg.Upstream.OpenRouter.PromptsDir)
		if err != nil {
			return nil, err
		}
		b.Travel = &ailink.Service{
			Driver:      openrouter.NewClient(cfg.Upstream.OpenRouter, upstream.HTTPClient(nil, cfg.AttemptTimeout(cfg.Upstream.OpenRouter.Timeout))),
			Prompts:     prompts,
			Temperature: cfg.Upstream.OpenRouter.Temperature,
			MaxTokens:   cfg.Upstream.OpenRouter.MaxTokens,
			Logger:      logger,
		}
		b.TravelModels = cfg.Upstream.OpenRouter.Models
	}

	logger.Info("Broker configured",
		zap.Int("routers", len(b.Routers)),
		zap.Int("matrix_providers", len(b.MatrixProviders)),
		zap.Int("matchers", len(b.Matchers)),
		zap.Int("geocoders", len(b.Geocoders)),
		zap.Bool("places", b.Places != nil),
		zap.Bool("terrain", b.Terrain != nil),
		zap.Int("overpass_endpoints", len(b.OverpassEndpoints)),
		zap.Bool("blob", b.Blobs != nil),
		zap.Int("travel_models", len(b.TravelModels)))

	return b, nil
}
