package server

import (
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/waypointhq/waypoint/internal/observability"
	"github.com/waypointhq/waypoint/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	hm := s.opts.Health
	s.router.Get("/health", hm.HealthHandler)
	s.router.Get("/health/live", hm.ProbeHandler(handlers.ProbeLive, 2*time.Second))
	s.router.Get("/health/ready", hm.ProbeHandler(handlers.ProbeReady, 5*time.Second))
	s.router.Get("/health/startup", hm.ProbeHandler(handlers.ProbeStartup, 3*time.Second))

	s.router.Get("/version", handlers.VersionHandler(s.opts.Broker))
	s.router.Get("/metrics", MetricsHandler)

	if s.opts.Broker != nil {
		ops := &handlers.Operations{Broker: s.opts.Broker, MaxBodyBytes: s.opts.MaxBodyBytes}
		s.router.Route("/v1", func(r chi.Router) {
			r.Post("/directions", ops.Directions)
			r.Post("/directions/matrix", ops.DistanceMatrix)
			r.Post("/directions/match", ops.RouteMatch)
			r.Post("/places/search", ops.PlacesSearch)
			r.Post("/places/details", ops.PlacesDetails)
			r.Post("/places/geocode", ops.PlacesGeocode)
			r.Post("/places/photo", ops.PlacesPhoto)
			r.Post("/elevation", ops.Elevation)
			r.Post("/pois", ops.POIs)
			r.Post("/metadata/link", ops.LinkMetadata)
			r.Post("/metadata/route", ops.RouteMetadata)
			r.Post("/travel/context", ops.TravelContext)
		})
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint exposes the gofulmen signal endpoint when an admin
// token is configured.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no WAYPOINT_ADMIN_TOKEN set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
