// Package api provides the HTTP API for Retrace.
package api

import (
	"context"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/retrace/retrace/internal/api/handler"
	"github.com/retrace/retrace/internal/api/middleware"
	"github.com/retrace/retrace/internal/auth"
	"github.com/retrace/retrace/internal/nav"
	"github.com/retrace/retrace/internal/route"
	"github.com/retrace/retrace/internal/sensor"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version      string
	BuildTime    string
	Logger       zerolog.Logger
	ServiceName  string
	Metrics      *middleware.Metrics
	AuthService  *auth.Service
	RouteService *route.Service
	Engine       *nav.Engine

	// PoseSink receives streamed pose samples from the sensor endpoints so
	// the sensor layer stays current. Optional.
	PoseSink sensor.PoseSink

	// ReadinessChecks maps subsystem names to readiness probes.
	ReadinessChecks map[string]func(context.Context) error
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "retrace-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type
	r.Use(middleware.RequireJSON)          // Reject non-JSON request bodies

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.ReadinessChecks)
	authHandler := handler.NewAuthHandler(cfg.AuthService)
	sessionHandler := handler.NewSessionHandler(cfg.Engine, cfg.PoseSink)
	routesHandler := handler.NewRoutesHandler(cfg.RouteService)

	authMiddleware := middleware.Auth(cfg.AuthService)

	// Rate limit tiers per endpoint category
	authRateLimit := middleware.RateLimitByIP(middleware.AuthRateLimit)
	commandRateLimit := middleware.RateLimitByDevice(middleware.CommandRateLimit)
	sensorRateLimit := middleware.RateLimitByDevice(middleware.SensorRateLimit)
	standardRateLimit := middleware.RateLimitByDevice(middleware.StandardRateLimit)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Device registration (public) - strict rate limiting
		r.Route("/auth", func(r chi.Router) {
			r.Use(authRateLimit)
			r.Post("/device", authHandler.RegisterDevice)
		})

		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Session commands (authenticated) - button-press cadence
		r.Route("/session", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(commandRateLimit)
			r.Get("/phase", sessionHandler.GetPhase)
			r.Post("/recording:start", sessionHandler.StartRecording)
			r.Post("/recording:turn", sessionHandler.MarkTurn)
			r.Post("/recording:event", sessionHandler.AddEvent)
			r.Post("/recording:save", sessionHandler.SaveRoute)
			r.Post("/recording:cancel", sessionHandler.CancelRecording)
			r.Post("/replay:start", sessionHandler.StartReplay)
			r.Post("/replay:stop", sessionHandler.StopReplay)
		})

		// Sensor ingest (authenticated) - frame-rate cadence
		r.Route("/sensor", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(sensorRateLimit)
			r.Post("/pose", sessionHandler.PoseTick)
			r.Post("/quality", sessionHandler.TrackingQuality)
		})

		// Saved routes (authenticated)
		r.Route("/routes", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(standardRateLimit)
			r.Get("/", routesHandler.List)
			r.Route("/{routeId}", func(r chi.Router) {
				r.Get("/", routesHandler.Get)
				r.Delete("/", routesHandler.Delete)
				r.Get("/waypoints", routesHandler.Waypoints)
			})
		})
	})

	return r
}
