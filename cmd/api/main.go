// Package main provides the entrypoint for the Retrace API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/retrace/retrace/internal/api"
	"github.com/retrace/retrace/internal/api/middleware"
	"github.com/retrace/retrace/internal/auth"
	"github.com/retrace/retrace/internal/database"
	"github.com/retrace/retrace/internal/nav"
	"github.com/retrace/retrace/internal/render"
	"github.com/retrace/retrace/internal/route"
	"github.com/retrace/retrace/internal/sensor"
	"github.com/retrace/retrace/internal/snapshot"
	"github.com/retrace/retrace/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "retrace-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Retrace API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	storeMetrics, err := middleware.NewStoreMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize blob store metrics")
		os.Exit(1)
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Initialize JWT service (get signing key from environment)
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	authService := auth.NewService(auth.ServiceConfig{
		JWTService: auth.NewJWTService(auth.JWTConfig{
			SigningKey: jwtSigningKey,
			Issuer:     "https://api.retrace.dev",
			Audience:   serviceName,
		}),
		DeviceRepo: auth.NewPostgresDeviceRepository(pool),
	})
	log.Info().Msg("auth service initialized")

	// Initialize snapshot blob store
	var blobs snapshot.Store
	if storeURL := os.Getenv("SNAPSHOT_STORE_URL"); storeURL != "" {
		blobs = snapshot.NewHTTPStore(snapshot.HTTPStoreConfig{
			BaseURL:  storeURL,
			Logger:   log,
			Observer: storeMetrics,
		})
		log.Info().Str("base_url", storeURL).Msg("snapshot store: http")
	} else {
		blobs = snapshot.NewMemoryStore()
		log.Warn().Msg("snapshot store: in-memory - blobs will not survive restarts")
	}

	// Initialize route service
	routeService := route.NewService(route.ServiceConfig{
		Repository: route.NewPostgresRepository(pool),
		Snapshots:  blobs,
		Logger:     log,
	})
	log.Info().Msg("route service initialized")

	// Initialize sensor layer. The simulator doubles as the HTTP pose
	// bridge: device poses streamed to /v1/sensor/pose land in it.
	sensors := sensor.NewSim()

	engine := nav.New(nav.Config{
		Sensors:  sensors,
		Renderer: render.Nop{},
		Routes:   routeService,
		Logger:   log,
	})
	log.Info().Msg("navigation engine initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		ServiceName:  serviceName,
		Metrics:      metrics,
		AuthService:  authService,
		RouteService: routeService,
		Engine:       engine,
		PoseSink:     sensors,
		ReadinessChecks: map[string]func(context.Context) error{
			"database": pool.Ping,
		},
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
