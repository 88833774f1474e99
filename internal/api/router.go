// Package api provides the HTTP API for tempcast.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tempcast/tempcast/internal/api/handler"
	"github.com/tempcast/tempcast/internal/api/middleware"
	"github.com/tempcast/tempcast/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Forecasts    handler.Forecasts
	Weather      handler.WeatherSource
	Dependencies map[string]handler.Pinger
	Providers    *resilience.Registry

	// Now is the clock for date checks on the weather endpoint. Defaults to time.Now.
	Now func() time.Time

	// Rate limits; zero values use the package defaults.
	SubmitLimit   middleware.RateLimitConfig
	StandardLimit middleware.RateLimitConfig
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "tempcast-api"
	}
	if cfg.SubmitLimit.RequestLimit == 0 {
		cfg.SubmitLimit = middleware.SubmitRateLimit
	}
	if cfg.StandardLimit.RequestLimit == 0 {
		cfg.StandardLimit = middleware.StandardRateLimit
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
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:      cfg.Version,
		BuildTime:    cfg.BuildTime,
		Dependencies: cfg.Dependencies,
		Providers:    cfg.Providers,
	})
	forecastHandler := handler.NewForecastHandler(cfg.Forecasts, cfg.Logger)
	weatherHandler := handler.NewWeatherHandler(cfg.Weather, cfg.Now, cfg.Logger)

	submitRateLimit := middleware.RateLimitByIP(cfg.SubmitLimit)
	standardRateLimit := middleware.RateLimitByIP(cfg.StandardLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/forecasts", func(r chi.Router) {
			r.With(submitRateLimit, middleware.RequireJSON).Post("/", forecastHandler.SubmitForecast)
			r.With(standardRateLimit).Get("/{taskId}", forecastHandler.GetForecast)
		})

		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/weather", weatherHandler.GetWeather)
			r.Get("/locations", handler.ListLocations)
		})
	})

	return r
}
