package http

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	apierrors "marketcore/internal/errors"
	"marketcore/internal/infrastructure"
	"marketcore/internal/middleware"
)

// RouterDeps are the services behind the ops endpoints
type RouterDeps struct {
	Health    HealthService
	Runs      RunService
	Telemetry *infrastructure.OTelProviders
	Logger    *slog.Logger
	// IncludeStack adds stack traces to 500 responses.
	IncludeStack bool
}

// NewRouter builds the ops router.
// Middleware order: RequestID, RealIP, OTel, request logging and recovery.
func NewRouter(deps RouterDeps) (*chi.Mux, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errorHandler := apierrors.NewErrorHandler(logger, deps.IncludeStack)

	otelMiddleware, err := middleware.NewOTelMiddleware(deps.Telemetry)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(otelMiddleware.Handler)
	r.Use(apierrors.NewErrorMiddleware(errorHandler, logger).Handler)
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	health := NewHealthHandler(deps.Health, logger)
	r.Get("/healthz", health.LivenessCheck)
	r.Get("/readyz", health.ReadinessCheck)
	r.Get("/version", health.Version)
	r.Method("GET", "/metrics", NewMetricsHandler(deps.Telemetry))

	if deps.Runs != nil {
		r.Mount("/runs", NewRunsHandler(deps.Runs, logger, errorHandler).Routes())
	}
	return r, nil
}
