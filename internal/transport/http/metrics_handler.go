package http

import (
	"net/http"

	"marketcore/internal/infrastructure"
)

// MetricsHandler exposes the Prometheus registry of the telemetry providers
type MetricsHandler struct {
	exposition http.Handler
}

// NewMetricsHandler creates a metrics handler. Without a Prometheus
// exporter it answers 404.
func NewMetricsHandler(providers *infrastructure.OTelProviders) *MetricsHandler {
	h := &MetricsHandler{}
	if providers != nil {
		h.exposition = providers.PrometheusHTTP
	}
	return h
}

// ServeHTTP handles GET /metrics
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.exposition == nil {
		http.NotFound(w, r)
		return
	}
	h.exposition.ServeHTTP(w, r)
}
