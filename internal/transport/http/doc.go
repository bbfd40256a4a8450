// Package http serves the ops endpoints of a long-running watch: health
// probes, Prometheus metrics and the recorded ingest runs.
//
// Handlers stay thin. They parse the request, call a service and render
// JSON with go-chi/render; failures are rendered as RFC 7807 problems by
// errors.ErrorHandler.
//
//	GET /healthz        liveness
//	GET /readyz         readiness, 503 when not ready
//	GET /version        build information
//	GET /metrics        Prometheus exposition
//	GET /runs           recorded runs, newest first (?trigger=&since=&limit=)
//	GET /runs/{id}      one run with its outcomes and issues
package http
