package infrastructure

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestOTelInitialization(t *testing.T) {
	providers, err := InitializeOTel(nil, quietLogger())
	require.NoError(t, err)

	// tracing is off by default
	assert.Nil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer)

	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Registry)
	assert.NotNil(t, providers.PrometheusHTTP)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestOTelConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*OTelConfig)
		wantErr string
	}{
		{"stdout traces", func(c *OTelConfig) { c.TraceExporter = "stdout" }, ""},
		{"metrics off", func(c *OTelConfig) { c.MetricExporter = "none" }, ""},
		{"bad trace exporter", func(c *OTelConfig) { c.TraceExporter = "jaeger" }, "unsupported trace exporter"},
		{"bad metric exporter", func(c *OTelConfig) { c.MetricExporter = "statsd" }, "unsupported metric exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultOTelConfig()
			tt.mutate(cfg)
			providers, err := InitializeOTel(cfg, quietLogger())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, providers.Shutdown(context.Background()))
		})
	}
}

func TestNoopProviders(t *testing.T) {
	p := NoopProviders()
	m, err := CreateDataMetrics(p.Meter)
	require.NoError(t, err)
	m.SourcesTotal.Add(context.Background(), 1)
	assert.Nil(t, p.PrometheusHTTP)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestDataMetricsExported(t *testing.T) {
	providers, err := InitializeOTel(DefaultOTelConfig(), quietLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	m, err := CreateDataMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	m.SourcesTotal.Add(ctx, 3, metric.WithAttributes(
		attribute.String("status", "loaded"), attribute.String("format", "CSV")))
	m.ValidationIssues.Add(ctx, 1, metric.WithAttributes(
		attribute.String("severity", "ERROR"), attribute.String("category", "CONSISTENCY")))
	m.ReadDuration.Record(ctx, 0.25)

	body := scrape(t, providers.PrometheusHTTP)
	assert.Contains(t, body, `marketcore_sources_total{`)
	assert.Contains(t, body, `status="loaded"`)
	assert.Contains(t, body, `marketcore_validation_issues_total{`)
	assert.Contains(t, body, `marketcore_read_duration_seconds_bucket`)
}

func TestRuntimeMetrics(t *testing.T) {
	providers, err := InitializeOTel(DefaultOTelConfig(), quietLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	reg, err := RegisterRuntimeMetrics(providers.Meter, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	defer reg.Unregister()

	body := scrape(t, providers.PrometheusHTTP)
	assert.Contains(t, body, "marketcore_goroutines")
	assert.Contains(t, body, "marketcore_heap_alloc_bytes")
	assert.Contains(t, body, "marketcore_uptime_seconds")

	stats := ReadRuntimeStats(time.Now().Add(-time.Second))
	assert.Positive(t, stats.Goroutines)
	assert.GreaterOrEqual(t, stats.Uptime, time.Second)
	assert.Contains(t, stats.Map(), "goroutines")
}

func TestTraceCorrelation(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "ingest")
	traceID := TraceIDFromContext(ctx)
	assert.Equal(t, span.SpanContext().TraceID().String(), traceID)

	// an active span wins over a stored trace ID
	assert.Equal(t, traceID, GetTraceID(WithTraceID(ctx, "run-1")))

	RecordError(ctx, errors.New("reader failed"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "reader failed", spans[0].Status.Description)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "exception", spans[0].Events[0].Name)

	// no span, no trace ID, no panic
	assert.Empty(t, TraceIDFromContext(context.Background()))
	RecordError(context.Background(), errors.New("ignored"))
}
