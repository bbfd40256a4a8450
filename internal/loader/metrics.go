package loader

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"marketcore/internal/infrastructure"
	"marketcore/pkg/contracts/domain"
)

type metrics struct {
	m *infrastructure.DataMetrics
}

func newMetrics(p *infrastructure.OTelProviders) (*metrics, error) {
	m, err := infrastructure.CreateDataMetrics(p.Meter)
	if err != nil {
		return nil, err
	}
	return &metrics{m: m}, nil
}

func (m *metrics) recordOutcome(ctx context.Context, o domain.LoadOutcome) {
	m.m.SourcesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(o.Status)),
		attribute.String("format", string(o.Format)),
	))
}

func (m *metrics) recordAttempt(ctx context.Context, a domain.ReadAttempt) {
	result := "ok"
	switch {
	case a.TimedOut:
		result = "timeout"
	case a.Err != nil:
		result = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("format", string(a.Format)),
		attribute.String("result", result),
	)
	m.m.ReadAttempts.Add(ctx, 1, attrs)
	m.m.ReadDuration.Record(ctx, a.Duration.Seconds(), attrs)
}

func (m *metrics) recordCache(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *metrics) recordBatch(ctx context.Context, d time.Duration) {
	m.m.BatchDuration.Record(ctx, d.Seconds())
}

func (m *metrics) activeLoads(ctx context.Context, delta int64) {
	m.m.ActiveLoads.Add(ctx, delta)
}
