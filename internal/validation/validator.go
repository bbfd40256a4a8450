package validation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"marketcore/internal/config"
	"marketcore/internal/infrastructure"
	"marketcore/pkg/contracts/domain"
)

// Validator runs the schema and consistency validators enabled by its
// mode and merges their issues into a ValidationReport.
type Validator struct {
	opts    config.ValidationOptions
	mode    domain.ValidationMode
	metrics *infrastructure.DataMetrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// Option configures a Validator
type Option func(*Validator)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithTelemetry records validation metrics and spans
func WithTelemetry(p *infrastructure.OTelProviders) Option {
	return func(v *Validator) {
		if p == nil {
			return
		}
		v.tracer = p.Tracer
		if m, err := infrastructure.CreateDataMetrics(p.Meter); err == nil {
			v.metrics = m
		}
	}
}

// NewValidator creates a validator. Invalid options are a ConfigError.
func NewValidator(opts config.ValidationOptions, options ...Option) (*Validator, error) {
	if err := config.ValidateValidation(opts); err != nil {
		return nil, err
	}
	noop := infrastructure.NoopProviders()
	v := &Validator{
		opts:   opts,
		mode:   opts.ValidationMode(),
		tracer: noop.Tracer,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(v)
	}
	v.logger = v.logger.With(slog.String("component", "validator"))
	if v.metrics == nil {
		v.metrics, _ = infrastructure.CreateDataMetrics(noop.Meter)
	}
	return v, nil
}

// Mode returns the configured validation mode
func (v *Validator) Mode() domain.ValidationMode { return v.mode }

// Schema returns the schema declared by the options
func (v *Validator) Schema() domain.Schema { return v.opts.Schema() }

// ValidateDefault validates t against the schema declared by the options.
func (v *Validator) ValidateDefault(ctx context.Context, t *domain.NormalizedTable) (*domain.ValidationReport, error) {
	return v.Validate(ctx, t, v.opts.Schema())
}

// Validate runs the enabled validators concurrently over the shared table.
// When ctx ends first, the returned report holds the categories that
// completed and the error is ctx.Err().
func (v *Validator) Validate(ctx context.Context, t *domain.NormalizedTable, schema domain.Schema) (*domain.ValidationReport, error) {
	if t == nil {
		t = domain.EmptyTable()
	}
	start := time.Now()
	ctx, span := v.tracer.Start(ctx, "validation.validate", trace.WithAttributes(
		attribute.String("validation.mode", string(v.mode)),
		attribute.Int("table.rows", t.NumRows()),
		attribute.Int("table.columns", t.NumColumns()),
	))
	defer span.End()

	var (
		schemaIssues      []domain.ValidationIssue
		consistencyIssues []domain.ValidationIssue
		schemaDone        bool
		consistencyDone   bool
		consistencyErr    error
	)

	if err := ctx.Err(); err != nil {
		return NewReport(v.mode, nil, nil, nil), err
	}

	g := new(errgroup.Group)
	if v.mode.RunsSchema() {
		g.Go(func() error {
			schemaIssues = ValidateSchema(t, schema)
			schemaDone = true
			return nil
		})
	}
	if v.mode.RunsConsistency() {
		g.Go(func() error {
			consistencyIssues, consistencyErr = ValidateConsistency(ctx, t,
				ConsistencyOptions{SampleIssueLimit: v.opts.SampleIssueLimit})
			consistencyDone = consistencyErr == nil
			return nil
		})
	}
	_ = g.Wait()

	var executed []domain.Category
	if schemaDone {
		executed = append(executed, domain.CategorySchema, domain.CategoryType)
	}
	if consistencyDone {
		executed = append(executed, domain.CategoryConsistency)
	}
	report := NewReport(v.mode, executed, schemaIssues, consistencyIssues)

	v.record(ctx, report, time.Since(start))
	span.SetAttributes(
		attribute.Bool("validation.valid", report.IsValid()),
		attribute.Int("validation.issues", len(report.Issues())),
	)
	if consistencyErr != nil {
		infrastructure.RecordError(ctx, consistencyErr)
		v.logger.WarnContext(ctx, "Validation interrupted",
			slog.String("error", consistencyErr.Error()),
			slog.Int("partial_issues", len(report.Issues())))
		return report, consistencyErr
	}

	v.logger.DebugContext(ctx, "Validation complete",
		slog.String("mode", string(v.mode)),
		slog.Bool("valid", report.IsValid()),
		slog.Int("errors", len(report.Errors())),
		slog.Int("warnings", len(report.Warnings())),
		slog.Duration("duration", time.Since(start)))
	return report, nil
}

func (v *Validator) record(ctx context.Context, r *domain.ValidationReport, d time.Duration) {
	v.metrics.ValidationRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", string(v.mode)),
		attribute.Bool("valid", r.IsValid()),
	))
	v.metrics.ValidationDuration.Record(ctx, d.Seconds())
	for _, is := range r.Issues() {
		n := int64(is.Count)
		if n < 1 {
			n = 1
		}
		v.metrics.ValidationIssues.Add(ctx, n, metric.WithAttributes(
			attribute.String("severity", string(is.Severity)),
			attribute.String("category", string(is.Category)),
		))
	}
}
