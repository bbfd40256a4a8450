package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"marketcore/internal/infrastructure"
	"marketcore/internal/loader"
	"marketcore/internal/store"
	"marketcore/internal/validation"
	"marketcore/pkg/contracts/domain"
)

// Ingest triggers recorded in the run history
const (
	TriggerManual = "manual"
	TriggerWatch  = "watch"
)

// DataService loads sources, validates the aggregate table and records
// each run in the history store.
type DataService struct {
	loader    *loader.Service
	validator *validation.Validator
	history   store.HistoryStore
	metrics   *infrastructure.DataMetrics
	tracer    trace.Tracer
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
}

// Option configures a DataService
type Option func(*DataService)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(ds *DataService) {
		if logger != nil {
			ds.logger = logger
		}
	}
}

// WithTelemetry records ingest metrics and spans
func WithTelemetry(p *infrastructure.OTelProviders) Option {
	return func(ds *DataService) {
		if p == nil {
			return
		}
		ds.tracer = p.Tracer
		if m, err := infrastructure.CreateDataMetrics(p.Meter); err == nil {
			ds.metrics = m
		}
	}
}

// NewDataService wires a loader, a validator and a history store. history
// may be nil, in which case runs are not recorded.
func NewDataService(l *loader.Service, v *validation.Validator, history store.HistoryStore, options ...Option) (*DataService, error) {
	if l == nil || v == nil {
		return nil, fmt.Errorf("data service requires a loader and a validator")
	}
	noop := infrastructure.NoopProviders()
	ds := &DataService{
		loader:    l,
		validator: v,
		history:   history,
		tracer:    noop.Tracer,
		logger:    slog.Default(),
		newID:     func() string { return uuid.New().String() },
		now:       time.Now,
	}
	for _, o := range options {
		o(ds)
	}
	if ds.metrics == nil {
		m, err := infrastructure.CreateDataMetrics(noop.Meter)
		if err != nil {
			return nil, err
		}
		ds.metrics = m
	}
	ds.logger = infrastructure.WithComponent(ds.logger, "data_service")
	return ds, nil
}

// History returns the run store, which may be nil
func (ds *DataService) History() store.HistoryStore { return ds.history }

// IngestResult is everything one ingest produced
type IngestResult struct {
	RunID  string
	Batch  domain.BatchResult
	Report *domain.ValidationReport
	Run    store.Run
}

// Valid reports whether something was loaded and the aggregate validated
// without errors.
func (r *IngestResult) Valid() bool {
	return r != nil && r.Report != nil && r.Report.IsValid() && !r.Batch.Empty()
}

// IngestPaths loads the given files and validates their aggregate.
func (ds *DataService) IngestPaths(ctx context.Context, paths []string) (*IngestResult, error) {
	hint := ds.loader.Options().FormatHint
	sources := make([]domain.SourceDescriptor, len(paths))
	for i, p := range paths {
		sources[i] = domain.SourceDescriptor{Path: p, FormatHint: hint}
	}
	return ds.ingest(ctx, TriggerManual, strings.Join(paths, ","), func(ctx context.Context) (domain.BatchResult, error) {
		return ds.loader.LoadMany(ctx, sources), nil
	})
}

// IngestDirectory loads every source under root and validates the
// aggregate. Only an unusable root is an error.
func (ds *DataService) IngestDirectory(ctx context.Context, root string, recursive bool) (*IngestResult, error) {
	return ds.ingestDirectory(ctx, TriggerManual, root, recursive)
}

func (ds *DataService) ingestDirectory(ctx context.Context, trigger, root string, recursive bool) (*IngestResult, error) {
	return ds.ingest(ctx, trigger, root, func(ctx context.Context) (domain.BatchResult, error) {
		return ds.loader.LoadDirectory(ctx, root, recursive)
	})
}

// ingest runs load, validation and history recording. Per-source problems
// stay in the result; the returned error is a configuration problem or
// cancellation.
func (ds *DataService) ingest(ctx context.Context, trigger, target string, load func(context.Context) (domain.BatchResult, error)) (*IngestResult, error) {
	runID := ds.newID()
	ctx = infrastructure.WithTraceID(ctx, runID)
	ctx, span := ds.tracer.Start(ctx, "services.ingest", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.trigger", trigger),
	))
	defer span.End()

	started := ds.now()
	batch, err := load(ctx)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		ds.logger.ErrorContext(ctx, "Ingest failed",
			slog.String("target", target),
			slog.String("error", err.Error()))
		ds.count(ctx, trigger, "error")
		return nil, err
	}

	result := &IngestResult{RunID: runID, Batch: batch}
	var validateErr error
	if !batch.Empty() {
		result.Report, validateErr = ds.validator.ValidateDefault(ctx, batch.Aggregate)
	}
	if validateErr == nil && batch.Cancelled {
		validateErr = ctx.Err()
	}

	result.Run = store.NewRun(runID, trigger, target, started, ds.now(), batch, result.Report)
	ds.record(ctx, result.Run)

	outcome := resultLabel(result, validateErr)
	ds.count(ctx, trigger, outcome)
	span.SetAttributes(attribute.String("run.result", outcome))

	ds.logger.InfoContext(ctx, "Ingest complete",
		slog.String("run_id", runID),
		slog.String("trigger", trigger),
		slog.String("target", target),
		slog.String("result", outcome),
		slog.Int("rows", result.Run.Rows),
		slog.Int("errors", result.Run.Errors),
		slog.Int("warnings", result.Run.Warnings),
		slog.Duration("duration", result.Run.Duration()))
	return result, validateErr
}

func (ds *DataService) record(ctx context.Context, run store.Run) {
	if ds.history == nil {
		return
	}
	// a cancelled ingest is still recorded
	if err := ds.history.Record(context.WithoutCancel(ctx), run); err != nil {
		ds.logger.WarnContext(ctx, "Failed to record run",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()))
	}
}

func (ds *DataService) count(ctx context.Context, trigger, result string) {
	ds.metrics.IngestRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("result", result),
	))
}

func resultLabel(r *IngestResult, err error) string {
	switch {
	case err != nil || r.Batch.Cancelled:
		return "cancelled"
	case r.Batch.Empty():
		return "empty"
	case r.Valid():
		return "valid"
	default:
		return "invalid"
	}
}

// Runs lists recorded runs, newest first
func (ds *DataService) Runs(ctx context.Context, filter store.Filter) ([]store.Run, error) {
	if ds.history == nil {
		return nil, ErrHistoryDisabled
	}
	return ds.history.List(ctx, filter)
}

// Run returns one recorded run
func (ds *DataService) Run(ctx context.Context, id string) (store.Run, error) {
	if ds.history == nil {
		return store.Run{}, ErrHistoryDisabled
	}
	return ds.history.Get(ctx, id)
}
