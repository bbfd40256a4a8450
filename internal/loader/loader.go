package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"marketcore/internal/config"
	"marketcore/internal/errors"
	"marketcore/internal/formats"
	"marketcore/internal/infrastructure"
	"marketcore/pkg/contracts/domain"
)

const (
	reasonEmptyFile = "empty file"
	reasonCancelled = "cancelled"
)

// Service loads market data sources into NormalizedTables. It is safe for
// concurrent use.
type Service struct {
	opts     config.LoadOptions
	registry *formats.Registry
	detector *formats.FileDetector
	cache    *TableCache
	limiter  *rate.Limiter
	metrics  *metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTelemetry records metrics and spans through the given providers
func WithTelemetry(p *infrastructure.OTelProviders) Option {
	return func(s *Service) {
		if p == nil {
			return
		}
		s.tracer = p.Tracer
		if m, err := newMetrics(p); err == nil {
			s.metrics = m
		}
	}
}

// WithRegistry replaces the format registry
func WithRegistry(r *formats.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.registry = r
		}
	}
}

// NewService creates a loading service. Invalid options are a ConfigError.
func NewService(opts config.LoadOptions, options ...Option) (*Service, error) {
	if err := config.ValidateLoad(opts); err != nil {
		return nil, err
	}

	noop := infrastructure.NoopProviders()
	s := &Service{
		opts:   opts,
		tracer: noop.Tracer,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "loader"))
	if s.metrics == nil {
		s.metrics, _ = newMetrics(noop)
	}
	if s.registry == nil {
		s.registry = formats.NewRegistry(formats.Options{CSVSampleRows: opts.CSVSampleRows}, s.logger)
	}
	s.detector = formats.NewFileDetector(s.logger)

	if opts.CacheSize > 0 {
		cache, err := NewTableCache(opts.CacheSize)
		if err != nil {
			return nil, errors.NewConfigError("invalid cache size", err)
		}
		s.cache = cache
	}
	if opts.ReadsPerSecond > 0 {
		burst := int(opts.ReadsPerSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.ReadsPerSecond), burst)
	}
	return s, nil
}

// Options returns the options the service was built with
func (s *Service) Options() config.LoadOptions { return s.opts }

// Registry returns the format registry used for reads
func (s *Service) Registry() *formats.Registry { return s.registry }

// LoadOne loads a single source. It never returns an error: every problem
// is expressed in the outcome.
func (s *Service) LoadOne(ctx context.Context, src domain.SourceDescriptor) domain.LoadOutcome {
	if ctx.Err() != nil {
		return domain.Skipped(src, reasonCancelled)
	}

	ctx, span := s.tracer.Start(ctx, "loader.load_one",
		trace.WithAttributes(attribute.String("source.path", src.Path)))
	defer span.End()

	outcome := s.loadOne(ctx, src)

	span.SetAttributes(
		attribute.String("load.status", string(outcome.Status)),
		attribute.String("load.format", string(outcome.Format)),
		attribute.Int("load.attempts", len(outcome.Attempts)),
	)
	if outcome.Status == domain.LoadStatusFailed {
		span.SetStatus(codes.Error, outcome.Reason)
	}
	s.metrics.recordOutcome(ctx, outcome)
	s.logOutcome(ctx, outcome)
	return outcome
}

func (s *Service) loadOne(ctx context.Context, src domain.SourceDescriptor) domain.LoadOutcome {
	eff := src
	if eff.FormatHint == "" {
		eff.FormatHint = s.opts.FormatHint
	}

	info, err := os.Stat(src.Path)
	if err != nil {
		return domain.Failed(src, domain.FormatUnknown, errors.NewSourceError(src.Path, err), nil)
	}
	if info.IsDir() {
		return domain.Failed(src, domain.FormatUnknown,
			errors.NewSourceError(src.Path, fmt.Errorf("is a directory")), nil)
	}
	if info.Size() == 0 {
		return domain.Skipped(src, reasonEmptyFile)
	}

	key := cacheKey(eff, info)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			s.metrics.recordCache(ctx, true)
			cached.Source = src
			return cached
		}
		s.metrics.recordCache(ctx, false)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return domain.Skipped(src, reasonCancelled)
		}
	}

	content, err := os.ReadFile(src.Path)
	if err != nil {
		return domain.Failed(src, domain.FormatUnknown, errors.NewSourceError(src.Path, err), nil)
	}
	if len(content) == 0 {
		return domain.Skipped(src, reasonEmptyFile)
	}

	detected := s.detector.DetectContent(eff, content)
	order := s.registry.AttemptOrder(detected)
	attempts := make([]domain.ReadAttempt, 0, len(order))

	for _, kind := range order {
		if ctx.Err() != nil {
			out := domain.Skipped(src, reasonCancelled)
			out.Detected = detected
			out.Attempts = attempts
			return out
		}
		rd, _ := s.registry.Reader(kind)

		start := time.Now()
		tbl, err := s.attempt(ctx, rd, eff, content)
		a := domain.ReadAttempt{Format: kind, Duration: time.Since(start), Err: err, TimedOut: errors.IsTimeout(err)}
		attempts = append(attempts, a)
		s.metrics.recordAttempt(ctx, a)

		if err == nil {
			out := domain.Loaded(src, detected, kind, tbl, attempts)
			if s.cache != nil {
				s.cache.Add(key, out)
			}
			return out
		}
		if ctx.Err() != nil {
			out := domain.Skipped(src, reasonCancelled)
			out.Detected = detected
			out.Attempts = attempts
			return out
		}
		s.logger.DebugContext(ctx, "Reader attempt failed",
			slog.String("path", src.Path),
			slog.String("format", string(kind)),
			slog.Bool("timed_out", a.TimedOut),
			slog.String("error", err.Error()))
	}

	return domain.Failed(src, detected, failureError(src.Path, attempts), attempts)
}

// attempt runs one reader under the per-source timeout. A reader that
// ignores its context is abandoned when the deadline passes.
func (s *Service) attempt(ctx context.Context, rd formats.Reader, src domain.SourceDescriptor, content []byte) (*domain.NormalizedTable, error) {
	timeout := s.opts.PerSourceTimeout
	if timeout <= 0 {
		return safeRead(ctx, rd, src, content)
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		tbl *domain.NormalizedTable
		err error
	}
	done := make(chan result, 1)
	go func() {
		tbl, err := safeRead(actx, rd, src, content)
		done <- result{tbl, err}
	}()

	timedOut := &errors.TimeoutError{Format: rd.Format(), Path: src.Path, Timeout: timeout}
	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && actx.Err() == context.DeadlineExceeded {
			return nil, timedOut
		}
		return r.tbl, r.err
	case <-actx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, timedOut
	}
}

// safeRead converts a reader panic into a ReadError.
func safeRead(ctx context.Context, rd formats.Reader, src domain.SourceDescriptor, content []byte) (tbl *domain.NormalizedTable, err error) {
	defer func() {
		if r := recover(); r != nil {
			tbl = nil
			err = errors.NewReadError(rd.Format(), src.Path, fmt.Sprintf("reader panic: %v", r), nil)
		}
	}()
	return rd.Read(ctx, src, content)
}

// failureError picks the error reported for a source no reader could load:
// the timeout when the last attempt timed out, otherwise the first
// attempt's error, which belongs to the detected format.
func failureError(path string, attempts []domain.ReadAttempt) error {
	if len(attempts) == 0 {
		return errors.NewReadError(domain.FormatUnknown, path, "no reader available", nil)
	}
	last := attempts[len(attempts)-1]
	if last.TimedOut {
		return last.Err
	}
	tried := make([]string, len(attempts))
	for i, a := range attempts {
		tried[i] = string(a.Format)
	}
	return fmt.Errorf("no reader could load %s (tried %s): %w", path, strings.Join(tried, ", "), attempts[0].Err)
}

// LoadMany loads sources concurrently. Outcomes keep input order.
func (s *Service) LoadMany(ctx context.Context, sources []domain.SourceDescriptor) domain.BatchResult {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "loader.load_many",
		trace.WithAttributes(attribute.Int("batch.sources", len(sources))))
	defer span.End()

	outcomes := make([]domain.LoadOutcome, len(sources))
	started := make([]bool, len(sources))

	g := new(errgroup.Group)
	g.SetLimit(s.opts.Workers())
	for i, src := range sources {
		if ctx.Err() != nil {
			break
		}
		started[i] = true
		g.Go(func() error {
			s.metrics.activeLoads(ctx, 1)
			defer s.metrics.activeLoads(ctx, -1)
			outcomes[i] = s.LoadOne(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	cancelled := ctx.Err() != nil
	for i := range outcomes {
		if !started[i] {
			outcomes[i] = domain.Skipped(sources[i], reasonCancelled)
		}
		if outcomes[i].Status == domain.LoadStatusSkipped && outcomes[i].Reason == reasonCancelled {
			cancelled = true
		}
	}

	result := Aggregate(outcomes)
	result.Cancelled = cancelled

	loaded, skipped, failed := result.Counts()
	span.SetAttributes(
		attribute.Int("batch.loaded", loaded),
		attribute.Int("batch.skipped", skipped),
		attribute.Int("batch.failed", failed),
		attribute.Int("batch.rows", result.Aggregate.NumRows()),
	)
	s.metrics.recordBatch(ctx, time.Since(start))
	for _, w := range result.Warnings {
		s.logger.WarnContext(ctx, "Source excluded from aggregate",
			slog.String("path", w.Path),
			slog.String("reason", w.Message))
	}
	s.logger.InfoContext(ctx, "Batch load complete",
		slog.Int("sources", len(sources)),
		slog.Int("loaded", loaded),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
		slog.Int("rows", result.Aggregate.NumRows()),
		slog.Bool("cancelled", result.Cancelled),
		slog.Duration("duration", time.Since(start)))
	return result
}

// LoadDirectory loads every regular file under root. Only an unusable root
// is an error; per-file problems are outcomes.
func (s *Service) LoadDirectory(ctx context.Context, root string, recursive bool) (domain.BatchResult, error) {
	files, err := Discover(root, recursive)
	if err != nil {
		return domain.BatchResult{Aggregate: domain.EmptyTable()}, err
	}
	sources := make([]domain.SourceDescriptor, len(files))
	for i, f := range files {
		sources[i] = domain.SourceDescriptor{Path: f.Path, FormatHint: s.opts.FormatHint}
	}
	s.logger.DebugContext(ctx, "Discovered sources",
		slog.String("root", root),
		slog.Bool("recursive", recursive),
		slog.Int("files", len(files)))
	return s.LoadMany(ctx, sources), nil
}

func (s *Service) logOutcome(ctx context.Context, o domain.LoadOutcome) {
	attrs := []any{
		slog.String("path", o.Source.Path),
		slog.String("status", string(o.Status)),
		slog.String("detected", string(o.Detected)),
		slog.Int("attempts", len(o.Attempts)),
	}
	switch o.Status {
	case domain.LoadStatusLoaded:
		attrs = append(attrs,
			slog.String("format", string(o.Format)),
			slog.Int("rows", o.Table.NumRows()),
			slog.Int("columns", o.Table.NumColumns()))
		s.logger.DebugContext(ctx, "Source loaded", attrs...)
	case domain.LoadStatusSkipped:
		s.logger.DebugContext(ctx, "Source skipped", append(attrs, slog.String("reason", o.Reason))...)
	default:
		s.logger.WarnContext(ctx, "Source failed", append(attrs, slog.String("error", o.Reason))...)
	}
}
