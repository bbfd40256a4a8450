package formats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"marketcore/pkg/contracts/domain"
)

// Reader turns the raw content of one source into a NormalizedTable.
// Implementations fail the whole read on corrupt input and never return
// a partial table.
type Reader interface {
	Format() domain.FormatKind
	Read(ctx context.Context, src domain.SourceDescriptor, content []byte) (*domain.NormalizedTable, error)
}

// Writer serialises a NormalizedTable so that the matching Reader yields an
// equal table.
type Writer interface {
	Format() domain.FormatKind
	WriteFile(ctx context.Context, path string, t *domain.NormalizedTable) error
}

// encoder is implemented by writers whose output is a plain byte stream.
type encoder interface {
	Encode(w io.Writer, t *domain.NormalizedTable) error
}

// DefaultPriority is the fixed fallback order: binary containers with
// strong magic numbers first, permissive text formats last.
var DefaultPriority = []domain.FormatKind{
	domain.FormatParquet,
	domain.FormatDuckDBTable,
	domain.FormatExcel,
	domain.FormatJSONLines,
	domain.FormatCSV,
}

// Options tunes reader behaviour
type Options struct {
	// CSVSampleRows is the number of rows sniffed to pick a column type.
	CSVSampleRows int
}

// DefaultOptions returns the reader defaults
func DefaultOptions() Options {
	return Options{CSVSampleRows: 100}
}

// Registry holds one reader and writer per format and the fallback order.
type Registry struct {
	readers  map[domain.FormatKind]Reader
	writers  map[domain.FormatKind]Writer
	priority []domain.FormatKind
	logger   *slog.Logger
}

// NewRegistry creates a registry with every built-in format
func NewRegistry(opts Options, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CSVSampleRows <= 0 {
		opts.CSVSampleRows = DefaultOptions().CSVSampleRows
	}
	csvFmt := &CSVFormat{SampleRows: opts.CSVSampleRows}
	jsonFmt := &JSONLinesFormat{}
	parquetFmt := &ParquetFormat{}
	duckFmt := &DuckDBFormat{}
	excelFmt := &ExcelFormat{SampleRows: opts.CSVSampleRows}

	r := &Registry{
		readers:  make(map[domain.FormatKind]Reader),
		writers:  make(map[domain.FormatKind]Writer),
		priority: append([]domain.FormatKind(nil), DefaultPriority...),
		logger:   logger.With(slog.String("component", "format_registry")),
	}
	for _, rd := range []Reader{csvFmt, jsonFmt, parquetFmt, duckFmt, excelFmt} {
		r.readers[rd.Format()] = rd
	}
	r.writers[domain.FormatCSV] = streamWriter{format: domain.FormatCSV, enc: csvFmt}
	r.writers[domain.FormatJSONLines] = streamWriter{format: domain.FormatJSONLines, enc: jsonFmt}
	r.writers[domain.FormatParquet] = streamWriter{format: domain.FormatParquet, enc: parquetFmt}
	r.writers[domain.FormatExcel] = streamWriter{format: domain.FormatExcel, enc: excelFmt}
	r.writers[domain.FormatDuckDBTable] = duckFmt
	return r
}

// Register replaces the reader for its format.
func (r *Registry) Register(rd Reader) {
	r.readers[rd.Format()] = rd
}

// Reader returns the reader for a format
func (r *Registry) Reader(kind domain.FormatKind) (Reader, bool) {
	rd, ok := r.readers[kind]
	return rd, ok
}

// Writer returns the writer for a format
func (r *Registry) Writer(kind domain.FormatKind) (Writer, bool) {
	w, ok := r.writers[kind]
	return w, ok
}

// Priority returns the fallback order
func (r *Registry) Priority() []domain.FormatKind {
	return append([]domain.FormatKind(nil), r.priority...)
}

// AttemptOrder lists the formats to try for a source: the detected format
// first (if known), then every other format in priority order. No format
// appears twice.
func (r *Registry) AttemptOrder(detected domain.FormatKind) []domain.FormatKind {
	order := make([]domain.FormatKind, 0, len(r.priority))
	if _, ok := r.readers[detected]; ok {
		order = append(order, detected)
	}
	for _, k := range r.priority {
		if k == detected {
			continue
		}
		if _, ok := r.readers[k]; ok {
			order = append(order, k)
		}
	}
	return order
}

// streamWriter adapts an encoder to the Writer interface.
type streamWriter struct {
	format domain.FormatKind
	enc    encoder
}

func (s streamWriter) Format() domain.FormatKind { return s.format }

func (s streamWriter) WriteFile(ctx context.Context, path string, t *domain.NormalizedTable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := s.enc.Encode(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// checkContext is called by readers between batches of rows.
func checkContext(ctx context.Context, row int) error {
	if row%1024 != 0 {
		return nil
	}
	return ctx.Err()
}
