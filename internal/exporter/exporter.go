package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"marketcore/internal/formats"
	"marketcore/internal/validation"
	"marketcore/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options configures an export
type Options struct {
	// Format selects the writer; FormatUnknown takes it from the path.
	Format domain.FormatKind
	// BOM prefixes CSV output with a UTF-8 byte order mark so Excel
	// detects the encoding.
	BOM bool
	// Table names the DuckDB table to create.
	Table string
}

// Exporter writes NormalizedTables to files through the format writers.
type Exporter struct {
	registry *formats.Registry
	files    *validation.FileValidator
	logger   *slog.Logger
}

// NewExporter creates an exporter using the writers of registry
func NewExporter(registry *formats.Registry, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = formats.NewRegistry(formats.DefaultOptions(), logger)
	}
	return &Exporter{
		registry: registry,
		files:    validation.NewFileValidator(logger),
		logger:   logger.With(slog.String("component", "exporter")),
	}
}

// Export writes t to path and returns the format used. An existing file
// at path is replaced.
func (e *Exporter) Export(ctx context.Context, t *domain.NormalizedTable, path string, opts Options) (domain.FormatKind, error) {
	kind := opts.Format
	if kind == "" || kind == domain.FormatUnknown {
		kind = formats.FormatForPath(path)
	}
	if err := e.files.ValidateOutputFile(path, kind); err != nil {
		return kind, err
	}

	var err error
	switch {
	case kind == domain.FormatCSV && opts.BOM:
		err = writeCSVWithBOM(ctx, path, t)
	case kind == domain.FormatDuckDBTable && opts.Table != "":
		err = (&formats.DuckDBFormat{Table: opts.Table}).WriteFile(ctx, path, t)
	default:
		w, ok := e.registry.Writer(kind)
		if !ok {
			return kind, fmt.Errorf("no writer for format %s", kind)
		}
		err = w.WriteFile(ctx, path, t)
	}
	if err != nil {
		e.logger.ErrorContext(ctx, "Export failed",
			slog.String("path", path),
			slog.String("format", string(kind)),
			slog.String("error", err.Error()))
		return kind, fmt.Errorf("failed to export %s: %w", path, err)
	}

	e.logger.InfoContext(ctx, "Table exported",
		slog.String("path", path),
		slog.String("format", string(kind)),
		slog.Int("rows", t.NumRows()),
		slog.Int("columns", t.NumColumns()))
	return kind, nil
}

func writeCSVWithBOM(ctx context.Context, path string, t *domain.NormalizedTable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := file.Write(utf8BOM); err != nil {
		file.Close()
		return fmt.Errorf("failed to write BOM: %w", err)
	}
	if err := (&formats.CSVFormat{}).Encode(file, t); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
