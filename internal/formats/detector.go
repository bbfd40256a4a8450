package formats

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"marketcore/pkg/contracts/domain"
)

// sniffLength is the number of leading bytes inspected by content sniffing.
const sniffLength = 4096

var zipMagic = []byte("PK\x03\x04")

// extensionFormats maps unambiguous extensions. Extensions absent from the
// map (.txt, .dat, .db, none) fall through to content sniffing.
var extensionFormats = map[string]domain.FormatKind{
	".csv":     domain.FormatCSV,
	".tsv":     domain.FormatCSV,
	".parquet": domain.FormatParquet,
	".pq":      domain.FormatParquet,
	".jsonl":   domain.FormatJSONLines,
	".ndjson":  domain.FormatJSONLines,
	".json":    domain.FormatJSONLines,
	".duckdb":  domain.FormatDuckDBTable,
	".ddb":     domain.FormatDuckDBTable,
	".xlsx":    domain.FormatExcel,
	".xlsm":    domain.FormatExcel,
}

// FormatForPath classifies a path by extension alone.
func FormatForPath(path string) domain.FormatKind {
	if kind, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return kind
	}
	return domain.FormatUnknown
}

// Extension returns the canonical file extension for kind.
func Extension(kind domain.FormatKind) string {
	switch kind {
	case domain.FormatCSV:
		return ".csv"
	case domain.FormatParquet:
		return ".parquet"
	case domain.FormatJSONLines:
		return ".jsonl"
	case domain.FormatDuckDBTable:
		return ".duckdb"
	case domain.FormatExcel:
		return ".xlsx"
	}
	return ""
}

// FileDetector provides the single place where a source's format is guessed.
// It never fails: anything it cannot classify is FormatUnknown and the
// loader falls back to trying every reader.
type FileDetector struct {
	logger *slog.Logger
}

// NewFileDetector creates a new FileDetector with optional logger
func NewFileDetector(logger *slog.Logger) *FileDetector {
	return &FileDetector{logger: logger}
}

// Detect opens the source and classifies it from its leading bytes when the
// hint and extension are not enough. Unreadable paths yield FormatUnknown.
func (fd *FileDetector) Detect(src domain.SourceDescriptor) domain.FormatKind {
	if kind, ok := fd.fromName(src); ok {
		return kind
	}
	f, err := os.Open(src.Path)
	if err != nil {
		fd.debug("Detection could not open source", src, slog.String("error", err.Error()))
		return domain.FormatUnknown
	}
	defer f.Close()

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return domain.FormatUnknown
	}
	return fd.sniff(src, head[:n])
}

// DetectContent classifies a source whose bytes are already in memory.
func (fd *FileDetector) DetectContent(src domain.SourceDescriptor, content []byte) domain.FormatKind {
	if kind, ok := fd.fromName(src); ok {
		return kind
	}
	if len(content) > sniffLength {
		content = content[:sniffLength]
	}
	return fd.sniff(src, content)
}

// fromName applies the explicit hint, then the extension.
func (fd *FileDetector) fromName(src domain.SourceDescriptor) (domain.FormatKind, bool) {
	if kind := domain.ParseFormatHint(src.FormatHint); kind != domain.FormatUnknown {
		fd.debug("Format taken from hint", src, slog.String("format", string(kind)))
		return kind, true
	}
	if kind, ok := extensionFormats[strings.ToLower(filepath.Ext(src.Path))]; ok {
		fd.debug("Format taken from extension", src, slog.String("format", string(kind)))
		return kind, true
	}
	return domain.FormatUnknown, false
}

func (fd *FileDetector) sniff(src domain.SourceDescriptor, head []byte) domain.FormatKind {
	kind := SniffFormat(head)
	fd.debug("Format sniffed from content", src,
		slog.String("format", string(kind)),
		slog.Int("bytes", len(head)))
	return kind
}

func (fd *FileDetector) debug(msg string, src domain.SourceDescriptor, attrs ...any) {
	if fd == nil || fd.logger == nil {
		return
	}
	fd.logger.Debug(msg, append([]any{slog.String("path", src.Path)}, attrs...)...)
}

// SniffFormat classifies content by magic numbers and text shape.
func SniffFormat(head []byte) domain.FormatKind {
	switch {
	case bytes.HasPrefix(head, parquetMagic):
		return domain.FormatParquet
	case isDuckDB(head):
		return domain.FormatDuckDBTable
	case bytes.HasPrefix(head, zipMagic):
		return domain.FormatExcel
	}

	text := bytes.TrimLeft(bytes.TrimPrefix(head, utf8BOM), " \t\r\n")
	if len(text) == 0 || bytes.IndexByte(text, 0) >= 0 {
		return domain.FormatUnknown
	}
	if text[0] == '{' || text[0] == '[' {
		return domain.FormatJSONLines
	}
	// a cut multibyte rune at the end of the sniff window is not binary
	if !utf8.Valid(text) {
		if len(text) < sniffLength || !utf8.Valid(text[:len(text)-utf8.UTFMax]) {
			return domain.FormatUnknown
		}
	}
	line := text
	if i := bytes.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	if bytes.ContainsAny(line, ",\t;|") {
		return domain.FormatCSV
	}
	return domain.FormatUnknown
}
