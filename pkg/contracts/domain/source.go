package domain

import (
	"path/filepath"
	"strings"
)

// FormatKind is the closed set of container formats the loader understands.
type FormatKind string

const (
	FormatCSV         FormatKind = "csv"
	FormatParquet     FormatKind = "parquet"
	FormatJSONLines   FormatKind = "json_lines"
	FormatDuckDBTable FormatKind = "duckdb_table"
	FormatExcel       FormatKind = "excel"
	FormatUnknown     FormatKind = "unknown"
)

// KnownFormats lists every concrete format
var KnownFormats = []FormatKind{FormatCSV, FormatParquet, FormatJSONLines, FormatDuckDBTable, FormatExcel}

// ParseFormatHint maps a caller-supplied hint onto a FormatKind. Empty or
// unsupported hints yield FormatUnknown.
func ParseFormatHint(hint string) FormatKind {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "csv", "tsv":
		return FormatCSV
	case "parquet", "pq":
		return FormatParquet
	case "jsonl", "json_lines", "jsonlines", "ndjson", "json":
		return FormatJSONLines
	case "duckdb", "duckdb_table", "ddb":
		return FormatDuckDBTable
	case "excel", "xlsx", "xlsm":
		return FormatExcel
	}
	return FormatUnknown
}

// SourceDescriptor identifies one input to a load request.
type SourceDescriptor struct {
	Path       string `json:"path"`
	FormatHint string `json:"format_hint,omitempty"`
	// Table selects a table inside database containers (DuckDB). Empty
	// means the first user table.
	Table string `json:"table,omitempty"`
}

// Name returns the base name of the source path
func (s SourceDescriptor) Name() string {
	return filepath.Base(s.Path)
}

// Sources builds descriptors for paths sharing one hint.
func Sources(hint string, paths ...string) []SourceDescriptor {
	out := make([]SourceDescriptor, len(paths))
	for i, p := range paths {
		out[i] = SourceDescriptor{Path: p, FormatHint: hint}
	}
	return out
}
