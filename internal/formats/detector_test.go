package formats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcore/pkg/contracts/domain"
)

func TestSniffFormat(t *testing.T) {
	duck := make([]byte, 16)
	copy(duck[8:], "DUCK")

	tests := []struct {
		name     string
		head     []byte
		expected domain.FormatKind
	}{
		{name: "parquet magic", head: []byte("PAR1\x15\x04"), expected: domain.FormatParquet},
		{name: "duckdb magic", head: duck, expected: domain.FormatDuckDBTable},
		{name: "zip container", head: []byte("PK\x03\x04\x14\x00"), expected: domain.FormatExcel},
		{name: "json object", head: []byte("  {\"a\":1}\n"), expected: domain.FormatJSONLines},
		{name: "json array", head: []byte("[{\"a\":1}]"), expected: domain.FormatJSONLines},
		{name: "comma text", head: []byte("date,close\n2024-01-02,10\n"), expected: domain.FormatCSV},
		{name: "tab text", head: []byte("date\tclose\n"), expected: domain.FormatCSV},
		{name: "bom csv", head: []byte("\xEF\xBB\xBFa;b\n1;2\n"), expected: domain.FormatCSV},
		{name: "plain sentence", head: []byte("hello world\n"), expected: domain.FormatUnknown},
		{name: "binary", head: []byte{0x00, 0x01, 0x02, 0xff}, expected: domain.FormatUnknown},
		{name: "empty", head: nil, expected: domain.FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SniffFormat(tt.head))
		})
	}
}

func TestFileDetector_Precedence(t *testing.T) {
	dir := t.TempDir()
	fd := NewFileDetector(nil)

	jsonAsCSV := filepath.Join(dir, "prices.csv")
	require.NoError(t, os.WriteFile(jsonAsCSV, []byte(`{"close":1}`), 0644))
	noExt := filepath.Join(dir, "prices")
	require.NoError(t, os.WriteFile(noExt, []byte(`{"close":1}`), 0644))
	txt := filepath.Join(dir, "prices.txt")
	require.NoError(t, os.WriteFile(txt, []byte("date,close\n2024-01-02,1\n"), 0644))

	tests := []struct {
		name     string
		src      domain.SourceDescriptor
		expected domain.FormatKind
	}{
		{name: "hint beats extension", src: domain.SourceDescriptor{Path: jsonAsCSV, FormatHint: "jsonl"}, expected: domain.FormatJSONLines},
		{name: "extension beats content", src: domain.SourceDescriptor{Path: jsonAsCSV}, expected: domain.FormatCSV},
		{name: "unknown hint ignored", src: domain.SourceDescriptor{Path: jsonAsCSV, FormatHint: "avro"}, expected: domain.FormatCSV},
		{name: "no extension sniffs", src: domain.SourceDescriptor{Path: noExt}, expected: domain.FormatJSONLines},
		{name: "ambiguous extension sniffs", src: domain.SourceDescriptor{Path: txt}, expected: domain.FormatCSV},
		{name: "missing file", src: domain.SourceDescriptor{Path: filepath.Join(dir, "nope")}, expected: domain.FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, fd.Detect(tt.src))
		})
	}
}

func TestFileDetector_DetectContent(t *testing.T) {
	fd := NewFileDetector(nil)
	kind := fd.DetectContent(domain.SourceDescriptor{Path: "blob.dat"}, []byte("PAR1...."))
	assert.Equal(t, domain.FormatParquet, kind)
}

func TestRegistry_AttemptOrder(t *testing.T) {
	reg := NewRegistry(DefaultOptions(), nil)

	tests := []struct {
		name     string
		detected domain.FormatKind
		expected []domain.FormatKind
	}{
		{
			name:     "unknown uses priority",
			detected: domain.FormatUnknown,
			expected: DefaultPriority,
		},
		{
			name:     "detected first without repeats",
			detected: domain.FormatCSV,
			expected: []domain.FormatKind{
				domain.FormatCSV, domain.FormatParquet, domain.FormatDuckDBTable,
				domain.FormatExcel, domain.FormatJSONLines,
			},
		},
		{
			name:     "middle of priority",
			detected: domain.FormatExcel,
			expected: []domain.FormatKind{
				domain.FormatExcel, domain.FormatParquet, domain.FormatDuckDBTable,
				domain.FormatJSONLines, domain.FormatCSV,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, reg.AttemptOrder(tt.detected))
		})
	}
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path string
		want domain.FormatKind
	}{
		{"prices.csv", domain.FormatCSV},
		{"PRICES.TSV", domain.FormatCSV},
		{"a/b/bars.parquet", domain.FormatParquet},
		{"bars.ndjson", domain.FormatJSONLines},
		{"market.duckdb", domain.FormatDuckDBTable},
		{"report.XLSX", domain.FormatExcel},
		{"export.txt", domain.FormatUnknown},
		{"history.db", domain.FormatUnknown},
		{"noext", domain.FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatForPath(tt.path))
		})
	}
}

func TestExtensionMapsBack(t *testing.T) {
	for _, kind := range domain.KnownFormats {
		ext := Extension(kind)
		require.NotEmpty(t, ext, kind)
		assert.Equal(t, kind, FormatForPath("out"+ext))
	}
	assert.Empty(t, Extension(domain.FormatUnknown))
}
