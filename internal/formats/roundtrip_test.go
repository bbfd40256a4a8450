package formats

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"marketcore/pkg/contracts/domain"
)

func sampleTable(t *testing.T) *domain.NormalizedTable {
	t.Helper()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tbl, err := domain.NewTable([]domain.Column{
		{Name: "timestamp", Type: domain.TypeTimestamp, Values: []any{day, day.Add(24 * time.Hour), day.Add(48 * time.Hour)}},
		{Name: "symbol", Type: domain.TypeText, Values: []any{"ABC", "ABC", nil}},
		{Name: "open", Type: domain.TypeFloat, Values: []any{10.0, 10.5, 11.25}},
		{Name: "close", Type: domain.TypeFloat, Values: []any{10.5, nil, 11.0}},
		{Name: "volume", Type: domain.TypeInteger, Values: []any{int64(1000), int64(0), int64(2500)}},
		{Name: "halted", Type: domain.TypeBoolean, Values: []any{false, true, false}},
	})
	require.NoError(t, err)
	return tbl
}

func TestRoundTrip(t *testing.T) {
	reg := NewRegistry(DefaultOptions(), nil)
	want := sampleTable(t)

	tests := []struct {
		format domain.FormatKind
		ext    string
	}{
		{format: domain.FormatCSV, ext: ".csv"},
		{format: domain.FormatJSONLines, ext: ".jsonl"},
		{format: domain.FormatParquet, ext: ".parquet"},
		{format: domain.FormatExcel, ext: ".xlsx"},
		{format: domain.FormatDuckDBTable, ext: ".duckdb"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "prices"+tt.ext)

			w, ok := reg.Writer(tt.format)
			require.True(t, ok)
			require.NoError(t, w.WriteFile(ctx, path, want))

			content, err := os.ReadFile(path)
			require.NoError(t, err)

			src := domain.SourceDescriptor{Path: path}
			assert.Equal(t, tt.format, NewFileDetector(nil).DetectContent(domain.SourceDescriptor{Path: "blob"}, content))

			rd, ok := reg.Reader(tt.format)
			require.True(t, ok)
			got, err := rd.Read(ctx, src, content)
			require.NoError(t, err)

			assert.Equal(t, want.Signature(), got.Signature(), want.Signature().Diff(got.Signature()))
			assert.True(t, want.Equal(got))
		})
	}
}

func TestParquetFormat_KeepsColumnNames(t *testing.T) {
	want := domain.MustTable(
		domain.Column{Name: "close", Type: domain.TypeFloat, Values: []any{1.5}},
		domain.Column{Name: "adj_close", Type: domain.TypeFloat, Values: []any{1.4}},
		domain.Column{Name: "Volume", Type: domain.TypeInteger, Values: []any{int64(9)}},
	)
	var buf bytes.Buffer
	require.NoError(t, (&ParquetFormat{}).Encode(&buf, want))

	got, err := (&ParquetFormat{}).Read(context.Background(), domain.SourceDescriptor{Path: "p.parquet"}, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"close", "adj_close", "Volume"}, got.ColumnNames())
	assert.True(t, want.Signature().Equal(got.Signature()))
}

func TestDuckDBFormat_PathsAreNotOptions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("'?' is not allowed in Windows file names")
	}
	ctx := context.Background()
	want := sampleTable(t)
	path := filepath.Join(t.TempDir(), "prices?access_mode=READ_WRITE#1.duckdb")

	f := &DuckDBFormat{}
	require.NoError(t, f.WriteFile(ctx, path, want))
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	// the sniffed bytes are read, not the file on disk
	require.NoError(t, os.Remove(path))
	got, err := f.Read(ctx, domain.SourceDescriptor{Path: path}, content)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	_, err = f.Read(ctx, domain.SourceDescriptor{Path: path, Table: "missing"}, content)
	assert.Error(t, err)
}

func TestParquetFormat_RejectsCorrupt(t *testing.T) {
	f := &ParquetFormat{}
	tests := map[string][]byte{
		"no magic":  []byte("date,close\n"),
		"truncated": []byte("PAR1\x00\x00\x00\x00\x00\x00PAR1"),
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			tbl, err := f.Read(context.Background(), domain.SourceDescriptor{Path: "x.parquet"}, content)
			assert.Error(t, err)
			assert.Nil(t, tbl)
		})
	}
}

func TestExcelFormat_HeaderBelowTitle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	writeWorkbook(t, path, [][]interface{}{
		{"Daily Trading Bulletin"},
		{},
		{"Date", "Code", "Close", "Volume"},
		{"2024-01-02", "BBOB", "1.25", "500"},
		{},
		{"2024-01-03", "BBOB", "1.30", "700"},
	})
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	tbl, err := (&ExcelFormat{SampleRows: 100}).Read(context.Background(), domain.SourceDescriptor{Path: path}, content)
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "Code", "Close", "Volume"}, tbl.ColumnNames())
	assert.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, domain.TypeTimestamp, tbl.ColumnType(0))
	assert.Equal(t, int64(700), tbl.Value(3, 1))
}

func TestExcelFormat_NotZip(t *testing.T) {
	_, err := (&ExcelFormat{}).Read(context.Background(), domain.SourceDescriptor{Path: "a.xlsx"}, []byte("a,b\n"))
	assert.Error(t, err)
}

func TestDuckDBFormat_RejectsNonDatabase(t *testing.T) {
	_, err := (&DuckDBFormat{}).Read(context.Background(), domain.SourceDescriptor{Path: "a.duckdb"}, []byte("a,b\n1,2\n"))
	assert.Error(t, err)
}

func writeWorkbook(t *testing.T, path string, rows [][]interface{}) {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()
	sheet := wb.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, wb.SetSheetRow(sheet, cell, &r))
	}
	require.NoError(t, wb.SaveAs(path))
}
