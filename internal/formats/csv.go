package formats

import (
	"bytes"
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"marketcore/internal/errors"
	"marketcore/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVFormat reads and writes delimited text with a header row.
type CSVFormat struct {
	// SampleRows bounds the rows inspected to choose each column's type.
	SampleRows int
}

// Format implements Reader
func (f *CSVFormat) Format() domain.FormatKind { return domain.FormatCSV }

// Read parses delimited text. The delimiter is sniffed from the header line.
func (f *CSVFormat) Read(ctx context.Context, src domain.SourceDescriptor, content []byte) (*domain.NormalizedTable, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, errors.NewReadError(domain.FormatCSV, src.Path, "no header row", nil)
	}
	if bytes.IndexByte(content, 0) >= 0 || !utf8.Valid(content) {
		return nil, errors.NewReadError(domain.FormatCSV, src.Path, "binary content", nil)
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = sniffDelimiter(content)
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, csvError(src.Path, "invalid header", err)
	}
	names := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			return nil, errors.NewReadError(domain.FormatCSV, src.Path,
				fmt.Sprintf("header column %d is empty", i+1), nil).AtLine(1)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, errors.NewReadError(domain.FormatCSV, src.Path,
				fmt.Sprintf("duplicate header column %q", name), nil).AtLine(1)
		}
		seen[key] = struct{}{}
		names[i] = name
	}

	raw := make([][]string, len(names))
	for row := 0; ; row++ {
		if err := checkContext(ctx, row); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, csvError(src.Path, "malformed row", err)
		}
		for i, cell := range rec {
			raw[i] = append(raw[i], strings.TrimSpace(cell))
		}
	}

	columns := make([]domain.Column, len(names))
	for i, name := range names {
		columns[i] = inferColumn(name, raw[i], f.SampleRows)
	}
	t, err := domain.NewTable(columns)
	if err != nil {
		return nil, errors.NewReadError(domain.FormatCSV, src.Path, "invalid table", err)
	}
	return t, nil
}

// Encode writes the table as comma-separated text with a header row.
func (f *CSVFormat) Encode(w io.Writer, t *domain.NormalizedTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.ColumnNames()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, t.NumColumns())
	for row := 0; row < t.NumRows(); row++ {
		for col := range record {
			record[col] = formatCell(t.Value(col, row))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvError(path, message string, err error) error {
	var pe *csv.ParseError
	if stderrors.As(err, &pe) {
		msg := message
		if stderrors.Is(pe.Err, csv.ErrFieldCount) {
			msg = "ragged row"
		}
		return errors.NewReadError(domain.FormatCSV, path, msg, pe.Err).AtLine(pe.Line)
	}
	return errors.NewReadError(domain.FormatCSV, path, message, err)
}

// sniffDelimiter picks the candidate that occurs most often on the first line.
func sniffDelimiter(content []byte) rune {
	line := content
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', '\t', ';', '|'} {
		if n := strings.Count(string(line), string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
