package formats

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"marketcore/internal/errors"
	"marketcore/pkg/contracts/domain"
)

// headerScanRows bounds how far down a sheet the header row is searched.
const headerScanRows = 20

// headerKeywords mark a row as the header of a market data sheet.
var headerKeywords = []string{"date", "time", "open", "high", "low", "close", "price", "volume", "symbol", "code", "ticker"}

// preferredSheets are checked before the rest of the workbook.
var preferredSheets = []string{"data", "Data", "prices", "Prices", "trading", "Trading", "Bulletin"}

// ExcelFormat reads the first market data sheet of an xlsx workbook.
type ExcelFormat struct {
	SampleRows int
}

// Format implements Reader
func (f *ExcelFormat) Format() domain.FormatKind { return domain.FormatExcel }

// Read locates the sheet and header row, then types every column from the
// raw cell text. The descriptor's Table names the sheet explicitly.
func (f *ExcelFormat) Read(ctx context.Context, src domain.SourceDescriptor, content []byte) (*domain.NormalizedTable, error) {
	if !bytes.HasPrefix(content, zipMagic) {
		return nil, errors.NewReadError(domain.FormatExcel, src.Path, "not a zip container", nil)
	}
	wb, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, errors.NewReadError(domain.FormatExcel, src.Path, "failed to open workbook", err)
	}
	defer wb.Close()

	sheet, rows, headerRow, err := locateSheet(wb, src.Table)
	if err != nil {
		return nil, errors.NewReadError(domain.FormatExcel, src.Path, err.Error(), nil)
	}
	slog.Debug("Found market data sheet",
		slog.String("path", src.Path),
		slog.String("sheet_name", sheet),
		slog.Int("header_row", headerRow+1),
		slog.Int("total_rows", len(rows)))

	header := rows[headerRow]
	width := len(header)
	for width > 0 && strings.TrimSpace(header[width-1]) == "" {
		width--
	}
	names := make([]string, width)
	seen := make(map[string]struct{}, width)
	for j := 0; j < width; j++ {
		name := strings.TrimSpace(header[j])
		if name == "" {
			name = fmt.Sprintf("column_%d", j+1)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, errors.NewReadError(domain.FormatExcel, src.Path,
				fmt.Sprintf("duplicate header column %q", name), nil).AtLine(headerRow + 1)
		}
		seen[key] = struct{}{}
		names[j] = name
	}

	raw := make([][]string, width)
	for i := headerRow + 1; i < len(rows); i++ {
		if err := checkContext(ctx, i); err != nil {
			return nil, err
		}
		row := rows[i]
		if isBlankRow(row) {
			continue
		}
		for j := width; j < len(row); j++ {
			if strings.TrimSpace(row[j]) != "" {
				return nil, errors.NewReadError(domain.FormatExcel, src.Path,
					fmt.Sprintf("cell %d is outside the %d header columns", j+1, width), nil).AtLine(i + 1)
			}
		}
		for j := 0; j < width; j++ {
			cell := ""
			if j < len(row) {
				cell = strings.TrimSpace(row[j])
			}
			raw[j] = append(raw[j], cell)
		}
	}

	columns := make([]domain.Column, width)
	for j, name := range names {
		columns[j] = excelDates(inferColumn(name, raw[j], f.SampleRows))
	}
	t, err := domain.NewTable(columns)
	if err != nil {
		return nil, errors.NewReadError(domain.FormatExcel, src.Path, "invalid table", err)
	}
	return t, nil
}

// locateSheet finds the sheet and header row. A row that names two or more
// market columns wins; otherwise the first non-empty row of the first
// non-empty sheet is the header.
func locateSheet(wb *excelize.File, want string) (string, [][]string, int, error) {
	read := func(name string) ([][]string, bool) {
		rows, err := wb.GetRows(name, excelize.Options{RawCellValue: true})
		return rows, err == nil
	}

	if want != "" {
		rows, ok := read(want)
		if !ok {
			return "", nil, 0, fmt.Errorf("sheet %q not found", want)
		}
		if h := headerIndex(rows); h >= 0 {
			return want, rows, h, nil
		}
		if h := firstNonBlank(rows); h >= 0 {
			return want, rows, h, nil
		}
		return "", nil, 0, fmt.Errorf("sheet %q is empty", want)
	}

	order := make([]string, 0)
	all := wb.GetSheetList()
	for _, p := range preferredSheets {
		for _, s := range all {
			if s == p {
				order = append(order, s)
			}
		}
	}
	order = append(order, all...)

	fallbackSheet, fallbackRow := "", -1
	var fallbackRows [][]string
	for _, name := range order {
		rows, ok := read(name)
		if !ok {
			continue
		}
		if h := headerIndex(rows); h >= 0 {
			return name, rows, h, nil
		}
		if fallbackRow < 0 {
			if h := firstNonBlank(rows); h >= 0 {
				fallbackSheet, fallbackRows, fallbackRow = name, rows, h
			}
		}
	}
	if fallbackRow < 0 {
		return "", nil, 0, fmt.Errorf("workbook has no data")
	}
	return fallbackSheet, fallbackRows, fallbackRow, nil
}

func headerIndex(rows [][]string) int {
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		hits := 0
		for _, cell := range rows[i] {
			c := strings.ToLower(strings.TrimSpace(cell))
			if c == "" {
				continue
			}
			for _, kw := range headerKeywords {
				if strings.Contains(c, kw) {
					hits++
					break
				}
			}
		}
		if hits >= 2 {
			return i
		}
	}
	return -1
}

func firstNonBlank(rows [][]string) int {
	for i, row := range rows {
		if !isBlankRow(row) {
			return i
		}
	}
	return -1
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// excelDates turns date-named columns of serial day numbers into timestamps.
func excelDates(col domain.Column) domain.Column {
	if col.Type.Kind() != domain.KindNumeric || !isDateName(col.Name) {
		return col
	}
	values := make([]any, len(col.Values))
	for i, v := range col.Values {
		var serial float64
		switch x := v.(type) {
		case nil:
			continue
		case int64:
			serial = float64(x)
		case float64:
			serial = x
		}
		if serial < 1 || serial > 2958465 {
			return col
		}
		ts, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return col
		}
		values[i] = ts.UTC().Round(time.Millisecond)
	}
	return domain.Column{Name: col.Name, Type: domain.TypeTimestamp, Values: values}
}

func isDateName(name string) bool {
	n := strings.ToLower(name)
	return n == "date" || n == "time" || n == "timestamp" || n == "datetime" || strings.HasSuffix(n, "_date")
}

// Encode writes a single sheet with a header row and canonical cell text.
func (f *ExcelFormat) Encode(w io.Writer, t *domain.NormalizedTable) error {
	wb := excelize.NewFile()
	defer wb.Close()
	sheet := wb.GetSheetName(0)

	header := make([]interface{}, t.NumColumns())
	for i, n := range t.ColumnNames() {
		header[i] = n
	}
	if err := wb.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for row := 0; row < t.NumRows(); row++ {
		cells := make([]interface{}, t.NumColumns())
		for col := range cells {
			if v := t.Value(col, row); v != nil {
				cells[col] = formatCell(v)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, row+2)
		if err != nil {
			return err
		}
		if err := wb.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}
	return wb.Write(w)
}
