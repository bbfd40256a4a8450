package formats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/types"
	"github.com/xitongsys/parquet-go/writer"

	"marketcore/internal/errors"
	"marketcore/pkg/contracts/domain"
)

var parquetMagic = []byte("PAR1")

// ParquetFormat reads flat Parquet files and writes them with SNAPPY pages.
type ParquetFormat struct{}

// Format implements Reader
func (f *ParquetFormat) Format() domain.FormatKind { return domain.FormatParquet }

// Read loads every leaf column. Nested schemas are rejected.
func (f *ParquetFormat) Read(ctx context.Context, src domain.SourceDescriptor, content []byte) (t *domain.NormalizedTable, err error) {
	if len(content) < 12 || !bytes.HasPrefix(content, parquetMagic) || !bytes.HasSuffix(content, parquetMagic) {
		return nil, errors.NewReadError(domain.FormatParquet, src.Path, "missing PAR1 magic", nil)
	}
	// the decoder panics on some truncated footers
	defer func() {
		if r := recover(); r != nil {
			t = nil
			err = errors.NewReadError(domain.FormatParquet, src.Path, fmt.Sprintf("corrupt file: %v", r), nil)
		}
	}()

	pr, err := reader.NewParquetColumnReader(newMemFile(content), 4)
	if err != nil {
		return nil, errors.NewReadError(domain.FormatParquet, src.Path, "invalid footer", err)
	}
	defer pr.ReadStop()

	// the reader renames footer elements to capitalized internal names;
	// Infos keeps the names the file declares
	elements := pr.Footer.Schema
	infos := pr.SchemaHandler.Infos
	if len(elements) < 1 || len(infos) != len(elements) {
		return nil, errors.NewReadError(domain.FormatParquet, src.Path, "empty schema", nil)
	}
	leaves := elements[1:]
	if int(elements[0].GetNumChildren()) != len(leaves) {
		return nil, errors.NewReadError(domain.FormatParquet, src.Path, "nested schemas are not supported", nil)
	}
	rows := pr.GetNumRows()

	columns := make([]domain.Column, len(leaves))
	for i, el := range leaves {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if el.GetNumChildren() > 0 {
			return nil, errors.NewReadError(domain.FormatParquet, src.Path,
				fmt.Sprintf("column %q is nested", el.GetName()), nil)
		}
		values, _, _, err := pr.ReadColumnByIndex(int64(i), rows)
		if err != nil {
			return nil, errors.NewReadError(domain.FormatParquet, src.Path,
				fmt.Sprintf("column %q", el.GetName()), err)
		}
		if int64(len(values)) != rows {
			return nil, errors.NewReadError(domain.FormatParquet, src.Path,
				fmt.Sprintf("column %q has %d values, footer declares %d rows", el.GetName(), len(values), rows), nil)
		}
		col, err := parquetColumn(infos[i+1].ExName, el, values)
		if err != nil {
			return nil, errors.NewReadError(domain.FormatParquet, src.Path, "", err)
		}
		columns[i] = col
	}

	t, err = domain.NewTable(columns)
	if err != nil {
		return nil, errors.NewReadError(domain.FormatParquet, src.Path, "invalid table", err)
	}
	return t, nil
}

func parquetColumn(name string, el *parquet.SchemaElement, raw []interface{}) (domain.Column, error) {
	col := domain.Column{Name: name, Values: make([]any, len(raw))}
	conv := el.GetConvertedType()
	hasConv := el.IsSetConvertedType()

	switch el.GetType() {
	case parquet.Type_BOOLEAN:
		col.Type = domain.TypeBoolean
	case parquet.Type_INT32:
		col.Type = domain.TypeInteger
		if hasConv && conv == parquet.ConvertedType_DATE {
			col.Type = domain.TypeTimestamp
		}
	case parquet.Type_INT64:
		col.Type = domain.TypeInteger
		if hasConv && (conv == parquet.ConvertedType_TIMESTAMP_MILLIS || conv == parquet.ConvertedType_TIMESTAMP_MICROS) {
			col.Type = domain.TypeTimestamp
		}
	case parquet.Type_INT96:
		col.Type = domain.TypeTimestamp
	case parquet.Type_FLOAT, parquet.Type_DOUBLE:
		col.Type = domain.TypeFloat
	default:
		col.Type = domain.TypeText
	}

	for i, v := range raw {
		if v == nil {
			continue
		}
		switch x := v.(type) {
		case bool:
			col.Values[i] = x
		case int32:
			if col.Type == domain.TypeTimestamp {
				col.Values[i] = time.Unix(int64(x)*86400, 0).UTC()
			} else {
				col.Values[i] = int64(x)
			}
		case int64:
			switch {
			case col.Type == domain.TypeInteger:
				col.Values[i] = x
			case conv == parquet.ConvertedType_TIMESTAMP_MILLIS:
				col.Values[i] = time.UnixMilli(x).UTC()
			default:
				col.Values[i] = time.UnixMicro(x).UTC()
			}
		case float32:
			col.Values[i] = float64(x)
		case float64:
			col.Values[i] = x
		case string:
			if el.GetType() == parquet.Type_INT96 {
				col.Values[i] = types.INT96ToTime(x).UTC()
			} else {
				col.Values[i] = x
			}
		default:
			return col, fmt.Errorf("column %q: unsupported value %T", col.Name, v)
		}
	}
	return col, nil
}

// Encode writes the table as one row group with optional columns.
func (f *ParquetFormat) Encode(w io.Writer, t *domain.NormalizedTable) error {
	schema, err := parquetSchema(t)
	if err != nil {
		return err
	}
	pfw := writerfile.NewWriterFile(w)
	pw, err := writer.NewJSONWriter(schema, pfw, 4)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	names := t.ColumnNames()
	for row := 0; row < t.NumRows(); row++ {
		rec := make(map[string]any, len(names))
		for col, name := range names {
			v, err := parquetValue(t.Value(col, row))
			if err != nil {
				_ = pw.WriteStop()
				return fmt.Errorf("row %d column %q: %w", row, name, err)
			}
			rec[name] = v
		}
		line, err := json.Marshal(rec)
		if err != nil {
			_ = pw.WriteStop()
			return err
		}
		if err := pw.Write(string(line)); err != nil {
			_ = pw.WriteStop()
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return pfw.Close()
}

func parquetSchema(t *domain.NormalizedTable) (string, error) {
	fields := make([]map[string]string, 0, t.NumColumns())
	for _, c := range t.Columns() {
		if strings.ContainsAny(c.Name, ",=.\x01") {
			return "", fmt.Errorf("column name %q cannot be stored in parquet", c.Name)
		}
		var typ string
		switch c.Type {
		case domain.TypeInteger:
			typ = "type=INT64"
		case domain.TypeFloat:
			typ = "type=DOUBLE"
		case domain.TypeBoolean:
			typ = "type=BOOLEAN"
		case domain.TypeTimestamp:
			typ = "type=INT64, convertedtype=TIMESTAMP_MICROS"
		default:
			typ = "type=BYTE_ARRAY, convertedtype=UTF8"
		}
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", c.Name, typ),
		})
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parquetValue(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("cannot store %v", x)
		}
		return x, nil
	case time.Time:
		return x.UnixMicro(), nil
	}
	return v, nil
}

// memFile serves an in-memory buffer to the parquet reader. Each Open
// returns an independent cursor so column readers do not share offsets.
type memFile struct {
	data []byte
	r    *bytes.Reader
}

var _ source.ParquetFile = (*memFile)(nil)

func newMemFile(data []byte) *memFile {
	return &memFile{data: data, r: bytes.NewReader(data)}
}

func (m *memFile) Open(string) (source.ParquetFile, error) { return newMemFile(m.data), nil }

func (m *memFile) Create(string) (source.ParquetFile, error) {
	return nil, fmt.Errorf("memFile is read-only")
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) { return m.r.Seek(offset, whence) }

func (m *memFile) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *memFile) Write([]byte) (int, error) { return 0, fmt.Errorf("memFile is read-only") }

func (m *memFile) Close() error { return nil }
