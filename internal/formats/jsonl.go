package formats

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"marketcore/internal/errors"
	"marketcore/pkg/contracts/domain"
)

// JSONLinesFormat reads newline-delimited JSON objects. A single top-level
// array of objects is accepted as well.
type JSONLinesFormat struct{}

// Format implements Reader
func (f *JSONLinesFormat) Format() domain.FormatKind { return domain.FormatJSONLines }

type jsonKind uint8

const (
	kindNull jsonKind = iota
	kindInt
	kindFloat
	kindBool
	kindString
	kindNested
)

type jsonCell struct {
	kind jsonKind
	i    int64
	f    float64
	b    bool
	s    string
}

type jsonColumn struct {
	name  string
	cells []jsonCell
	seen  map[jsonKind]int
}

// Read decodes objects in order. Columns appear in first-seen key order and
// keys missing from a record are null.
func (f *JSONLinesFormat) Read(ctx context.Context, src domain.SourceDescriptor, content []byte) (*domain.NormalizedTable, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	fail := func(msg string, err error) error {
		off := dec.InputOffset()
		return errors.NewReadError(domain.FormatJSONLines, src.Path, msg, err).
			AtLine(lineAt(content, off)).AtOffset(off)
	}

	var (
		columns []*jsonColumn
		byName  = map[string]*jsonColumn{}
		rows    int
		inArray bool
	)

	first := true
	for {
		if err := checkContext(ctx, rows); err != nil {
			return nil, err
		}
		if inArray && !dec.More() {
			if _, err := dec.Token(); err != nil {
				return nil, fail("unterminated array", err)
			}
			if _, err := dec.Token(); err != io.EOF {
				return nil, fail("trailing data after array", err)
			}
			break
		}
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fail("invalid JSON", err)
		}
		if first && tok == json.Delim('[') {
			inArray = true
			first = false
			continue
		}
		first = false
		if tok != json.Delim('{') {
			return nil, fail(fmt.Sprintf("record %d is not an object", rows+1), nil)
		}

		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, fail("invalid key", err)
			}
			key, _ := keyTok.(string)
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, fail(fmt.Sprintf("invalid value for %q", key), err)
			}
			col, ok := byName[key]
			if !ok {
				col = &jsonColumn{name: key, cells: make([]jsonCell, rows), seen: map[jsonKind]int{}}
				byName[key] = col
				columns = append(columns, col)
			}
			cell, err := classify(raw)
			if err != nil {
				return nil, fail(fmt.Sprintf("invalid value for %q", key), err)
			}
			if len(col.cells) > rows {
				// duplicate key in one record, last value wins
				col.seen[col.cells[rows].kind]--
				col.cells[rows] = cell
			} else {
				col.cells = append(col.cells, cell)
			}
			col.seen[cell.kind]++
		}
		if _, err := dec.Token(); err != nil {
			return nil, fail("unterminated object", err)
		}
		rows++
		for _, col := range columns {
			if len(col.cells) < rows {
				col.cells = append(col.cells, jsonCell{kind: kindNull})
			}
		}
	}

	if rows == 0 {
		return nil, errors.NewReadError(domain.FormatJSONLines, src.Path, "no records", nil)
	}

	out := make([]domain.Column, len(columns))
	for i, col := range columns {
		out[i] = col.build()
	}
	t, err := domain.NewTable(out)
	if err != nil {
		return nil, errors.NewReadError(domain.FormatJSONLines, src.Path, "invalid table", err)
	}
	return t, nil
}

func classify(raw json.RawMessage) (jsonCell, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return jsonCell{}, stderrors.New("empty value")
	}
	switch c := s[0]; {
	case s == "null":
		return jsonCell{kind: kindNull}, nil
	case s == "true" || s == "false":
		return jsonCell{kind: kindBool, b: s == "true"}, nil
	case c == '"':
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return jsonCell{}, err
		}
		return jsonCell{kind: kindString, s: str}, nil
	case c == '{' || c == '[':
		return jsonCell{kind: kindNested, s: s}, nil
	default:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return jsonCell{kind: kindInt, i: i, s: s}, nil
		}
		fv, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return jsonCell{}, err
		}
		return jsonCell{kind: kindFloat, f: fv, s: s}, nil
	}
}

// build resolves the column type from the kinds observed.
func (c *jsonColumn) build() domain.Column {
	has := func(k jsonKind) bool { return c.seen[k] > 0 }
	only := func(kinds ...jsonKind) bool {
		for k, n := range c.seen {
			if n <= 0 || k == kindNull {
				continue
			}
			allowed := false
			for _, a := range kinds {
				if k == a {
					allowed = true
				}
			}
			if !allowed {
				return false
			}
		}
		return true
	}

	values := make([]any, len(c.cells))
	col := domain.Column{Name: c.name, Values: values}
	switch {
	case has(kindInt) && only(kindInt):
		col.Type = domain.TypeInteger
		for i, cell := range c.cells {
			if cell.kind == kindInt {
				values[i] = cell.i
			}
		}
	case (has(kindInt) || has(kindFloat)) && only(kindInt, kindFloat):
		col.Type = domain.TypeFloat
		for i, cell := range c.cells {
			switch cell.kind {
			case kindInt:
				values[i] = float64(cell.i)
			case kindFloat:
				values[i] = cell.f
			}
		}
	case has(kindBool) && only(kindBool):
		col.Type = domain.TypeBoolean
		for i, cell := range c.cells {
			if cell.kind == kindBool {
				values[i] = cell.b
			}
		}
	case has(kindString) && only(kindString) && allTimestamps(c.cells):
		col.Type = domain.TypeTimestamp
		for i, cell := range c.cells {
			if cell.kind == kindString {
				values[i], _ = parseTimestamp(cell.s)
			}
		}
	default:
		col.Type = domain.TypeText
		for i, cell := range c.cells {
			switch cell.kind {
			case kindNull:
			case kindBool:
				values[i] = strconv.FormatBool(cell.b)
			default:
				values[i] = cell.s
			}
		}
	}
	return col
}

func allTimestamps(cells []jsonCell) bool {
	for _, cell := range cells {
		if cell.kind != kindString {
			continue
		}
		if _, ok := parseTimestamp(cell.s); !ok {
			return false
		}
	}
	return true
}

// Encode writes one JSON object per row, keys in column order.
func (f *JSONLinesFormat) Encode(w io.Writer, t *domain.NormalizedTable) error {
	bw := bufio.NewWriter(w)
	names := t.ColumnNames()
	keys := make([][]byte, len(names))
	for i, n := range names {
		k, err := json.Marshal(n)
		if err != nil {
			return err
		}
		keys[i] = k
	}
	for row := 0; row < t.NumRows(); row++ {
		bw.WriteByte('{')
		for col := range names {
			if col > 0 {
				bw.WriteByte(',')
			}
			bw.Write(keys[col])
			bw.WriteByte(':')
			if err := writeJSONValue(bw, t.Value(col, row)); err != nil {
				return fmt.Errorf("row %d column %q: %w", row, names[col], err)
			}
		}
		bw.WriteString("}\n")
	}
	return bw.Flush()
}

func writeJSONValue(w *bufio.Writer, v any) error {
	switch x := v.(type) {
	case nil:
		w.WriteString("null")
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("cannot encode %v in JSON", x)
		}
		w.WriteString(formatFloat(x))
	case int64, bool:
		w.WriteString(formatCell(x))
	case time.Time, string:
		b, err := json.Marshal(formatCell(x))
		if err != nil {
			return err
		}
		w.Write(b)
	default:
		return fmt.Errorf("unsupported value %T", v)
	}
	return nil
}

// lineAt returns the 1-based line containing the byte offset.
func lineAt(content []byte, off int64) int {
	if off > int64(len(content)) {
		off = int64(len(content))
	}
	return bytes.Count(content[:off], []byte{'\n'}) + 1
}
