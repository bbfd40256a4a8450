package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ColumnType is the inferred or declared type of a table column.
type ColumnType string

const (
	TypeInteger   ColumnType = "integer"
	TypeFloat     ColumnType = "float"
	TypeText      ColumnType = "text"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
)

// TypeKind groups column types into families that never coerce into each other.
type TypeKind string

const (
	KindNumeric  TypeKind = "numeric"
	KindText     TypeKind = "text"
	KindTemporal TypeKind = "temporal"
	KindBoolean  TypeKind = "boolean"
	KindUnknown  TypeKind = "unknown"
)

// Kind returns the family of the column type
func (t ColumnType) Kind() TypeKind {
	switch t {
	case TypeInteger, TypeFloat:
		return KindNumeric
	case TypeText:
		return KindText
	case TypeTimestamp:
		return KindTemporal
	case TypeBoolean:
		return KindBoolean
	default:
		return KindUnknown
	}
}

// Valid reports whether t is one of the known column types
func (t ColumnType) Valid() bool {
	return t.Kind() != KindUnknown
}

// ParseColumnType maps a configuration string onto a ColumnType.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int", "int64", "bigint":
		return TypeInteger, nil
	case "float", "double", "float64", "number", "numeric", "decimal":
		return TypeFloat, nil
	case "text", "string", "varchar":
		return TypeText, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "timestamp", "datetime", "date", "time", "temporal":
		return TypeTimestamp, nil
	}
	return "", fmt.Errorf("unknown column type %q", s)
}

// Column is the construction-time form of a table column. Values hold
// int64, float64, string, bool, time.Time or nil (null) depending on Type.
type Column struct {
	Name   string
	Type   ColumnType
	Values []any
}

// ColumnInfo describes a column without its values.
type ColumnInfo struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// NormalizedTable is the canonical typed, columnar result of a load.
// It is read-only once constructed: every column has the same length and
// column names are unique.
type NormalizedTable struct {
	columns []Column
	index   map[string]int
	folded  map[string]int
	rows    int
}

// NewTable builds a table from columns, taking ownership of the value slices.
func NewTable(columns []Column) (*NormalizedTable, error) {
	t := &NormalizedTable{
		columns: make([]Column, len(columns)),
		index:   make(map[string]int, len(columns)),
		folded:  make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if !c.Type.Valid() {
			return nil, fmt.Errorf("column %q has unknown type %q", c.Name, c.Type)
		}
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", c.Name)
		}
		if i == 0 {
			t.rows = len(c.Values)
		} else if len(c.Values) != t.rows {
			return nil, fmt.Errorf("column %q has %d values, expected %d", c.Name, len(c.Values), t.rows)
		}
		for r, v := range c.Values {
			if !valueMatches(c.Type, v) {
				return nil, fmt.Errorf("column %q row %d: value %v (%T) does not match type %s", c.Name, r, v, v, c.Type)
			}
		}
		t.columns[i] = c
		t.index[c.Name] = i
		folded := strings.ToLower(strings.TrimSpace(c.Name))
		if _, seen := t.folded[folded]; !seen {
			t.folded[folded] = i
		}
	}
	return t, nil
}

// MustTable is NewTable for fixtures; it panics on invalid input.
func MustTable(columns ...Column) *NormalizedTable {
	t, err := NewTable(columns)
	if err != nil {
		panic(err)
	}
	return t
}

// EmptyTable returns a table with no columns and no rows.
func EmptyTable() *NormalizedTable {
	t, _ := NewTable(nil)
	return t
}

func valueMatches(t ColumnType, v any) bool {
	if v == nil {
		return true
	}
	switch t {
	case TypeInteger:
		_, ok := v.(int64)
		return ok
	case TypeFloat:
		_, ok := v.(float64)
		return ok
	case TypeText:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeTimestamp:
		_, ok := v.(time.Time)
		return ok
	}
	return false
}

// NumRows returns the row count
func (t *NormalizedTable) NumRows() int { return t.rows }

// NumColumns returns the column count
func (t *NormalizedTable) NumColumns() int { return len(t.columns) }

// Columns returns the column metadata in table order.
func (t *NormalizedTable) Columns() []ColumnInfo {
	out := make([]ColumnInfo, len(t.columns))
	for i, c := range t.columns {
		out[i] = ColumnInfo{Name: c.Name, Type: c.Type}
	}
	return out
}

// ColumnNames returns the column names in table order.
func (t *NormalizedTable) ColumnNames() []string {
	out := make([]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.Name
	}
	return out
}

// ColumnIndex returns the index of the column with exactly this name, or -1.
func (t *NormalizedTable) ColumnIndex(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// LookupColumn finds a column by name ignoring case and surrounding space.
func (t *NormalizedTable) LookupColumn(name string) (int, bool) {
	if i, ok := t.index[name]; ok {
		return i, true
	}
	i, ok := t.folded[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

// ColumnType returns the type of column col.
func (t *NormalizedTable) ColumnType(col int) ColumnType {
	return t.columns[col].Type
}

// Value returns the cell at (col, row); nil means null.
func (t *NormalizedTable) Value(col, row int) any {
	return t.columns[col].Values[row]
}

// Float returns a numeric cell as float64. ok is false for null or
// non-numeric cells.
func (t *NormalizedTable) Float(col, row int) (float64, bool) {
	switch v := t.columns[col].Values[row].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Row copies one row out of the table.
func (t *NormalizedTable) Row(row int) []any {
	out := make([]any, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.Values[row]
	}
	return out
}

// Signature returns the ordered (name, type) pairs of the table.
func (t *NormalizedTable) Signature() Signature {
	return Signature(t.Columns())
}

// Equal compares names, types and values. Timestamps compare by instant and
// NaN equals NaN.
func (t *NormalizedTable) Equal(o *NormalizedTable) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.rows != o.rows || !t.Signature().Equal(o.Signature()) {
		return false
	}
	for c := range t.columns {
		a, b := t.columns[c].Values, o.columns[c].Values
		for r := range a {
			if !cellEqual(a[r], b[r]) {
				return false
			}
		}
	}
	return true
}

func cellEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return false
		}
		if math.IsNaN(av) && math.IsNaN(bv) {
			return true
		}
		return av == bv
	}
	return a == b
}

// Concat appends the rows of tables that share one signature. The result
// is a new table; inputs are not modified.
func Concat(tables ...*NormalizedTable) (*NormalizedTable, error) {
	if len(tables) == 0 {
		return EmptyTable(), nil
	}
	sig := tables[0].Signature()
	total := 0
	for i, tbl := range tables {
		if !tbl.Signature().Equal(sig) {
			return nil, fmt.Errorf("table %d: %s", i, sig.Diff(tbl.Signature()))
		}
		total += tbl.rows
	}
	cols := make([]Column, len(sig))
	for c, info := range sig {
		values := make([]any, 0, total)
		for _, tbl := range tables {
			values = append(values, tbl.columns[c].Values...)
		}
		cols[c] = Column{Name: info.Name, Type: info.Type, Values: values}
	}
	return NewTable(cols)
}

// Signature is the ordered list of column names and types of a table.
type Signature []ColumnInfo

// Equal reports whether both signatures list the same columns in the same order
func (s Signature) Equal(o Signature) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Diff describes how o differs from s, or returns "" when they are equal.
func (s Signature) Diff(o Signature) string {
	if s.Equal(o) {
		return ""
	}
	want := make(map[string]ColumnType, len(s))
	for _, c := range s {
		want[c.Name] = c.Type
	}
	got := make(map[string]ColumnType, len(o))
	for _, c := range o {
		got[c.Name] = c.Type
	}

	var missing, extra, types []string
	for _, c := range s {
		if _, ok := got[c.Name]; !ok {
			missing = append(missing, c.Name)
		}
	}
	for _, c := range o {
		wt, ok := want[c.Name]
		if !ok {
			extra = append(extra, c.Name)
			continue
		}
		if wt != c.Type {
			types = append(types, fmt.Sprintf("%s (%s, expected %s)", c.Name, c.Type, wt))
		}
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing columns: "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		parts = append(parts, "unexpected columns: "+strings.Join(extra, ", "))
	}
	if len(types) > 0 {
		parts = append(parts, "type differences: "+strings.Join(types, ", "))
	}
	if len(parts) == 0 {
		parts = append(parts, "column order differs")
	}
	return strings.Join(parts, "; ")
}

// String renders the signature as name:type pairs
func (s Signature) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.Name + ":" + string(c.Type)
	}
	return strings.Join(parts, ",")
}

// Take returns a new table holding the given rows in the given order.
func (t *NormalizedTable) Take(rows []int) (*NormalizedTable, error) {
	cols := make([]Column, len(t.columns))
	for c, col := range t.columns {
		values := make([]any, len(rows))
		for i, r := range rows {
			if r < 0 || r >= t.rows {
				return nil, fmt.Errorf("row %d out of range [0,%d)", r, t.rows)
			}
			values[i] = col.Values[r]
		}
		cols[c] = Column{Name: col.Name, Type: col.Type, Values: values}
	}
	return NewTable(cols)
}
