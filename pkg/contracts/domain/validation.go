package domain

import (
	"fmt"
	"strings"
)

// Severity of a validation issue
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Category names the validator family that produced an issue
type Category string

const (
	CategorySchema      Category = "SCHEMA"
	CategoryType        Category = "TYPE"
	CategoryConsistency Category = "CONSISTENCY"
)

// ValidationMode selects which validators run
type ValidationMode string

const (
	ModeFull            ValidationMode = "full"
	ModeSchemaOnly      ValidationMode = "schemaOnly"
	ModeConsistencyOnly ValidationMode = "consistencyOnly"
)

// ParseValidationMode accepts the configuration spellings of a mode
func ParseValidationMode(s string) (ValidationMode, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "", "full":
		return ModeFull, nil
	case "schemaonly", "schema":
		return ModeSchemaOnly, nil
	case "consistencyonly", "consistency":
		return ModeConsistencyOnly, nil
	}
	return "", fmt.Errorf("unknown validation mode %q", s)
}

// Categories returns the categories a mode executes
func (m ValidationMode) Categories() []Category {
	switch m {
	case ModeSchemaOnly:
		return []Category{CategorySchema, CategoryType}
	case ModeConsistencyOnly:
		return []Category{CategoryConsistency}
	default:
		return []Category{CategorySchema, CategoryType, CategoryConsistency}
	}
}

// RunsSchema reports whether schema and type checks are enabled
func (m ValidationMode) RunsSchema() bool { return m != ModeConsistencyOnly }

// RunsConsistency reports whether row-level consistency checks are enabled
func (m ValidationMode) RunsConsistency() bool { return m != ModeSchemaOnly }

// ValidationIssue is a single finding of a validator.
type ValidationIssue struct {
	Severity Severity `json:"severity"`
	Category Category `json:"category"`
	Column   string   `json:"column,omitempty"`
	Message  string   `json:"message"`
	// Rows is a bounded sample of affected row indices.
	Rows []int `json:"rows,omitempty"`
	// Count is the number of occurrences the issue stands for; zero
	// means one.
	Count int `json:"count,omitempty"`
}

// String renders the issue on one line
func (i ValidationIssue) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", i.Severity, i.Category)
	if i.Column != "" {
		fmt.Fprintf(&b, " [%s]", i.Column)
	}
	if len(i.Rows) > 0 {
		fmt.Fprintf(&b, " rows=%v", i.Rows)
	}
	if i.Count > 1 {
		fmt.Fprintf(&b, " count=%d", i.Count)
	}
	b.WriteString(": ")
	b.WriteString(i.Message)
	return b.String()
}

// ValidationReport merges the issues of one validation run. It is built
// once and never mutated; accessors return copies.
type ValidationReport struct {
	mode     ValidationMode
	issues   []ValidationIssue
	executed []Category
}

// NewValidationReport builds a report from issues already in validator order.
func NewValidationReport(mode ValidationMode, executed []Category, issues []ValidationIssue) *ValidationReport {
	r := &ValidationReport{
		mode:     mode,
		issues:   make([]ValidationIssue, len(issues)),
		executed: make([]Category, len(executed)),
	}
	copy(r.executed, executed)
	for i, is := range issues {
		is.Rows = append([]int(nil), is.Rows...)
		r.issues[i] = is
	}
	return r
}

// Mode returns the validation mode the report was produced under
func (r *ValidationReport) Mode() ValidationMode { return r.mode }

// IsValid is true iff the report holds no ERROR-severity issue.
func (r *ValidationReport) IsValid() bool {
	for _, is := range r.issues {
		if is.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Issues returns a copy of all issues in order
func (r *ValidationReport) Issues() []ValidationIssue {
	out := make([]ValidationIssue, len(r.issues))
	for i, is := range r.issues {
		is.Rows = append([]int(nil), is.Rows...)
		out[i] = is
	}
	return out
}

// Executed returns the categories that were checked.
func (r *ValidationReport) Executed() []Category {
	return append([]Category(nil), r.executed...)
}

// WasExecuted distinguishes "checked and clean" from "not checked".
func (r *ValidationReport) WasExecuted(c Category) bool {
	for _, e := range r.executed {
		if e == c {
			return true
		}
	}
	return false
}

// Filter returns issues matching the severity and category; empty
// arguments match everything.
func (r *ValidationReport) Filter(sev Severity, cat Category) []ValidationIssue {
	var out []ValidationIssue
	for _, is := range r.Issues() {
		if sev != "" && is.Severity != sev {
			continue
		}
		if cat != "" && is.Category != cat {
			continue
		}
		out = append(out, is)
	}
	return out
}

// Errors returns the ERROR-severity issues
func (r *ValidationReport) Errors() []ValidationIssue { return r.Filter(SeverityError, "") }

// Warnings returns the WARNING-severity issues
func (r *ValidationReport) Warnings() []ValidationIssue { return r.Filter(SeverityWarning, "") }

// Summary returns issue counts keyed by category
func (r *ValidationReport) Summary() map[Category]int {
	out := make(map[Category]int, len(r.executed))
	for _, c := range r.executed {
		out[c] = 0
	}
	for _, is := range r.issues {
		out[is.Category]++
	}
	return out
}

// ColumnSpec declares one expected column.
type ColumnSpec struct {
	Name     string     `json:"name" yaml:"name"`
	Type     ColumnType `json:"type" yaml:"type"`
	Required bool       `json:"required" yaml:"required"`
	// Aliases are alternative header spellings accepted for the column.
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Resolve finds the table column matching the declared name or one of its aliases.
func (c ColumnSpec) Resolve(t *NormalizedTable) (int, bool) {
	if i, ok := t.LookupColumn(c.Name); ok {
		return i, true
	}
	for _, a := range c.Aliases {
		if i, ok := t.LookupColumn(a); ok {
			return i, true
		}
	}
	return -1, false
}

// Schema is the ordered set of expected columns.
type Schema struct {
	Columns []ColumnSpec `json:"columns" yaml:"columns"`
}

// OHLCVSchema is the default declared schema for market data tables.
func OHLCVSchema() Schema {
	return Schema{Columns: []ColumnSpec{
		{Name: "timestamp", Type: TypeTimestamp, Required: true, Aliases: []string{"date", "datetime", "time"}},
		{Name: "open", Type: TypeFloat, Required: true},
		{Name: "high", Type: TypeFloat, Required: true},
		{Name: "low", Type: TypeFloat, Required: true},
		{Name: "close", Type: TypeFloat, Required: true},
		{Name: "volume", Type: TypeFloat, Required: true},
		{Name: "symbol", Type: TypeText, Required: false, Aliases: []string{"ticker", "code"}},
	}}
}
