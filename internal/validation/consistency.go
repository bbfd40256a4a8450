package validation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"marketcore/pkg/contracts/domain"
)

// DefaultSampleIssueLimit bounds the per-row issues each rule reports.
const DefaultSampleIssueLimit = 20

const ctxCheckInterval = 4096

// ConsistencyOptions tunes ValidateConsistency
type ConsistencyOptions struct {
	// SampleIssueLimit is how many offending rows per rule get their own
	// issue; the rest are folded into one summary issue.
	SampleIssueLimit int
}

func (o ConsistencyOptions) limit() int {
	if o.SampleIssueLimit <= 0 {
		return DefaultSampleIssueLimit
	}
	return o.SampleIssueLimit
}

// ohlcvColumns holds the resolved positions of the market data columns;
// -1 means absent.
type ohlcvColumns struct {
	timestamp, open, high, low, close, volume, symbol int
}

func resolveOHLCV(t *domain.NormalizedTable) ohlcvColumns {
	cols := ohlcvColumns{-1, -1, -1, -1, -1, -1, -1}
	for _, spec := range domain.OHLCVSchema().Columns {
		i, ok := spec.Resolve(t)
		if !ok {
			continue
		}
		switch spec.Name {
		case "timestamp":
			cols.timestamp = i
		case "open":
			cols.open = i
		case "high":
			cols.high = i
		case "low":
			cols.low = i
		case "close":
			cols.close = i
		case "volume":
			cols.volume = i
		case "symbol":
			cols.symbol = i
		}
	}
	return cols
}

// sampler collects the issues of one rule. The first limit rows get an
// issue each; later rows are counted and summarised.
type sampler struct {
	limit    int
	severity domain.Severity
	column   string
	what     string
	issues   []domain.ValidationIssue
	rows     []int
	folded   int
}

func newSampler(limit int, sev domain.Severity, column, what string) *sampler {
	return &sampler{limit: limit, severity: sev, column: column, what: what}
}

func (s *sampler) add(row int, format string, args ...any) {
	if len(s.issues) < s.limit {
		s.issues = append(s.issues, domain.ValidationIssue{
			Severity: s.severity,
			Category: domain.CategoryConsistency,
			Column:   s.column,
			Message:  fmt.Sprintf(format, args...),
			Rows:     []int{row},
		})
		return
	}
	s.folded++
	if len(s.rows) < s.limit {
		s.rows = append(s.rows, row)
	}
}

func (s *sampler) flush() []domain.ValidationIssue {
	out := s.issues
	if s.folded > 0 {
		out = append(out, domain.ValidationIssue{
			Severity: s.severity,
			Category: domain.CategoryConsistency,
			Column:   s.column,
			Message:  fmt.Sprintf("%d more rows with %s", s.folded, s.what),
			Rows:     s.rows,
			Count:    s.folded,
		})
	}
	return out
}

type priceCol struct {
	name string
	col  int
}

// ValidateConsistency scans the rows of t once and reports market data
// problems: broken OHLC relationships, negative volume, null critical
// fields, non-finite prices, and duplicate or out-of-order timestamps
// within a series. Columns missing entirely are left to ValidateSchema.
//
// On cancellation the issues found so far are returned with ctx.Err().
func ValidateConsistency(ctx context.Context, t *domain.NormalizedTable, opts ConsistencyOptions) ([]domain.ValidationIssue, error) {
	limit := opts.limit()
	cols := resolveOHLCV(t)
	names := t.ColumnNames()
	nameOf := func(col int) string {
		if col < 0 {
			return ""
		}
		return names[col]
	}

	var critical []priceCol
	for _, c := range []priceCol{
		{"timestamp", cols.timestamp},
		{"open", cols.open},
		{"high", cols.high},
		{"low", cols.low},
		{"close", cols.close},
	} {
		if c.col >= 0 {
			critical = append(critical, priceCol{nameOf(c.col), c.col})
		}
	}
	nulls := make([]*sampler, len(critical))
	for i, c := range critical {
		nulls[i] = newSampler(limit, domain.SeverityError, c.name, "null "+c.name)
	}

	var prices []priceCol
	for _, c := range []int{cols.open, cols.high, cols.low, cols.close} {
		if c >= 0 && t.ColumnType(c).Kind() == domain.KindNumeric {
			prices = append(prices, priceCol{nameOf(c), c})
		}
	}
	numeric := func(col int) bool { return col >= 0 && t.ColumnType(col).Kind() == domain.KindNumeric }

	nonFinite := newSampler(limit, domain.SeverityError, "", "non-finite prices")
	relation := newSampler(limit, domain.SeverityError, "", "inconsistent OHLC prices")
	volume := newSampler(limit, domain.SeverityError, nameOf(cols.volume), "negative volume")
	dupes := newSampler(limit, domain.SeverityWarning, nameOf(cols.timestamp), "duplicate timestamps")
	order := newSampler(limit, domain.SeverityWarning, nameOf(cols.timestamp), "out-of-order timestamps")

	seen := make(map[string]map[any]int)
	last := make(map[string]time.Time)

	collect := func() []domain.ValidationIssue {
		var out []domain.ValidationIssue
		for _, s := range nulls {
			out = append(out, s.flush()...)
		}
		for _, s := range []*sampler{nonFinite, relation, volume, dupes, order} {
			out = append(out, s.flush()...)
		}
		return out
	}

	for row := 0; row < t.NumRows(); row++ {
		if row%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return collect(), err
			}
		}

		for i, c := range critical {
			if t.Value(c.col, row) == nil {
				nulls[i].add(row, "row %d: %s is null", row, c.name)
			}
		}

		var bad []string
		for _, p := range prices {
			if f, ok := t.Float(p.col, row); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
				bad = append(bad, fmt.Sprintf("%s=%v", p.name, f))
			}
		}
		if len(bad) > 0 {
			nonFinite.add(row, "row %d: non-finite price %s", row, strings.Join(bad, ", "))
		}

		if numeric(cols.high) && numeric(cols.low) {
			if msgs := priceViolations(t, cols, row); len(msgs) > 0 {
				relation.add(row, "row %d: %s", row, strings.Join(msgs, "; "))
			}
		}

		if numeric(cols.volume) {
			if v, ok := t.Float(cols.volume, row); ok && v < 0 {
				volume.add(row, "row %d: negative volume %v", row, t.Value(cols.volume, row))
			}
		}

		if cols.timestamp >= 0 {
			checkTimestamp(t, cols, row, seen, last, dupes, order)
		}
	}
	return collect(), nil
}

// priceViolations lists the OHLC relations row breaks. Null and non-finite
// values are reported by other rules and skipped here.
func priceViolations(t *domain.NormalizedTable, cols ohlcvColumns, row int) []string {
	get := func(col int) (float64, bool) {
		if col < 0 || t.ColumnType(col).Kind() != domain.KindNumeric {
			return 0, false
		}
		f, ok := t.Float(col, row)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}

	high, okH := get(cols.high)
	low, okL := get(cols.low)
	if !okH || !okL {
		return nil
	}
	var msgs []string
	if high < low {
		msgs = append(msgs, fmt.Sprintf("high %v < low %v", high, low))
	}
	for _, p := range []struct {
		name string
		col  int
	}{{"open", cols.open}, {"close", cols.close}} {
		v, ok := get(p.col)
		if !ok {
			continue
		}
		if v < low {
			msgs = append(msgs, fmt.Sprintf("%s %v < low %v", p.name, v, low))
		}
		if v > high {
			msgs = append(msgs, fmt.Sprintf("%s %v > high %v", p.name, v, high))
		}
	}
	return msgs
}

func checkTimestamp(t *domain.NormalizedTable, cols ohlcvColumns, row int,
	seen map[string]map[any]int, last map[string]time.Time, dupes, order *sampler) {
	v := t.Value(cols.timestamp, row)
	if v == nil {
		return
	}
	series := ""
	if cols.symbol >= 0 {
		if s := t.Value(cols.symbol, row); s != nil {
			series = fmt.Sprint(s)
		}
	}

	key := v
	ts, isTime := v.(time.Time)
	if isTime {
		key = ts.UnixNano()
	}

	rows, ok := seen[series]
	if !ok {
		rows = make(map[any]int)
		seen[series] = rows
	}
	if first, dup := rows[key]; dup {
		dupes.add(row, "row %d: duplicate timestamp %s%s (first at row %d)", row, formatStamp(v), seriesLabel(series), first)
		return
	}
	rows[key] = row

	if !isTime {
		return
	}
	if prev, ok := last[series]; ok && ts.Before(prev) {
		order.add(row, "row %d: timestamp %s%s is earlier than the previous row's %s",
			row, formatStamp(v), seriesLabel(series), prev.Format(time.RFC3339Nano))
	}
	last[series] = ts
}

func formatStamp(v any) string {
	if ts, ok := v.(time.Time); ok {
		return ts.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

func seriesLabel(series string) string {
	if series == "" {
		return ""
	}
	return fmt.Sprintf(" in series %q", series)
}
