package exporter

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"marketcore/internal/formats"
	"marketcore/pkg/contracts/domain"
)

// PartitionKey selects how ExportPartitioned splits a table
type PartitionKey string

const (
	// PartitionSymbol writes one file per symbol, e.g. BBOB.csv.
	PartitionSymbol PartitionKey = "symbol"
	// PartitionDay writes one file per calendar day (UTC), e.g. 2024-03-01.csv.
	PartitionDay PartitionKey = "day"
)

// unknownPartition collects rows whose key cell is null.
const unknownPartition = "_unknown"

// ParsePartitionKey validates a partition name
func ParsePartitionKey(s string) (PartitionKey, error) {
	switch PartitionKey(strings.ToLower(strings.TrimSpace(s))) {
	case PartitionSymbol:
		return PartitionSymbol, nil
	case PartitionDay:
		return PartitionDay, nil
	}
	return "", fmt.Errorf("unknown partition %q (want symbol or day)", s)
}

// ExportPartitioned splits t by key and writes each part to dir. Rows keep
// their table order within a part. It returns the written paths sorted by
// partition name.
func (e *Exporter) ExportPartitioned(ctx context.Context, t *domain.NormalizedTable, dir string, key PartitionKey, opts Options) ([]string, error) {
	if opts.Format == "" || opts.Format == domain.FormatUnknown {
		opts.Format = domain.FormatCSV
	}
	col, err := partitionColumn(t, key)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]int)
	for row := 0; row < t.NumRows(); row++ {
		name := partitionName(t.Value(col, row), key)
		groups[name] = append(groups[name], row)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		part, err := t.Take(groups[name])
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, sanitizeFileName(name)+formats.Extension(opts.Format))
		if _, err := e.Export(ctx, part, path, opts); err != nil {
			return paths, fmt.Errorf("failed to write partition %s: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func partitionColumn(t *domain.NormalizedTable, key PartitionKey) (int, error) {
	want := "symbol"
	if key == PartitionDay {
		want = "timestamp"
	}
	for _, spec := range domain.OHLCVSchema().Columns {
		if spec.Name != want {
			continue
		}
		if i, ok := spec.Resolve(t); ok {
			if key == PartitionDay && t.ColumnType(i) != domain.TypeTimestamp {
				return -1, fmt.Errorf("column %q is %s, cannot partition by day", t.ColumnNames()[i], t.ColumnType(i))
			}
			return i, nil
		}
	}
	return -1, fmt.Errorf("table has no %s column to partition by", want)
}

func partitionName(v any, key PartitionKey) string {
	if v == nil {
		return unknownPartition
	}
	if key == PartitionDay {
		if ts, ok := v.(time.Time); ok {
			return ts.UTC().Format("2006-01-02")
		}
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return unknownPartition
	}
	return s
}

func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, name)
}
