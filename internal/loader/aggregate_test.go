package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcore/pkg/contracts/domain"
)

func TestAggregate(t *testing.T) {
	intTable := func(name string, vals ...any) *domain.NormalizedTable {
		return domain.MustTable(domain.Column{Name: name, Type: domain.TypeInteger, Values: vals})
	}
	src := func(p string) domain.SourceDescriptor { return domain.SourceDescriptor{Path: p} }

	outcomes := []domain.LoadOutcome{
		domain.Skipped(src("skip.csv"), "empty file"),
		domain.Loaded(src("a.csv"), domain.FormatCSV, domain.FormatCSV, intTable("v", int64(1), int64(2)), nil),
		domain.Loaded(src("b.csv"), domain.FormatCSV, domain.FormatCSV, intTable("w", int64(3)), nil),
		domain.Loaded(src("c.csv"), domain.FormatCSV, domain.FormatCSV, intTable("v", int64(4)), nil),
	}

	result := Aggregate(outcomes)
	assert.Equal(t, []int{1, 3}, result.Contributing)
	require.Equal(t, 3, result.Aggregate.NumRows())
	assert.Equal(t, int64(4), result.Aggregate.Value(0, 2))
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "b.csv", result.Warnings[0].Path)
	assert.Contains(t, result.Warnings[0].Message, "missing columns: v")

	empty := Aggregate(outcomes[:1])
	require.NotNil(t, empty.Aggregate)
	assert.Equal(t, 0, empty.Aggregate.NumColumns())
	assert.True(t, empty.Empty())
}
