package validation

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcore/pkg/contracts/domain"
)

func TestValidateConsistencyClean(t *testing.T) {
	tbl := ohlcvTable(goodBar(0, "ABC"), goodBar(1, "ABC"), goodBar(0, "XYZ"), goodBar(1, "XYZ"))
	issues, err := ValidateConsistency(context.Background(), tbl, ConsistencyOptions{})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestValidateConsistencyRules(t *testing.T) {
	withVolume := func(b bar, v any) bar { b.volume = v; return b }
	inverted := goodBar(1, "ABC")
	inverted.high, inverted.low, inverted.open, inverted.close = 9.0, 10.0, 9.5, 9.5
	openAbove := goodBar(1, "ABC")
	openAbove.open = 13.0
	nullClose := goodBar(1, "ABC")
	nullClose.close = nil
	nanOpen := goodBar(1, "ABC")
	nanOpen.open = math.NaN()
	infHigh := goodBar(1, "ABC")
	infHigh.high = math.Inf(1)

	tests := []struct {
		name     string
		bars     []bar
		severity domain.Severity
		column   string
		rows     [][]int
		contains string
	}{
		{
			name:     "negative volume",
			bars:     []bar{goodBar(0, "ABC"), goodBar(1, "ABC"), withVolume(goodBar(2, "ABC"), int64(-5))},
			severity: domain.SeverityError, column: "volume", rows: [][]int{{2}},
			contains: "negative volume -5",
		},
		{
			name:     "high below low is one issue",
			bars:     []bar{goodBar(0, "ABC"), inverted},
			severity: domain.SeverityError, rows: [][]int{{1}},
			contains: "high 9 < low 10",
		},
		{
			name:     "open above high",
			bars:     []bar{goodBar(0, "ABC"), openAbove},
			severity: domain.SeverityError, rows: [][]int{{1}},
			contains: "open 13 > high 12",
		},
		{
			name:     "null critical field",
			bars:     []bar{goodBar(0, "ABC"), nullClose},
			severity: domain.SeverityError, column: "close", rows: [][]int{{1}},
			contains: "close is null",
		},
		{
			name:     "nan price",
			bars:     []bar{goodBar(0, "ABC"), nanOpen},
			severity: domain.SeverityError, rows: [][]int{{1}},
			contains: "open=NaN",
		},
		{
			name:     "infinite price",
			bars:     []bar{goodBar(0, "ABC"), infHigh},
			severity: domain.SeverityError, rows: [][]int{{1}},
			contains: "high=+Inf",
		},
		{
			name:     "duplicate timestamp in series",
			bars:     []bar{goodBar(0, "ABC"), goodBar(1, "ABC"), goodBar(1, "ABC")},
			severity: domain.SeverityWarning, column: "timestamp", rows: [][]int{{2}},
			contains: "first at row 1",
		},
		{
			name:     "out of order timestamp",
			bars:     []bar{goodBar(0, "ABC"), goodBar(2, "ABC"), goodBar(1, "ABC")},
			severity: domain.SeverityWarning, column: "timestamp", rows: [][]int{{2}},
			contains: "earlier than",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues, err := ValidateConsistency(context.Background(), ohlcvTable(tt.bars...), ConsistencyOptions{})
			require.NoError(t, err)
			require.Len(t, issues, 1, "%v", issues)
			is := issues[0]
			assert.Equal(t, tt.severity, is.Severity)
			assert.Equal(t, domain.CategoryConsistency, is.Category)
			assert.Equal(t, tt.column, is.Column)
			assert.Equal(t, tt.rows, rowsOf(issues))
			assert.Contains(t, is.Message, tt.contains)
		})
	}
}

func TestValidateConsistencySeparateSeries(t *testing.T) {
	// the same day for two symbols is not a duplicate
	tbl := ohlcvTable(goodBar(0, "ABC"), goodBar(0, "XYZ"), goodBar(1, "ABC"), goodBar(1, "XYZ"))
	issues, err := ValidateConsistency(context.Background(), tbl, ConsistencyOptions{})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestValidateConsistencyWithoutSymbolUsesWholeTable(t *testing.T) {
	tbl := domain.MustTable(
		domain.Column{Name: "Date", Type: domain.TypeTimestamp, Values: []any{t0, t0}},
		domain.Column{Name: "close", Type: domain.TypeFloat, Values: []any{1.0, 2.0}},
	)
	issues, err := ValidateConsistency(context.Background(), tbl, ConsistencyOptions{})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "Date", issues[0].Column)
	assert.Equal(t, domain.SeverityWarning, issues[0].Severity)
}

func TestValidateConsistencySampling(t *testing.T) {
	var bars []bar
	for i := 0; i < 10; i++ {
		b := goodBar(i, "ABC")
		b.volume = int64(-1)
		bars = append(bars, b)
	}

	issues, err := ValidateConsistency(context.Background(), ohlcvTable(bars...), ConsistencyOptions{SampleIssueLimit: 3})
	require.NoError(t, err)
	require.Len(t, issues, 4)
	assert.Equal(t, [][]int{{0}, {1}, {2}, {3, 4, 5}}, rowsOf(issues))

	summary := issues[3]
	assert.Equal(t, domain.SeverityError, summary.Severity)
	assert.Equal(t, 7, summary.Count)
	assert.Contains(t, summary.Message, "7 more rows with negative volume")
}

func TestValidateConsistencySkipsTextPrices(t *testing.T) {
	tbl := domain.MustTable(
		domain.Column{Name: "high", Type: domain.TypeText, Values: []any{"1"}},
		domain.Column{Name: "low", Type: domain.TypeFloat, Values: []any{5.0}},
	)
	issues, err := ValidateConsistency(context.Background(), tbl, ConsistencyOptions{})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestValidateConsistencyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := goodBar(0, "ABC")
	b.volume = int64(-1)
	issues, err := ValidateConsistency(ctx, ohlcvTable(b), ConsistencyOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, issues)
}
