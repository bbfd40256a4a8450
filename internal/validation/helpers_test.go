package validation

import (
	"time"

	"marketcore/pkg/contracts/domain"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// bar is one OHLCV row; nil fields become null cells.
type bar struct {
	ts     any
	symbol any
	open   any
	high   any
	low    any
	close  any
	volume any
}

func goodBar(day int, symbol string) bar {
	return bar{t0.AddDate(0, 0, day), symbol, 10.0, 12.0, 9.0, 11.0, int64(100)}
}

func ohlcvTable(bars ...bar) *domain.NormalizedTable {
	cols := []domain.Column{
		{Name: "timestamp", Type: domain.TypeTimestamp},
		{Name: "symbol", Type: domain.TypeText},
		{Name: "open", Type: domain.TypeFloat},
		{Name: "high", Type: domain.TypeFloat},
		{Name: "low", Type: domain.TypeFloat},
		{Name: "close", Type: domain.TypeFloat},
		{Name: "volume", Type: domain.TypeInteger},
	}
	for _, b := range bars {
		for i, v := range []any{b.ts, b.symbol, b.open, b.high, b.low, b.close, b.volume} {
			cols[i].Values = append(cols[i].Values, v)
		}
	}
	return domain.MustTable(cols...)
}

func rowsOf(issues []domain.ValidationIssue) [][]int {
	out := make([][]int, len(issues))
	for i, is := range issues {
		out[i] = is.Rows
	}
	return out
}
