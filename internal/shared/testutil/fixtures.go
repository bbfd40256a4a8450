package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// OHLCVHeader is the header row of generated price files
const OHLCVHeader = "timestamp,symbol,open,high,low,close,volume"

// Bar is one OHLCV row for fixtures
type Bar struct {
	Time   time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// DailyBars returns n consistent bars for symbol starting at start, one per day.
func DailyBars(symbol string, start time.Time, n int) []Bar {
	bars := make([]Bar, n)
	price := 100.0
	for i := range bars {
		open := price
		closePx := price + float64(i%3) - 1
		bars[i] = Bar{
			Time:   start.AddDate(0, 0, i),
			Symbol: symbol,
			Open:   open,
			High:   maxf(open, closePx) + 1.5,
			Low:    minf(open, closePx) - 1.5,
			Close:  closePx,
			Volume: int64(1000 + 10*i),
		}
		price = closePx
	}
	return bars
}

// CSV renders bars as CSV with OHLCVHeader
func CSV(bars []Bar) string {
	var b strings.Builder
	b.WriteString(OHLCVHeader + "\n")
	for _, bar := range bars {
		fmt.Fprintf(&b, "%s,%s,%.2f,%.2f,%.2f,%.2f,%d\n",
			bar.Time.UTC().Format(time.RFC3339), bar.Symbol,
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	}
	return b.String()
}

// JSONLines renders bars as one JSON object per line
func JSONLines(bars []Bar) string {
	var b strings.Builder
	for _, bar := range bars {
		fmt.Fprintf(&b, `{"timestamp":%q,"symbol":%q,"open":%.2f,"high":%.2f,"low":%.2f,"close":%.2f,"volume":%d}`+"\n",
			bar.Time.UTC().Format(time.RFC3339), bar.Symbol,
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	}
	return b.String()
}

// WriteFile writes content under dir and returns the full path. Parent
// directories are created.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
