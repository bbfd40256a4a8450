// Package shared holds code used across marketcore's packages that belongs
// to none of them.
//
// The testutil subpackage provides:
//
//   - OHLCV fixtures (DailyBars) rendered as CSV or JSON Lines files
//   - a buffered slog handler for asserting on log output
//
// Example usage:
//
//	func TestIngest(t *testing.T) {
//	    dir := t.TempDir()
//	    testutil.WriteFile(t, dir, "a.csv", testutil.CSV(testutil.DailyBars("AAA", day0, 5)))
//	    logger, handler := testutil.NewTestLogger(t)
//	    // ...
//	    testutil.AssertLogContains(t, handler, slog.LevelInfo, "Ingest complete")
//	}
package shared
