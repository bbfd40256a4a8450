// Package validation checks loaded market data tables.
//
// ValidateSchema compares column names and types with a declared schema
// using metadata only. ValidateConsistency makes one pass over the rows
// and reports OHLC relationship breaks, negative volumes, null critical
// fields and timestamp problems. Validator runs both concurrently
// according to its mode and merges the results with NewReport.
package validation
