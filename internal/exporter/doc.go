// Package exporter writes NormalizedTables to disk.
//
// Export writes one table in any format that has a writer: CSV (with an
// optional UTF-8 BOM for Excel), JSON Lines, Parquet, DuckDB or Excel.
// ExportPartitioned splits a table by symbol or by day and writes one
// file per part, the way per-ticker history files are produced.
package exporter
