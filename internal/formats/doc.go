// Package formats detects the container format of a market data source and
// converts it to and from a domain.NormalizedTable.
//
// Supported containers:
//   - CSV (delimiter sniffed, header required, types inferred from a sample)
//   - JSON Lines (or one top-level array of objects)
//   - Parquet (flat schemas)
//   - DuckDB database files (one table per read)
//   - Excel xlsx workbooks (header row located by keyword)
//
// Every reader either returns a complete table or a *errors.ReadError; a
// partial table is never produced. Writers emit canonical values so that
// reading a written table yields an equal table.
package formats
