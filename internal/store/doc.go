// Package store keeps the history of ingest runs.
//
// HistoryStore has two implementations: MemoryStore for a single process
// and SQLiteStore, which persists runs in a SQLite file with embedded
// migrations. Open picks one from the store configuration.
package store
