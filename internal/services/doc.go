// Package services composes the loader, the validators and the run
// history into the operations the CLI and the ops HTTP surface call.
//
// DataService ingests files or directories: it loads them, validates the
// aggregate table with the configured mode and records a store.Run.
// Per-source problems never fail an ingest; they are outcomes in the
// returned IngestResult. WatchDirectory repeats a directory ingest whenever
// files change.
//
// HealthService answers liveness and readiness probes for a long-running
// watch.
package services
