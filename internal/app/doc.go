// Package app wires the configured components into one Application: the
// logger, telemetry providers, history store, loader, validator and the
// services built on them.
//
// Initialization order:
//
//  1. Logger (console, rotated file or both)
//  2. OpenTelemetry providers, or no-op providers when disabled
//  3. History store (memory or SQLite)
//  4. Loader, validator and exporter
//  5. Data and health services
//
// Close releases the store and flushes telemetry. Callers that serve the
// ops endpoints get a router from Router.
package app
