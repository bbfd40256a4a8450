// Package config loads and validates marketcore's configuration.
//
// # Configuration Sources
//
// Configuration is merged from the following sources, later ones winning:
//
//  1. Default values (Default)
//  2. A YAML file: the path given to Load, or the first of
//     ConfigFileNames found in SearchDirs
//  3. Environment variables
//
// # Environment Variables
//
// Variables follow the pattern MARKETCORE_<SECTION>_<FIELD>:
//
//	MARKETCORE_LOAD_CONCURRENCY_LIMIT=8
//	MARKETCORE_LOAD_PER_SOURCE_TIMEOUT=45s
//	MARKETCORE_VALIDATION_MODE=schemaOnly
//	MARKETCORE_VALIDATION_COLUMN_TYPES=volume:float,symbol:text
//	MARKETCORE_LOGGING_LEVEL=debug
//	MARKETCORE_STORE_DRIVER=sqlite
//	MARKETCORE_STORE_DB_PATH=/var/lib/marketcore/history.db
//
// # Validation
//
// The merged configuration is checked with go-playground/validator struct
// tags. All problems are reported together in one ConfigError, naming
// fields by their YAML keys:
//
//	load.concurrency_limit must be greater than or equal to 0; validation.mode must be one of: full, schemaOnly, consistencyOnly
//
// Library callers that build LoadOptions or ValidationOptions by hand can
// check them with ValidateLoad and ValidateValidation.
package config
