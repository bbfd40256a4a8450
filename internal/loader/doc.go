// Package loader turns file sources into NormalizedTables.
//
// LoadOne detects a source's format, tries the matching reader and then
// the remaining readers in priority order, and reports the result as a
// LoadOutcome. LoadMany and LoadDirectory run LoadOne concurrently under a
// worker limit and merge the loaded tables that share a signature.
//
// Problems with individual sources never fail a batch; only invalid
// options or an unreadable directory root are returned as errors.
package loader
