// Package migrations embeds the SQL migrations of the history database.
package migrations

import "embed"

// FS contains the migration files
//
//go:embed *.sql
var FS embed.FS
