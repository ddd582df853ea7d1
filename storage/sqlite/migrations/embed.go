package migrations

import "embed"

// FS contains embedded SQLite migrations for match and user storage.
//
//go:embed *.sql
var FS embed.FS
