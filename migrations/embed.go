// Package migrations embeds the SQL schema migrations applied to the
// local cache database at startup.
package migrations

import "embed"

// FS contains all goose migration files.
//
//go:embed *.sql
var FS embed.FS
