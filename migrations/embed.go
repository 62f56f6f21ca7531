// Package migrations embeds the SQL schema migrations.
package migrations

import "embed"

// FS holds every *.sql migration, named NNNNNN_name.{up,down}.sql.
//
//go:embed *.sql
var FS embed.FS
