package migrations

import "embed"

// MigrationsFS embeds the SQL migration files so the binary can migrate the
// database at startup without shipping loose files.
//
//go:embed *.sql
var MigrationsFS embed.FS
