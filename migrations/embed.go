// Package migrations embeds the SQL migration files into the binary, so
// the descriptor store schema can be applied without the files being
// present on the filesystem.
package migrations

import "embed"

//go:embed *.sql
var migrationsFS embed.FS

// Files returns the embedded migration filesystem. The .sql files sit at
// its root.
func Files() embed.FS {
	return migrationsFS
}
