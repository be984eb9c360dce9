// Package migrations embeds the schema migrations so the binary can bring
// a fresh SQLite file up to date without the .sql files on disk.
//
// Import it for side effects from main:
//
//	import _ "github.com/nerrad567/slotlink-core/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/slotlink-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
