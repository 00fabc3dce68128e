// Package migrations embeds the SQL migration files into the binary so the
// journal schema can be created without the files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-fauxmo/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.Migrations = migrationsFS
}
