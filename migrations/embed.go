// Package migrations embeds the bridge's SQL migrations into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/airlink-bridge/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.RegisterMigrations(migrationsFS, ".")
}
