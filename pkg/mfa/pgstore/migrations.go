package pgstore

import (
	"embed"

	"github.com/dmitrymomot/mfakit/pkg/pg"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the schema migrations for pg.Migrate.
func Migrations() pg.Migrations {
	return pg.Migrations{FS: migrationsFS, Dir: "migrations"}
}
