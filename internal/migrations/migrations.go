// Package migrations holds the schema migration set for the access
// engine. Each migration lives in its own timestamped file and registers
// itself in init(); the db CLI commands drive them through
// bun's migrate.Migrator.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the collection every migration file registers into.
var Migrations = migrate.NewMigrations()
