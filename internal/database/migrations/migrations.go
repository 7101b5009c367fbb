// Package migrations holds the schema migrations run by the db command and
// on worker startup.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry every migration file adds itself to.
var Migrations = migrate.NewMigrations() //nolint:gochecknoglobals // -
