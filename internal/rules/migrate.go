// Package rules implements rule storage and loading: an in-memory
// copy-on-write RuleRegistry, a YAML file loader, and a SQLite-backed
// store, mirroring the teacher repo's state package persistence idiom.
package rules

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const rulesMigrationsPath = "migrations/rules"

//go:embed migrations/rules/*.sql
var migrationsFS embed.FS

const migrationsTable = "schema_migrations"

// MigrateRulesDB applies rules.db migrations, creating flow_rules and
// degrade_rules if they don't already exist.
func MigrateRulesDB(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate rules: nil db")
	}

	sourceDriver, err := iofs.New(migrationsFS, rulesMigrationsPath)
	if err != nil {
		return fmt.Errorf("migrate rules: init source: %w", err)
	}
	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("migrate rules: init db driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("migrate rules: init migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate rules: up: %w", err)
	}
	return nil
}
