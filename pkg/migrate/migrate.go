// Package migrate applies versioned SQL migrations to the TimescaleDB
// schema. Migrations are plain .up.sql/.down.sql file pairs; the applied
// version is tracked in a table alongside the schema itself.
package migrate

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// DB is the subset of database/sql shared by connections and transactions.
type DB interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// MigrationProvider supplies migrations and tracks the applied version.
type MigrationProvider interface {
	GetMigrations() ([]Migration, error)
	GetCurrentVersion(db *sql.DB) (int, error)
	SetVersion(db DB, version int) error
	CreateMigrationTable(db *sql.DB) error
}

// Migrator walks a database between schema versions.
type Migrator struct {
	db       *sql.DB
	provider MigrationProvider
}

// NewMigrator creates a migrator over db.
func NewMigrator(db *sql.DB, provider MigrationProvider) *Migrator {
	return &Migrator{db: db, provider: provider}
}

// MigrateUp applies every pending migration.
func (m *Migrator) MigrateUp() error {
	return m.MigrateTo(-1)
}

// MigrateTo moves the schema to targetVersion, applying or reverting
// migrations as needed. A target of -1 means the newest known version.
func (m *Migrator) MigrateTo(targetVersion int) error {
	if err := m.provider.CreateMigrationTable(m.db); err != nil {
		return err
	}
	current, err := m.provider.GetCurrentVersion(m.db)
	if err != nil {
		return err
	}
	migrations, err := m.sortedMigrations()
	if err != nil {
		return err
	}

	if targetVersion == -1 {
		if len(migrations) == 0 {
			return nil
		}
		targetVersion = migrations[len(migrations)-1].Version
	}
	if targetVersion < current {
		return m.MigrateDown(targetVersion)
	}

	for _, mig := range migrations {
		if mig.Version <= current || mig.Version > targetVersion {
			continue
		}
		if err := m.apply(mig, true); err != nil {
			return fmt.Errorf("applying migration %d: %w", mig.Version, err)
		}
	}
	return nil
}

// MigrateDown reverts migrations until the schema is at targetVersion.
func (m *Migrator) MigrateDown(targetVersion int) error {
	current, err := m.provider.GetCurrentVersion(m.db)
	if err != nil {
		return err
	}
	if targetVersion >= current {
		return fmt.Errorf("target version %d is not below current version %d", targetVersion, current)
	}
	migrations, err := m.sortedMigrations()
	if err != nil {
		return err
	}

	// revert newest first
	for i := len(migrations) - 1; i >= 0; i-- {
		mig := migrations[i]
		if mig.Version > current || mig.Version <= targetVersion {
			continue
		}
		if err := m.apply(mig, false); err != nil {
			return fmt.Errorf("reverting migration %d: %w", mig.Version, err)
		}
	}
	return nil
}

// GetCurrentVersion reports the applied schema version, creating the
// tracking table on first use.
func (m *Migrator) GetCurrentVersion() (int, error) {
	if err := m.provider.CreateMigrationTable(m.db); err != nil {
		return 0, err
	}
	return m.provider.GetCurrentVersion(m.db)
}

// GetPendingMigrations lists the migrations newer than the applied version,
// oldest first.
func (m *Migrator) GetPendingMigrations() ([]Migration, error) {
	current, err := m.GetCurrentVersion()
	if err != nil {
		return nil, err
	}
	migrations, err := m.sortedMigrations()
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, mig := range migrations {
		if mig.Version > current {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// SetVersion records a version without running any SQL. Meant for repairing
// a tracking table that got out of sync with the schema.
func (m *Migrator) SetVersion(version int) error {
	return m.provider.SetVersion(m.db, version)
}

func (m *Migrator) sortedMigrations() ([]Migration, error) {
	migrations, err := m.provider.GetMigrations()
	if err != nil {
		return nil, err
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// apply runs one migration in a transaction, updating the tracked version
// with the same commit.
func (m *Migrator) apply(mig Migration, up bool) error {
	statement := mig.Up
	direction := "up"
	newVersion := mig.Version
	if !up {
		statement = mig.Down
		direction = "down"
		newVersion = mig.Version - 1
	}
	if statement == "" {
		return fmt.Errorf("migration %d has no %s SQL", mig.Version, direction)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(statement); err != nil {
		return err
	}
	if err := m.provider.SetVersion(tx, newVersion); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	fmt.Printf("migration %d (%s) applied %s\n", mig.Version, mig.Name, direction)
	return nil
}
