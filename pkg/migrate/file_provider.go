package migrate

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// migrationFile matches 001_create_measurements.up.sql and its .down twin.
var migrationFile = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// FileProvider loads migrations from a directory of SQL files.
type FileProvider struct {
	dir            string
	migrationTable string
	dbDriver       string // "sqlite" or "postgres"
}

// NewFileProvider creates a provider with the sqlite driver dialect.
func NewFileProvider(dir string, migrationTable string) *FileProvider {
	return NewFileProviderWithDriver(dir, migrationTable, "sqlite")
}

// NewFileProviderWithDriver creates a provider for the given driver dialect.
func NewFileProviderWithDriver(dir string, migrationTable string, dbDriver string) *FileProvider {
	if migrationTable == "" {
		migrationTable = "schema_migrations"
	}
	return &FileProvider{
		dir:            dir,
		migrationTable: migrationTable,
		dbDriver:       dbDriver,
	}
}

// GetMigrations reads every up/down pair under the migration directory.
func (fp *FileProvider) GetMigrations() ([]Migration, error) {
	entries, err := os.ReadDir(fp.dir)
	if err != nil {
		return nil, fmt.Errorf("reading migration directory %s: %w", fp.dir, err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := migrationFile.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version: %w", entry.Name(), err)
		}

		content, err := os.ReadFile(filepath.Join(fp.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		mig := byVersion[version]
		if mig == nil {
			mig = &Migration{
				Version: version,
				Name:    strings.ReplaceAll(matches[2], "_", " "),
			}
			byVersion[version] = mig
		}
		if matches[3] == "up" {
			mig.Up = string(content)
		} else {
			mig.Down = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		migrations = append(migrations, *mig)
	}
	return migrations, nil
}

// CreateMigrationTable creates the version tracking table when absent.
func (fp *FileProvider) CreateMigrationTable(db *sql.DB) error {
	timestampType := "DATETIME"
	if fp.dbDriver == "postgres" {
		timestampType = "TIMESTAMP"
	}
	query := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (version INTEGER PRIMARY KEY, applied_at %s DEFAULT CURRENT_TIMESTAMP)",
		fp.migrationTable, timestampType)

	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("creating migration table: %w", err)
	}
	return nil
}

// GetCurrentVersion returns the highest applied version, zero for a fresh
// database.
func (fp *FileProvider) GetCurrentVersion(db *sql.DB) (int, error) {
	var version int
	query := fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", fp.migrationTable)
	if err := db.QueryRow(query).Scan(&version); err != nil {
		return 0, fmt.Errorf("reading migration version: %w", err)
	}
	return version, nil
}

// SetVersion records version in the tracking table. Version zero clears the
// table entirely.
func (fp *FileProvider) SetVersion(db DB, version int) error {
	var err error
	switch {
	case version == 0:
		_, err = db.Exec(fmt.Sprintf("DELETE FROM %s", fp.migrationTable))
	case fp.dbDriver == "postgres":
		_, err = db.Exec(fmt.Sprintf(
			"INSERT INTO %s (version, applied_at) VALUES ($1, CURRENT_TIMESTAMP) ON CONFLICT (version) DO UPDATE SET applied_at = CURRENT_TIMESTAMP",
			fp.migrationTable), version)
	default:
		_, err = db.Exec(fmt.Sprintf(
			"INSERT OR REPLACE INTO %s (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)",
			fp.migrationTable), version)
	}
	if err != nil {
		return fmt.Errorf("recording migration version: %w", err)
	}
	return nil
}
