package config

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS config_data (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	data_directory TEXT NOT NULL DEFAULT 'data',
	station_inventory TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS sources (
	name TEXT PRIMARY KEY,
	base_url TEXT NOT NULL DEFAULT '',
	api_key TEXT NOT NULL DEFAULT '',
	dataset TEXT NOT NULL DEFAULT '',
	variable TEXT NOT NULL DEFAULT '',
	area TEXT NOT NULL DEFAULT '',
	departments TEXT NOT NULL DEFAULT '',
	blacklisted_ids TEXT NOT NULL DEFAULT '',
	page_size INTEGER NOT NULL DEFAULT 0,
	min_years_history INTEGER NOT NULL DEFAULT 0,
	sswi_url TEXT NOT NULL DEFAULT '',
	precipitation_url TEXT NOT NULL DEFAULT '',
	refresh_cron TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS storage (
	type TEXT PRIMARY KEY,
	directory TEXT NOT NULL DEFAULT '',
	connection_string TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS controllers (
	type TEXT PRIMARY KEY,
	listen_addr TEXT NOT NULL DEFAULT '',
	port INTEGER NOT NULL DEFAULT 0,
	cert TEXT NOT NULL DEFAULT '',
	key TEXT NOT NULL DEFAULT '',
	default_department TEXT NOT NULL DEFAULT '',
	output_dir TEXT NOT NULL DEFAULT '',
	formats TEXT NOT NULL DEFAULT '',
	render_cron TEXT NOT NULL DEFAULT '',
	indicator TEXT NOT NULL DEFAULT ''
);
`

// Initialize creates the configuration schema if it does not exist
func (s *SQLiteProvider) Initialize() error {
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("failed to create config schema: %w", err)
	}
	return nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	row := s.db.QueryRow(`SELECT data_directory, station_inventory FROM config_data WHERE id = 1`)
	if err := row.Scan(&config.Data.Directory, &config.Data.StationInventory); err != nil {
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to load data section: %w", err)
		}
	}

	sources, err := s.GetSources()
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	config.Sources = *sources

	storage, err := s.GetStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	config.Storage = *storage

	controllers, err := s.GetControllers()
	if err != nil {
		return nil, fmt.Errorf("failed to load controllers: %w", err)
	}
	config.Controllers = controllers

	ApplyEnvOverrides(config)
	return config, nil
}

// GetSources returns source configurations from the database
func (s *SQLiteProvider) GetSources() (*SourcesData, error) {
	rows, err := s.db.Query(`
		SELECT name, base_url, api_key, dataset, variable, area, departments,
		       blacklisted_ids, page_size, min_years_history, sswi_url,
		       precipitation_url, refresh_cron
		FROM sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	sources := &SourcesData{}
	for rows.Next() {
		var (
			name, baseURL, apiKey, dataset, variable    string
			area, departments, blacklist                string
			pageSize, minYears                          int
			sswiURL, precipURL, refreshCron             string
		)
		err := rows.Scan(&name, &baseURL, &apiKey, &dataset, &variable, &area,
			&departments, &blacklist, &pageSize, &minYears, &sswiURL,
			&precipURL, &refreshCron)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}

		switch name {
		case "hubeau":
			sources.Hubeau = &HubeauData{
				BaseURL:         baseURL,
				Departments:     splitList(departments),
				PageSize:        pageSize,
				RefreshCron:     refreshCron,
				MinYearsHistory: minYears,
			}
		case "copernicus":
			sources.Copernicus = &CopernicusData{
				APIURL:      baseURL,
				APIKey:      apiKey,
				Dataset:     dataset,
				Variable:    variable,
				Area:        parseArea(area),
				RefreshCron: refreshCron,
			}
		case "meteofrance":
			sources.MeteoFrance = &MeteoFranceData{
				SSWIURL:          sswiURL,
				PrecipitationURL: precipURL,
				RefreshCron:      refreshCron,
			}
		case "emi":
			sources.EMI = &EMIData{
				BaseURL:       baseURL,
				APIKey:        apiKey,
				Departments:   splitList(departments),
				BlacklistedID: splitList(blacklist),
				RefreshCron:   refreshCron,
			}
		}
	}
	return sources, rows.Err()
}

// GetStorageConfig returns storage configurations from the database
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	rows, err := s.db.Query(`SELECT type, directory, connection_string FROM storage`)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage: %w", err)
	}
	defer rows.Close()

	storage := &StorageData{}
	for rows.Next() {
		var storageType, directory, connStr string
		if err := rows.Scan(&storageType, &directory, &connStr); err != nil {
			return nil, fmt.Errorf("failed to scan storage row: %w", err)
		}
		switch storageType {
		case "csvcache":
			storage.CSVCache = &CSVCacheData{Directory: directory}
		case "timescaledb":
			storage.TimescaleDB = &TimescaleDBData{ConnectionString: connStr}
		}
	}
	return storage, rows.Err()
}

// GetControllers returns controller configurations from the database
func (s *SQLiteProvider) GetControllers() ([]ControllerData, error) {
	rows, err := s.db.Query(`
		SELECT type, listen_addr, port, cert, key, default_department,
		       output_dir, formats, render_cron, indicator
		FROM controllers ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to query controllers: %w", err)
	}
	defer rows.Close()

	var controllers []ControllerData
	for rows.Next() {
		var (
			ctrlType, listenAddr, cert, key, defaultDept string
			outputDir, formats, renderCron, indicator    string
			port                                         int
		)
		err := rows.Scan(&ctrlType, &listenAddr, &port, &cert, &key,
			&defaultDept, &outputDir, &formats, &renderCron, &indicator)
		if err != nil {
			return nil, fmt.Errorf("failed to scan controller row: %w", err)
		}

		ctrl := ControllerData{Type: ctrlType}
		switch ctrlType {
		case "rest":
			ctrl.RESTServer = &RESTServerData{
				Cert:              cert,
				Key:               key,
				ListenAddr:        listenAddr,
				Port:              port,
				DefaultDepartment: defaultDept,
			}
		case "reports":
			ctrl.Reports = &ReportsData{
				OutputDir:   outputDir,
				Formats:     splitList(formats),
				RenderCron:  renderCron,
				IndicatorID: indicator,
			}
		}
		controllers = append(controllers, ctrl)
	}
	return controllers, rows.Err()
}

// SaveConfig writes a complete configuration into the database. Used by the
// config-convert tool.
func (s *SQLiteProvider) SaveConfig(cfg *ConfigData) error {
	if err := s.Initialize(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR REPLACE INTO config_data (id, data_directory, station_inventory) VALUES (1, ?, ?)`,
		cfg.Data.Directory, cfg.Data.StationInventory)
	if err != nil {
		return fmt.Errorf("failed to save data section: %w", err)
	}

	insertSource := `INSERT OR REPLACE INTO sources
		(name, base_url, api_key, dataset, variable, area, departments,
		 blacklisted_ids, page_size, min_years_history, sswi_url,
		 precipitation_url, refresh_cron)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if h := cfg.Sources.Hubeau; h != nil {
		_, err = tx.Exec(insertSource, "hubeau", h.BaseURL, "", "", "", "",
			joinList(h.Departments), "", h.PageSize, h.MinYearsHistory, "", "", h.RefreshCron)
		if err != nil {
			return fmt.Errorf("failed to save hubeau source: %w", err)
		}
	}
	if c := cfg.Sources.Copernicus; c != nil {
		_, err = tx.Exec(insertSource, "copernicus", c.APIURL, c.APIKey, c.Dataset,
			c.Variable, formatArea(c.Area), "", "", 0, 0, "", "", c.RefreshCron)
		if err != nil {
			return fmt.Errorf("failed to save copernicus source: %w", err)
		}
	}
	if m := cfg.Sources.MeteoFrance; m != nil {
		_, err = tx.Exec(insertSource, "meteofrance", "", "", "", "", "", "", "",
			0, 0, m.SSWIURL, m.PrecipitationURL, m.RefreshCron)
		if err != nil {
			return fmt.Errorf("failed to save meteofrance source: %w", err)
		}
	}
	if e := cfg.Sources.EMI; e != nil {
		_, err = tx.Exec(insertSource, "emi", e.BaseURL, e.APIKey, "", "", "",
			joinList(e.Departments), joinList(e.BlacklistedID), 0, 0, "", "", e.RefreshCron)
		if err != nil {
			return fmt.Errorf("failed to save emi source: %w", err)
		}
	}

	insertStorage := `INSERT OR REPLACE INTO storage (type, directory, connection_string) VALUES (?, ?, ?)`
	if cfg.Storage.CSVCache != nil {
		if _, err = tx.Exec(insertStorage, "csvcache", cfg.Storage.CSVCache.Directory, ""); err != nil {
			return fmt.Errorf("failed to save csvcache storage: %w", err)
		}
	}
	if cfg.Storage.TimescaleDB != nil {
		if _, err = tx.Exec(insertStorage, "timescaledb", "", cfg.Storage.TimescaleDB.ConnectionString); err != nil {
			return fmt.Errorf("failed to save timescaledb storage: %w", err)
		}
	}

	insertController := `INSERT OR REPLACE INTO controllers
		(type, listen_addr, port, cert, key, default_department, output_dir,
		 formats, render_cron, indicator)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, ctrl := range cfg.Controllers {
		switch {
		case ctrl.RESTServer != nil:
			r := ctrl.RESTServer
			_, err = tx.Exec(insertController, "rest", r.ListenAddr, r.Port,
				r.Cert, r.Key, r.DefaultDepartment, "", "", "", "")
		case ctrl.Reports != nil:
			r := ctrl.Reports
			_, err = tx.Exec(insertController, "reports", "", 0, "", "", "",
				r.OutputDir, joinList(r.Formats), r.RenderCron, r.IndicatorID)
		}
		if err != nil {
			return fmt.Errorf("failed to save controller %q: %w", ctrl.Type, err)
		}
	}

	return tx.Commit()
}

// IsReadOnly returns false: SQLite configs support runtime edits
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	return s.db.Close()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func joinList(items []string) string {
	return strings.Join(items, ",")
}

func parseArea(s string) []float64 {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil
	}
	area := make([]float64, 0, len(parts))
	for _, p := range parts {
		var v float64
		if _, err := fmt.Sscanf(p, "%f", &v); err != nil {
			return nil
		}
		area = append(area, v)
	}
	return area
}

func formatArea(area []float64) string {
	parts := make([]string, len(area))
	for i, v := range area {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, ",")
}
