// Package config defines the configuration model and its storage backends
// (YAML files and SQLite databases).
package config

import "time"

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetSources() (*SourcesData, error)
	GetStorageConfig() (*StorageData, error)
	GetControllers() ([]ControllerData, error)

	// Configuration management
	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Data        DataData         `json:"data"`
	Sources     SourcesData      `json:"sources"`
	Storage     StorageData      `json:"storage,omitempty"`
	Controllers []ControllerData `json:"controllers,omitempty"`
}

// DataData holds the local cache layout
type DataData struct {
	Directory string `json:"directory"`
	// StationInventory defaults to <directory>/stations.csv when empty
	StationInventory string `json:"station_inventory,omitempty"`
}

// SourcesData holds configuration for the upstream data providers
type SourcesData struct {
	Hubeau      *HubeauData      `json:"hubeau,omitempty"`
	Copernicus  *CopernicusData  `json:"copernicus,omitempty"`
	MeteoFrance *MeteoFranceData `json:"meteofrance,omitempty"`
	EMI         *EMIData         `json:"emi,omitempty"`
}

// HubeauData configures the Hubeau piezometry API client
type HubeauData struct {
	BaseURL         string   `json:"base_url,omitempty"`
	Departments     []string `json:"departments,omitempty"`
	PageSize        int      `json:"page_size,omitempty"`
	RefreshCron     string   `json:"refresh_cron,omitempty"`
	MinYearsHistory int      `json:"min_years_history,omitempty"`
}

// CopernicusData configures the Climate Data Store API client
type CopernicusData struct {
	APIURL      string    `json:"api_url,omitempty"`
	APIKey      string    `json:"api_key,omitempty"`
	Dataset     string    `json:"dataset,omitempty"`
	Variable    string    `json:"variable,omitempty"`
	Area        []float64 `json:"area,omitempty"` // north, west, south, east
	RefreshCron string    `json:"refresh_cron,omitempty"`
}

// MeteoFranceData configures the Meteo France bulletin reader
type MeteoFranceData struct {
	SSWIURL          string `json:"sswi_url,omitempty"`
	PrecipitationURL string `json:"precipitation_url,omitempty"`
	RefreshCron      string `json:"refresh_cron,omitempty"`
}

// EMIData configures the imageau EMI API client
type EMIData struct {
	BaseURL       string   `json:"base_url,omitempty"`
	APIKey        string   `json:"api_key,omitempty"`
	Departments   []string `json:"departments,omitempty"`
	BlacklistedID []string `json:"blacklisted_ids,omitempty"`
	RefreshCron   string   `json:"refresh_cron,omitempty"`
}

// StorageData holds the configuration for various storage backends
type StorageData struct {
	CSVCache    *CSVCacheData    `json:"csvcache,omitempty"`
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty"`
}

// CSVCacheData configures the on-disk CSV cache backend
type CSVCacheData struct {
	Directory string `json:"directory,omitempty"`
}

// TimescaleDBData configures the TimescaleDB backend
type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
}

// ControllerData holds the configuration for various controller backends
type ControllerData struct {
	Type       string          `json:"type,omitempty"`
	RESTServer *RESTServerData `json:"rest,omitempty"`
	Reports    *ReportsData    `json:"reports,omitempty"`
}

// RESTServerData configures the dashboard REST server
type RESTServerData struct {
	Cert              string `json:"cert,omitempty"`
	Key               string `json:"key,omitempty"`
	ListenAddr        string `json:"listen_addr,omitempty"`
	Port              int    `json:"port"`
	DefaultDepartment string `json:"default_department,omitempty"`
}

// ReportsData configures static chart rendering
type ReportsData struct {
	OutputDir   string   `json:"output_dir,omitempty"`
	Formats     []string `json:"formats,omitempty"` // pdf, png, svg
	RenderCron  string   `json:"render_cron,omitempty"`
	IndicatorID string   `json:"indicator,omitempty"`
}

// StorageHealthData tracks the health of a storage backend
type StorageHealthData struct {
	LastCheck time.Time `json:"last_check"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}
