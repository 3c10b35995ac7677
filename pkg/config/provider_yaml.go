package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// yamlConfig mirrors ConfigData with YAML tags
type yamlConfig struct {
	Data struct {
		Directory        string `yaml:"directory"`
		StationInventory string `yaml:"station_inventory,omitempty"`
	} `yaml:"data"`
	Sources struct {
		Hubeau *struct {
			BaseURL         string   `yaml:"base_url,omitempty"`
			Departments     []string `yaml:"departments,omitempty"`
			PageSize        int      `yaml:"page_size,omitempty"`
			RefreshCron     string   `yaml:"refresh_cron,omitempty"`
			MinYearsHistory int      `yaml:"min_years_history,omitempty"`
		} `yaml:"hubeau,omitempty"`
		Copernicus *struct {
			APIURL      string    `yaml:"api_url,omitempty"`
			APIKey      string    `yaml:"api_key,omitempty"`
			Dataset     string    `yaml:"dataset,omitempty"`
			Variable    string    `yaml:"variable,omitempty"`
			Area        []float64 `yaml:"area,omitempty"`
			RefreshCron string    `yaml:"refresh_cron,omitempty"`
		} `yaml:"copernicus,omitempty"`
		MeteoFrance *struct {
			SSWIURL          string `yaml:"sswi_url,omitempty"`
			PrecipitationURL string `yaml:"precipitation_url,omitempty"`
			RefreshCron      string `yaml:"refresh_cron,omitempty"`
		} `yaml:"meteofrance,omitempty"`
		EMI *struct {
			BaseURL       string   `yaml:"base_url,omitempty"`
			APIKey        string   `yaml:"api_key,omitempty"`
			Departments   []string `yaml:"departments,omitempty"`
			BlacklistedID []string `yaml:"blacklisted_ids,omitempty"`
			RefreshCron   string   `yaml:"refresh_cron,omitempty"`
		} `yaml:"emi,omitempty"`
	} `yaml:"sources"`
	Storage struct {
		CSVCache *struct {
			Directory string `yaml:"directory,omitempty"`
		} `yaml:"csvcache,omitempty"`
		TimescaleDB *struct {
			ConnectionString string `yaml:"connection_string"`
		} `yaml:"timescaledb,omitempty"`
	} `yaml:"storage,omitempty"`
	Controllers []struct {
		Type string `yaml:"type,omitempty"`
		REST *struct {
			Cert              string `yaml:"cert,omitempty"`
			Key               string `yaml:"key,omitempty"`
			ListenAddr        string `yaml:"listen_addr,omitempty"`
			Port              int    `yaml:"port"`
			DefaultDepartment string `yaml:"default_department,omitempty"`
		} `yaml:"rest,omitempty"`
		Reports *struct {
			OutputDir   string   `yaml:"output_dir,omitempty"`
			Formats     []string `yaml:"formats,omitempty"`
			RenderCron  string   `yaml:"render_cron,omitempty"`
			IndicatorID string   `yaml:"indicator,omitempty"`
		} `yaml:"reports,omitempty"`
	} `yaml:"controllers,omitempty"`
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(cfgFile, &raw); err != nil {
		return nil, err
	}

	config := &ConfigData{
		Data: DataData{
			Directory:        raw.Data.Directory,
			StationInventory: raw.Data.StationInventory,
		},
	}

	// Convert sources
	if raw.Sources.Hubeau != nil {
		config.Sources.Hubeau = &HubeauData{
			BaseURL:         raw.Sources.Hubeau.BaseURL,
			Departments:     raw.Sources.Hubeau.Departments,
			PageSize:        raw.Sources.Hubeau.PageSize,
			RefreshCron:     raw.Sources.Hubeau.RefreshCron,
			MinYearsHistory: raw.Sources.Hubeau.MinYearsHistory,
		}
	}
	if raw.Sources.Copernicus != nil {
		config.Sources.Copernicus = &CopernicusData{
			APIURL:      raw.Sources.Copernicus.APIURL,
			APIKey:      raw.Sources.Copernicus.APIKey,
			Dataset:     raw.Sources.Copernicus.Dataset,
			Variable:    raw.Sources.Copernicus.Variable,
			Area:        raw.Sources.Copernicus.Area,
			RefreshCron: raw.Sources.Copernicus.RefreshCron,
		}
	}
	if raw.Sources.MeteoFrance != nil {
		config.Sources.MeteoFrance = &MeteoFranceData{
			SSWIURL:          raw.Sources.MeteoFrance.SSWIURL,
			PrecipitationURL: raw.Sources.MeteoFrance.PrecipitationURL,
			RefreshCron:      raw.Sources.MeteoFrance.RefreshCron,
		}
	}
	if raw.Sources.EMI != nil {
		config.Sources.EMI = &EMIData{
			BaseURL:       raw.Sources.EMI.BaseURL,
			APIKey:        raw.Sources.EMI.APIKey,
			Departments:   raw.Sources.EMI.Departments,
			BlacklistedID: raw.Sources.EMI.BlacklistedID,
			RefreshCron:   raw.Sources.EMI.RefreshCron,
		}
	}

	// Convert storage
	if raw.Storage.CSVCache != nil {
		config.Storage.CSVCache = &CSVCacheData{
			Directory: raw.Storage.CSVCache.Directory,
		}
	}
	if raw.Storage.TimescaleDB != nil {
		config.Storage.TimescaleDB = &TimescaleDBData{
			ConnectionString: raw.Storage.TimescaleDB.ConnectionString,
		}
	}

	// Convert controllers
	for _, ctrl := range raw.Controllers {
		converted := ControllerData{Type: ctrl.Type}
		if ctrl.REST != nil {
			converted.RESTServer = &RESTServerData{
				Cert:              ctrl.REST.Cert,
				Key:               ctrl.REST.Key,
				ListenAddr:        ctrl.REST.ListenAddr,
				Port:              ctrl.REST.Port,
				DefaultDepartment: ctrl.REST.DefaultDepartment,
			}
		}
		if ctrl.Reports != nil {
			converted.Reports = &ReportsData{
				OutputDir:   ctrl.Reports.OutputDir,
				Formats:     ctrl.Reports.Formats,
				RenderCron:  ctrl.Reports.RenderCron,
				IndicatorID: ctrl.Reports.IndicatorID,
			}
		}
		config.Controllers = append(config.Controllers, converted)
	}

	ApplyEnvOverrides(config)

	y.config = config
	return config, nil
}

// GetSources returns the source configurations
func (y *YAMLProvider) GetSources() (*SourcesData, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return &y.config.Sources, nil
}

// GetStorageConfig returns the storage configuration
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return &y.config.Storage, nil
}

// GetControllers returns the controller configurations
func (y *YAMLProvider) GetControllers() ([]ControllerData, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return y.config.Controllers, nil
}

// IsReadOnly returns true: YAML configs are not editable at runtime
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML providers
func (y *YAMLProvider) Close() error {
	return nil
}
