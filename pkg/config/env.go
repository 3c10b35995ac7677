package config

import "os"

// Environment variables recognized for credentials. They take precedence over
// values stored in the configuration backend so that keys never have to live
// in a checked-in config file.
const (
	EnvCDSAPIURL = "CDSAPI_URL"
	EnvCDSAPIKey = "CDSAPI_KEY"
	EnvEMIAPIKey = "EMI_API_KEY"
)

// ApplyEnvOverrides overlays credential environment variables onto a loaded
// configuration. Callers typically load a .env file first (godotenv).
func ApplyEnvOverrides(cfg *ConfigData) {
	if cfg == nil {
		return
	}
	if cfg.Sources.Copernicus != nil {
		if v := os.Getenv(EnvCDSAPIURL); v != "" {
			cfg.Sources.Copernicus.APIURL = v
		}
		if v := os.Getenv(EnvCDSAPIKey); v != "" {
			cfg.Sources.Copernicus.APIKey = v
		}
	}
	if cfg.Sources.EMI != nil {
		if v := os.Getenv(EnvEMIAPIKey); v != "" {
			cfg.Sources.EMI.APIKey = v
		}
	}
}
