package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
data:
  directory: /var/lib/watertracker
sources:
  hubeau:
    departments: ["18", "36"]
    page_size: 500
    refresh_cron: "0 4 * * *"
    min_years_history: 15
  copernicus:
    dataset: reanalysis-era5-land
    variable: volumetric_soil_water_layer_1
    area: [46.33, 0.78, 47.30, 2.28]
    refresh_cron: "0 6 2 * *"
  meteofrance:
    sswi_url: https://example.org/sswi.csv
    precipitation_url: https://example.org/rr.csv
  emi:
    api_key: from-file
    departments: ["18"]
    blacklisted_ids: ["103"]
storage:
  csvcache:
    directory: /var/cache/watertracker
controllers:
  - type: rest
    rest:
      port: 8080
      default_department: "18"
  - type: reports
    reports:
      output_dir: /var/reports
      formats: [pdf, png]
      render_cron: "30 6 * * *"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestYAMLProviderLoadConfig(t *testing.T) {
	provider := NewYAMLProvider(writeConfig(t, sampleYAML))
	cfg, err := provider.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Data.Directory != "/var/lib/watertracker" {
		t.Errorf("data directory: got %q", cfg.Data.Directory)
	}

	if cfg.Sources.Hubeau == nil {
		t.Fatal("hubeau source missing")
	}
	if got := cfg.Sources.Hubeau.Departments; len(got) != 2 || got[0] != "18" {
		t.Errorf("hubeau departments: got %v", got)
	}
	if cfg.Sources.Hubeau.MinYearsHistory != 15 {
		t.Errorf("min years: got %d", cfg.Sources.Hubeau.MinYearsHistory)
	}

	if cfg.Sources.Copernicus == nil || len(cfg.Sources.Copernicus.Area) != 4 {
		t.Fatalf("copernicus source mangled: %+v", cfg.Sources.Copernicus)
	}
	if cfg.Sources.MeteoFrance == nil || cfg.Sources.MeteoFrance.SSWIURL == "" {
		t.Fatalf("meteofrance source mangled: %+v", cfg.Sources.MeteoFrance)
	}
	if cfg.Sources.EMI == nil || len(cfg.Sources.EMI.BlacklistedID) != 1 {
		t.Fatalf("emi source mangled: %+v", cfg.Sources.EMI)
	}

	if cfg.Storage.CSVCache == nil || cfg.Storage.CSVCache.Directory != "/var/cache/watertracker" {
		t.Errorf("csvcache storage mangled: %+v", cfg.Storage.CSVCache)
	}

	if len(cfg.Controllers) != 2 {
		t.Fatalf("expected 2 controllers, got %d", len(cfg.Controllers))
	}
	rest := cfg.Controllers[0]
	if rest.Type != "rest" || rest.RESTServer == nil || rest.RESTServer.Port != 8080 {
		t.Errorf("rest controller mangled: %+v", rest)
	}
	rep := cfg.Controllers[1]
	if rep.Type != "reports" || rep.Reports == nil || len(rep.Reports.Formats) != 2 {
		t.Errorf("reports controller mangled: %+v", rep)
	}
	if rep.Reports.RenderCron != "30 6 * * *" {
		t.Errorf("render cron mangled: %q", rep.Reports.RenderCron)
	}
}

func TestYAMLProviderEnvOverrides(t *testing.T) {
	t.Setenv(EnvEMIAPIKey, "from-env")
	t.Setenv(EnvCDSAPIKey, "1234:abcd")

	provider := NewYAMLProvider(writeConfig(t, sampleYAML))
	cfg, err := provider.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Sources.EMI.APIKey != "from-env" {
		t.Errorf("EMI key not overridden: got %q", cfg.Sources.EMI.APIKey)
	}
	if cfg.Sources.Copernicus.APIKey != "1234:abcd" {
		t.Errorf("CDS key not overridden: got %q", cfg.Sources.Copernicus.APIKey)
	}
}

func TestYAMLProviderMissingFile(t *testing.T) {
	provider := NewYAMLProvider(filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := provider.LoadConfig(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestYAMLProviderIsReadOnly(t *testing.T) {
	provider := NewYAMLProvider(writeConfig(t, sampleYAML))
	if !provider.IsReadOnly() {
		t.Error("YAML provider should be read-only")
	}
}

func TestSQLiteProviderRoundTrip(t *testing.T) {
	yamlProvider := NewYAMLProvider(writeConfig(t, sampleYAML))
	want, err := yamlProvider.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}

	dbPath := filepath.Join(t.TempDir(), "config.db")
	sqliteProvider, err := NewSQLiteProvider(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer sqliteProvider.Close()

	if err := sqliteProvider.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := sqliteProvider.SaveConfig(want); err != nil {
		t.Fatal(err)
	}

	got, err := sqliteProvider.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}

	if got.Data.Directory != want.Data.Directory {
		t.Errorf("data directory: got %q, want %q", got.Data.Directory, want.Data.Directory)
	}
	if got.Sources.Hubeau == nil || got.Sources.Hubeau.PageSize != 500 {
		t.Errorf("hubeau source mangled: %+v", got.Sources.Hubeau)
	}
	if got.Sources.Copernicus == nil || len(got.Sources.Copernicus.Area) != 4 {
		t.Errorf("copernicus area mangled: %+v", got.Sources.Copernicus)
	}
	if got.Sources.EMI == nil || len(got.Sources.EMI.BlacklistedID) != 1 {
		t.Errorf("emi blacklist mangled: %+v", got.Sources.EMI)
	}
	if len(got.Controllers) != 2 {
		t.Fatalf("expected 2 controllers, got %d", len(got.Controllers))
	}
	byType := make(map[string]ControllerData)
	for _, cc := range got.Controllers {
		byType[cc.Type] = cc
	}
	rest := byType["rest"]
	if rest.RESTServer == nil || rest.RESTServer.Port != 8080 {
		t.Errorf("rest controller mangled: %+v", rest)
	}
	rep := byType["reports"]
	if rep.Reports == nil || len(rep.Reports.Formats) != 2 {
		t.Errorf("reports controller mangled: %+v", rep)
	}
}
