// Package types contains the domain types shared across connectors, storage
// backends and indicator computation.
package types

import (
	"strings"
	"time"
)

// SeriesKind identifies what a time series measures.
type SeriesKind string

const (
	// SeriesPiezometric is a groundwater level chronicle (metres, NGF or depth).
	SeriesPiezometric SeriesKind = "piezometric"

	// SeriesPrecipitation is a rainfall accumulation series (mm).
	SeriesPrecipitation SeriesKind = "precipitation"

	// SeriesSoilMoisture is a surface soil moisture series (saturation %).
	SeriesSoilMoisture SeriesKind = "soil-moisture"
)

// Station describes a measuring station as reported by the source APIs.
type Station struct {
	Code         string     `json:"code_bss" gorm:"column:code;primaryKey"`
	BSSID        string     `json:"bss_id" gorm:"column:bss_id"`
	Name         string     `json:"libelle_pe" gorm:"column:name"`
	Commune      string     `json:"nom_commune" gorm:"column:commune"`
	CommuneCode  string     `json:"code_commune_insee" gorm:"column:commune_code"`
	Department   string     `json:"code_departement" gorm:"column:department"`
	DeptName     string     `json:"nom_departement" gorm:"column:dept_name"`
	WaterBody    string     `json:"code_masse_eau" gorm:"column:water_body"`
	Kind         SeriesKind `json:"kind" gorm:"column:kind"`
	MeasureStart time.Time  `json:"date_debut_mesure" gorm:"column:measure_start"`
	MeasureEnd   time.Time  `json:"date_fin_mesure" gorm:"column:measure_end"`
	MeasureCount int        `json:"nb_mesures_piezo" gorm:"column:measure_count"`
}

// HasMeasureDates reports whether the station carries a usable measure span.
// Stations without any measure dates are skipped during collection.
func (s Station) HasMeasureDates() bool {
	return !s.MeasureStart.IsZero() || !s.MeasureEnd.IsZero()
}

// FileSlug returns a filesystem-safe identifier for the station. BSS codes
// contain slashes (e.g. "07004X0046/D6-20").
func (s Station) FileSlug() string {
	return SanitizeCode(s.Code)
}

// SanitizeCode maps a station code to a name safe for cache files.
func SanitizeCode(code string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", " ", "_")
	return r.Replace(code)
}

// Measurement is one raw observation of a station time series.
type Measurement struct {
	StationCode   string     `json:"code_bss" gorm:"column:station_code;index"`
	Kind          SeriesKind `json:"kind" gorm:"column:kind"`
	Timestamp     time.Time  `json:"date_mesure" gorm:"column:time"`
	Value         float64    `json:"niveau_nappe_eau" gorm:"column:value"`
	Qualification string     `json:"qualification" gorm:"column:qualification"`
}

// GridPoint is one cell value of a gridded reanalysis dataset.
type GridPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Value     float64   `json:"value"`
}

// IndicatorPoint is one standardized indicator value derived from a raw
// series: the rolling accumulation it was computed from and its standard
// score (SPI or SPLI depending on the series kind).
type IndicatorPoint struct {
	Timestamp time.Time `json:"date"`
	Rolling   float64   `json:"rolling"`
	Score     float64   `json:"score"`
}
