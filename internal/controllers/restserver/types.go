package restserver

import (
	"time"

	"github.com/hydrometrie/watertracker/internal/indicators"
	"github.com/hydrometrie/watertracker/pkg/config"
)

// DepartmentResponse is one department of the inventory.
type DepartmentResponse struct {
	Code         string `json:"code"`
	StationCount int    `json:"station_count"`
}

// TrendResponse describes the reliability of a station's historical
// reference.
type TrendResponse struct {
	Years   int    `json:"years"`
	Verdict string `json:"verdict"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
}

// ChroniclePointResponse is one measurement with its historical day-of-year
// mean. The mean is omitted when the history never covers that day.
type ChroniclePointResponse struct {
	Date  string   `json:"date"`
	Value float64  `json:"value"`
	Mean  *float64 `json:"mean_value,omitempty"`
}

// ChronicleResponse is the trailing-year chronicle of a station with its
// historical context.
type ChronicleResponse struct {
	Station string                   `json:"station"`
	Points  []ChroniclePointResponse `json:"points"`
	Trend   TrendResponse            `json:"trend"`
}

// IndicatorPointResponse is one standardized indicator point. Score is
// omitted when the reference fit was degenerate for that month.
type IndicatorPointResponse struct {
	Date    string   `json:"date"`
	Rolling float64  `json:"rolling"`
	Score   *float64 `json:"score,omitempty"`
	Level   int      `json:"level"`
}

// IndicatorResponse is the standardized indicator series of a station.
type IndicatorResponse struct {
	Station   string                   `json:"station"`
	MeanScore *float64                 `json:"mean_score,omitempty"`
	Points    []IndicatorPointResponse `json:"points"`
}

// DistributionResponse is the trailing-year drought distribution for a
// series kind.
type DistributionResponse struct {
	Kind       string                         `json:"kind"`
	ComputedAt time.Time                      `json:"computed_at"`
	Levels     []indicators.Level             `json:"levels"`
	Months     []indicators.MonthDistribution `json:"months"`
}

// HumidityMonthResponse is the humidity class spread of one month.
type HumidityMonthResponse struct {
	Month    string    `json:"month"`
	Percents []float64 `json:"percents"`
}

// HumidityResponse is the monthly soil humidity distribution.
type HumidityResponse struct {
	Classes []indicators.HumidityClass `json:"classes"`
	Months  []HumidityMonthResponse    `json:"months"`
}

// LevelsResponse carries both classification scales.
type LevelsResponse struct {
	Drought  []indicators.Level         `json:"drought"`
	Humidity []indicators.HumidityClass `json:"humidity"`
}

// HealthResponse reports service and storage backend health.
type HealthResponse struct {
	Status   string                                `json:"status"`
	Storage  map[string]*config.StorageHealthData  `json:"storage"`
	Uptime   string                                `json:"uptime"`
	Computed time.Time                             `json:"computed_at"`
}

// BulletinResponse is one cached drought bulletin table.
type BulletinResponse struct {
	Table  string     `json:"table"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}
