package restserver

import (
	"errors"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hydrometrie/watertracker/internal/indicators"
	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/metrics"
	"github.com/hydrometrie/watertracker/internal/storage"
	"github.com/hydrometrie/watertracker/internal/storage/csvcache"
	"github.com/hydrometrie/watertracker/internal/types"
	"github.com/hydrometrie/watertracker/pkg/responseformat"
)

// Handlers contains all HTTP handlers for the REST server.
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance.
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

func observeRequest(path string, code int) {
	if !strings.HasPrefix(path, "/api/") && path != "/metrics" {
		return
	}
	metrics.HTTPRequestsTotal.WithLabelValues(path, strconv.Itoa(code)).Inc()
}

// GetDepartments lists the departments present in the station inventory with
// their station counts.
func (h *Handlers) GetDepartments(w http.ResponseWriter, req *http.Request) {
	stations, err := h.controller.store.ReadStations()
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusServiceUnavailable, "station inventory not available")
		return
	}

	counts := make(map[string]int)
	for _, s := range stations {
		if s.Department != "" {
			counts[s.Department]++
		}
	}

	departments := make([]DepartmentResponse, 0, len(counts))
	for code, count := range counts {
		departments = append(departments, DepartmentResponse{Code: code, StationCount: count})
	}
	sort.Slice(departments, func(i, j int) bool {
		return departments[i].Code < departments[j].Code
	})

	h.formatter.WriteResponse(w, req, departments, nil)
}

// GetStations lists stations, optionally filtered by department and series
// kind.
func (h *Handlers) GetStations(w http.ResponseWriter, req *http.Request) {
	stations, err := h.controller.store.ReadStations()
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusServiceUnavailable, "station inventory not available")
		return
	}

	department := req.URL.Query().Get("department")
	kind := req.URL.Query().Get("kind")

	out := make([]types.Station, 0, len(stations))
	for _, s := range stations {
		if department != "" && s.Department != department {
			continue
		}
		if kind != "" && string(s.Kind) != kind {
			continue
		}
		out = append(out, s)
	}

	h.formatter.WriteResponse(w, req, out, nil)
}

// GetChronicle returns the raw chronicle of a station over the trailing
// year, each point annotated with the historical day-of-year mean, plus the
// trend reliability verdict.
func (h *Handlers) GetChronicle(w http.ResponseWriter, req *http.Request) {
	code := req.URL.Query().Get("station")
	if code == "" {
		h.formatter.WriteError(w, req, http.StatusBadRequest, "missing station parameter")
		return
	}

	series, err := h.controller.store.ReadSeries(code)
	if err != nil {
		if errors.Is(err, csvcache.ErrNoSeries) {
			h.formatter.WriteError(w, req, http.StatusNotFound, "no chronicle for station")
			return
		}
		log.Errorf("reading chronicle for %s: %v", code, err)
		h.formatter.WriteError(w, req, http.StatusInternalServerError, "could not read chronicle")
		return
	}
	if len(series) == 0 {
		h.formatter.WriteError(w, req, http.StatusNotFound, "empty chronicle for station")
		return
	}

	sort.Slice(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	first := series[0].Timestamp
	last := series[len(series)-1].Timestamp

	tp := indicators.NewTrendProperties(first, last)
	verdict, err := indicators.DefaultTrendEvaluation().Evaluate(tp)
	if err != nil {
		verdict = "insufficient"
	}

	var history []types.Measurement
	if tp.HasEnoughData() {
		for _, m := range series {
			if !m.Timestamp.Before(tp.Start) && !m.Timestamp.After(tp.End) {
				history = append(history, m)
			}
		}
	}
	yearAgo := last.AddDate(-1, 0, 0)
	var present []types.Measurement
	for _, m := range series {
		if m.Timestamp.After(yearAgo) {
			present = append(present, m)
		}
	}

	joined := indicators.JoinHistoricalAverage(present, history)
	points := make([]ChroniclePointResponse, len(joined))
	for i, p := range joined {
		points[i] = ChroniclePointResponse{
			Date:  p.Timestamp.Format("2006-01-02"),
			Value: p.Value,
		}
		if !math.IsNaN(p.HistoricalMean) {
			mean := p.HistoricalMean
			points[i].Mean = &mean
		}
	}

	resp := ChronicleResponse{
		Station: code,
		Points:  points,
		Trend: TrendResponse{
			Years:   tp.YearsOfHistory(),
			Verdict: verdict,
		},
	}
	if tp.HasEnoughData() {
		resp.Trend.Start = tp.Start.Format("2006-01-02")
		resp.Trend.End = tp.End.Format("2006-01-02")
	}

	h.formatter.WriteResponse(w, req, resp, nil)
}

// GetIndicator returns the standardized indicator series of a station with
// each score mapped to its drought level.
func (h *Handlers) GetIndicator(w http.ResponseWriter, req *http.Request) {
	code := req.URL.Query().Get("station")
	if code == "" {
		h.formatter.WriteError(w, req, http.StatusBadRequest, "missing station parameter")
		return
	}

	points, ok := h.controller.indicators.StationSeries(code)
	if !ok {
		h.formatter.WriteError(w, req, http.StatusNotFound, "no indicator series for station")
		return
	}

	out := make([]IndicatorPointResponse, 0, len(points))
	for _, p := range points {
		ipr := IndicatorPointResponse{
			Date:    p.Timestamp.Format("2006-01-02"),
			Rolling: p.Rolling,
			Level:   indicators.ScoreToLevel(p.Score),
		}
		if !math.IsNaN(p.Score) {
			score := p.Score
			ipr.Score = &score
		}
		out = append(out, ipr)
	}

	resp := IndicatorResponse{Station: code, Points: out}
	if mean := indicators.MeanScore(points); !math.IsNaN(mean) {
		resp.MeanScore = &mean
	}
	h.formatter.WriteResponse(w, req, resp, nil)
}

// GetDistribution returns the trailing-year drought level distribution for
// a series kind (piezometric by default).
func (h *Handlers) GetDistribution(w http.ResponseWriter, req *http.Request) {
	kind := types.SeriesKind(req.URL.Query().Get("kind"))
	if kind == "" {
		kind = types.SeriesPiezometric
	}

	dist, ok := h.controller.indicators.Distribution(kind)
	if !ok {
		h.formatter.WriteError(w, req, http.StatusNotFound, "no distribution computed for kind")
		return
	}

	h.formatter.WriteResponse(w, req, DistributionResponse{
		Kind:       string(kind),
		ComputedAt: h.controller.indicators.ComputedAt(),
		Levels:     indicators.DroughtLevels,
		Months:     dist,
	}, nil)
}

// GetHumidity returns the monthly soil humidity class distribution derived
// from the cached reanalysis grid.
func (h *Handlers) GetHumidity(w http.ResponseWriter, req *http.Request) {
	points, err := h.controller.store.ReadGrid(string(types.SeriesSoilMoisture))
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusNotFound, "no soil moisture grid cached")
		return
	}

	counts := make(map[string][]int)
	for _, p := range points {
		code := indicators.ClassifyHumidity(p.Value)
		if code < 0 {
			continue
		}
		month := p.Time.Format("2006-01")
		if counts[month] == nil {
			counts[month] = make([]int, len(indicators.HumidityClasses))
		}
		counts[month][code]++
	}

	months := make([]HumidityMonthResponse, 0, len(counts))
	for month, classCounts := range counts {
		total := 0
		for _, c := range classCounts {
			total += c
		}
		percents := make([]float64, len(classCounts))
		for i, c := range classCounts {
			percents[i] = 100 * float64(c) / float64(total)
		}
		months = append(months, HumidityMonthResponse{Month: month, Percents: percents})
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Month < months[j].Month })
	if len(months) > 12 {
		months = months[len(months)-12:]
	}

	h.formatter.WriteResponse(w, req, HumidityResponse{
		Classes: indicators.HumidityClasses,
		Months:  months,
	}, nil)
}

// bulletinTables names the cached bulletin tables the API exposes.
var bulletinTables = map[string]bool{
	"sswi":          true,
	"precipitation": true,
}

// GetBulletin returns a cached drought bulletin table (SSWI by default).
func (h *Handlers) GetBulletin(w http.ResponseWriter, req *http.Request) {
	table := req.URL.Query().Get("table")
	if table == "" {
		table = "sswi"
	}
	if !bulletinTables[table] {
		h.formatter.WriteError(w, req, http.StatusBadRequest, "unknown bulletin table")
		return
	}

	header, rows, err := h.controller.store.ReadTable(table)
	if err != nil {
		if errors.Is(err, csvcache.ErrNoSeries) {
			h.formatter.WriteError(w, req, http.StatusNotFound, "bulletin not cached yet")
			return
		}
		log.Error("could not read bulletin table:", table, err)
		h.formatter.WriteError(w, req, http.StatusInternalServerError, "could not read bulletin")
		return
	}

	h.formatter.WriteResponse(w, req, BulletinResponse{
		Table:  table,
		Header: header,
		Rows:   rows,
	}, nil)
}

// GetLevels returns both classification scales.
func (h *Handlers) GetLevels(w http.ResponseWriter, req *http.Request) {
	h.formatter.WriteResponse(w, req, LevelsResponse{
		Drought:  indicators.DroughtLevels,
		Humidity: indicators.HumidityClasses,
	}, nil)
}

// GetHealth reports storage backend health and the age of the last
// indicator computation.
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	statuses := storage.GlobalHealthManager.GetAllHealth()
	computedAt := h.controller.indicators.ComputedAt()

	healthy := true
	for _, s := range statuses {
		if s.Status != "healthy" {
			healthy = false
		}
	}

	resp := HealthResponse{
		Status:   "ok",
		Storage:  statuses,
		Uptime:   time.Since(startTime).Round(time.Second).String(),
		Computed: computedAt,
	}
	if !healthy {
		resp.Status = "degraded"
	}

	h.formatter.WriteResponse(w, req, resp, nil)
}

var startTime = time.Now()
