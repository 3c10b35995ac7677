// Package hubeau implements the Hubeau piezometry API client (stations and
// chroniques endpoints of the niveaux_nappes API).
package hubeau

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hydrometrie/watertracker/internal/connectors"
	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/metrics"
	"github.com/hydrometrie/watertracker/internal/types"
	"github.com/hydrometrie/watertracker/pkg/config"
	"github.com/sony/gobreaker"
)

const (
	defaultBaseURL  = "https://hubeau.eaufrance.fr/api/v1/niveaux_nappes"
	defaultPageSize = 1000

	dateLayout = "2006-01-02"
)

// Client is the Hubeau API connector
type Client struct {
	cfg     *config.HubeauData
	baseURL string
	httpCfg connectors.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewClient creates a Hubeau connector from configuration
func NewClient(cfg *config.HubeauData, httpClient *http.Client) *Client {
	baseURL := defaultBaseURL
	if cfg != nil && cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	return &Client{
		cfg:     cfg,
		baseURL: baseURL,
		httpCfg: connectors.DefaultHTTPConfig(httpClient),
		circuit: connectors.NewBreaker("hubeau"),
	}
}

// Name returns the connector identifier
func (c *Client) Name() string {
	return "hubeau"
}

// page is the envelope of every paginated Hubeau response
type page struct {
	Count int             `json:"count"`
	Next  *string         `json:"next"`
	Data  json.RawMessage `json:"data"`
}

// stationRecord mirrors the station fields we keep from the API
type stationRecord struct {
	CodeBSS          string  `json:"code_bss"`
	BSSID            string  `json:"bss_id"`
	DateDebutMesure  string  `json:"date_debut_mesure"`
	DateFinMesure    string  `json:"date_fin_mesure"`
	CodeCommuneINSEE string  `json:"code_commune_insee"`
	NomCommune       string  `json:"nom_commune"`
	CodeDepartement  string  `json:"code_departement"`
	NomDepartement   string  `json:"nom_departement"`
	NbMesuresPiezo   int     `json:"nb_mesures_piezo"`
	CodeMasseEau     string  `json:"code_masse_eau"`
	LibellePE        string  `json:"libelle_pe"`
	Longitude        float64 `json:"x"`
	Latitude         float64 `json:"y"`
}

// chronicleRecord mirrors the chronicle fields we keep from the API
type chronicleRecord struct {
	CodeBSS         string   `json:"code_bss"`
	DateMesure      string   `json:"date_mesure"`
	NiveauNappeEau  *float64 `json:"niveau_nappe_eau"`
	Qualification   string   `json:"qualification"`
	ProfondeurNappe *float64 `json:"profondeur_nappe"`
}

// FetchStations retrieves the piezometric stations of the configured
// departments. Stations without any measure date are skipped.
func (c *Client) FetchStations(ctx context.Context) ([]types.Station, error) {
	var departments []string
	if c.cfg != nil {
		departments = c.cfg.Departments
	}
	if len(departments) == 0 {
		return nil, fmt.Errorf("hubeau: no departments configured")
	}

	var stations []types.Station
	for _, dept := range departments {
		params := url.Values{}
		params.Set("code_departement", dept)
		params.Set("size", strconv.Itoa(c.pageSize()))

		first := fmt.Sprintf("%s/stations?%s", c.baseURL, params.Encode())
		records, err := fetchAllPages[stationRecord](ctx, c, first)
		if err != nil {
			return nil, fmt.Errorf("hubeau: fetching stations of department %s: %w", dept, err)
		}

		skipped := 0
		for _, rec := range records {
			st := types.Station{
				Code:         rec.CodeBSS,
				BSSID:        rec.BSSID,
				Name:         rec.LibellePE,
				Commune:      rec.NomCommune,
				CommuneCode:  rec.CodeCommuneINSEE,
				Department:   rec.CodeDepartement,
				DeptName:     rec.NomDepartement,
				WaterBody:    rec.CodeMasseEau,
				Kind:         types.SeriesPiezometric,
				MeasureStart: parseDate(rec.DateDebutMesure),
				MeasureEnd:   parseDate(rec.DateFinMesure),
				MeasureCount: rec.NbMesuresPiezo,
			}
			if !st.HasMeasureDates() {
				skipped++
				continue
			}
			stations = append(stations, st)
		}
		if skipped > 0 {
			log.Debugf("hubeau: skipped %d stations without measure dates in department %s", skipped, dept)
		}
	}
	return stations, nil
}

// FetchSeries retrieves the chronicle of one station between from and to.
func (c *Client) FetchSeries(ctx context.Context, stationCode string, from, to time.Time) ([]types.Measurement, error) {
	if stationCode == "" {
		return nil, fmt.Errorf("hubeau: missing station code")
	}

	params := url.Values{}
	params.Set("code_bss", stationCode)
	params.Set("size", strconv.Itoa(c.pageSize()))
	if !from.IsZero() {
		params.Set("date_debut_mesure", from.Format(dateLayout))
	}
	if !to.IsZero() {
		params.Set("date_fin_mesure", to.Format(dateLayout))
	}

	first := fmt.Sprintf("%s/chroniques?%s", c.baseURL, params.Encode())
	records, err := fetchAllPages[chronicleRecord](ctx, c, first)
	if err != nil {
		return nil, fmt.Errorf("hubeau: fetching chronicle of %q: %w", stationCode, err)
	}

	measurements := make([]types.Measurement, 0, len(records))
	for _, rec := range records {
		if rec.NiveauNappeEau == nil {
			continue
		}
		ts, err := time.Parse(dateLayout, rec.DateMesure)
		if err != nil {
			continue
		}
		measurements = append(measurements, types.Measurement{
			StationCode:   rec.CodeBSS,
			Kind:          types.SeriesPiezometric,
			Timestamp:     ts,
			Value:         *rec.NiveauNappeEau,
			Qualification: rec.Qualification,
		})
	}
	return measurements, nil
}

// fetchAllPages walks a paginated endpoint following next links until the
// last page.
func fetchAllPages[T any](ctx context.Context, c *Client, firstURL string) ([]T, error) {
	var out []T
	next := firstURL
	for next != "" {
		pageURL := next
		resp, err := connectors.DoRequestWithResilience(ctx, c.httpCfg, c.circuit, func() (*http.Request, error) {
			return http.NewRequest(http.MethodGet, pageURL, nil)
		})
		if err != nil {
			metrics.FetchRequestsTotal.WithLabelValues("hubeau", "error").Inc()
			return nil, err
		}
		metrics.FetchRequestsTotal.WithLabelValues("hubeau", "ok").Inc()
		metrics.FetchPagesTotal.WithLabelValues("hubeau").Inc()

		var p page
		err = json.NewDecoder(resp.Body).Decode(&p)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding response page: %w", err)
		}

		var records []T
		if len(p.Data) > 0 {
			if err := json.Unmarshal(p.Data, &records); err != nil {
				return nil, fmt.Errorf("decoding data rows: %w", err)
			}
		}
		out = append(out, records...)

		if p.Next == nil {
			break
		}
		next = *p.Next
	}
	return out, nil
}

func (c *Client) pageSize() int {
	if c.cfg != nil && c.cfg.PageSize > 0 {
		return c.cfg.PageSize
	}
	return defaultPageSize
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
