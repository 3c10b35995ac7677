// Package emi implements the imageau EMI API client. Unlike Hubeau, EMI is a
// bearer-token API that serves both rainfall and groundwater chronicles
// through a single data endpoint.
package emi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hydrometrie/watertracker/internal/connectors"
	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/metrics"
	"github.com/hydrometrie/watertracker/internal/types"
	"github.com/hydrometrie/watertracker/pkg/config"
	"github.com/sony/gobreaker"
)

const (
	defaultBaseURL = "https://api.emi.imageau.eu/app"

	dateLayout = "2006-01-02"
)

// Indicator kind names reported by the EMI API
const (
	indicatorMeteo           = "dryness-meteo"
	indicatorGroundwater     = "dryness-groundwater"
	indicatorGroundwaterDeep = "dryness-groundwater-deep"
)

// series names served by the data endpoint, keyed by indicator kind
var seriesNames = map[string]string{
	indicatorMeteo:           "rain-level",
	indicatorGroundwater:     "water-level-static",
	indicatorGroundwaterDeep: "water-level-static",
}

// Client is the EMI API connector
type Client struct {
	cfg     *config.EMIData
	baseURL string
	httpCfg connectors.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker

	blacklist map[string]bool

	// station id -> series name, learned during FetchStations. Guarded by
	// mu: inventory and chronicle refreshes run on separate schedules.
	mu     sync.RWMutex
	series map[string]string
	kinds  map[string]types.SeriesKind
}

// NewClient creates an EMI connector from configuration
func NewClient(cfg *config.EMIData, httpClient *http.Client) *Client {
	baseURL := defaultBaseURL
	if cfg != nil && cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	blacklist := make(map[string]bool)
	if cfg != nil {
		for _, id := range cfg.BlacklistedID {
			blacklist[id] = true
		}
	}
	return &Client{
		cfg:       cfg,
		baseURL:   baseURL,
		httpCfg:   connectors.DefaultHTTPConfig(httpClient),
		circuit:   connectors.NewBreaker("emi"),
		blacklist: blacklist,
		series:    make(map[string]string),
		kinds:     make(map[string]types.SeriesKind),
	}
}

// Name returns the connector identifier
func (c *Client) Name() string {
	return "emi"
}

type departmentResponse struct {
	Data struct {
		Locations []struct {
			ID         int    `json:"id"`
			BSSCode    string `json:"bss_code"`
			Name       string `json:"name"`
			Indicators []struct {
				State struct {
					Type struct {
						Name string `json:"name"`
					} `json:"type"`
				} `json:"state"`
			} `json:"indicators"`
		} `json:"locations"`
	} `json:"data"`
}

// FetchStations retrieves the station inventory for all configured
// departments. Blacklisted station ids are dropped; stations without a
// known indicator kind are skipped.
func (c *Client) FetchStations(ctx context.Context) ([]types.Station, error) {
	if c.cfg == nil || c.cfg.APIKey == "" {
		return nil, fmt.Errorf("emi: missing API key")
	}
	departments := c.cfg.Departments
	if len(departments) == 0 {
		return nil, fmt.Errorf("emi: no departments configured")
	}

	var stations []types.Station
	for _, dept := range departments {
		deptResp, err := c.fetchDepartment(ctx, dept)
		if err != nil {
			// A department without data is not fatal for the whole inventory
			log.Warnf("emi: department %s: %v", dept, err)
			continue
		}
		for _, loc := range deptResp.Data.Locations {
			id := strconv.Itoa(loc.ID)
			if c.blacklist[id] {
				continue
			}

			kind, seriesName := classify(loc.Indicators)
			if seriesName == "" {
				continue
			}
			c.mu.Lock()
			c.series[id] = seriesName
			c.kinds[id] = kind
			c.mu.Unlock()

			stations = append(stations, types.Station{
				Code:       id,
				BSSID:      loc.BSSCode,
				Name:       loc.Name,
				Department: dept,
				Kind:       kind,
			})
		}
	}
	return stations, nil
}

func classify(indicators []struct {
	State struct {
		Type struct {
			Name string `json:"name"`
		} `json:"type"`
	} `json:"state"`
}) (types.SeriesKind, string) {
	for _, ind := range indicators {
		switch ind.State.Type.Name {
		case indicatorMeteo:
			return types.SeriesPrecipitation, seriesNames[indicatorMeteo]
		case indicatorGroundwater, indicatorGroundwaterDeep:
			return types.SeriesPiezometric, seriesNames[indicatorGroundwater]
		}
	}
	return "", ""
}

func (c *Client) fetchDepartment(ctx context.Context, dept string) (*departmentResponse, error) {
	params := url.Values{}
	params.Set("with", "geometry;indicators.state.type;locations.type;locations.indicators.state.type")
	endpoint := fmt.Sprintf("%s/departments/%s?%s", c.baseURL, dept, params.Encode())

	resp, err := connectors.DoRequestWithResilience(ctx, c.httpCfg, c.circuit, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		return req, nil
	})
	if err != nil {
		metrics.FetchRequestsTotal.WithLabelValues("emi", "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()
	metrics.FetchRequestsTotal.WithLabelValues("emi", "ok").Inc()

	var deptResp departmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&deptResp); err != nil {
		return nil, fmt.Errorf("decoding department response: %w", err)
	}
	return &deptResp, nil
}

// FetchSeries retrieves the chronicle of one station between from and to.
// The series name (rainfall or static water level) was learned during
// FetchStations.
func (c *Client) FetchSeries(ctx context.Context, stationCode string, from, to time.Time) ([]types.Measurement, error) {
	if c.cfg == nil || c.cfg.APIKey == "" {
		return nil, fmt.Errorf("emi: missing API key")
	}
	if c.blacklist[stationCode] {
		return nil, nil
	}
	c.mu.RLock()
	seriesName, ok := c.series[stationCode]
	kind := c.kinds[stationCode]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("emi: unknown station %q, fetch stations first", stationCode)
	}

	params := url.Values{}
	params.Set("location_id", stationCode)
	if !from.IsZero() {
		params.Set("from", from.Format(dateLayout))
	}
	if !to.IsZero() {
		params.Set("to", to.Format(dateLayout))
	}
	endpoint := fmt.Sprintf("%s/data?%s", c.baseURL, params.Encode())

	resp, err := connectors.DoRequestWithResilience(ctx, c.httpCfg, c.circuit, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		return req, nil
	})
	if err != nil {
		metrics.FetchRequestsTotal.WithLabelValues("emi", "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()
	metrics.FetchRequestsTotal.WithLabelValues("emi", "ok").Inc()

	var payload map[string][]struct {
		Date  string  `json:"date"`
		Value float64 `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding data response: %w", err)
	}

	rows := payload[seriesName]
	measurements := make([]types.Measurement, 0, len(rows))
	for _, row := range rows {
		ts, err := parseTimestamp(row.Date)
		if err != nil {
			continue
		}
		measurements = append(measurements, types.Measurement{
			StationCode: stationCode,
			Kind:        kind,
			Timestamp:   ts,
			Value:       row.Value,
		})
	}
	return measurements, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{dateLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
