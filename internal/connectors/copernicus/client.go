// Package copernicus retrieves soil moisture grids from the Copernicus
// Climate Data Store, by default the satellite surface soil moisture
// product (percent saturation), optionally ERA5-Land reanalysis fields.
// The CDS API is asynchronous: a request is
// submitted, the resulting task is polled until completion, then the product
// (a NetCDF file, possibly inside a zip archive) is downloaded and flattened
// to grid rows.
package copernicus

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hydrometrie/watertracker/internal/connectors"
	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/metrics"
	"github.com/hydrometrie/watertracker/internal/types"
	"github.com/hydrometrie/watertracker/pkg/config"
	"github.com/sony/gobreaker"
)

const (
	defaultAPIURL  = "https://cds.climate.copernicus.eu/api/v2"
	defaultDataset = "satellite-soil-moisture"

	era5LandDataset = "reanalysis-era5-land"

	pollInterval = 5 * time.Second
	pollTimeout  = 30 * time.Minute
)

// saturationWaterContent is the volumetric water content of saturated soil
// used to turn ERA5-Land m3/m3 fractions into percent saturation. 0.472 is
// the ECMWF value for medium-texture soil, the dominant class over the
// default area.
const saturationWaterContent = 0.472

// defaultArea is the bounding box [north, west, south, east] used when the
// configuration does not restrict the request.
var defaultArea = []float64{46.33, 0.78, 47.30, 2.28}

var allHours = []string{
	"00:00", "01:00", "02:00", "03:00", "04:00", "05:00",
	"06:00", "07:00", "08:00", "09:00", "10:00", "11:00",
	"12:00", "13:00", "14:00", "15:00", "16:00", "17:00",
	"18:00", "19:00", "20:00", "21:00", "22:00", "23:00",
}

// Client talks to the CDS API.
type Client struct {
	cfg     *config.CopernicusData
	apiURL  string
	dataset string
	httpCfg connectors.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewClient creates a CDS client from configuration.
func NewClient(cfg *config.CopernicusData, httpClient *http.Client) *Client {
	apiURL := defaultAPIURL
	dataset := defaultDataset
	if cfg != nil {
		if cfg.APIURL != "" {
			apiURL = cfg.APIURL
		}
		if cfg.Dataset != "" {
			dataset = cfg.Dataset
		}
	}
	httpCfg := connectors.DefaultHTTPConfig(httpClient)
	// product generation can take a while, the poll loop has its own deadline
	httpCfg.Client.Timeout = 5 * time.Minute
	return &Client{
		cfg:     cfg,
		apiURL:  strings.TrimRight(apiURL, "/"),
		dataset: dataset,
		httpCfg: httpCfg,
		circuit: connectors.NewBreaker("copernicus"),
	}
}

// Name returns the connector identifier.
func (c *Client) Name() string {
	return "copernicus"
}

type requestBody struct {
	ProductType string   `json:"product_type"`
	Variable    string   `json:"variable"`
	Format      string   `json:"format"`
	Year        []string `json:"year"`
	Month       []string `json:"month"`
	Day         []string `json:"day"`
	Time        []string `json:"time"`
	Area        []float64 `json:"area"`
}

// satelliteRequest is the monthly-average request shape of the
// satellite-soil-moisture dataset. The product delivers surface soil
// moisture as percent saturation, which is what the humidity
// classification consumes.
type satelliteRequest struct {
	Variable        string   `json:"variable"`
	TypeOfSensor    string   `json:"type_of_sensor"`
	TimeAggregation string   `json:"time_aggregation"`
	TypeOfRecord    string   `json:"type_of_record"`
	Version         string   `json:"version"`
	Format          string   `json:"format"`
	Year            []string `json:"year"`
	Month           []string `json:"month"`
	Day             []string `json:"day"`
}

type taskState struct {
	State     string `json:"state"`
	RequestID string `json:"request_id"`
	Location  string `json:"location"`
	Error     struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

// FetchGrid downloads one month of soil moisture and returns the flattened
// (time, lat, lon, value) rows. Values are percent saturation regardless of
// the dataset: the satellite product delivers percent natively, ERA5-Land
// fractions are converted after decoding.
func (c *Client) FetchGrid(ctx context.Context, year int, month time.Month) ([]types.GridPoint, error) {
	if c.cfg == nil || c.cfg.APIKey == "" {
		return nil, fmt.Errorf("copernicus: missing API key")
	}

	task, err := c.submit(ctx, c.buildRequest(year, month))
	if err != nil {
		metrics.FetchRequestsTotal.WithLabelValues("copernicus", "error").Inc()
		return nil, err
	}
	task, err = c.waitForCompletion(ctx, task)
	if err != nil {
		metrics.FetchRequestsTotal.WithLabelValues("copernicus", "error").Inc()
		return nil, err
	}

	payload, err := c.download(ctx, task.Location)
	if err != nil {
		metrics.FetchRequestsTotal.WithLabelValues("copernicus", "error").Inc()
		return nil, err
	}
	metrics.FetchRequestsTotal.WithLabelValues("copernicus", "ok").Inc()

	points, err := DecodeGrid(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding %s product: %w", c.dataset, err)
	}
	if c.dataset == era5LandDataset {
		points = fractionsToPercent(points)
	}
	return points, nil
}

// buildRequest assembles the dataset-specific request payload. The satellite
// product is a pre-aggregated monthly mean; ERA5-Land has to be requested as
// hourly fields over the bounding box and every day of the month.
func (c *Client) buildRequest(year int, month time.Month) any {
	yearStr := []string{strconv.Itoa(year)}
	monthStr := []string{fmt.Sprintf("%02d", int(month))}

	if c.dataset != era5LandDataset {
		record, version := "cdr", "v202212"
		if year >= 2023 {
			record, version = "icdr", "v202012"
		}
		return satelliteRequest{
			Variable:        "surface_soil_moisture",
			TypeOfSensor:    "active",
			TimeAggregation: "month_average",
			TypeOfRecord:    record,
			Version:         version,
			Format:          "zip",
			Year:            yearStr,
			Month:           monthStr,
			Day:             []string{"01"},
		}
	}

	variable := c.cfg.Variable
	if variable == "" {
		variable = "volumetric_soil_water_layer_1"
	}
	area := c.cfg.Area
	if len(area) != 4 {
		area = defaultArea
	}
	days := make([]string, 0, 31)
	for d := 1; d <= daysIn(year, month); d++ {
		days = append(days, fmt.Sprintf("%02d", d))
	}
	return requestBody{
		ProductType: "reanalysis",
		Variable:    variable,
		Format:      "netcdf",
		Year:        yearStr,
		Month:       monthStr,
		Day:         days,
		Time:        allHours,
		Area:        area,
	}
}

// fractionsToPercent rescales volumetric water content (m3/m3) to percent
// saturation, clamped to [0, 100].
func fractionsToPercent(points []types.GridPoint) []types.GridPoint {
	for i := range points {
		pct := points[i].Value / saturationWaterContent * 100
		if pct > 100 {
			pct = 100
		}
		if pct < 0 {
			pct = 0
		}
		points[i].Value = pct
	}
	return points
}

func (c *Client) submit(ctx context.Context, body any) (*taskState, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/resources/%s", c.apiURL, c.dataset)

	resp, err := connectors.DoRequestWithResilience(ctx, c.httpCfg, c.circuit, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var task taskState
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("decoding task response: %w", err)
	}
	return &task, nil
}

func (c *Client) waitForCompletion(ctx context.Context, task *taskState) (*taskState, error) {
	deadline := time.Now().Add(pollTimeout)
	for {
		switch task.State {
		case "completed":
			return task, nil
		case "failed":
			return nil, fmt.Errorf("copernicus: task failed: %s %s", task.Error.Message, task.Error.Reason)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("copernicus: task %s not completed after %s", task.RequestID, pollTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}

		log.Debugf("copernicus: task %s state %s, polling", task.RequestID, task.State)
		updated, err := c.pollTask(ctx, task.RequestID)
		if err != nil {
			return nil, err
		}
		task = updated
	}
}

func (c *Client) pollTask(ctx context.Context, requestID string) (*taskState, error) {
	endpoint := fmt.Sprintf("%s/tasks/%s", c.apiURL, requestID)
	resp, err := connectors.DoRequestWithResilience(ctx, c.httpCfg, c.circuit, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var task taskState
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("decoding task status: %w", err)
	}
	if task.RequestID == "" {
		task.RequestID = requestID
	}
	return &task, nil
}

// download fetches the finished product. Results are served either as a bare
// NetCDF file or a zip archive holding one; both forms are unwrapped here.
func (c *Client) download(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, fmt.Errorf("copernicus: completed task carries no download location")
	}
	if strings.HasPrefix(location, "/") {
		location = c.apiURL + location
	}

	resp, err := connectors.DoRequestWithResilience(ctx, c.httpCfg, c.circuit, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, location, nil)
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if isZip(payload) {
		return extractNetCDF(payload)
	}
	return payload, nil
}

// authorize sets the CDS credentials. Keys have the "UID:SECRET" form and map
// onto HTTP basic auth.
func (c *Client) authorize(req *http.Request) {
	key := c.cfg.APIKey
	if uid, secret, ok := strings.Cut(key, ":"); ok {
		req.SetBasicAuth(uid, secret)
		return
	}
	req.Header.Set("Authorization", "Bearer "+key)
}

func isZip(payload []byte) bool {
	return len(payload) >= 4 && bytes.HasPrefix(payload, []byte("PK\x03\x04"))
}

func extractNetCDF(payload []byte) ([]byte, error) {
	archive, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("opening result archive: %w", err)
	}
	for _, entry := range archive.File {
		if !strings.HasSuffix(entry.Name, ".nc") {
			continue
		}
		f, err := entry.Open()
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		return content, nil
	}
	return nil, fmt.Errorf("result archive holds no NetCDF file")
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// writeTemp spills a downloaded product to a temporary file. The NetCDF
// reader works on paths, not readers.
func writeTemp(payload []byte) (string, error) {
	f, err := os.CreateTemp("", "watertracker-*.nc")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
