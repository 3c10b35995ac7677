// Package meteofrance reads the Météo-France drought bulletins: gridded SSWI
// (standardized soil wetness index) decades and per-department precipitation
// summaries, both published as CSV files.
package meteofrance

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hydrometrie/watertracker/internal/connectors"
	"github.com/hydrometrie/watertracker/internal/metrics"
	"github.com/hydrometrie/watertracker/pkg/config"
	"github.com/sony/gobreaker"
)

const sswiDateLayout = "20060102"

// SSWIRecord is one grid cell value of a decadal SSWI bulletin.
type SSWIRecord struct {
	Longitude float64   `json:"longitude"`
	Latitude  float64   `json:"latitude"`
	Date      time.Time `json:"date"`
	Decade    string    `json:"decade"`
	SSWI      float64   `json:"sswi"`
}

// PrecipitationRecord is one department row of a precipitation bulletin.
// Zone holds the department number after name resolution.
type PrecipitationRecord struct {
	Zone        string  `json:"zone"`
	Precip      float64 `json:"precip"`
	PrecipNorm  float64 `json:"precip_norm"`
	RatioPrecip float64 `json:"ratio_precip"`
}

// Client downloads and parses the bulletin CSVs.
type Client struct {
	cfg     *config.MeteoFranceData
	httpCfg connectors.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker

	deptMapping map[string]string
}

// NewClient creates a bulletin client from configuration.
func NewClient(cfg *config.MeteoFranceData, httpClient *http.Client) (*Client, error) {
	mapping, err := DeptNameToCode()
	if err != nil {
		return nil, fmt.Errorf("loading department mapping: %w", err)
	}
	return &Client{
		cfg:         cfg,
		httpCfg:     connectors.DefaultHTTPConfig(httpClient),
		circuit:     connectors.NewBreaker("meteofrance"),
		deptMapping: mapping,
	}, nil
}

// Name returns the connector identifier.
func (c *Client) Name() string {
	return "meteofrance"
}

// FetchSSWI downloads the SSWI bulletin and returns its grid rows. Rows with
// an unparseable date or value are skipped.
func (c *Client) FetchSSWI(ctx context.Context) ([]SSWIRecord, error) {
	if c.cfg == nil || c.cfg.SSWIURL == "" {
		return nil, fmt.Errorf("meteofrance: no SSWI bulletin URL configured")
	}
	body, err := c.fetchCSV(ctx, c.cfg.SSWIURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return ParseSSWI(body)
}

// FetchPrecipitation downloads the precipitation bulletin. Zone names are
// replaced by department numbers using the embedded mapping; zones without a
// known department keep their original name.
func (c *Client) FetchPrecipitation(ctx context.Context) ([]PrecipitationRecord, error) {
	if c.cfg == nil || c.cfg.PrecipitationURL == "" {
		return nil, fmt.Errorf("meteofrance: no precipitation bulletin URL configured")
	}
	body, err := c.fetchCSV(ctx, c.cfg.PrecipitationURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	records, err := ParsePrecipitation(body)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if code, ok := c.deptMapping[records[i].Zone]; ok {
			records[i].Zone = code
		}
	}
	return records, nil
}

func (c *Client) fetchCSV(ctx context.Context, endpoint string) (io.ReadCloser, error) {
	resp, err := connectors.DoRequestWithResilience(ctx, c.httpCfg, c.circuit, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, endpoint, nil)
	})
	if err != nil {
		metrics.FetchRequestsTotal.WithLabelValues("meteofrance", "error").Inc()
		return nil, err
	}
	metrics.FetchRequestsTotal.WithLabelValues("meteofrance", "ok").Inc()
	return resp.Body, nil
}

// ParseSSWI reads an SSWI bulletin CSV. Expected columns: LON, LAT, DATE
// (yyyymmdd), DECADE, SSWI_DECAD; separator is ";".
func ParseSSWI(r io.Reader) ([]SSWIRecord, error) {
	rows, header, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	lon, lat := header["LON"], header["LAT"]
	date, decade, sswi := header["DATE"], header["DECADE"], header["SSWI_DECAD"]
	for _, col := range []string{"LON", "LAT", "DATE", "DECADE", "SSWI_DECAD"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("sswi bulletin: missing column %q", col)
		}
	}

	records := make([]SSWIRecord, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse(sswiDateLayout, field(row, date))
		if err != nil {
			continue
		}
		lonVal, err1 := parseFloat(field(row, lon))
		latVal, err2 := parseFloat(field(row, lat))
		sswiVal, err3 := parseFloat(field(row, sswi))
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		records = append(records, SSWIRecord{
			Longitude: lonVal,
			Latitude:  latVal,
			Date:      ts,
			Decade:    field(row, decade),
			SSWI:      sswiVal,
		})
	}
	return records, nil
}

// ParsePrecipitation reads a precipitation bulletin CSV. Expected columns:
// Zone, "RRSm Ag (mm)", "Nor RRSm Ag (mm)", "Rap RRSm Ag".
func ParsePrecipitation(r io.Reader) ([]PrecipitationRecord, error) {
	rows, header, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	zone, ok := header["Zone"]
	if !ok {
		return nil, fmt.Errorf("precipitation bulletin: missing column %q", "Zone")
	}
	precip := colIndex(header, "RRSm Ag (mm)")
	norm := colIndex(header, "Nor RRSm Ag (mm)")
	ratio := colIndex(header, "Rap RRSm Ag")

	records := make([]PrecipitationRecord, 0, len(rows))
	for _, row := range rows {
		rec := PrecipitationRecord{Zone: strings.TrimSpace(field(row, zone))}
		if rec.Zone == "" {
			continue
		}
		rec.Precip, _ = parseFloat(field(row, precip))
		rec.PrecipNorm, _ = parseFloat(field(row, norm))
		rec.RatioPrecip, _ = parseFloat(field(row, ratio))
		records = append(records, rec)
	}
	return records, nil
}

func colIndex(header map[string]int, name string) int {
	if idx, ok := header[name]; ok {
		return idx
	}
	return -1
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// readCSV parses a bulletin with either ";" or "," separators and returns
// the data rows plus a column name -> index mapping.
func readCSV(r io.Reader) ([][]string, map[string]int, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	for _, sep := range []rune{';', ','} {
		reader := csv.NewReader(strings.NewReader(string(raw)))
		reader.Comma = sep
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		all, err := reader.ReadAll()
		if err != nil || len(all) < 2 || len(all[0]) < 2 {
			continue
		}
		header := make(map[string]int, len(all[0]))
		for i, name := range all[0] {
			header[strings.TrimSpace(name)] = i
		}
		return all[1:], header, nil
	}
	return nil, nil, fmt.Errorf("bulletin: unrecognized CSV layout")
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	// bulletins use the French decimal comma
	s = strings.ReplaceAll(s, ",", ".")
	return strconv.ParseFloat(s, 64)
}
