package emi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/types"
	"github.com/hydrometrie/watertracker/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init(false)
	os.Exit(m.Run())
}

const departmentPayload = `{
	"data": {
		"locations": [
			{"id": 101, "bss_code": "07548X0009", "name": "Puits de Mehun",
			 "indicators": [{"state": {"type": {"name": "dryness-groundwater"}}}]},
			{"id": 102, "bss_code": "", "name": "Pluvio Bourges",
			 "indicators": [{"state": {"type": {"name": "dryness-meteo"}}}]},
			{"id": 103, "bss_code": "07544X0033", "name": "Blacklisted",
			 "indicators": [{"state": {"type": {"name": "dryness-groundwater-deep"}}}]},
			{"id": 104, "bss_code": "", "name": "No indicator", "indicators": []}
		]
	}
}`

func newTestServer(t *testing.T) (*httptest.Server, *map[string]string) {
	t.Helper()
	lastQuery := make(map[string]string)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/departments/18":
			fmt.Fprint(w, departmentPayload)
		case "/data":
			for k := range r.URL.Query() {
				lastQuery[k] = r.URL.Query().Get(k)
			}
			fmt.Fprint(w, `{
				"water-level-static": [
					{"date": "2023-01-02", "value": 82.13},
					{"date": "2023-01-03", "value": 82.05},
					{"date": "bogus", "value": 1}
				],
				"rain-level": [
					{"date": "2023-01-02", "value": 4.2}
				]
			}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	return server, &lastQuery
}

func TestFetchStationsClassifiesIndicators(t *testing.T) {
	server, _ := newTestServer(t)
	defer server.Close()

	client := NewClient(&config.EMIData{
		BaseURL:       server.URL,
		APIKey:        "secret",
		Departments:   []string{"18"},
		BlacklistedID: []string{"103"},
	}, server.Client())

	stations, err := client.FetchStations(context.Background())
	require.NoError(t, err)

	// Blacklisted and indicator-less locations are dropped
	require.Len(t, stations, 2)
	assert.Equal(t, "101", stations[0].Code)
	assert.Equal(t, "07548X0009", stations[0].BSSID)
	assert.Equal(t, types.SeriesPiezometric, stations[0].Kind)
	assert.Equal(t, "102", stations[1].Code)
	assert.Equal(t, types.SeriesPrecipitation, stations[1].Kind)
}

func TestFetchSeriesUsesLearnedSeriesName(t *testing.T) {
	server, lastQuery := newTestServer(t)
	defer server.Close()

	client := NewClient(&config.EMIData{
		BaseURL:     server.URL,
		APIKey:      "secret",
		Departments: []string{"18"},
	}, server.Client())

	_, err := client.FetchStations(context.Background())
	require.NoError(t, err)

	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)
	measurements, err := client.FetchSeries(context.Background(), "101", from, to)
	require.NoError(t, err)

	assert.Equal(t, "101", (*lastQuery)["location_id"])
	assert.Equal(t, "2023-01-01", (*lastQuery)["from"])
	assert.Equal(t, "2023-01-31", (*lastQuery)["to"])

	// Groundwater station reads water-level-static; the bogus date is dropped
	require.Len(t, measurements, 2)
	assert.Equal(t, 82.13, measurements[0].Value)
	assert.Equal(t, types.SeriesPiezometric, measurements[0].Kind)

	// Rainfall station reads rain-level
	rain, err := client.FetchSeries(context.Background(), "102", from, to)
	require.NoError(t, err)
	require.Len(t, rain, 1)
	assert.Equal(t, 4.2, rain[0].Value)
	assert.Equal(t, types.SeriesPrecipitation, rain[0].Kind)
}

// Inventory and chronicle refreshes run on independent schedules, so the
// learned series tables must tolerate concurrent access.
func TestFetchStationsAndSeriesConcurrently(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/departments/18":
			fmt.Fprint(w, departmentPayload)
		case "/data":
			fmt.Fprint(w, `{"water-level-static": [{"date": "2023-01-02", "value": 82.13}]}`)
		}
	}))
	defer server.Close()

	client := NewClient(&config.EMIData{
		BaseURL:     server.URL,
		APIKey:      "secret",
		Departments: []string{"18"},
	}, server.Client())

	_, err := client.FetchStations(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := client.FetchStations(context.Background())
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := client.FetchSeries(context.Background(), "101", time.Time{}, time.Time{})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}

func TestFetchSeriesUnknownStation(t *testing.T) {
	client := NewClient(&config.EMIData{APIKey: "secret"}, nil)
	_, err := client.FetchSeries(context.Background(), "999", time.Time{}, time.Time{})
	require.Error(t, err)
}

func TestFetchStationsRequiresAPIKey(t *testing.T) {
	client := NewClient(&config.EMIData{Departments: []string{"18"}}, nil)
	_, err := client.FetchStations(context.Background())
	require.Error(t, err)
}
