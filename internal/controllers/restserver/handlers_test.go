package restserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hydrometrie/watertracker/internal/indicators"
	"github.com/hydrometrie/watertracker/internal/storage/csvcache"
	"github.com/hydrometrie/watertracker/internal/types"
	"github.com/hydrometrie/watertracker/pkg/config"
	"go.uber.org/zap"
)

func newTestController(t *testing.T) (*Controller, *csvcache.Store) {
	t.Helper()

	store, err := csvcache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	svc := indicators.NewService(store, 0, 0)

	var wg sync.WaitGroup
	ctrl, err := NewController(context.Background(), &wg, nil,
		config.RESTServerData{Port: 8080}, store, svc, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	return ctrl, store
}

func get(t *testing.T, server *httptest.Server, path string, out interface{}) int {
	t.Helper()
	resp, err := server.Client().Get(server.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func seedInventory(t *testing.T, store *csvcache.Store) {
	t.Helper()
	err := store.WriteStations([]types.Station{
		{Code: "07548X0009/F", Name: "Puits de Mehun", Department: "18", Kind: types.SeriesPiezometric},
		{Code: "07541X0101/S", Name: "Forage de Vierzon", Department: "18", Kind: types.SeriesPiezometric},
		{Code: "1234", Name: "Pluvio", Department: "36", Kind: types.SeriesPrecipitation},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestGetDepartments(t *testing.T) {
	ctrl, store := newTestController(t)
	seedInventory(t, store)
	server := httptest.NewServer(ctrl.Server.Handler)
	defer server.Close()

	var departments []DepartmentResponse
	if code := get(t, server, "/api/departments", &departments); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(departments) != 2 {
		t.Fatalf("expected 2 departments, got %d", len(departments))
	}
	if departments[0].Code != "18" || departments[0].StationCount != 2 {
		t.Errorf("department counts wrong: %+v", departments)
	}
}

func TestGetStationsFilters(t *testing.T) {
	ctrl, store := newTestController(t)
	seedInventory(t, store)
	server := httptest.NewServer(ctrl.Server.Handler)
	defer server.Close()

	var stations []types.Station
	get(t, server, "/api/stations?department=18", &stations)
	if len(stations) != 2 {
		t.Fatalf("expected 2 stations in department 18, got %d", len(stations))
	}

	stations = nil
	get(t, server, "/api/stations?kind=precipitation", &stations)
	if len(stations) != 1 || stations[0].Code != "1234" {
		t.Fatalf("kind filter wrong: %+v", stations)
	}
}

func TestGetChronicle(t *testing.T) {
	ctrl, store := newTestController(t)
	seedInventory(t, store)

	// 20 years of monthly values, so the trend window is usable
	var ms []types.Measurement
	start := time.Date(2003, 1, 1, 0, 0, 0, 0, time.UTC)
	for m := 0; m < 240; m++ {
		ms = append(ms, types.Measurement{
			StationCode: "07548X0009/F",
			Kind:        types.SeriesPiezometric,
			Timestamp:   start.AddDate(0, m, 0),
			Value:       80 + float64(m%12),
		})
	}
	if _, err := store.Append(ms); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(ctrl.Server.Handler)
	defer server.Close()

	var resp ChronicleResponse
	if code := get(t, server, "/api/chronicle?station=07548X0009%2FF", &resp); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if resp.Station != "07548X0009/F" {
		t.Errorf("station echo wrong: %q", resp.Station)
	}
	if len(resp.Points) == 0 {
		t.Fatal("expected chronicle points")
	}
	if resp.Trend.Verdict == "" {
		t.Error("expected a trend verdict")
	}
	// 20 years minus the 5 excluded leaves 15 reference years
	if resp.Trend.Years != 15 {
		t.Errorf("trend years: got %d, want 15", resp.Trend.Years)
	}
}

func TestGetChronicleMissingStation(t *testing.T) {
	ctrl, _ := newTestController(t)
	server := httptest.NewServer(ctrl.Server.Handler)
	defer server.Close()

	if code := get(t, server, "/api/chronicle?station=nope", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code := get(t, server, "/api/chronicle", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without station, got %d", code)
	}
}

func TestGetIndicatorNotComputed(t *testing.T) {
	ctrl, _ := newTestController(t)
	server := httptest.NewServer(ctrl.Server.Handler)
	defer server.Close()

	if code := get(t, server, "/api/indicator?station=nope", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestGetDistributionNotComputed(t *testing.T) {
	ctrl, _ := newTestController(t)
	server := httptest.NewServer(ctrl.Server.Handler)
	defer server.Close()

	if code := get(t, server, "/api/distribution", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestGetLevels(t *testing.T) {
	ctrl, _ := newTestController(t)
	server := httptest.NewServer(ctrl.Server.Handler)
	defer server.Close()

	var resp LevelsResponse
	if code := get(t, server, "/api/levels", &resp); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(resp.Drought) != 7 || len(resp.Humidity) != 7 {
		t.Fatalf("expected 7 levels each, got %d and %d", len(resp.Drought), len(resp.Humidity))
	}
	if resp.Drought[0].Label != "Très bas" {
		t.Errorf("lowest drought level: got %q", resp.Drought[0].Label)
	}
}

func TestGetHumidity(t *testing.T) {
	ctrl, store := newTestController(t)

	if _, err := store.AppendGrid(string(types.SeriesSoilMoisture), []types.GridPoint{
		{Time: time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC), Latitude: 47, Longitude: 2, Value: 10},
		{Time: time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC), Latitude: 47.1, Longitude: 2, Value: 80},
		{Time: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), Latitude: 47, Longitude: 2, Value: 55},
	}); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(ctrl.Server.Handler)
	defer server.Close()

	var resp HumidityResponse
	if code := get(t, server, "/api/humidity", &resp); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(resp.Months) != 2 {
		t.Fatalf("expected 2 months, got %d", len(resp.Months))
	}
	april := resp.Months[0]
	if april.Month != "2023-04" {
		t.Fatalf("months not sorted: %+v", resp.Months)
	}
	// one extremely dry cell and one very wet cell
	if april.Percents[0] != 50 {
		t.Errorf("april class percents wrong: %v", april.Percents)
	}
}

func TestGetHealth(t *testing.T) {
	ctrl, _ := newTestController(t)
	server := httptest.NewServer(ctrl.Server.Handler)
	defer server.Close()

	var resp HealthResponse
	if code := get(t, server, "/api/health", &resp); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if resp.Status != "ok" && resp.Status != "degraded" {
		t.Errorf("unexpected status %q", resp.Status)
	}
}

func TestStaticAssetsServed(t *testing.T) {
	ctrl, _ := newTestController(t)
	server := httptest.NewServer(ctrl.Server.Handler)
	defer server.Close()

	resp, err := server.Client().Get(server.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected dashboard index, got %d", resp.StatusCode)
	}
}

func TestGetBulletin(t *testing.T) {
	ctrl, store := newTestController(t)
	server := httptest.NewServer(ctrl.Server.Handler)
	defer server.Close()

	if code := get(t, server, "/api/bulletins", nil); code != http.StatusNotFound {
		t.Fatalf("status %d before any bulletin is cached, want 404", code)
	}

	header := []string{"department", "precip_mm", "precip_norm_mm", "ratio"}
	rows := [][]string{{"18", "42.5", "61.0", "0.697"}}
	if err := store.WriteTable("precipitation", header, rows); err != nil {
		t.Fatal(err)
	}

	var resp BulletinResponse
	if code := get(t, server, "/api/bulletins?table=precipitation", &resp); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if resp.Table != "precipitation" {
		t.Errorf("table = %q", resp.Table)
	}
	if len(resp.Header) != 4 || resp.Header[0] != "department" {
		t.Errorf("header = %v", resp.Header)
	}
	if len(resp.Rows) != 1 || resp.Rows[0][0] != "18" {
		t.Errorf("rows = %v", resp.Rows)
	}

	if code := get(t, server, "/api/bulletins?table=../etc", nil); code != http.StatusBadRequest {
		t.Errorf("status %d for unknown table, want 400", code)
	}
}
