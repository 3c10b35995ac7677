package managers

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/hydrometrie/watertracker/internal/connectors"
	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/storage/csvcache"
	"github.com/hydrometrie/watertracker/internal/types"
	"github.com/hydrometrie/watertracker/pkg/config"
)

func TestMain(m *testing.M) {
	log.Init(false)
	os.Exit(m.Run())
}

// fakeSource is an in-memory chronicle source.
type fakeSource struct {
	name     string
	stations []types.Station
	series   map[string][]types.Measurement

	// lastFrom records the window start of the most recent series fetch
	lastFrom map[string]time.Time
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchStations(ctx context.Context) ([]types.Station, error) {
	return f.stations, nil
}

func (f *fakeSource) FetchSeries(ctx context.Context, stationCode string, from, to time.Time) ([]types.Measurement, error) {
	if f.lastFrom == nil {
		f.lastFrom = make(map[string]time.Time)
	}
	f.lastFrom[stationCode] = from
	var out []types.Measurement
	for _, m := range f.series[stationCode] {
		if m.Timestamp.Before(from) || m.Timestamp.After(to) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func newTestStore(t *testing.T) *csvcache.Store {
	t.Helper()
	store, err := csvcache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func newTestManager(store *csvcache.Store, distributor chan<- types.Measurement, srcs ...connectors.Connector) *ConnectorManager {
	return &ConnectorManager{
		store:       store,
		distributor: distributor,
		sources:     srcs,
		origin:      make(map[string]string),
	}
}

func TestRefreshInventoryFiltersShortHistories(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{
		name: "fake",
		stations: []types.Station{
			{
				Code: "LONG/1", Kind: types.SeriesPiezometric,
				MeasureStart: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
				MeasureEnd:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			{
				Code: "SHORT/1", Kind: types.SeriesPiezometric,
				MeasureStart: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
				MeasureEnd:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			// no measure dates reported, kept as-is
			{Code: "NODATES/1", Kind: types.SeriesPrecipitation},
		},
	}
	cm := newTestManager(store, nil, src)

	if err := cm.RefreshInventory(context.Background()); err != nil {
		t.Fatal(err)
	}

	stations, err := store.ReadStations()
	if err != nil {
		t.Fatal(err)
	}
	codes := make(map[string]bool)
	for _, s := range stations {
		codes[s.Code] = true
	}
	if !codes["LONG/1"] || !codes["NODATES/1"] {
		t.Errorf("expected LONG/1 and NODATES/1 in inventory, got %v", codes)
	}
	if codes["SHORT/1"] {
		t.Error("station with 4 years of history should have been dropped")
	}
	if cm.origin["LONG/1"] != "fake" {
		t.Errorf("origin not recorded: %v", cm.origin)
	}
}

func TestRefreshInventoryDeduplicatesAcrossSources(t *testing.T) {
	store := newTestStore(t)
	st := types.Station{
		Code: "SHARED/1", Kind: types.SeriesPiezometric,
		MeasureStart: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		MeasureEnd:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	first := &fakeSource{name: "first", stations: []types.Station{st}}
	second := &fakeSource{name: "second", stations: []types.Station{st}}
	cm := newTestManager(store, nil, first, second)

	if err := cm.RefreshInventory(context.Background()); err != nil {
		t.Fatal(err)
	}

	stations, err := store.ReadStations()
	if err != nil {
		t.Fatal(err)
	}
	if len(stations) != 1 {
		t.Fatalf("expected 1 station, got %d", len(stations))
	}
	if cm.origin["SHARED/1"] != "first" {
		t.Errorf("first source should claim the shared station, got %q", cm.origin["SHARED/1"])
	}
}

func TestRefreshSeriesExtendsFromCacheTail(t *testing.T) {
	store := newTestStore(t)
	code := "07548X0009/F"
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	cached := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	src := &fakeSource{
		name: "fake",
		stations: []types.Station{{
			Code: code, Kind: types.SeriesPiezometric,
			MeasureStart: start,
			MeasureEnd:   cached.AddDate(0, 1, 0),
		}},
		series: map[string][]types.Measurement{
			code: {
				{StationCode: code, Timestamp: cached, Value: 80.1},
				{StationCode: code, Timestamp: cached.AddDate(0, 0, 5), Value: 80.4},
			},
		},
	}

	if _, err := store.Append([]types.Measurement{
		{StationCode: code, Kind: types.SeriesPiezometric, Timestamp: cached, Value: 80.1},
	}); err != nil {
		t.Fatal(err)
	}

	distributor := make(chan types.Measurement, 10)
	cm := newTestManager(store, distributor, src)

	if err := cm.RefreshSeries(context.Background()); err != nil {
		t.Fatal(err)
	}
	close(distributor)

	wantFrom := cached.AddDate(0, 0, 1)
	if got := src.lastFrom[code]; !got.Equal(wantFrom) {
		t.Errorf("fetch window start: got %v, want %v", got, wantFrom)
	}

	var received []types.Measurement
	for m := range distributor {
		received = append(received, m)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 new measurement, got %d", len(received))
	}
	if received[0].Value != 80.4 {
		t.Errorf("wrong measurement forwarded: %+v", received[0])
	}
	if received[0].Kind != types.SeriesPiezometric {
		t.Errorf("kind should be filled from the inventory, got %q", received[0].Kind)
	}
}

// fakeStationWriter records inventory upserts.
type fakeStationWriter struct {
	upserts map[string][]byte
}

func (f *fakeStationWriter) UpsertStation(st types.Station, rawJSON []byte) error {
	if f.upserts == nil {
		f.upserts = make(map[string][]byte)
	}
	f.upserts[st.Code] = rawJSON
	return nil
}

func TestRefreshInventoryUpsertsStations(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{
		name: "fake",
		stations: []types.Station{
			{
				Code: "LONG/1", Commune: "Bourges", Kind: types.SeriesPiezometric,
				MeasureStart: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
				MeasureEnd:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			{
				Code: "SHORT/1", Kind: types.SeriesPiezometric,
				MeasureStart: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
				MeasureEnd:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
	}
	cm := newTestManager(store, nil, src)
	writer := &fakeStationWriter{}
	cm.SetStationWriter(writer)

	if err := cm.RefreshInventory(context.Background()); err != nil {
		t.Fatal(err)
	}

	raw, ok := writer.upserts["LONG/1"]
	if !ok {
		t.Fatalf("kept station not upserted, got %v", writer.upserts)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("raw document is not JSON: %v", err)
	}
	if doc["nom_commune"] != "Bourges" {
		t.Errorf("raw document = %v", doc)
	}
	if _, ok := writer.upserts["SHORT/1"]; ok {
		t.Error("filtered station should not be upserted")
	}
}

func TestMissingMonths(t *testing.T) {
	now := time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)
	key := func(ts time.Time) string { return ts.Format("2006-01") }

	t.Run("empty archive wants every month", func(t *testing.T) {
		got := missingMonths(nil, now, 3)
		if len(got) != 3 {
			t.Fatalf("got %d months, want 3", len(got))
		}
		for i, want := range []string{"2024-04", "2024-03", "2024-02"} {
			if key(got[i]) != want {
				t.Errorf("month %d = %s, want %s", i, key(got[i]), want)
			}
		}
	})

	t.Run("gap behind the newest archived month is found", func(t *testing.T) {
		present := map[string]bool{"2024-04": true, "2024-02": true}
		got := missingMonths(present, now, 4)
		if len(got) != 2 {
			t.Fatalf("got %v, want March and January", got)
		}
		if key(got[0]) != "2024-03" || key(got[1]) != "2024-01" {
			t.Errorf("got %s, %s", key(got[0]), key(got[1]))
		}
	})

	t.Run("current archive wants nothing", func(t *testing.T) {
		present := map[string]bool{"2024-04": true, "2024-03": true}
		if got := missingMonths(present, now, 2); len(got) != 0 {
			t.Errorf("got %v, want none", got)
		}
	})
}

func TestGridName(t *testing.T) {
	tests := []struct {
		variable string
		want     string
	}{
		{"", "soil-moisture"},
		{"volumetric_soil_water_layer_1", "soil-moisture"},
		{"volumetric_soil_water_layer_2", "soil-moisture"},
		{"total_precipitation", "precipitation"},
		{"2m_temperature", "2m_temperature"},
	}
	for _, tc := range tests {
		cfg := &config.CopernicusData{Variable: tc.variable}
		if got := gridName(cfg); got != tc.want {
			t.Errorf("gridName(%q) = %q, want %q", tc.variable, got, tc.want)
		}
	}
	if got := gridName(nil); got != "soil-moisture" {
		t.Errorf("gridName(nil) = %q", got)
	}
}

func TestYearsBetween(t *testing.T) {
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	got := yearsBetween(start, end)
	if got < 19.9 || got > 20.1 {
		t.Errorf("yearsBetween 2000..2020 = %v", got)
	}
}
