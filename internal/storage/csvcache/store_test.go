package csvcache

import (
	"errors"
	"testing"
	"time"

	"github.com/hydrometrie/watertracker/internal/types"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAppendIsAdditive(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	first := []types.Measurement{
		{StationCode: "07548X0009/F", Kind: types.SeriesPiezometric, Timestamp: day(2020, 1, 1), Value: 82.1},
		{StationCode: "07548X0009/F", Kind: types.SeriesPiezometric, Timestamp: day(2020, 1, 2), Value: 82.3},
	}
	n, err := store.Append(first)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows appended, got %d", n)
	}

	// A refresh overlapping the cached tail must only add the new day
	second := []types.Measurement{
		{StationCode: "07548X0009/F", Kind: types.SeriesPiezometric, Timestamp: day(2020, 1, 2), Value: 99.9},
		{StationCode: "07548X0009/F", Kind: types.SeriesPiezometric, Timestamp: day(2020, 1, 3), Value: 82.5},
	}
	n, err = store.Append(second)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row appended on overlap, got %d", n)
	}

	series, err := store.ReadSeries("07548X0009/F")
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 3 {
		t.Fatalf("expected 3 cached rows, got %d", len(series))
	}
	// The overlapping day keeps its original value
	if series[1].Value != 82.3 {
		t.Errorf("cached value rewritten: got %v, want 82.3", series[1].Value)
	}
	for i := 1; i < len(series); i++ {
		if !series[i].Timestamp.After(series[i-1].Timestamp) {
			t.Errorf("series not ordered at index %d", i)
		}
	}
}

func TestLastTimestamp(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	_, ok, err := store.LastTimestamp("unknown")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no tail for unknown station")
	}

	if _, err := store.Append([]types.Measurement{
		{StationCode: "A", Kind: types.SeriesPrecipitation, Timestamp: day(2021, 6, 1), Value: 1},
		{StationCode: "A", Kind: types.SeriesPrecipitation, Timestamp: day(2021, 6, 3), Value: 2},
	}); err != nil {
		t.Fatal(err)
	}

	last, ok, err := store.LastTimestamp("A")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || !last.Equal(day(2021, 6, 3)) {
		t.Fatalf("got tail %v ok=%v, want 2021-06-03", last, ok)
	}
}

func TestReadSeriesMissing(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.ReadSeries("nope"); !errors.Is(err, ErrNoSeries) {
		t.Fatalf("expected ErrNoSeries, got %v", err)
	}
}

func TestStationInventoryRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	in := []types.Station{
		{
			Code: "07548X0009/F", BSSID: "BSS001QXDH", Name: "Puits de Mehun",
			Commune: "Mehun-sur-Yèvre", CommuneCode: "18141",
			Department: "18", DeptName: "Cher", WaterBody: "GG088",
			Kind:         types.SeriesPiezometric,
			MeasureStart: day(1995, 3, 1), MeasureEnd: day(2023, 5, 30),
			MeasureCount: 10234,
		},
		{Code: "1234", Name: "Pluvio", Department: "36", Kind: types.SeriesPrecipitation},
	}
	if err := store.WriteStations(in); err != nil {
		t.Fatal(err)
	}

	out, err := store.ReadStations()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 stations, got %d", len(out))
	}
	if out[0].Code != in[0].Code || out[0].MeasureCount != in[0].MeasureCount {
		t.Errorf("station metadata mangled: got %+v", out[0])
	}
	if !out[0].MeasureEnd.Equal(in[0].MeasureEnd) {
		t.Errorf("measure end mangled: got %v", out[0].MeasureEnd)
	}
	if !out[1].MeasureStart.IsZero() {
		t.Errorf("expected zero measure start for station without dates, got %v", out[1].MeasureStart)
	}
}

func TestWriteStationsReplacesInventory(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := store.WriteStations([]types.Station{{Code: "old", Kind: types.SeriesPiezometric}}); err != nil {
		t.Fatal(err)
	}
	if err := store.WriteStations([]types.Station{{Code: "new", Kind: types.SeriesPiezometric}}); err != nil {
		t.Fatal(err)
	}

	out, err := store.ReadStations()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Code != "new" {
		t.Fatalf("inventory not replaced: %+v", out)
	}
}

func TestProcessedRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	points := []types.IndicatorPoint{
		{Timestamp: day(2022, 1, 1), Rolling: 120.5, Score: -0.42},
		{Timestamp: day(2022, 2, 1), Rolling: 98.1, Score: -1.31},
	}
	if err := store.WriteProcessed("07548X0009/F", points); err != nil {
		t.Fatal(err)
	}

	out, err := store.ReadProcessed("07548X0009/F")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 points, got %d", len(out))
	}
	if out[1].Score != -1.31 {
		t.Errorf("score mangled: got %v", out[1].Score)
	}
}

func TestAppendGridSkipsCachedMonths(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	jan := []types.GridPoint{
		{Time: day(2023, 1, 1), Latitude: 47.0, Longitude: 2.0, Value: 0.31},
		{Time: day(2023, 1, 1), Latitude: 47.1, Longitude: 2.0, Value: 0.29},
	}
	n, err := store.AppendGrid("soil-moisture", jan)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 cells archived, got %d", n)
	}

	mixed := []types.GridPoint{
		{Time: day(2023, 1, 15), Latitude: 47.0, Longitude: 2.0, Value: 0.99},
		{Time: day(2023, 2, 1), Latitude: 47.0, Longitude: 2.0, Value: 0.27},
	}
	n, err = store.AppendGrid("soil-moisture", mixed)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected only the February cell archived, got %d", n)
	}

	out, err := store.ReadGrid("soil-moisture")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 archived cells, got %d", len(out))
	}
}

func TestTableRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	header := []string{"department", "precip_mm", "ratio"}
	rows := [][]string{
		{"18", "45.2", "0.62"},
		{"36", "51.8", "0.71"},
	}
	if err := store.WriteTable("precipitation", header, rows); err != nil {
		t.Fatal(err)
	}

	gotHeader, gotRows, err := store.ReadTable("precipitation")
	if err != nil {
		t.Fatal(err)
	}
	if len(gotHeader) != 3 || gotHeader[0] != "department" {
		t.Errorf("header mangled: %v", gotHeader)
	}
	if len(gotRows) != 2 || gotRows[1][1] != "51.8" {
		t.Errorf("rows mangled: %v", gotRows)
	}

	// Tables are rewritten whole
	if err := store.WriteTable("precipitation", header, rows[:1]); err != nil {
		t.Fatal(err)
	}
	_, gotRows, err = store.ReadTable("precipitation")
	if err != nil {
		t.Fatal(err)
	}
	if len(gotRows) != 1 {
		t.Fatalf("expected rewritten table with 1 row, got %d", len(gotRows))
	}

	if _, _, err := store.ReadTable("absent"); !errors.Is(err, ErrNoSeries) {
		t.Fatalf("expected ErrNoSeries for absent table, got %v", err)
	}
}

func TestCachedStations(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.Append([]types.Measurement{
		{StationCode: "B/2", Kind: types.SeriesPiezometric, Timestamp: day(2020, 1, 1), Value: 1},
		{StationCode: "A/1", Kind: types.SeriesPiezometric, Timestamp: day(2020, 1, 1), Value: 1},
	}); err != nil {
		t.Fatal(err)
	}

	codes, err := store.CachedStations()
	if err != nil {
		t.Fatal(err)
	}
	if len(codes) != 2 {
		t.Fatalf("expected 2 cached stations, got %d", len(codes))
	}
	if codes[0] != types.SanitizeCode("A/1") {
		t.Errorf("expected sorted sanitized codes, got %v", codes)
	}
}
