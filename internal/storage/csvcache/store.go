// Package csvcache implements the on-disk CSV cache: one chronicle file per
// station, a station inventory file, processed indicator series and gridded
// reanalysis archives. The cache is the source of truth for indicator
// computation; refreshes are strictly additive.
package csvcache

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hydrometrie/watertracker/internal/metrics"
	"github.com/hydrometrie/watertracker/internal/types"
)

const (
	seriesDir    = "timeseries"
	processedDir = "processed"
	gridDir      = "grids"
	bulletinDir  = "bulletins"

	stationsFile = "stations.csv"

	timeLayout = time.RFC3339
)

// ErrNoSeries is returned when a station has no cached chronicle.
var ErrNoSeries = errors.New("no cached series for station")

// Store manages the CSV cache directory layout.
type Store struct {
	dir string

	// serializes writers; reads can race with appends safely because rows
	// are only ever added at the end of the file
	mu sync.Mutex
}

// New creates the cache directory layout under dir.
func New(dir string) (*Store, error) {
	for _, sub := range []string{seriesDir, processedDir, gridDir, bulletinDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache root directory.
func (s *Store) Dir() string {
	return s.dir
}

// SeriesPath returns the chronicle file path for a station code.
func (s *Store) SeriesPath(code string) string {
	return filepath.Join(s.dir, seriesDir, types.SanitizeCode(code)+".csv")
}

// ProcessedPath returns the processed indicator file path for a station code.
func (s *Store) ProcessedPath(code string) string {
	return filepath.Join(s.dir, processedDir, types.SanitizeCode(code)+".csv")
}

// GridPath returns the archive path for a gridded dataset.
func (s *Store) GridPath(name string) string {
	return filepath.Join(s.dir, gridDir, name+".csv")
}

// StationsPath returns the station inventory file path.
func (s *Store) StationsPath() string {
	return filepath.Join(s.dir, stationsFile)
}

// LastTimestamp returns the most recent cached timestamp for a station.
// The second return value is false when the station has no cache file yet.
func (s *Store) LastTimestamp(code string) (time.Time, bool, error) {
	ms, err := s.ReadSeries(code)
	if errors.Is(err, ErrNoSeries) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if len(ms) == 0 {
		return time.Time{}, false, nil
	}
	last := ms[0].Timestamp
	for _, m := range ms[1:] {
		if m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}
	return last, true, nil
}

// Append adds measurements to the per-station chronicle files. Rows at or
// before a station's last cached timestamp are dropped so that a refresh
// never rewrites history. Returns the number of rows actually appended.
func (s *Store) Append(measurements []types.Measurement) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byStation := make(map[string][]types.Measurement)
	for _, m := range measurements {
		byStation[m.StationCode] = append(byStation[m.StationCode], m)
	}

	appended := 0
	for code, rows := range byStation {
		n, err := s.appendStation(code, rows)
		if err != nil {
			return appended, fmt.Errorf("appending to chronicle of %q: %w", code, err)
		}
		appended += n
	}
	return appended, nil
}

func (s *Store) appendStation(code string, rows []types.Measurement) (int, error) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })

	last, haveLast, err := s.lastTimestampLocked(code)
	if err != nil {
		return 0, err
	}

	path := s.SeriesPath(code)
	newFile := !haveLast
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		newFile = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write([]string{"station", "date", "value", "qualification"}); err != nil {
			return 0, err
		}
	}

	appended := 0
	seen := make(map[time.Time]bool)
	for _, m := range rows {
		if haveLast && !m.Timestamp.After(last) {
			continue
		}
		if seen[m.Timestamp] {
			continue
		}
		seen[m.Timestamp] = true
		record := []string{
			m.StationCode,
			m.Timestamp.UTC().Format(timeLayout),
			strconv.FormatFloat(m.Value, 'g', -1, 64),
			m.Qualification,
		}
		if err := w.Write(record); err != nil {
			return appended, err
		}
		appended++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return appended, err
	}
	if appended > 0 && len(rows) > 0 {
		metrics.CacheRowsAppended.WithLabelValues(string(rows[0].Kind)).Add(float64(appended))
	}
	return appended, nil
}

func (s *Store) lastTimestampLocked(code string) (time.Time, bool, error) {
	path := s.SeriesPath(code)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return time.Time{}, false, err
	}
	var last time.Time
	found := false
	for i, rec := range records {
		if i == 0 || len(rec) < 2 {
			continue
		}
		ts, err := time.Parse(timeLayout, rec[1])
		if err != nil {
			continue
		}
		if !found || ts.After(last) {
			last = ts
			found = true
		}
	}
	return last, found, nil
}

// ReadSeries loads the full cached chronicle of a station, ordered by time.
func (s *Store) ReadSeries(code string) ([]types.Measurement, error) {
	path := s.SeriesPath(code)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSeries
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading chronicle of %q: %w", code, err)
	}

	var out []types.Measurement
	for i, rec := range records {
		if i == 0 || len(rec) < 3 {
			continue
		}
		ts, err := time.Parse(timeLayout, rec[1])
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			continue
		}
		m := types.Measurement{
			StationCode: rec[0],
			Timestamp:   ts,
			Value:       v,
		}
		if len(rec) > 3 {
			m.Qualification = rec[3]
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// WriteStations replaces the station inventory file. The write is atomic:
// a temp file is written and renamed into place.
func (s *Store) WriteStations(stations []types.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "stations-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	header := []string{"code", "bss_id", "name", "commune", "commune_code",
		"department", "dept_name", "water_body", "kind",
		"measure_start", "measure_end", "measure_count"}
	if err := w.Write(header); err != nil {
		tmp.Close()
		return err
	}
	for _, st := range stations {
		rec := []string{
			st.Code, st.BSSID, st.Name, st.Commune, st.CommuneCode,
			st.Department, st.DeptName, st.WaterBody, string(st.Kind),
			formatDate(st.MeasureStart), formatDate(st.MeasureEnd),
			strconv.Itoa(st.MeasureCount),
		}
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.StationsPath())
}

// ReadStations loads the station inventory.
func (s *Store) ReadStations() ([]types.Station, error) {
	f, err := os.Open(s.StationsPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading station inventory: %w", err)
	}

	var out []types.Station
	for i, rec := range records {
		if i == 0 || len(rec) < 12 {
			continue
		}
		count, _ := strconv.Atoi(rec[11])
		out = append(out, types.Station{
			Code:         rec[0],
			BSSID:        rec[1],
			Name:         rec[2],
			Commune:      rec[3],
			CommuneCode:  rec[4],
			Department:   rec[5],
			DeptName:     rec[6],
			WaterBody:    rec[7],
			Kind:         types.SeriesKind(rec[8]),
			MeasureStart: parseDate(rec[9]),
			MeasureEnd:   parseDate(rec[10]),
			MeasureCount: count,
		})
	}
	return out, nil
}

// WriteProcessed replaces the processed indicator series for a station.
// Processed series are derived data and always rewritten whole, atomically.
func (s *Store) WriteProcessed(code string, points []types.IndicatorPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.dir, processedDir)
	tmp, err := os.CreateTemp(dir, "processed-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write([]string{"station", "date", "rolling", "score"}); err != nil {
		tmp.Close()
		return err
	}
	for _, p := range points {
		rec := []string{
			code,
			p.Timestamp.UTC().Format(timeLayout),
			strconv.FormatFloat(p.Rolling, 'g', -1, 64),
			strconv.FormatFloat(p.Score, 'g', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.ProcessedPath(code))
}

// ReadProcessed loads the processed indicator series for a station.
func (s *Store) ReadProcessed(code string) ([]types.IndicatorPoint, error) {
	f, err := os.Open(s.ProcessedPath(code))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSeries
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	var out []types.IndicatorPoint
	for i, rec := range records {
		if i == 0 || len(rec) < 4 {
			continue
		}
		ts, err := time.Parse(timeLayout, rec[1])
		if err != nil {
			continue
		}
		rolling, _ := strconv.ParseFloat(rec[2], 64)
		score, _ := strconv.ParseFloat(rec[3], 64)
		out = append(out, types.IndicatorPoint{Timestamp: ts, Rolling: rolling, Score: score})
	}
	return out, nil
}

// AppendGrid archives gridded dataset rows, skipping months already present.
func (s *Store) AppendGrid(name string, points []types.GridPoint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]bool)
	if pts, err := s.readGridLocked(name); err == nil {
		for _, p := range pts {
			existing[p.Time.UTC().Format("2006-01")] = true
		}
	}

	path := s.GridPath(name)
	_, statErr := os.Stat(path)
	newFile := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write([]string{"time", "latitude", "longitude", "value"}); err != nil {
			return 0, err
		}
	}
	appended := 0
	for _, p := range points {
		if existing[p.Time.UTC().Format("2006-01")] {
			continue
		}
		rec := []string{
			p.Time.UTC().Format(timeLayout),
			strconv.FormatFloat(p.Latitude, 'g', -1, 64),
			strconv.FormatFloat(p.Longitude, 'g', -1, 64),
			strconv.FormatFloat(p.Value, 'g', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return appended, err
		}
		appended++
	}
	w.Flush()
	return appended, w.Error()
}

// ReadGrid loads an archived gridded dataset.
func (s *Store) ReadGrid(name string) ([]types.GridPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readGridLocked(name)
}

func (s *Store) readGridLocked(name string) ([]types.GridPoint, error) {
	f, err := os.Open(s.GridPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSeries
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	var out []types.GridPoint
	for i, rec := range records {
		if i == 0 || len(rec) < 4 {
			continue
		}
		ts, err := time.Parse(timeLayout, rec[0])
		if err != nil {
			continue
		}
		lat, _ := strconv.ParseFloat(rec[1], 64)
		lon, _ := strconv.ParseFloat(rec[2], 64)
		v, _ := strconv.ParseFloat(rec[3], 64)
		out = append(out, types.GridPoint{Time: ts, Latitude: lat, Longitude: lon, Value: v})
	}
	return out, nil
}

// TablePath returns the archive path for a named bulletin table.
func (s *Store) TablePath(name string) string {
	return filepath.Join(s.dir, bulletinDir, name+".csv")
}

// WriteTable replaces a named bulletin table, atomically. Bulletins are
// published whole each decade so they are always rewritten rather than
// appended.
func (s *Store) WriteTable(name string, header []string, rows [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.dir, bulletinDir)
	tmp, err := os.CreateTemp(dir, "bulletin-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return err
	}
	for _, rec := range rows {
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.TablePath(name))
}

// ReadTable loads a named bulletin table, returning its header row and data
// rows separately.
func (s *Store) ReadTable(name string) ([]string, [][]string, error) {
	f, err := os.Open(s.TablePath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrNoSeries
	}
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading bulletin table %q: %w", name, err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

// CachedStations lists the station codes that have a chronicle file.
func (s *Store) CachedStations() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, seriesDir))
	if err != nil {
		return nil, err
	}
	var codes []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		codes = append(codes, strings.TrimSuffix(e.Name(), ".csv"))
	}
	sort.Strings(codes)
	return codes, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
