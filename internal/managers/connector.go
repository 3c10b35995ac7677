package managers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hydrometrie/watertracker/internal/connectors"
	"github.com/hydrometrie/watertracker/internal/connectors/copernicus"
	"github.com/hydrometrie/watertracker/internal/connectors/emi"
	"github.com/hydrometrie/watertracker/internal/connectors/hubeau"
	"github.com/hydrometrie/watertracker/internal/connectors/meteofrance"
	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/metrics"
	"github.com/hydrometrie/watertracker/internal/storage/csvcache"
	"github.com/hydrometrie/watertracker/internal/types"
	"github.com/hydrometrie/watertracker/pkg/config"
)

// defaultMinYearsHistory filters out stations whose chronicle is too short
// to fit a reference distribution
const defaultMinYearsHistory = 15

// gridBackfillMonths bounds how far back a grid refresh will reach for
// months missing from the archive
const gridBackfillMonths = 12

// StationWriter persists the station inventory to a database backend, in
// addition to the cached inventory file.
type StationWriter interface {
	UpsertStation(st types.Station, rawJSON []byte) error
}

// ConnectorManager drives the upstream data providers and feeds their
// measurements into the storage distributor.
type ConnectorManager struct {
	store         *csvcache.Store
	distributor   chan<- types.Measurement
	stationWriter StationWriter

	sources     []connectors.Connector
	meteofrance *meteofrance.Client
	copernicus  *copernicus.Client

	hubeauCfg     *config.HubeauData
	copernicusCfg *config.CopernicusData

	mu     sync.Mutex
	origin map[string]string // station code -> source name
}

// NewConnectorManager creates a ConnectorManager populated with all
// configured upstream connectors.
func NewConnectorManager(cfgData *config.ConfigData, store *csvcache.Store, distributor chan<- types.Measurement) (*ConnectorManager, error) {
	if store == nil {
		return nil, fmt.Errorf("connector manager needs a cache store")
	}

	cm := &ConnectorManager{
		store:       store,
		distributor: distributor,
		origin:      make(map[string]string),
	}

	if cfgData.Sources.Hubeau != nil {
		cm.hubeauCfg = cfgData.Sources.Hubeau
		cm.sources = append(cm.sources, hubeau.NewClient(cfgData.Sources.Hubeau, nil))
	}
	if cfgData.Sources.EMI != nil {
		cm.sources = append(cm.sources, emi.NewClient(cfgData.Sources.EMI, nil))
	}
	if cfgData.Sources.MeteoFrance != nil {
		mf, err := meteofrance.NewClient(cfgData.Sources.MeteoFrance, nil)
		if err != nil {
			return nil, fmt.Errorf("could not create Meteo France connector: %v", err)
		}
		cm.meteofrance = mf
	}
	if cfgData.Sources.Copernicus != nil {
		cm.copernicusCfg = cfgData.Sources.Copernicus
		cm.copernicus = copernicus.NewClient(cfgData.Sources.Copernicus, nil)
	}

	if len(cm.sources) == 0 && cm.meteofrance == nil && cm.copernicus == nil {
		return nil, fmt.Errorf("no upstream sources configured")
	}

	return cm, nil
}

// SetStationWriter directs inventory refreshes to also upsert stations into
// a database backend.
func (cm *ConnectorManager) SetStationWriter(w StationWriter) {
	cm.stationWriter = w
}

// RefreshInventory fetches the station inventory from every chronicle
// source, drops stations with too little history and rewrites the cached
// inventory file.
func (cm *ConnectorManager) RefreshInventory(ctx context.Context) error {
	if len(cm.sources) == 0 {
		return nil
	}

	minYears := defaultMinYearsHistory
	if cm.hubeauCfg != nil && cm.hubeauCfg.MinYearsHistory > 0 {
		minYears = cm.hubeauCfg.MinYearsHistory
	}

	origin := make(map[string]string)
	var merged []types.Station
	for _, src := range cm.sources {
		stations, err := src.FetchStations(ctx)
		if err != nil {
			return fmt.Errorf("fetching station inventory from %s: %w", src.Name(), err)
		}

		kept := 0
		for _, st := range stations {
			if st.HasMeasureDates() && yearsBetween(st.MeasureStart, st.MeasureEnd) < float64(minYears) {
				continue
			}
			if _, dup := origin[st.Code]; dup {
				continue
			}
			origin[st.Code] = src.Name()
			merged = append(merged, st)
			kept++
		}
		log.Infof("%s: inventory refreshed, %d of %d stations kept", src.Name(), kept, len(stations))
	}

	if err := cm.store.WriteStations(merged); err != nil {
		return fmt.Errorf("writing station inventory: %w", err)
	}

	if cm.stationWriter != nil {
		for _, st := range merged {
			raw, err := json.Marshal(st)
			if err != nil {
				raw = nil
			}
			if err := cm.stationWriter.UpsertStation(st, raw); err != nil {
				log.Warnf("could not upsert station %s: %v", st.Code, err)
			}
		}
	}

	counts := make(map[types.SeriesKind]int)
	for _, st := range merged {
		counts[st.Kind]++
	}
	for kind, n := range counts {
		metrics.StationsTracked.WithLabelValues(string(kind)).Set(float64(n))
	}

	cm.mu.Lock()
	cm.origin = origin
	cm.mu.Unlock()
	return nil
}

// RefreshSeries walks the cached inventory and extends every station's
// chronicle from its last cached timestamp. A refresh is strictly additive:
// rows before the cached tail are never requested again.
func (cm *ConnectorManager) RefreshSeries(ctx context.Context) error {
	if len(cm.sources) == 0 {
		return nil
	}

	cm.mu.Lock()
	stale := len(cm.origin) == 0
	cm.mu.Unlock()
	if stale {
		if err := cm.RefreshInventory(ctx); err != nil {
			return err
		}
	}

	stations, err := cm.store.ReadStations()
	if err != nil {
		return fmt.Errorf("reading station inventory: %w", err)
	}

	now := time.Now().UTC()
	refreshed, failed := 0, 0
	for _, st := range stations {
		if err := ctx.Err(); err != nil {
			return err
		}

		src := cm.sourceFor(st.Code)
		if src == nil {
			log.Warnf("no connector claims station %s, skipping", st.Code)
			continue
		}

		from := st.MeasureStart
		last, ok, err := cm.store.LastTimestamp(st.Code)
		if err != nil {
			log.Error("could not read cache tail for station:", st.Code, err)
			failed++
			continue
		}
		if ok {
			from = last.AddDate(0, 0, 1)
		}
		if from.After(now) {
			continue
		}

		measurements, err := src.FetchSeries(ctx, st.Code, from, now)
		if err != nil {
			log.Warnf("%s: chronicle refresh of %s failed: %v", src.Name(), st.Code, err)
			failed++
			continue
		}
		for _, m := range measurements {
			if m.Kind == "" {
				m.Kind = st.Kind
			}
			select {
			case cm.distributor <- m:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		refreshed++
	}

	log.Infof("chronicle refresh complete: %d stations refreshed, %d failed", refreshed, failed)
	if failed > 0 && refreshed == 0 {
		return fmt.Errorf("all %d chronicle refreshes failed", failed)
	}
	return nil
}

// RefreshGrid downloads reanalysis months missing from the grid archive,
// most recent complete month first, up to gridBackfillMonths back.
func (cm *ConnectorManager) RefreshGrid(ctx context.Context) error {
	if cm.copernicus == nil {
		return nil
	}

	name := gridName(cm.copernicusCfg)

	present := make(map[string]bool)
	if pts, err := cm.store.ReadGrid(name); err == nil {
		for _, p := range pts {
			present[p.Time.UTC().Format("2006-01")] = true
		}
	}

	missing := missingMonths(present, time.Now().UTC(), gridBackfillMonths)
	for _, target := range missing {
		key := target.Format("2006-01")
		points, err := cm.copernicus.FetchGrid(ctx, target.Year(), target.Month())
		if err != nil {
			return fmt.Errorf("fetching reanalysis grid for %s: %w", key, err)
		}
		n, err := cm.store.AppendGrid(name, points)
		if err != nil {
			return fmt.Errorf("archiving reanalysis grid for %s: %w", key, err)
		}
		log.Infof("copernicus: archived %d grid cells for %s", n, key)
	}
	if len(missing) == 0 {
		log.Debugf("copernicus: grid archive %s already current", name)
	}
	return nil
}

// missingMonths lists the months absent from the archive among the n
// complete months before now, newest first. Archived months are walked
// past, not stopped at: a gap can sit behind the newest one when a previous
// run was interrupted.
func missingMonths(present map[string]bool, now time.Time, n int) []time.Time {
	var out []time.Time
	// normalized to the first so stepping back never skips February
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	for i := 0; i < n; i++ {
		if !present[month.Format("2006-01")] {
			out = append(out, month)
		}
		month = month.AddDate(0, -1, 0)
	}
	return out
}

// RefreshBulletins downloads the current Meteo France drought bulletins and
// rewrites the cached tables. Bulletins are published whole each decade.
func (cm *ConnectorManager) RefreshBulletins(ctx context.Context) error {
	if cm.meteofrance == nil {
		return nil
	}

	sswi, err := cm.meteofrance.FetchSSWI(ctx)
	if err != nil {
		return fmt.Errorf("fetching SSWI bulletin: %w", err)
	}
	rows := make([][]string, 0, len(sswi))
	for _, rec := range sswi {
		rows = append(rows, []string{
			strconv.FormatFloat(rec.Longitude, 'g', -1, 64),
			strconv.FormatFloat(rec.Latitude, 'g', -1, 64),
			rec.Date.UTC().Format("2006-01-02"),
			rec.Decade,
			strconv.FormatFloat(rec.SSWI, 'g', -1, 64),
		})
	}
	if err := cm.store.WriteTable("sswi", []string{"longitude", "latitude", "date", "decade", "sswi"}, rows); err != nil {
		return fmt.Errorf("writing SSWI bulletin: %w", err)
	}

	precip, err := cm.meteofrance.FetchPrecipitation(ctx)
	if err != nil {
		return fmt.Errorf("fetching precipitation bulletin: %w", err)
	}
	rows = rows[:0]
	for _, rec := range precip {
		rows = append(rows, []string{
			rec.Zone,
			strconv.FormatFloat(rec.Precip, 'g', -1, 64),
			strconv.FormatFloat(rec.PrecipNorm, 'g', -1, 64),
			strconv.FormatFloat(rec.RatioPrecip, 'g', -1, 64),
		})
	}
	if err := cm.store.WriteTable("precipitation", []string{"department", "precip_mm", "precip_norm_mm", "ratio"}, rows); err != nil {
		return fmt.Errorf("writing precipitation bulletin: %w", err)
	}

	log.Infof("meteofrance: bulletins refreshed, %d SSWI cells, %d precipitation zones", len(sswi), len(precip))
	return nil
}

func (cm *ConnectorManager) sourceFor(code string) connectors.Connector {
	cm.mu.Lock()
	name := cm.origin[code]
	cm.mu.Unlock()
	for _, src := range cm.sources {
		if src.Name() == name {
			return src
		}
	}
	return nil
}

// gridName maps the reanalysis variable to the archive name the dashboard
// reads from.
func gridName(cfg *config.CopernicusData) string {
	if cfg == nil || cfg.Variable == "" {
		return "soil-moisture"
	}
	switch cfg.Variable {
	case "volumetric_soil_water_layer_1", "volumetric_soil_water_layer_2":
		return "soil-moisture"
	case "total_precipitation":
		return "precipitation"
	default:
		return cfg.Variable
	}
}

func yearsBetween(start, end time.Time) float64 {
	return end.Sub(start).Hours() / 24 / 365.25
}
