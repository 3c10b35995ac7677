package indicators

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/metrics"
	"github.com/hydrometrie/watertracker/internal/storage/csvcache"
	"github.com/hydrometrie/watertracker/internal/types"
)

// defaultMinYearsHistory is the minimum chronicle span worth standardizing;
// shorter histories give an unstable reference distribution.
const defaultMinYearsHistory = 15

// Service recomputes the standardized indicators from the cache and serves
// the results to the REST and report controllers. Recompute is a pure
// function of the cached chronicles, so re-running it without new data
// yields identical outputs.
type Service struct {
	store *csvcache.Store

	scale    int
	minYears int

	// test hook
	now func() time.Time

	mu           sync.RWMutex
	series       map[string][]types.IndicatorPoint
	stationKinds map[string]types.SeriesKind
	distribution map[types.SeriesKind][]MonthDistribution
	computedAt   time.Time
}

// NewService creates an indicator service over a cache store. Zero scale
// and minYears select the defaults.
func NewService(store *csvcache.Store, scale, minYears int) *Service {
	if scale < 1 {
		scale = DefaultScale
	}
	if minYears < 1 {
		minYears = defaultMinYearsHistory
	}
	return &Service{
		store:        store,
		scale:        scale,
		minYears:     minYears,
		now:          time.Now,
		series:       make(map[string][]types.IndicatorPoint),
		stationKinds: make(map[string]types.SeriesKind),
		distribution: make(map[types.SeriesKind][]MonthDistribution),
	}
}

// Recompute runs the whole pipeline: for every cached station it cleans the
// chronicle, computes the standardized scores, persists them next to the raw
// series, and rebuilds the cross-station monthly distributions.
func (s *Service) Recompute(ctx context.Context) error {
	start := s.now()
	stations, err := s.store.ReadStations()
	if err != nil {
		return fmt.Errorf("reading station inventory: %w", err)
	}

	perStation := make(map[types.SeriesKind]map[string]map[time.Month]int)
	kindCounts := make(map[types.SeriesKind]int)
	newSeries := make(map[string][]types.IndicatorPoint)
	newKinds := make(map[string]types.SeriesKind, len(stations))

	computed := 0
	for _, station := range stations {
		if err := ctx.Err(); err != nil {
			return err
		}
		newKinds[station.Code] = station.Kind

		points, err := s.computeStation(station)
		if err != nil {
			metrics.IndicatorComputations.WithLabelValues(indicatorName(station.Kind), "error").Inc()
			log.Warnf("indicators: station %s: %v", station.Code, err)
			continue
		}
		if points == nil {
			continue
		}
		metrics.IndicatorComputations.WithLabelValues(indicatorName(station.Kind), "ok").Inc()
		computed++
		kindCounts[station.Kind]++
		newSeries[station.Code] = points

		codes := MonthlyLevelCodes(points, start)
		if len(codes) == 0 {
			continue
		}
		if perStation[station.Kind] == nil {
			perStation[station.Kind] = make(map[string]map[time.Month]int)
		}
		perStation[station.Kind][station.Code] = codes
	}

	newDistribution := make(map[types.SeriesKind][]MonthDistribution, len(perStation))
	for kind, stations := range perStation {
		newDistribution[kind] = RollDistribution(AggregateDistribution(stations), start)
	}

	s.mu.Lock()
	s.series = newSeries
	s.stationKinds = newKinds
	s.distribution = newDistribution
	s.computedAt = start
	s.mu.Unlock()

	for kind, count := range kindCounts {
		metrics.StationsTracked.WithLabelValues(string(kind)).Set(float64(count))
	}
	elapsed := s.now().Sub(start)
	metrics.IndicatorDuration.Observe(elapsed.Seconds())
	log.Infof("indicators: recomputed %d/%d stations in %s", computed, len(stations), elapsed)
	return nil
}

// computeStation returns the indicator series of one station, or nil when
// its history is too short to standardize.
func (s *Service) computeStation(station types.Station) ([]types.IndicatorPoint, error) {
	series, err := s.store.ReadSeries(station.Code)
	if err != nil {
		if err == csvcache.ErrNoSeries {
			return nil, nil
		}
		return nil, err
	}
	series = s.trimToHistoryWindow(series)
	if series == nil {
		return nil, nil
	}

	points := Compute(Clean(series), s.scale)
	if len(points) == 0 {
		return nil, nil
	}
	if err := s.store.WriteProcessed(station.Code, points); err != nil {
		return nil, fmt.Errorf("persisting processed series: %w", err)
	}
	return points, nil
}

// trimToHistoryWindow keeps the last minYears of a chronicle, or rejects it
// when it does not span minYears+1 years.
func (s *Service) trimToHistoryWindow(series []types.Measurement) []types.Measurement {
	if len(series) == 0 {
		return nil
	}
	first, last := series[0].Timestamp, series[0].Timestamp
	for _, m := range series {
		if m.Timestamp.Before(first) {
			first = m.Timestamp
		}
		if m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}
	spanYears := last.Sub(first).Hours() / 24 / 365
	if spanYears < float64(s.minYears+1) {
		return nil
	}

	cutoff := s.now().AddDate(0, 0, -s.minYears*365)
	kept := make([]types.Measurement, 0, len(series))
	for _, m := range series {
		if m.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// StationSeries returns the last computed indicator series of a station.
func (s *Service) StationSeries(code string) ([]types.IndicatorPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	points, ok := s.series[code]
	return points, ok
}

// Distribution returns the trailing-year level distribution for a series
// kind.
func (s *Service) Distribution(kind types.SeriesKind) ([]MonthDistribution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dist, ok := s.distribution[kind]
	return dist, ok
}

// ComputedAt returns the time of the last successful recomputation, zero
// before the first one.
func (s *Service) ComputedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.computedAt
}

// MeanScore returns the mean of the finite scores of an indicator series.
// Used by the health endpoint as a sanity signal: over a long reference
// period it should sit near zero.
func MeanScore(points []types.IndicatorPoint) float64 {
	var sum float64
	n := 0
	for _, p := range points {
		if math.IsNaN(p.Score) {
			continue
		}
		sum += p.Score
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func indicatorName(kind types.SeriesKind) string {
	switch kind {
	case types.SeriesPrecipitation:
		return "spi"
	case types.SeriesPiezometric:
		return "spli"
	default:
		return string(kind)
	}
}
