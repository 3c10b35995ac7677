package indicators

import (
	"fmt"
	"math"
	"time"

	"github.com/hydrometrie/watertracker/internal/types"
)

const (
	// defaultYearsNotInTrend keeps the most recent years out of the
	// reference period so the trend is not contaminated by the episode
	// being diagnosed.
	defaultYearsNotInTrend = 5

	// defaultMinTrendYears is the minimum reference length worth fitting.
	defaultMinTrendYears = 3

	daysPerYear = 365.25
)

// ErrNoThreshold is returned when a trend falls outside every threshold of
// an evaluation.
var ErrNoThreshold = fmt.Errorf("trend does not fit in any threshold")

// TrendProperties describes the reference window of a station's historical
// trend. The window runs from the first measurement to YearsExcluded years
// before the last one.
type TrendProperties struct {
	Start time.Time
	End   time.Time

	YearsExcluded int
	MinYears      int

	hasEnoughData bool
}

// NewTrendProperties builds the reference window for a station measured
// between measureStart and measureEnd, with the default exclusion and
// minimum-length settings.
func NewTrendProperties(measureStart, measureEnd time.Time) TrendProperties {
	return NewTrendPropertiesWith(measureStart, measureEnd, defaultYearsNotInTrend, defaultMinTrendYears)
}

// NewTrendPropertiesWith is NewTrendProperties with explicit settings.
func NewTrendPropertiesWith(measureStart, measureEnd time.Time, yearsExcluded, minYears int) TrendProperties {
	tp := TrendProperties{
		YearsExcluded: yearsExcluded,
		MinYears:      minYears,
	}
	measuredYears := measureEnd.Sub(measureStart).Hours() / 24 / daysPerYear
	tp.hasEnoughData = measuredYears >= float64(yearsExcluded+minYears)
	if tp.hasEnoughData {
		tp.Start = measureStart
		tp.End = measureEnd.AddDate(-yearsExcluded, 0, 0)
	}
	return tp
}

// HasEnoughData reports whether the station history covers the exclusion
// period plus the minimum reference length.
func (tp TrendProperties) HasEnoughData() bool {
	return tp.hasEnoughData
}

// YearsOfHistory returns the rounded length of the reference window in
// years, zero when there is not enough data.
func (tp TrendProperties) YearsOfHistory() int {
	if !tp.hasEnoughData {
		return 0
	}
	days := tp.End.Sub(tp.Start).Hours() / 24
	return int(math.Round(days / daysPerYear))
}

// TrendThreshold maps a reference-length interval [Min, Max) to a verdict.
// A NaN bound is unbounded on that side.
type TrendThreshold struct {
	Verdict string
	Min     float64
	Max     float64
}

// Contains reports whether a number of history years falls in the
// threshold's interval.
func (t TrendThreshold) Contains(years float64) bool {
	if !math.IsNaN(t.Min) && years < t.Min {
		return false
	}
	if !math.IsNaN(t.Max) && years >= t.Max {
		return false
	}
	return true
}

// TrendEvaluation grades a trend against an ordered list of thresholds.
type TrendEvaluation struct {
	thresholds []TrendThreshold
}

// NewTrendEvaluation builds an evaluation; thresholds are tried in order.
func NewTrendEvaluation(thresholds ...TrendThreshold) TrendEvaluation {
	return TrendEvaluation{thresholds: thresholds}
}

// DefaultTrendEvaluation grades the reference length the way the published
// bulletins do.
func DefaultTrendEvaluation() TrendEvaluation {
	nan := math.NaN()
	return NewTrendEvaluation(
		TrendThreshold{Verdict: "insufficient", Min: nan, Max: 3},
		TrendThreshold{Verdict: "bad", Min: 3, Max: 5},
		TrendThreshold{Verdict: "correct", Min: 5, Max: 10},
		TrendThreshold{Verdict: "good", Min: 10, Max: 15},
		TrendThreshold{Verdict: "very good", Min: 15, Max: 25},
		TrendThreshold{Verdict: "excellent", Min: 25, Max: nan},
	)
}

// Evaluate returns the verdict of the first threshold containing the
// trend's reference length.
func (e TrendEvaluation) Evaluate(tp TrendProperties) (string, error) {
	years := float64(tp.YearsOfHistory())
	for _, t := range e.thresholds {
		if t.Contains(years) {
			return t.Verdict, nil
		}
	}
	return "", ErrNoThreshold
}

// TrendPoint is a present-day measurement joined with the historical mean
// for the same day of year. HistoricalMean is NaN when the history never
// covers that day.
type TrendPoint struct {
	Timestamp      time.Time `json:"date"`
	Value          float64   `json:"value"`
	HistoricalMean float64   `json:"mean_value"`
}

// AverageByDayOfYear averages a historical chronicle per day of year
// (1..366).
func AverageByDayOfYear(history []types.Measurement) map[int]float64 {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, m := range history {
		doy := m.Timestamp.YearDay()
		sums[doy] += m.Value
		counts[doy]++
	}
	means := make(map[int]float64, len(sums))
	for doy, sum := range sums {
		means[doy] = sum / float64(counts[doy])
	}
	return means
}

// JoinHistoricalAverage annotates each present measurement with the
// historical day-of-year mean. All present points are kept.
func JoinHistoricalAverage(present, history []types.Measurement) []TrendPoint {
	means := AverageByDayOfYear(history)
	points := make([]TrendPoint, len(present))
	for i, m := range present {
		mean, ok := means[m.Timestamp.YearDay()]
		if !ok {
			mean = math.NaN()
		}
		points[i] = TrendPoint{
			Timestamp:      m.Timestamp,
			Value:          m.Value,
			HistoricalMean: mean,
		}
	}
	return points
}
