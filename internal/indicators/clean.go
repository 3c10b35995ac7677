// Package indicators turns raw station chronicles into standardized drought
// indicators: SPI for rainfall series, SPLI for groundwater levels, humidity
// classes for soil moisture, plus the trend and aggregation layers the
// dashboard is built on.
package indicators

import (
	"math"
	"sort"
	"time"

	"github.com/hydrometrie/watertracker/internal/types"
	"gonum.org/v1/gonum/stat"
)

// iqrFactor widens the usual 1.5 IQR fence; raw chronicles carry sensor
// glitches well past it but legitimate droughts sit close to the quartiles.
const iqrFactor = 2.0

// Clean prepares a raw chronicle for standardization: sorts by date, drops
// duplicated dates, takes absolute values and removes IQR outliers. Depth
// measurements arrive with mixed signs depending on the reference datum,
// which is why values are folded to positive before filtering.
func Clean(series []types.Measurement) []types.Measurement {
	if len(series) == 0 {
		return nil
	}

	sorted := make([]types.Measurement, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	deduped := sorted[:0]
	var last time.Time
	for i, m := range sorted {
		if i > 0 && m.Timestamp.Equal(last) {
			continue
		}
		last = m.Timestamp
		m.Value = math.Abs(m.Value)
		deduped = append(deduped, m)
	}

	low, high := iqrFence(deduped)
	out := make([]types.Measurement, 0, len(deduped))
	for _, m := range deduped {
		if m.Value < low || m.Value > high {
			continue
		}
		out = append(out, m)
	}
	return out
}

// iqrFence returns the [Q1−c·IQR, Q3+c·IQR] acceptance interval.
func iqrFence(series []types.Measurement) (low, high float64) {
	values := make([]float64, len(series))
	for i, m := range series {
		values[i] = m.Value
	}
	sort.Float64s(values)

	q1 := stat.Quantile(0.25, stat.LinInterp, values, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, values, nil)
	iqr := q3 - q1
	return q1 - iqrFactor*iqr, q3 + iqrFactor*iqr
}
