package indicators

import (
	"math"
	"sort"
	"time"

	"github.com/hydrometrie/watertracker/internal/types"
)

// MonthlyLevelCodes averages a station's scores per month over the trailing
// year ending at now and maps each mean to its level code. Months with only
// NaN scores are absent.
func MonthlyLevelCodes(points []types.IndicatorPoint, now time.Time) map[time.Month]int {
	oneYearBefore := now.AddDate(0, 0, -365)

	sums := make(map[time.Month]float64)
	counts := make(map[time.Month]int)
	for _, p := range points {
		if p.Timestamp.Before(oneYearBefore) || math.IsNaN(p.Score) {
			continue
		}
		sums[p.Timestamp.Month()] += p.Score
		counts[p.Timestamp.Month()]++
	}

	codes := make(map[time.Month]int, len(sums))
	for month, sum := range sums {
		if code := ScoreToLevel(sum / float64(counts[month])); code >= 0 {
			codes[month] = code
		}
	}
	return codes
}

// MonthDistribution is the cross-station spread of drought levels for one
// month: how many stations sit in each level, in counts and percentages.
type MonthDistribution struct {
	Month    time.Month `json:"month"`
	Counts   []int      `json:"counts"`
	Percents []float64  `json:"percents"`
	Total    int        `json:"total"`
}

// AggregateDistribution combines the per-station monthly level codes into a
// per-month distribution across all stations, ordered January to December.
// Months no station reported are still present with zero totals.
func AggregateDistribution(perStation map[string]map[time.Month]int) []MonthDistribution {
	byMonth := make(map[time.Month][]int)
	for month := time.January; month <= time.December; month++ {
		byMonth[month] = make([]int, len(DroughtLevels))
	}
	for _, months := range perStation {
		for month, code := range months {
			if code < 0 || code >= len(DroughtLevels) {
				continue
			}
			byMonth[month][code]++
		}
	}

	out := make([]MonthDistribution, 0, 12)
	for month := time.January; month <= time.December; month++ {
		counts := byMonth[month]
		total := 0
		for _, c := range counts {
			total += c
		}
		percents := make([]float64, len(counts))
		if total > 0 {
			for i, c := range counts {
				percents[i] = 100 * float64(c) / float64(total)
			}
		}
		out = append(out, MonthDistribution{
			Month:    month,
			Counts:   counts,
			Percents: percents,
			Total:    total,
		})
	}
	return out
}

// RollDistribution reorders a January-first distribution so that it ends
// with the month preceding now, matching the trailing-year reading order of
// the published charts.
func RollDistribution(dist []MonthDistribution, now time.Time) []MonthDistribution {
	if len(dist) != 12 {
		out := make([]MonthDistribution, len(dist))
		copy(out, dist)
		sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
		return out
	}
	// the month containing now is still accumulating; the chart ends on the
	// previous complete month
	first := (int(now.Month()) - 1) % 12
	out := make([]MonthDistribution, 0, 12)
	for i := 0; i < 12; i++ {
		out = append(out, dist[(first+i)%12])
	}
	return out
}
