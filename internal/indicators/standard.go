package indicators

import (
	"math"
	"sort"
	"time"

	"github.com/hydrometrie/watertracker/internal/types"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultScale is the accumulation window of the standardized indicators, in
// months. Three months is the BRGM convention for both SPI-3 and SPLI-3.
const DefaultScale = 3

// cdfEpsilon keeps cumulative probabilities away from 0 and 1, where the
// normal quantile diverges.
const cdfEpsilon = 1e-6

// MonthValue is one month of a resampled series.
type MonthValue struct {
	Month time.Time
	Value float64
}

// MonthlyMean resamples a chronicle to the mean value per calendar month.
// Months without any measurement are absent from the result.
func MonthlyMean(series []types.Measurement) []MonthValue {
	sums := make(map[time.Time]float64)
	counts := make(map[time.Time]int)
	for _, m := range series {
		month := time.Date(m.Timestamp.Year(), m.Timestamp.Month(), 1, 0, 0, 0, 0, time.UTC)
		sums[month] += m.Value
		counts[month]++
	}

	months := make([]MonthValue, 0, len(sums))
	for month, sum := range sums {
		months = append(months, MonthValue{Month: month, Value: sum / float64(counts[month])})
	}
	sort.Slice(months, func(i, j int) bool {
		return months[i].Month.Before(months[j].Month)
	})
	return months
}

// RollingSum accumulates each month with its scale−1 predecessors. The first
// scale−1 months carry no complete window and are dropped. A gap in the
// monthly series restarts the window.
func RollingSum(monthly []MonthValue, scale int) []MonthValue {
	if scale < 1 || len(monthly) < scale {
		return nil
	}

	out := make([]MonthValue, 0, len(monthly)-scale+1)
	for i := scale - 1; i < len(monthly); i++ {
		window := monthly[i-scale+1 : i+1]
		if !contiguous(window) {
			continue
		}
		var sum float64
		for _, mv := range window {
			sum += mv.Value
		}
		out = append(out, MonthValue{Month: monthly[i].Month, Value: sum})
	}
	return out
}

func contiguous(window []MonthValue) bool {
	for i := 1; i < len(window); i++ {
		if window[i].Month != window[i-1].Month.AddDate(0, 1, 0) {
			return false
		}
	}
	return true
}

// gammaFit is a fitted zero-inflated gamma distribution: the probability of
// a zero accumulation plus a gamma law on the positive part.
type gammaFit struct {
	dist     distuv.Gamma
	zeroProb float64
	usable   bool
}

// fitGamma estimates the gamma parameters by maximum likelihood using the
// Thom approximation: A = ln(x̄) − mean(ln x), α = (1+√(1+4A/3))/(4A),
// rate = α/x̄. Zeros are excluded from the fit and folded into the mixture
// weight instead, since the gamma density is undefined at zero.
func fitGamma(samples []float64) gammaFit {
	positives := make([]float64, 0, len(samples))
	zeros := 0
	for _, v := range samples {
		if v <= 0 {
			zeros++
			continue
		}
		positives = append(positives, v)
	}

	fit := gammaFit{zeroProb: float64(zeros) / float64(len(samples))}
	if len(positives) < 2 {
		return fit
	}

	logs := make([]float64, len(positives))
	for i, v := range positives {
		logs[i] = math.Log(v)
	}
	mean := stat.Mean(positives, nil)
	a := math.Log(mean) - stat.Mean(logs, nil)
	if a <= 0 || math.IsNaN(a) {
		// degenerate sample (near-constant values); the indicator is
		// meaningless for this month
		return fit
	}

	alpha := (1 + math.Sqrt(1+4*a/3)) / (4 * a)
	fit.dist = distuv.Gamma{Alpha: alpha, Beta: alpha / mean}
	fit.usable = true
	return fit
}

// cdf evaluates the mixed distribution H(x) = q + (1−q)·G(x).
func (f gammaFit) cdf(x float64) float64 {
	var g float64
	if x > 0 {
		g = f.dist.CDF(x)
	}
	p := f.zeroProb + (1-f.zeroProb)*g
	return math.Min(math.Max(p, cdfEpsilon), 1-cdfEpsilon)
}

// Standardize maps rolling accumulations to standard scores. The reference
// distribution is fitted per calendar month so that each month is compared
// with its own climatology. Months whose fit is degenerate yield NaN scores.
func Standardize(rolling []MonthValue) []types.IndicatorPoint {
	byMonth := make(map[time.Month][]float64)
	for _, mv := range rolling {
		byMonth[mv.Month.Month()] = append(byMonth[mv.Month.Month()], mv.Value)
	}
	fits := make(map[time.Month]gammaFit, len(byMonth))
	for month, samples := range byMonth {
		fits[month] = fitGamma(samples)
	}

	points := make([]types.IndicatorPoint, 0, len(rolling))
	for _, mv := range rolling {
		fit := fits[mv.Month.Month()]
		score := math.NaN()
		if fit.usable {
			score = distuv.UnitNormal.Quantile(fit.cdf(mv.Value))
		}
		points = append(points, types.IndicatorPoint{
			Timestamp: mv.Month,
			Rolling:   mv.Value,
			Score:     score,
		})
	}
	return points
}

// Compute runs the full standardization pipeline on a cleaned chronicle.
func Compute(series []types.Measurement, scale int) []types.IndicatorPoint {
	if scale < 1 {
		scale = DefaultScale
	}
	return Standardize(RollingSum(MonthlyMean(series), scale))
}
