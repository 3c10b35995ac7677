package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/hydrometrie/watertracker/internal/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// syntheticChronicle draws a daily gamma-distributed chronicle with a
// seasonal cycle over the given number of years.
func syntheticChronicle(years int, seed uint64) []types.Measurement {
	src := rand.NewSource(seed)
	start := time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)

	var series []types.Measurement
	for d := 0; d < years*365; d++ {
		ts := start.AddDate(0, 0, d)
		seasonal := 2 + math.Sin(2*math.Pi*float64(ts.YearDay())/365)
		g := distuv.Gamma{Alpha: 2, Beta: 2 / seasonal, Src: src}
		series = append(series, types.Measurement{
			StationCode: "X",
			Timestamp:   ts,
			Value:       g.Rand(),
		})
	}
	return series
}

func TestMonthlyMean(t *testing.T) {
	series := []types.Measurement{
		{Timestamp: time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), Value: 2},
		{Timestamp: time.Date(2020, time.January, 15, 0, 0, 0, 0, time.UTC), Value: 4},
		{Timestamp: time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC), Value: 6},
	}
	monthly := MonthlyMean(series)
	if len(monthly) != 2 {
		t.Fatalf("expected 2 months, got %d", len(monthly))
	}
	if monthly[0].Value != 3 {
		t.Errorf("January mean = %v, want 3", monthly[0].Value)
	}
	if monthly[1].Month.Month() != time.March {
		t.Errorf("second month = %v, want March", monthly[1].Month.Month())
	}
}

func TestRollingSumSkipsGaps(t *testing.T) {
	jan := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	monthly := []MonthValue{
		{Month: jan, Value: 1},
		{Month: jan.AddDate(0, 1, 0), Value: 2},
		{Month: jan.AddDate(0, 2, 0), Value: 3},
		// April missing
		{Month: jan.AddDate(0, 4, 0), Value: 5},
		{Month: jan.AddDate(0, 5, 0), Value: 6},
		{Month: jan.AddDate(0, 6, 0), Value: 7},
	}
	rolled := RollingSum(monthly, 3)
	if len(rolled) != 2 {
		t.Fatalf("expected 2 complete windows, got %d", len(rolled))
	}
	if rolled[0].Value != 6 {
		t.Errorf("first window sum = %v, want 6", rolled[0].Value)
	}
	if rolled[1].Value != 18 {
		t.Errorf("second window sum = %v, want 18", rolled[1].Value)
	}
}

func TestRollingSumShortSeries(t *testing.T) {
	jan := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	monthly := []MonthValue{{Month: jan, Value: 1}, {Month: jan.AddDate(0, 1, 0), Value: 2}}
	if got := RollingSum(monthly, 3); got != nil {
		t.Errorf("expected nil for series shorter than scale, got %v", got)
	}
}

// Over a long reference period the standardized scores should be close to a
// standard normal distribution.
func TestStandardizeReferenceDistribution(t *testing.T) {
	series := syntheticChronicle(30, 42)
	points := Compute(series, DefaultScale)
	if len(points) < 300 {
		t.Fatalf("expected a long indicator series, got %d points", len(points))
	}

	var sum, sumSq float64
	n := 0
	for _, p := range points {
		if math.IsNaN(p.Score) {
			continue
		}
		sum += p.Score
		sumSq += p.Score * p.Score
		n++
	}
	if n < 300 {
		t.Fatalf("too many NaN scores: %d finite of %d", n, len(points))
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean

	if math.Abs(mean) > 0.2 {
		t.Errorf("score mean = %v, want ~0", mean)
	}
	if variance < 0.6 || variance > 1.4 {
		t.Errorf("score variance = %v, want ~1", variance)
	}
}

func TestComputeIdempotent(t *testing.T) {
	series := syntheticChronicle(20, 7)

	first := Compute(series, DefaultScale)
	second := Compute(series, DefaultScale)
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Timestamp.Equal(second[i].Timestamp) {
			t.Fatalf("point %d: timestamps differ", i)
		}
		if first[i].Rolling != second[i].Rolling {
			t.Fatalf("point %d: rolling sums differ", i)
		}
		sameScore := first[i].Score == second[i].Score ||
			(math.IsNaN(first[i].Score) && math.IsNaN(second[i].Score))
		if !sameScore {
			t.Fatalf("point %d: scores differ: %v vs %v", i, first[i].Score, second[i].Score)
		}
	}
}

func TestFitGammaHandlesZeros(t *testing.T) {
	samples := []float64{0, 0, 1.2, 3.4, 2.8, 0.9, 1.7, 2.1}
	fit := fitGamma(samples)
	if !fit.usable {
		t.Fatal("expected usable fit")
	}
	if fit.zeroProb != 0.25 {
		t.Errorf("zero probability = %v, want 0.25", fit.zeroProb)
	}
	if p := fit.cdf(0); p < fit.zeroProb-cdfEpsilon {
		t.Errorf("cdf(0) = %v, want >= zero probability", p)
	}
}

func TestFitGammaDegenerateSample(t *testing.T) {
	fit := fitGamma([]float64{5, 5, 5, 5})
	if fit.usable {
		t.Error("expected degenerate sample to be unusable")
	}
}

func TestStandardizeMonotonicWithinMonth(t *testing.T) {
	jan := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	var rolling []MonthValue
	for y := 0; y < 20; y++ {
		rolling = append(rolling, MonthValue{
			Month: jan.AddDate(y, 0, 0),
			Value: float64(y + 1),
		})
	}
	points := Standardize(rolling)
	for i := 1; i < len(points); i++ {
		if points[i].Score <= points[i-1].Score {
			t.Fatalf("scores not increasing with accumulation: %v then %v",
				points[i-1].Score, points[i].Score)
		}
	}
}
