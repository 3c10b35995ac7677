package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/hydrometrie/watertracker/internal/types"
)

func TestMonthlyLevelCodes(t *testing.T) {
	now := date(2023, 7, 1)
	points := []types.IndicatorPoint{
		// outside the trailing year
		{Timestamp: date(2021, 3, 1), Score: -3},
		// two January-ish points averaging to a moderately low score
		{Timestamp: date(2023, 1, 1), Score: -0.6},
		{Timestamp: date(2023, 1, 15), Score: -0.4},
		// NaN scores are ignored
		{Timestamp: date(2023, 2, 1), Score: math.NaN()},
		{Timestamp: date(2023, 3, 1), Score: 2.0},
	}

	codes := MonthlyLevelCodes(points, now)
	if len(codes) != 2 {
		t.Fatalf("expected 2 months, got %d: %v", len(codes), codes)
	}
	if codes[time.January] != 2 {
		t.Errorf("January code = %d, want 2", codes[time.January])
	}
	if codes[time.March] != 6 {
		t.Errorf("March code = %d, want 6", codes[time.March])
	}
	if _, ok := codes[time.February]; ok {
		t.Error("February should be absent, its only score is NaN")
	}
}

func TestAggregateDistribution(t *testing.T) {
	perStation := map[string]map[time.Month]int{
		"a": {time.January: 0, time.February: 3},
		"b": {time.January: 0},
		"c": {time.January: 6},
	}

	dist := AggregateDistribution(perStation)
	if len(dist) != 12 {
		t.Fatalf("expected 12 months, got %d", len(dist))
	}

	jan := dist[0]
	if jan.Month != time.January {
		t.Fatalf("first month = %v, want January", jan.Month)
	}
	if jan.Total != 3 {
		t.Errorf("January total = %d, want 3", jan.Total)
	}
	if jan.Counts[0] != 2 || jan.Counts[6] != 1 {
		t.Errorf("January counts = %v", jan.Counts)
	}

	var percentSum float64
	for _, p := range jan.Percents {
		percentSum += p
	}
	if math.Abs(percentSum-100) > 1e-9 {
		t.Errorf("January percentages sum to %v, want 100", percentSum)
	}

	march := dist[2]
	if march.Total != 0 {
		t.Errorf("March total = %d, want 0", march.Total)
	}
}

func TestRollDistribution(t *testing.T) {
	dist := AggregateDistribution(nil)
	rolled := RollDistribution(dist, date(2023, 7, 15))
	if rolled[0].Month != time.July {
		t.Errorf("first month = %v, want July", rolled[0].Month)
	}
	if rolled[11].Month != time.June {
		t.Errorf("last month = %v, want June", rolled[11].Month)
	}
}

// A January reading must wrap to the previous December, not start on the
// still-accumulating current month.
func TestRollDistributionJanuaryWrap(t *testing.T) {
	dist := AggregateDistribution(nil)
	rolled := RollDistribution(dist, date(2024, 1, 10))
	if rolled[0].Month != time.January {
		t.Errorf("first month = %v, want January", rolled[0].Month)
	}
	if rolled[11].Month != time.December {
		t.Errorf("last month = %v, want December", rolled[11].Month)
	}
}
