package indicators

import "math"

// Level is one class of the seven-level BRGM drought scale.
type Level struct {
	Code  int    `json:"code"`
	Name  string `json:"name"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// droughtBreakpoints are the upper bounds (exclusive) of the first six
// levels; anything above the last breakpoint is "very high".
var droughtBreakpoints = []float64{-1.78, -0.84, -0.25, 0.25, 0.84, 1.28}

// DroughtLevels is the scale from driest to wettest, with the BRGM palette
// and the French display labels used on the published charts.
var DroughtLevels = []Level{
	{Code: 0, Name: "very-low", Label: "Très bas", Color: "#da442c"},
	{Code: 1, Name: "low", Label: "Bas", Color: "#f28f00"},
	{Code: 2, Name: "moderately-low", Label: "Modérément bas", Color: "#ffdd55"},
	{Code: 3, Name: "normal", Label: "Autour de la normale", Color: "#6cc35a"},
	{Code: 4, Name: "moderately-high", Label: "Modérément haut", Color: "#30aadd"},
	{Code: 5, Name: "high", Label: "Haut", Color: "#1e73c3"},
	{Code: 6, Name: "very-high", Label: "Très haut", Color: "#286172"},
}

// ScoreToLevel maps a standardized score to its level code. NaN scores map
// to −1.
func ScoreToLevel(score float64) int {
	if math.IsNaN(score) {
		return -1
	}
	for i, bound := range droughtBreakpoints {
		if score < bound {
			return i
		}
	}
	return len(droughtBreakpoints)
}

// LevelByCode returns the level for a code produced by ScoreToLevel.
func LevelByCode(code int) (Level, bool) {
	if code < 0 || code >= len(DroughtLevels) {
		return Level{}, false
	}
	return DroughtLevels[code], true
}
