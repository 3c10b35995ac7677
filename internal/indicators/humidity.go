package indicators

// HumidityClass is one class of the soil or building humidity scale. Values
// are saturation percentages.
type HumidityClass struct {
	Code  int    `json:"code"`
	Name  string `json:"name"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// humidityBreakpoints are the upper bounds (exclusive) of the first six
// classes; the last class runs up to 100%.
var humidityBreakpoints = []float64{15, 30, 50, 65, 75, 90}

// HumidityClasses is the scale from driest to wettest. The palette mirrors
// the drought scale so the two charts read the same way.
var HumidityClasses = []HumidityClass{
	{Code: 0, Name: "extremely-dry", Label: "Extrêmement sec", Color: "#da442c"},
	{Code: 1, Name: "very-dry", Label: "Très sec", Color: "#f28f00"},
	{Code: 2, Name: "moderately-dry", Label: "Modérément sec", Color: "#ffdd55"},
	{Code: 3, Name: "normal", Label: "Humidité normale", Color: "#6cc35a"},
	{Code: 4, Name: "moderately-wet", Label: "Modérément humide", Color: "#30aadd"},
	{Code: 5, Name: "very-wet", Label: "Très humide", Color: "#1e73c3"},
	{Code: 6, Name: "extremely-wet", Label: "Extrêmement humide", Color: "#286172"},
}

// ClassifyHumidity maps a saturation percentage to its class code. Values
// outside [0, 100] map to −1; fully saturated soil lands in the wettest
// class.
func ClassifyHumidity(percent float64) int {
	if percent < 0 || percent > 100 {
		return -1
	}
	for i, bound := range humidityBreakpoints {
		if percent < bound {
			return i
		}
	}
	return len(humidityBreakpoints)
}

// HumidityClassByCode returns the class for a code produced by
// ClassifyHumidity.
func HumidityClassByCode(code int) (HumidityClass, bool) {
	if code < 0 || code >= len(HumidityClasses) {
		return HumidityClass{}, false
	}
	return HumidityClasses[code], true
}
