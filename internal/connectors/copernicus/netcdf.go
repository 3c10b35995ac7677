package copernicus

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/hydrometrie/watertracker/internal/types"
)

// coordinate variable names as stored in ERA5-Land products
const (
	varTime      = "time"
	varLatitude  = "latitude"
	varLongitude = "longitude"
)

// DecodeGrid parses a NetCDF payload and flattens its single data variable
// into (time, lat, lon, value) rows. Fill values are dropped.
func DecodeGrid(payload []byte) ([]types.GridPoint, error) {
	path, err := writeTemp(payload)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	group, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening netcdf: %w", err)
	}
	defer group.Close()

	times, err := readTimeAxis(group)
	if err != nil {
		return nil, err
	}
	lats, err := readCoordinate(group, varLatitude)
	if err != nil {
		return nil, err
	}
	lons, err := readCoordinate(group, varLongitude)
	if err != nil {
		return nil, err
	}

	name, dataVar, err := findDataVariable(group)
	if err != nil {
		return nil, err
	}
	scale, offset, fill := packing(dataVar)

	points := make([]types.GridPoint, 0, len(times)*len(lats)*len(lons))
	for ti := range times {
		for li := range lats {
			for ni := range lons {
				raw, ok := cubeValue(dataVar.Values, ti, li, ni)
				if !ok {
					return nil, fmt.Errorf("variable %q: unexpected layout %T", name, dataVar.Values)
				}
				if fill != nil && raw == *fill {
					continue
				}
				value := raw*scale + offset
				if math.IsNaN(value) {
					continue
				}
				points = append(points, types.GridPoint{
					Time:      times[ti],
					Latitude:  lats[li],
					Longitude: lons[ni],
					Value:     value,
				})
			}
		}
	}
	return points, nil
}

// findDataVariable returns the first variable that is not a coordinate axis.
func findDataVariable(group api.Group) (string, *api.Variable, error) {
	for _, name := range group.ListVariables() {
		switch name {
		case varTime, varLatitude, varLongitude, "expver":
			continue
		}
		v, err := group.GetVariable(name)
		if err != nil {
			return "", nil, err
		}
		return name, v, nil
	}
	return "", nil, fmt.Errorf("netcdf: no data variable found")
}

// readTimeAxis decodes the time coordinate using its CF units attribute,
// e.g. "hours since 1900-01-01 00:00:00.0".
func readTimeAxis(group api.Group) ([]time.Time, error) {
	v, err := group.GetVariable(varTime)
	if err != nil {
		return nil, fmt.Errorf("netcdf: missing %q axis: %w", varTime, err)
	}
	raw, err := toFloat64s(v.Values)
	if err != nil {
		return nil, fmt.Errorf("%q axis: %w", varTime, err)
	}

	unit, epoch, err := parseTimeUnits(attrString(v, "units"))
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, len(raw))
	for i, offset := range raw {
		times[i] = epoch.Add(time.Duration(offset * float64(unit)))
	}
	return times, nil
}

func parseTimeUnits(units string) (time.Duration, time.Time, error) {
	base, stamp, found := strings.Cut(units, " since ")
	if !found {
		return 0, time.Time{}, fmt.Errorf("netcdf: unhandled time units %q", units)
	}
	var unit time.Duration
	switch base {
	case "seconds":
		unit = time.Second
	case "minutes":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	case "days":
		unit = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("netcdf: unhandled time units %q", units)
	}

	stamp = strings.TrimSpace(stamp)
	for _, layout := range []string{
		"2006-01-02 15:04:05.0",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if epoch, err := time.Parse(layout, stamp); err == nil {
			return unit, epoch.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("netcdf: unparseable epoch %q", stamp)
}

func readCoordinate(group api.Group, name string) ([]float64, error) {
	v, err := group.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("netcdf: missing %q axis: %w", name, err)
	}
	values, err := toFloat64s(v.Values)
	if err != nil {
		return nil, fmt.Errorf("%q axis: %w", name, err)
	}
	return values, nil
}

// packing returns the scale factor, offset and fill value of a packed
// variable. Unpacked variables get the identity transform.
func packing(v *api.Variable) (scale, offset float64, fill *float64) {
	scale = 1
	if s, ok := attrFloat(v, "scale_factor"); ok {
		scale = s
	}
	if o, ok := attrFloat(v, "add_offset"); ok {
		offset = o
	}
	if f, ok := attrFloat(v, "_FillValue"); ok {
		fill = &f
	} else if f, ok := attrFloat(v, "missing_value"); ok {
		fill = &f
	}
	return scale, offset, fill
}

func attrString(v *api.Variable, name string) string {
	if v.Attributes == nil {
		return ""
	}
	raw, ok := v.Attributes.Get(name)
	if !ok {
		return ""
	}
	s, _ := raw.(string)
	return s
}

func attrFloat(v *api.Variable, name string) (float64, bool) {
	if v.Attributes == nil {
		return 0, false
	}
	raw, ok := v.Attributes.Get(name)
	if !ok {
		return 0, false
	}
	return asFloat64(raw)
}

func asFloat64(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case []float64:
		if len(n) == 1 {
			return n[0], true
		}
	case []float32:
		if len(n) == 1 {
			return float64(n[0]), true
		}
	case []int16:
		if len(n) == 1 {
			return float64(n[0]), true
		}
	case []int32:
		if len(n) == 1 {
			return float64(n[0]), true
		}
	}
	return 0, false
}

func toFloat64s(values any) ([]float64, error) {
	switch vs := values.(type) {
	case []float64:
		return vs, nil
	case []float32:
		out := make([]float64, len(vs))
		for i, v := range vs {
			out[i] = float64(v)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(vs))
		for i, v := range vs {
			out[i] = float64(v)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(vs))
		for i, v := range vs {
			out[i] = float64(v)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(vs))
		for i, v := range vs {
			out[i] = float64(v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected values type %T", values)
}

// cubeValue indexes a (time, lat, lon) cube regardless of the element type
// the file was packed with.
func cubeValue(values any, ti, li, ni int) (float64, bool) {
	switch cube := values.(type) {
	case [][][]float64:
		return cube[ti][li][ni], true
	case [][][]float32:
		return float64(cube[ti][li][ni]), true
	case [][][]int32:
		return float64(cube[ti][li][ni]), true
	case [][][]int16:
		return float64(cube[ti][li][ni]), true
	case [][][][]float64:
		// some products carry an extra experiment-version axis; take the
		// first member
		return cube[ti][0][li][ni], true
	case [][][][]float32:
		return float64(cube[ti][0][li][ni]), true
	case [][][][]int16:
		return float64(cube[ti][0][li][ni]), true
	}
	return 0, false
}
