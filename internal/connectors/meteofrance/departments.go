package meteofrance

import (
	_ "embed"
	"encoding/json"
)

//go:embed departments_regions.json
var departmentsJSON []byte

type departmentEntry struct {
	Number string `json:"num_dep"`
	Name   string `json:"dep_name"`
	Region string `json:"region_name"`
}

// DeptNameToCode returns the mapping from French department names to
// department numbers, e.g. "Ain" -> "01". The bulletins identify zones by
// name while every other source uses numbers.
func DeptNameToCode() (map[string]string, error) {
	var entries []departmentEntry
	if err := json.Unmarshal(departmentsJSON, &entries); err != nil {
		return nil, err
	}
	mapping := make(map[string]string, len(entries))
	for _, e := range entries {
		mapping[e.Name] = e.Number
	}
	return mapping, nil
}
