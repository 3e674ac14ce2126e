package usage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RateTable is a versioned, per-model price list. Version labels the
// table only; it is not stored with the costs computed from it
// (models.Metrics has no field for it).
type RateTable struct {
	Version string          `yaml:"version"`
	Models  map[string]Cost `yaml:"models"`
}

// LoadRateTable reads and parses a RateTable from a YAML file shaped
// like:
//
//	version: "2026-07-01"
//	models:
//	  claude-opus-4:
//	    input: 15.0
//	    output: 75.0
//	    cache_read: 1.5
//	    cache_write: 18.75
func LoadRateTable(path string) (*RateTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("usage: read rate table %s: %w", path, err)
	}
	var rt RateTable
	if err := yaml.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("usage: parse rate table %s: %w", path, err)
	}
	if rt.Version == "" {
		return nil, fmt.Errorf("usage: rate table %s is missing a version", path)
	}
	return &rt, nil
}

// CostFor returns model's pricing, or the zero Cost (and false) if the
// rate table has no entry for it — callers treat an unpriced model as
// free rather than failing the turn.
func (rt *RateTable) CostFor(model string) (Cost, bool) {
	if rt == nil {
		return Cost{}, false
	}
	c, ok := rt.Models[model]
	return c, ok
}
