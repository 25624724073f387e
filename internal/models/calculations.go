package models

import "time"

// ValueTotal is the value name every engine is required to produce.
// Engines may emit additional named values ("aim", "speed", ...).
const ValueTotal = "total"

// DifficultyCalculation is a cache row keyed by (beatmap_id, mods, engine).
// It is valid only when Version matches the live engine's advertised
// version AND Values is non-empty; a row with zero values is "failed" and
// must be retried.
type DifficultyCalculation struct {
	ID        int64              `json:"id"`
	BeatmapID string             `json:"beatmap_id"`
	Mods      Mods               `json:"mods"`
	Engine    string             `json:"engine"`
	Version   string             `json:"version"`
	Values    map[string]float64 `json:"values"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Fresh reports whether the row was produced by the given engine version
// and carries a full value set.
func (c *DifficultyCalculation) Fresh(version string) bool {
	return c.Version == version && len(c.Values) > 0
}

// PerformanceCalculation is a cache row keyed by (score_id, engine). It
// references the DifficultyCalculation matching its score's beatmap+mods.
type PerformanceCalculation struct {
	ID                      int64              `json:"id"`
	ScoreID                 int64              `json:"score_id"`
	DifficultyCalculationID int64              `json:"difficulty_calculation_id"`
	Engine                  string             `json:"engine"`
	Version                 string             `json:"version"`
	Values                  map[string]float64 `json:"values"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

// Fresh reports whether the row was produced by the given engine version
// and carries a full value set.
func (c *PerformanceCalculation) Fresh(version string) bool {
	return c.Version == version && len(c.Values) > 0
}
