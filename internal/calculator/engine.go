// Package calculator wraps the external difficulty/performance calculator
// engines. Engines are stateless, versioned scoring functions reachable
// over HTTP; the client layers batch-with-fallback semantics on top so a
// single bad input never loses a whole batch.
package calculator

import (
	"context"
)

// EngineInfo identifies a calculator engine build. Version is an opaque
// string compared by equality only.
type EngineInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Request is one calculation input. BeatmapID travels as an opaque string
// to tolerate calculators that operate on slugs rather than numeric ids.
// Hit statistics are only meaningful for performance calculations;
// difficulty requests leave them zero.
type Request struct {
	BeatmapID string `json:"beatmap_id"`
	Mods      int64  `json:"mods"`
	Count300  int    `json:"count_300"`
	Count100  int    `json:"count_100"`
	Count50   int    `json:"count_50"`
	CountMiss int    `json:"count_miss"`
	Combo     int    `json:"combo"`
}

// Result is the outcome for one Request, positionally aligned with the
// input slice. A nil Values map means the item failed after all retries.
type Result struct {
	Values map[string]float64 `json:"values"`
}

// Failed reports whether the item produced no values.
func (r Result) Failed() bool {
	return len(r.Values) == 0
}

// Engine is the capability interface every calculator variant implements.
type Engine interface {
	Info(ctx context.Context) (EngineInfo, error)
	CalculateBatch(ctx context.Context, requests []Request) ([]Result, error)
}
