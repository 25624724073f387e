package models

import (
	"time"

	"github.com/google/uuid"
)

// ScoreEvent is the append-only analytics row written to ClickHouse for
// every score the engine processes. It powers the pp-history endpoints
// and is never read back by the core algorithms.
type ScoreEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventID   uuid.UUID `json:"event_id"`
	EventType string    `json:"event_type"`
	UserID    int64     `json:"user_id"`
	ScoreID   int64     `json:"score_id"`
	BeatmapID string    `json:"beatmap_id"`
	Gamemode  string    `json:"gamemode"`
	Mods      string    `json:"mods"`
	Accuracy  float64   `json:"accuracy"`
	PP        float64   `json:"pp"`
	Engine    string    `json:"engine"`
	Version   string    `json:"version"`
}

// Score event types.
const (
	EventScoreSubmitted    = "score_submitted"
	EventScoreRecalculated = "score_recalculated"
	EventScoreMutated      = "score_mutated"
)

// PPHistoryPoint is one point of a user's pp-over-time series, aggregated
// out of ClickHouse score events.
type PPHistoryPoint struct {
	Day    time.Time `json:"day"`
	BestPP float64   `json:"best_pp"`
	Plays  uint64    `json:"plays"`
}
