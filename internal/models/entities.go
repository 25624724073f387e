package models

import (
	"strings"
	"time"
)

// Gamemode identifies which ruleset a beatmap or score belongs to.
type Gamemode int

const (
	GamemodeStandard Gamemode = 0
	GamemodeTaiko    Gamemode = 1
	GamemodeCatch    Gamemode = 2
	GamemodeMania    Gamemode = 3
)

func (g Gamemode) String() string {
	switch g {
	case GamemodeStandard:
		return "standard"
	case GamemodeTaiko:
		return "taiko"
	case GamemodeCatch:
		return "catch"
	case GamemodeMania:
		return "mania"
	default:
		return "unknown"
	}
}

// BeatmapStatus is the ranked state of a beatmap as reported by the
// upstream game service.
type BeatmapStatus int

const (
	StatusGraveyard BeatmapStatus = -2
	StatusPending   BeatmapStatus = 0
	StatusRanked    BeatmapStatus = 1
	StatusApproved  BeatmapStatus = 2
	StatusQualified BeatmapStatus = 3
	StatusLoved     BeatmapStatus = 4
)

// Mods is a bitmask of gameplay modifiers applied to a score.
type Mods int64

const (
	ModNone        Mods = 0
	ModNoFail      Mods = 1 << 0
	ModEasy        Mods = 1 << 1
	ModHidden      Mods = 1 << 3
	ModHardRock    Mods = 1 << 4
	ModSuddenDeath Mods = 1 << 5
	ModDoubleTime  Mods = 1 << 6
	ModHalfTime    Mods = 1 << 8
	ModNightcore   Mods = 1 << 9
	ModFlashlight  Mods = 1 << 10
	ModPerfect     Mods = 1 << 14
)

var modNames = []struct {
	mod  Mods
	name string
}{
	{ModNoFail, "NF"},
	{ModEasy, "EZ"},
	{ModHidden, "HD"},
	{ModHardRock, "HR"},
	{ModSuddenDeath, "SD"},
	{ModDoubleTime, "DT"},
	{ModHalfTime, "HT"},
	{ModNightcore, "NC"},
	{ModFlashlight, "FL"},
	{ModPerfect, "PF"},
}

// Contains reports whether every modifier in other is set on m.
func (m Mods) Contains(other Mods) bool {
	return m&other == other
}

// Intersects reports whether m shares any modifier with other.
func (m Mods) Intersects(other Mods) bool {
	return m&other != 0
}

func (m Mods) String() string {
	if m == ModNone {
		return "NM"
	}
	var sb strings.Builder
	for _, mn := range modNames {
		if m.Contains(mn.mod) {
			sb.WriteString(mn.name)
		}
	}
	if sb.Len() == 0 {
		return "NM"
	}
	return sb.String()
}

// Beatmap is a reference entity owned by the ingestion collaborator.
// The engine only reads it.
type Beatmap struct {
	ID              string        `json:"id"`
	Gamemode        Gamemode      `json:"gamemode"`
	Status          BeatmapStatus `json:"status"`
	Artist          string        `json:"artist"`
	Title           string        `json:"title"`
	Version         string        `json:"version"`
	MaxCombo        int           `json:"max_combo"`
	DifficultyTotal float64       `json:"difficulty_total"`
	ApprovedAt      time.Time     `json:"approved_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Mutation tags a score row as either a real play or a derived
// hypothetical variant.
type Mutation int

const (
	MutationNone    Mutation = 0
	MutationNoChoke Mutation = 1
)

// ScoreResult classifies how a play ended relative to a perfect run.
// Values are bit flags so choke categories can be tested as a set.
type ScoreResult int

const (
	ResultClear       ScoreResult = 1 << 0
	ResultSliderBreak ScoreResult = 1 << 1
	ResultOneMiss     ScoreResult = 1 << 2
	ResultEndChoke    ScoreResult = 1 << 3
	ResultNoBreak     ScoreResult = 1 << 4
	ResultPerfect     ScoreResult = 1 << 5

	// ResultChoke groups the classifications that warrant a no-choke mutation.
	ResultChoke = ResultSliderBreak | ResultOneMiss | ResultEndChoke
)

// IsChoke reports whether the result indicates a broken perfect run.
func (r ScoreResult) IsChoke() bool {
	return r&ResultChoke != 0
}

// Score is a single play. Immutable once created except for its
// calculation results; superseded scores are deleted, not mutated.
type Score struct {
	ID            int64       `json:"id"`
	UserID        int64       `json:"user_id"`
	BeatmapID     string      `json:"beatmap_id"`
	Gamemode      Gamemode    `json:"gamemode"`
	Mods          Mods        `json:"mods"`
	Count300      int         `json:"count_300"`
	Count100      int         `json:"count_100"`
	Count50       int         `json:"count_50"`
	CountMiss     int         `json:"count_miss"`
	Combo         int         `json:"combo"`
	Result        ScoreResult `json:"result"`
	Mutation      Mutation    `json:"mutation"`
	SourceScoreID *int64      `json:"source_score_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`

	// Hydrated by queries; nil until the matching calculation exists.
	PerformanceTotal *float64 `json:"performance_total,omitempty"`
	NoChokeTotal     *float64 `json:"nochoke_total,omitempty"`

	// Hydrated beatmap, when the query joined it.
	Beatmap *Beatmap `json:"beatmap,omitempty"`
}

// TotalHits is the number of judged objects in the play.
func (s *Score) TotalHits() int {
	return s.Count300 + s.Count100 + s.Count50 + s.CountMiss
}

// Accuracy returns the play accuracy as a percentage (0-100).
func (s *Score) Accuracy() float64 {
	hits := s.TotalHits()
	if hits == 0 {
		return 0
	}
	earned := 300*s.Count300 + 100*s.Count100 + 50*s.Count50
	return float64(earned) / float64(300*hits) * 100
}

// ComboPercent returns the achieved combo relative to the beatmap's
// maximum, as a percentage (0-100). maxCombo <= 0 yields 0.
func (s *Score) ComboPercent(maxCombo int) float64 {
	if maxCombo <= 0 {
		return 0
	}
	return float64(s.Combo) / float64(maxCombo) * 100
}
