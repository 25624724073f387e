package models

import (
	"time"
)

// ScoreSet selects which ranking value of a score counts toward a
// leaderboard's aggregate total.
type ScoreSet int

const (
	// ScoreSetNormal ranks scores by their own performance total.
	ScoreSetNormal ScoreSet = 0
	// ScoreSetNeverChoke substitutes the no-choke total for choked plays.
	ScoreSetNeverChoke ScoreSet = 1
	// ScoreSetAlwaysFullCombo always ranks by the no-choke total.
	ScoreSetAlwaysFullCombo ScoreSet = 2
)

// AccessType controls who may join a leaderboard.
type AccessType int

const (
	AccessGlobal           AccessType = 0
	AccessPublic           AccessType = 1
	AccessPublicInviteOnly AccessType = 2
	AccessPrivate          AccessType = 3
)

// Restricted reports whether joining requires an accepted invite.
func (a AccessType) Restricted() bool {
	return a == AccessPublicInviteOnly || a == AccessPrivate
}

// DefaultDecay is the geometric weighting factor applied to a member's
// sorted best plays when a leaderboard does not configure its own.
const DefaultDecay = 0.95

// ScoreFilter is a leaderboard-scoped predicate restricting which scores
// may count toward that leaderboard. Zero-valued clauses are inactive.
type ScoreFilter struct {
	AllowedBeatmapStatus []BeatmapStatus `json:"allowed_beatmap_status,omitempty"`
	OldestBeatmapDate    *time.Time      `json:"oldest_beatmap_date,omitempty"`
	NewestBeatmapDate    *time.Time      `json:"newest_beatmap_date,omitempty"`
	OldestScoreDate      *time.Time      `json:"oldest_score_date,omitempty"`
	NewestScoreDate      *time.Time      `json:"newest_score_date,omitempty"`
	LowestAccuracy       *float64        `json:"lowest_accuracy,omitempty"`
	HighestAccuracy      *float64        `json:"highest_accuracy,omitempty"`
	LowestDifficulty     *float64        `json:"lowest_difficulty,omitempty"`
	HighestDifficulty    *float64        `json:"highest_difficulty,omitempty"`
	RequiredMods         Mods            `json:"required_mods"`
	DisqualifiedMods     Mods            `json:"disqualified_mods"`
}

// Match evaluates the filter against a score and its beatmap. Scores
// failing any clause are excluded. A score whose beatmap is missing never
// matches; that is how data inconsistencies (e.g. a map un-ranked after
// the fact) resolve themselves.
func (f *ScoreFilter) Match(score *Score) bool {
	bm := score.Beatmap
	if bm == nil {
		return false
	}

	if len(f.AllowedBeatmapStatus) > 0 {
		ok := false
		for _, st := range f.AllowedBeatmapStatus {
			if bm.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	if f.OldestBeatmapDate != nil && bm.ApprovedAt.Before(*f.OldestBeatmapDate) {
		return false
	}
	if f.NewestBeatmapDate != nil && bm.ApprovedAt.After(*f.NewestBeatmapDate) {
		return false
	}
	if f.OldestScoreDate != nil && score.CreatedAt.Before(*f.OldestScoreDate) {
		return false
	}
	if f.NewestScoreDate != nil && score.CreatedAt.After(*f.NewestScoreDate) {
		return false
	}

	if acc := score.Accuracy(); (f.LowestAccuracy != nil && acc < *f.LowestAccuracy) ||
		(f.HighestAccuracy != nil && acc > *f.HighestAccuracy) {
		return false
	}

	if f.LowestDifficulty != nil && bm.DifficultyTotal < *f.LowestDifficulty {
		return false
	}
	if f.HighestDifficulty != nil && bm.DifficultyTotal > *f.HighestDifficulty {
		return false
	}

	if f.RequiredMods != ModNone && !score.Mods.Contains(f.RequiredMods) {
		return false
	}
	if f.DisqualifiedMods != ModNone && score.Mods.Intersects(f.DisqualifiedMods) {
		return false
	}

	return true
}

// Leaderboard is a named ranking scope. Archived leaderboards never
// recompute.
type Leaderboard struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	Gamemode        Gamemode    `json:"gamemode"`
	ScoreSet        ScoreSet    `json:"score_set"`
	Access          AccessType  `json:"access_type"`
	OwnerID         int64       `json:"owner_id"`
	AllowPastScores bool        `json:"allow_past_scores"`
	Archived        bool        `json:"archived"`
	Decay           float64     `json:"decay"`
	NotifyChannel   string      `json:"notify_channel,omitempty"`
	Filter          ScoreFilter `json:"score_filter"`
	MemberCount     int         `json:"member_count"`
	CreatedAt       time.Time   `json:"created_at"`
}

// EffectiveDecay returns the configured decay factor or the default.
func (l *Leaderboard) EffectiveDecay() float64 {
	if l.Decay <= 0 || l.Decay >= 1 {
		return DefaultDecay
	}
	return l.Decay
}

// Membership is a user's ranked participation record within one
// leaderboard. PP, ScoreCount and Rank are derived fields recomputed
// whenever the user's qualifying score set changes.
type Membership struct {
	ID            int64     `json:"id"`
	LeaderboardID int64     `json:"leaderboard_id"`
	UserID        int64     `json:"user_id"`
	PP            float64   `json:"pp"`
	ScoreCount    int       `json:"score_count"`
	Rank          int       `json:"rank"`
	JoinedAt      time.Time `json:"joined_at"`
}

// MembershipScore is a denormalized contribution row recording that a
// score currently counts toward a membership's total, with its weighted
// contribution cached for fast diffing.
type MembershipScore struct {
	MembershipID int64   `json:"membership_id"`
	ScoreID      int64   `json:"score_id"`
	RawPP        float64 `json:"raw_pp"`
	WeightedPP   float64 `json:"weighted_pp"`
}

// Invite grants a user access to a restricted leaderboard. It is consumed
// when the user joins.
type Invite struct {
	ID            int64     `json:"id"`
	LeaderboardID int64     `json:"leaderboard_id"`
	UserID        int64     `json:"user_id"`
	Message       string    `json:"message,omitempty"`
	Accepted      bool      `json:"accepted"`
	CreatedAt     time.Time `json:"created_at"`
}
