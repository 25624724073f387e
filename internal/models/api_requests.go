package models

import "time"

// ScoreSubmission is the normalized score payload produced by the
// ingestion collaborator. Hit statistics that are absent default to zero.
type ScoreSubmission struct {
	UserID    int64   `json:"user_id" validate:"required,gt=0"`
	BeatmapID string  `json:"beatmap_id" validate:"required"`
	Gamemode  int     `json:"gamemode" validate:"gte=0,lte=3"`
	Mods      int64   `json:"mods" validate:"gte=0"`
	Count300  int     `json:"count_300" validate:"gte=0"`
	Count100  int     `json:"count_100" validate:"gte=0"`
	Count50   int     `json:"count_50" validate:"gte=0"`
	CountMiss int     `json:"count_miss" validate:"gte=0"`
	Combo     int     `json:"combo" validate:"gte=0"`
	Timestamp float64 `json:"timestamp"`
}

// CreateLeaderboardRequest creates a new community leaderboard.
type CreateLeaderboardRequest struct {
	Name            string      `json:"name" validate:"required,min=3,max=100"`
	Description     string      `json:"description" validate:"max=500"`
	Gamemode        int         `json:"gamemode" validate:"gte=0,lte=3"`
	ScoreSet        int         `json:"score_set" validate:"gte=0,lte=2"`
	AccessType      int         `json:"access_type" validate:"gte=0,lte=3"`
	OwnerID         int64       `json:"-"`
	AllowPastScores *bool       `json:"allow_past_scores"`
	Decay           float64     `json:"decay" validate:"gte=0,lt=1"`
	NotifyChannel   string      `json:"notify_channel" validate:"max=200"`
	Filter          ScoreFilter `json:"score_filter"`
}

// JoinLeaderboardRequest adds a user to a leaderboard.
type JoinLeaderboardRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

// InviteRequest invites a user to a restricted leaderboard.
type InviteRequest struct {
	UserID  int64  `json:"user_id" validate:"required,gt=0"`
	Message string `json:"message" validate:"max=500"`
}

// RecalculateRequest triggers a cache refresh pass.
type RecalculateRequest struct {
	Gamemode   int      `json:"gamemode" validate:"gte=0,lte=3"`
	UserIDs    []int64  `json:"user_ids,omitempty"`
	ScoreIDs   []int64  `json:"score_ids,omitempty"`
	BeatmapIDs []string `json:"beatmap_ids,omitempty"`
}

// MembershipResponse is the membership row plus join metadata returned by
// the membership endpoints.
type MembershipResponse struct {
	Membership
	LeaderboardName string    `json:"leaderboard_name"`
	UpdatedAt       time.Time `json:"updated_at"`
}
