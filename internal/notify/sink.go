package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventKind distinguishes the deferred notification events a membership
// update can produce.
type EventKind string

const (
	KindLeaderboardRecord    EventKind = "leaderboard_record"
	KindLeaderboardTopPlayer EventKind = "leaderboard_top_player"
)

// Event is a value-typed deferred notification. Events are collected
// during a membership update and flushed only after the surrounding
// transaction commits, so a rolled-back update never notifies.
type Event struct {
	Kind          EventKind `json:"kind"`
	LeaderboardID int64     `json:"leaderboard_id"`
	ScoreID       int64     `json:"score_id,omitempty"`
	UserID        int64     `json:"user_id,omitempty"`
	Channel       string    `json:"channel,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Sink delivers leaderboard notifications. Delivery is asynchronous and
// best-effort.
type Sink interface {
	NotifyLeaderboardRecord(ctx context.Context, leaderboardID, scoreID int64, channel string)
	NotifyLeaderboardTopPlayer(ctx context.Context, leaderboardID, userID int64, channel string)
}

// RedisSink publishes notification events to a Redis pub/sub channel,
// where the delivery collaborator (webhook poster, bot) picks them up.
type RedisSink struct {
	client        *redis.Client
	channelPrefix string
	logger        *zap.SugaredLogger
}

func NewRedisSink(client *redis.Client, channelPrefix string, logger *zap.SugaredLogger) *RedisSink {
	if channelPrefix == "" {
		channelPrefix = "notifications"
	}
	return &RedisSink{client: client, channelPrefix: channelPrefix, logger: logger}
}

func (s *RedisSink) NotifyLeaderboardRecord(ctx context.Context, leaderboardID, scoreID int64, channel string) {
	s.publish(ctx, Event{
		Kind:          KindLeaderboardRecord,
		LeaderboardID: leaderboardID,
		ScoreID:       scoreID,
		Channel:       channel,
		OccurredAt:    time.Now().UTC(),
	})
}

func (s *RedisSink) NotifyLeaderboardTopPlayer(ctx context.Context, leaderboardID, userID int64, channel string) {
	s.publish(ctx, Event{
		Kind:          KindLeaderboardTopPlayer,
		LeaderboardID: leaderboardID,
		UserID:        userID,
		Channel:       channel,
		OccurredAt:    time.Now().UTC(),
	})
}

func (s *RedisSink) publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Errorw("Failed to encode notification event", "kind", ev.Kind, "error", err)
		return
	}
	if err := s.client.Publish(ctx, s.channelPrefix+":leaderboard", payload).Err(); err != nil {
		s.logger.Warnw("Failed to publish notification event",
			"kind", ev.Kind,
			"leaderboard_id", ev.LeaderboardID,
			"error", err,
		)
	}
}

// NopSink discards notifications. Used by offline tooling, where nobody
// is listening.
type NopSink struct{}

func (NopSink) NotifyLeaderboardRecord(ctx context.Context, leaderboardID, scoreID int64, channel string) {
}

func (NopSink) NotifyLeaderboardTopPlayer(ctx context.Context, leaderboardID, userID int64, channel string) {
}
