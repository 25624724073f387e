package handlers

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/rhythmstats/ranking-api/internal/cache"
	"github.com/rhythmstats/ranking-api/internal/models"
)

// MockScoreStore
type MockScoreStore struct {
	CreateScoreFunc     func(sub *models.ScoreSubmission) (*models.Score, bool, error)
	UserScoreIDsFunc    func(userID int64, gamemode models.Gamemode) ([]int64, error)
	BeatmapModPairsFunc func(beatmapIDs []string) ([]cache.BeatmapMods, error)
}

func (m *MockScoreStore) CreateScore(ctx context.Context, sub *models.ScoreSubmission) (*models.Score, bool, error) {
	if m.CreateScoreFunc != nil {
		return m.CreateScoreFunc(sub)
	}
	return &models.Score{ID: 1, UserID: sub.UserID, BeatmapID: sub.BeatmapID}, true, nil
}

func (m *MockScoreStore) UserScoreIDs(ctx context.Context, userID int64, gamemode models.Gamemode) ([]int64, error) {
	if m.UserScoreIDsFunc != nil {
		return m.UserScoreIDsFunc(userID, gamemode)
	}
	return nil, nil
}

func (m *MockScoreStore) BeatmapModPairs(ctx context.Context, beatmapIDs []string) ([]cache.BeatmapMods, error) {
	if m.BeatmapModPairsFunc != nil {
		return m.BeatmapModPairsFunc(beatmapIDs)
	}
	return nil, nil
}

// MockMembershipEngine
type MockMembershipEngine struct {
	JoinFunc           func(leaderboardID, userID int64) (*models.Membership, error)
	LeaveFunc          func(leaderboardID, userID int64) error
	MembershipFunc     func(leaderboardID, userID int64) (*models.Membership, error)
	AggregateTotalFunc func(userID int64, gamemode models.Gamemode, policy models.ScoreSet) (float64, error)

	JoinCalls [][2]int64
}

func (m *MockMembershipEngine) Join(ctx context.Context, leaderboardID, userID int64) (*models.Membership, error) {
	m.JoinCalls = append(m.JoinCalls, [2]int64{leaderboardID, userID})
	if m.JoinFunc != nil {
		return m.JoinFunc(leaderboardID, userID)
	}
	return &models.Membership{LeaderboardID: leaderboardID, UserID: userID}, nil
}

func (m *MockMembershipEngine) UpdateMembership(ctx context.Context, leaderboardID, userID int64) (*models.Membership, error) {
	return m.Join(ctx, leaderboardID, userID)
}

func (m *MockMembershipEngine) Leave(ctx context.Context, leaderboardID, userID int64) error {
	if m.LeaveFunc != nil {
		return m.LeaveFunc(leaderboardID, userID)
	}
	return nil
}

func (m *MockMembershipEngine) Membership(ctx context.Context, leaderboardID, userID int64) (*models.Membership, error) {
	if m.MembershipFunc != nil {
		return m.MembershipFunc(leaderboardID, userID)
	}
	return &models.Membership{LeaderboardID: leaderboardID, UserID: userID}, nil
}

func (m *MockMembershipEngine) AggregateTotal(ctx context.Context, userID int64, gamemode models.Gamemode, policy models.ScoreSet) (float64, error) {
	if m.AggregateTotalFunc != nil {
		return m.AggregateTotalFunc(userID, gamemode, policy)
	}
	return 0, nil
}

// MockLeaderboardStore
type MockLeaderboardStore struct {
	CreateFunc func(req *models.CreateLeaderboardRequest) (*models.Leaderboard, error)
	GetFunc    func(id int64) (*models.Leaderboard, error)
	InviteFunc func(leaderboardID, requesterID int64, req *models.InviteRequest) (*models.Invite, error)
}

func (m *MockLeaderboardStore) Create(ctx context.Context, req *models.CreateLeaderboardRequest) (*models.Leaderboard, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(req)
	}
	return &models.Leaderboard{ID: 1, Name: req.Name, OwnerID: req.OwnerID}, nil
}

func (m *MockLeaderboardStore) Get(ctx context.Context, id int64) (*models.Leaderboard, error) {
	if m.GetFunc != nil {
		return m.GetFunc(id)
	}
	return &models.Leaderboard{ID: id}, nil
}

func (m *MockLeaderboardStore) List(ctx context.Context, gamemode models.Gamemode) ([]*models.Leaderboard, error) {
	return nil, nil
}

func (m *MockLeaderboardStore) Archive(ctx context.Context, id, requesterID int64) error { return nil }

func (m *MockLeaderboardStore) Delete(ctx context.Context, id, requesterID int64) error { return nil }

func (m *MockLeaderboardStore) Members(ctx context.Context, leaderboardID int64, limit int) ([]*models.Membership, error) {
	return nil, nil
}

func (m *MockLeaderboardStore) Invite(ctx context.Context, leaderboardID, requesterID int64, req *models.InviteRequest) (*models.Invite, error) {
	if m.InviteFunc != nil {
		return m.InviteFunc(leaderboardID, requesterID, req)
	}
	return &models.Invite{LeaderboardID: leaderboardID, UserID: req.UserID}, nil
}

func (m *MockLeaderboardStore) Invites(ctx context.Context, leaderboardID int64) ([]*models.Invite, error) {
	return nil, nil
}

// MockQueue records enqueued work.
type MockQueue struct {
	ScoreRecalcs   map[string][]int64
	BeatmapRecalcs map[string][]cache.BeatmapMods
	Events         []models.ScoreEvent
	Memberships    [][2]int64
}

func NewMockQueue() *MockQueue {
	return &MockQueue{
		ScoreRecalcs:   make(map[string][]int64),
		BeatmapRecalcs: make(map[string][]cache.BeatmapMods),
	}
}

func (m *MockQueue) EnqueueScoreRecalc(engine string, scoreIDs []int64) bool {
	m.ScoreRecalcs[engine] = append(m.ScoreRecalcs[engine], scoreIDs...)
	return true
}

func (m *MockQueue) EnqueueBeatmapRecalc(engine string, pairs []cache.BeatmapMods) bool {
	m.BeatmapRecalcs[engine] = append(m.BeatmapRecalcs[engine], pairs...)
	return true
}

func (m *MockQueue) EnqueueMembershipUpdate(leaderboardID, userID int64) bool {
	m.Memberships = append(m.Memberships, [2]int64{leaderboardID, userID})
	return true
}

func (m *MockQueue) EnqueueScoreEvent(ev models.ScoreEvent) bool {
	m.Events = append(m.Events, ev)
	return true
}

func (m *MockQueue) QueueDepth() int { return 0 }

// MockCH implements driver.Conn for the analytics endpoints.
type MockCH struct {
	driver.Conn
	CapturedQuery string
	CapturedArgs  []any
	Rows          [][]any
}

func (m *MockCH) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	m.CapturedQuery = query
	m.CapturedArgs = args
	return &MockCHRows{data: m.Rows}, nil
}

func (m *MockCH) Ping(ctx context.Context) error { return nil }

type MockCHRows struct {
	data [][]any
	idx  int
}

func (m *MockCHRows) Next() bool {
	if m.idx >= len(m.data) {
		return false
	}
	m.idx++
	return true
}

func (m *MockCHRows) Scan(dest ...any) error {
	row := m.data[m.idx-1]
	for i, d := range dest {
		if i >= len(row) {
			break
		}
		switch v := d.(type) {
		case *time.Time:
			*v = row[i].(time.Time)
		case *float64:
			*v = row[i].(float64)
		case *uint64:
			*v = row[i].(uint64)
		}
	}
	return nil
}

func (m *MockCHRows) ScanStruct(dest any) error        { return nil }
func (m *MockCHRows) Close() error                     { return nil }
func (m *MockCHRows) Err() error                       { return nil }
func (m *MockCHRows) Columns() []string                { return nil }
func (m *MockCHRows) ColumnTypes() []driver.ColumnType { return nil }
func (m *MockCHRows) Totals(dest ...any) error         { return nil }
