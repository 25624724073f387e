package worker

import (
	"context"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/rhythmstats/ranking-api/internal/cache"
	"github.com/rhythmstats/ranking-api/internal/models"
)

// MockRecalculator records the refresh calls it receives.
type MockRecalculator struct {
	mu         sync.Mutex
	Version    string
	ScoreCalls [][]*models.Score
	PairCalls  [][]cache.BeatmapMods
	Err        error
}

func (m *MockRecalculator) EngineVersion(ctx context.Context, engine string) (string, error) {
	return m.Version, nil
}

func (m *MockRecalculator) RecalculateScores(ctx context.Context, engine string, scores []*models.Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScoreCalls = append(m.ScoreCalls, scores)
	return m.Err
}

func (m *MockRecalculator) RecalculateBeatmaps(ctx context.Context, engine string, pairs []cache.BeatmapMods) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PairCalls = append(m.PairCalls, pairs)
	return m.Err
}

// MockScoreSource serves a fixed score set.
type MockScoreSource struct {
	Scores []*models.Score
}

func (m *MockScoreSource) ScoresByIDs(ctx context.Context, ids []int64, engine, version string) ([]*models.Score, error) {
	return m.Scores, nil
}

// MockMembershipUpdater records membership recomputes.
type MockMembershipUpdater struct {
	mu           sync.Mutex
	Leaderboards map[int64][]int64 // user -> leaderboard ids
	Updates      [][2]int64
}

func (m *MockMembershipUpdater) UpdateMembership(ctx context.Context, leaderboardID, userID int64) (*models.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updates = append(m.Updates, [2]int64{leaderboardID, userID})
	return &models.Membership{LeaderboardID: leaderboardID, UserID: userID}, nil
}

func (m *MockMembershipUpdater) UserLeaderboardIDs(ctx context.Context, userID int64, gamemode models.Gamemode) ([]int64, error) {
	return m.Leaderboards[userID], nil
}

func (m *MockMembershipUpdater) UpdateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Updates)
}

// MockClickHouseConn implements driver.Conn for testing.
type MockClickHouseConn struct {
	driver.Conn
	mu      sync.Mutex
	Batches []*MockBatch
}

func (m *MockClickHouseConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := &MockBatch{}
	m.Batches = append(m.Batches, b)
	return b, nil
}

func (m *MockClickHouseConn) SentRows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, b := range m.Batches {
		if b.Sent() {
			total += b.Rows()
		}
	}
	return total
}

// MockBatch records appended rows.
type MockBatch struct {
	mu       sync.Mutex
	Appended [][]any
	sent     bool
}

func (m *MockBatch) Append(v ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Appended = append(m.Appended, v)
	return nil
}

func (m *MockBatch) AppendStruct(v any) error { return nil }

func (m *MockBatch) Column(int) driver.BatchColumn { return nil }

func (m *MockBatch) Flush() error { return nil }

func (m *MockBatch) Abort() error { return nil }

func (m *MockBatch) Send() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = true
	return nil
}

func (m *MockBatch) IsSent() bool { return m.Sent() }

func (m *MockBatch) Sent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

func (m *MockBatch) Rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Appended)
}
