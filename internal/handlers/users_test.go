package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rhythmstats/ranking-api/internal/models"
)

func TestUserTotalForwardsPolicy(t *testing.T) {
	memberships := &MockMembershipEngine{
		AggregateTotalFunc: func(userID int64, gamemode models.Gamemode, policy models.ScoreSet) (float64, error) {
			if userID != 5 {
				t.Errorf("unexpected user id %d", userID)
			}
			if gamemode != models.GamemodeTaiko {
				t.Errorf("expected taiko, got %v", gamemode)
			}
			if policy != models.ScoreSetNeverChoke {
				t.Errorf("expected never-choke policy, got %v", policy)
			}
			return 848.8625, nil
		},
	}
	h, _ := newTestHandler(&MockScoreStore{}, memberships, &MockLeaderboardStore{})

	r := chi.NewRouter()
	r.Get("/api/v1/users/{userID}/total", h.UserTotal)

	req := httptest.NewRequest("GET", "/api/v1/users/5/total?gamemode=1&score_set=1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Total float64 `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 848.8625 {
		t.Errorf("expected total 848.8625, got %v", resp.Total)
	}
}

func TestPPHistoryReadsEventStream(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ch := &MockCH{Rows: [][]any{
		{day, 412.3, uint64(14)},
		{day.AddDate(0, 0, 1), 431.8, uint64(9)},
	}}

	queue := NewMockQueue()
	h := New(Config{
		WorkerPool:   queue,
		ClickHouse:   ch,
		Logger:       zap.NewNop().Sugar(),
		Scores:       &MockScoreStore{},
		Memberships:  &MockMembershipEngine{},
		Leaderboards: &MockLeaderboardStore{},
	})

	r := chi.NewRouter()
	r.Get("/api/v1/users/{userID}/pp-history", h.PPHistory)

	req := httptest.NewRequest("GET", "/api/v1/users/5/pp-history?gamemode=0&days=30", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(ch.CapturedQuery, "ranking.score_events") {
		t.Errorf("query should read the score event stream: %s", ch.CapturedQuery)
	}
	if len(ch.CapturedArgs) != 3 || ch.CapturedArgs[1] != "standard" {
		t.Errorf("unexpected query args: %v", ch.CapturedArgs)
	}

	var resp struct {
		History []models.PPHistoryPoint `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.History) != 2 {
		t.Fatalf("expected 2 history points, got %d", len(resp.History))
	}
	if resp.History[1].BestPP != 431.8 || resp.History[1].Plays != 9 {
		t.Errorf("unexpected second point: %+v", resp.History[1])
	}
}
