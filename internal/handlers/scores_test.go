package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rhythmstats/ranking-api/internal/cache"
	"github.com/rhythmstats/ranking-api/internal/models"
)

func newTestHandler(scores *MockScoreStore, memberships *MockMembershipEngine, leaderboards *MockLeaderboardStore) (*Handler, *MockQueue) {
	queue := NewMockQueue()
	h := New(Config{
		WorkerPool:   queue,
		ClickHouse:   &MockCH{},
		Logger:       zap.NewNop().Sugar(),
		Scores:       scores,
		Memberships:  memberships,
		Leaderboards: leaderboards,
	})
	return h, queue
}

func postJSON(t *testing.T, r chi.Router, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSubmitScoreQueuesRecalcAndEvent(t *testing.T) {
	scores := &MockScoreStore{
		CreateScoreFunc: func(sub *models.ScoreSubmission) (*models.Score, bool, error) {
			return &models.Score{
				ID:        101,
				UserID:    sub.UserID,
				BeatmapID: sub.BeatmapID,
				Gamemode:  models.Gamemode(sub.Gamemode),
				Count300:  sub.Count300,
			}, true, nil
		},
	}
	h, queue := newTestHandler(scores, &MockMembershipEngine{}, &MockLeaderboardStore{})

	r := chi.NewRouter()
	r.Post("/api/v1/scores", h.SubmitScore)

	rec := postJSON(t, r, "/api/v1/scores", models.ScoreSubmission{
		UserID:    5,
		BeatmapID: "b7a1",
		Count300:  400,
		Combo:     520,
	}, nil)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := queue.ScoreRecalcs["standard"]; len(got) != 1 || got[0] != 101 {
		t.Errorf("expected score 101 queued for recalc, got %v", got)
	}
	if len(queue.Events) != 1 {
		t.Fatalf("expected 1 analytics event, got %d", len(queue.Events))
	}
	ev := queue.Events[0]
	if ev.EventType != models.EventScoreSubmitted {
		t.Errorf("expected event type %q, got %q", models.EventScoreSubmitted, ev.EventType)
	}
	if ev.ScoreID != 101 || ev.UserID != 5 {
		t.Errorf("unexpected event identity: %+v", ev)
	}
}

func TestSubmitScoreDuplicateSkipsQueue(t *testing.T) {
	scores := &MockScoreStore{
		CreateScoreFunc: func(sub *models.ScoreSubmission) (*models.Score, bool, error) {
			return &models.Score{ID: 101, UserID: sub.UserID, BeatmapID: sub.BeatmapID}, false, nil
		},
	}
	h, queue := newTestHandler(scores, &MockMembershipEngine{}, &MockLeaderboardStore{})

	r := chi.NewRouter()
	r.Post("/api/v1/scores", h.SubmitScore)

	rec := postJSON(t, r, "/api/v1/scores", models.ScoreSubmission{
		UserID:    5,
		BeatmapID: "b7a1",
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", rec.Code)
	}
	if len(queue.ScoreRecalcs["standard"]) != 0 {
		t.Errorf("duplicate submission should not queue recalc, got %v", queue.ScoreRecalcs)
	}
	if len(queue.Events) != 0 {
		t.Errorf("duplicate submission should not emit events, got %d", len(queue.Events))
	}
}

func TestSubmitScoreInvalidBody(t *testing.T) {
	h, queue := newTestHandler(&MockScoreStore{}, &MockMembershipEngine{}, &MockLeaderboardStore{})

	r := chi.NewRouter()
	r.Post("/api/v1/scores", h.SubmitScore)

	req := httptest.NewRequest("POST", "/api/v1/scores", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(queue.Events) != 0 {
		t.Errorf("invalid body should not reach the queue")
	}
}

func TestSubmitScoreValidationFailure(t *testing.T) {
	h, _ := newTestHandler(&MockScoreStore{}, &MockMembershipEngine{}, &MockLeaderboardStore{})

	r := chi.NewRouter()
	r.Post("/api/v1/scores", h.SubmitScore)

	rec := postJSON(t, r, "/api/v1/scores", models.ScoreSubmission{
		UserID:    0,
		BeatmapID: "b7a1",
	}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing user_id, got %d", rec.Code)
	}
}

func TestRecalculateQueuesScopedWork(t *testing.T) {
	scores := &MockScoreStore{
		UserScoreIDsFunc: func(userID int64, gamemode models.Gamemode) ([]int64, error) {
			if userID != 7 {
				t.Errorf("unexpected user id %d", userID)
			}
			return []int64{3, 4}, nil
		},
		BeatmapModPairsFunc: func(beatmapIDs []string) ([]cache.BeatmapMods, error) {
			return []cache.BeatmapMods{
				{BeatmapID: beatmapIDs[0], Mods: 0},
				{BeatmapID: beatmapIDs[0], Mods: 64},
			}, nil
		},
	}
	h, queue := newTestHandler(scores, &MockMembershipEngine{}, &MockLeaderboardStore{})

	r := chi.NewRouter()
	r.Post("/api/v1/recalculate", h.Recalculate)

	rec := postJSON(t, r, "/api/v1/recalculate", models.RecalculateRequest{
		Gamemode:   0,
		ScoreIDs:   []int64{1, 2},
		UserIDs:    []int64{7},
		BeatmapIDs: []string{"b7a1"},
	}, nil)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["queued_scores"] != 4 {
		t.Errorf("expected 4 queued scores, got %d", resp["queued_scores"])
	}
	if resp["queued_beatmap_pairs"] != 2 {
		t.Errorf("expected 2 queued beatmap pairs, got %d", resp["queued_beatmap_pairs"])
	}
	if got := queue.ScoreRecalcs["standard"]; len(got) != 4 {
		t.Errorf("expected 4 score ids queued, got %v", got)
	}
	if got := queue.BeatmapRecalcs["standard"]; len(got) != 2 {
		t.Errorf("expected 2 beatmap pairs queued, got %v", got)
	}
}
