package handlers

import (
	"net/http"
	"time"

	"github.com/rhythmstats/ranking-api/internal/models"
)

// SubmitScore handles POST /api/v1/scores.
// Accepts one normalized score from the ingestion collaborator, persists
// it and queues the calculation and membership work it triggers.
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	var sub models.ScoreSubmission
	if !h.decodeAndValidate(w, r, &sub) {
		return
	}

	score, created, err := h.scores.CreateScore(r.Context(), &sub)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	if created {
		engine := score.Gamemode.String()
		h.pool.EnqueueScoreRecalc(engine, []int64{score.ID})
		h.pool.EnqueueScoreEvent(models.ScoreEvent{
			Timestamp: time.Now().UTC(),
			EventType: models.EventScoreSubmitted,
			UserID:    score.UserID,
			ScoreID:   score.ID,
			BeatmapID: score.BeatmapID,
			Gamemode:  engine,
			Mods:      score.Mods.String(),
			Accuracy:  score.Accuracy(),
			Engine:    engine,
		})
	}

	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	h.jsonResponse(w, status, score)
}

// Recalculate handles POST /api/v1/recalculate.
// Queues cache refresh passes scoped to score ids, user ids or beatmap
// ids. The pass itself runs on the worker pool.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	var req models.RecalculateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	gamemode := models.Gamemode(req.Gamemode)
	engine := gamemode.String()
	queuedScores := 0
	queuedPairs := 0

	if len(req.ScoreIDs) > 0 {
		if h.pool.EnqueueScoreRecalc(engine, req.ScoreIDs) {
			queuedScores += len(req.ScoreIDs)
		}
	}

	for _, userID := range req.UserIDs {
		ids, err := h.scores.UserScoreIDs(r.Context(), userID, gamemode)
		if err != nil {
			h.serviceError(w, err)
			return
		}
		if len(ids) > 0 && h.pool.EnqueueScoreRecalc(engine, ids) {
			queuedScores += len(ids)
		}
	}

	if len(req.BeatmapIDs) > 0 {
		pairs, err := h.scores.BeatmapModPairs(r.Context(), req.BeatmapIDs)
		if err != nil {
			h.serviceError(w, err)
			return
		}
		if len(pairs) > 0 && h.pool.EnqueueBeatmapRecalc(engine, pairs) {
			queuedPairs = len(pairs)
		}
	}

	h.jsonResponse(w, http.StatusAccepted, map[string]interface{}{
		"queued_scores":        queuedScores,
		"queued_beatmap_pairs": queuedPairs,
	})
}
