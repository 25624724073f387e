package handlers

import (
	"net/http"
	"strconv"

	"github.com/rhythmstats/ranking-api/internal/models"
)

// UserTotal handles GET /api/v1/users/{userID}/total?gamemode=N&score_set=N.
// Read-only decay-weighted total over the user's whole score set.
func (h *Handler) UserTotal(w http.ResponseWriter, r *http.Request) {
	userID, err := urlID(r, "userID")
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid user id")
		return
	}

	policy := models.ScoreSetNormal
	if v, err := strconv.Atoi(r.URL.Query().Get("score_set")); err == nil && v >= 0 && v <= 2 {
		policy = models.ScoreSet(v)
	}
	gamemode := gamemodeParam(r)

	total, err := h.memberships.AggregateTotal(r.Context(), userID, gamemode, policy)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"user_id":   userID,
		"gamemode":  gamemode,
		"score_set": policy,
		"total":     total,
	})
}

// PPHistory handles GET /api/v1/users/{userID}/pp-history?gamemode=N&days=N.
// Served from the ClickHouse score event stream.
func (h *Handler) PPHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := urlID(r, "userID")
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid user id")
		return
	}

	days := 90
	if v, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && v > 0 && v <= 365 {
		days = v
	}
	gamemode := gamemodeParam(r)

	rows, err := h.ch.Query(r.Context(), `
		SELECT toStartOfDay(timestamp) AS day,
		       max(pp) AS best_pp,
		       count() AS plays
		FROM ranking.score_events
		WHERE user_id = ? AND gamemode = ? AND timestamp >= now() - INTERVAL ? DAY
		GROUP BY day
		ORDER BY day`,
		userID, gamemode.String(), days)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	defer rows.Close()

	history := []models.PPHistoryPoint{}
	for rows.Next() {
		var p models.PPHistoryPoint
		if err := rows.Scan(&p.Day, &p.BestPP, &p.Plays); err != nil {
			h.serviceError(w, err)
			return
		}
		history = append(history, p)
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"user_id":  userID,
		"gamemode": gamemode,
		"history":  history,
	})
}
