package handlers

import (
	"net/http"
	"strconv"

	"github.com/rhythmstats/ranking-api/internal/models"
)

// CreateLeaderboard handles POST /api/v1/leaderboards.
func (h *Handler) CreateLeaderboard(w http.ResponseWriter, r *http.Request) {
	owner, err := requesterID(r)
	if err != nil {
		h.errorResponse(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req models.CreateLeaderboardRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	req.OwnerID = owner

	lb, err := h.leaderboards.Create(r.Context(), &req)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	// The owner is always the first member.
	if _, err := h.memberships.Join(r.Context(), lb.ID, owner); err != nil {
		h.logger.Warnw("Owner auto-join failed", "leaderboard_id", lb.ID, "error", err)
	}

	h.jsonResponse(w, http.StatusCreated, lb)
}

// ListLeaderboards handles GET /api/v1/leaderboards?gamemode=N.
func (h *Handler) ListLeaderboards(w http.ResponseWriter, r *http.Request) {
	boards, err := h.leaderboards.List(r.Context(), gamemodeParam(r))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{"leaderboards": boards})
}

// GetLeaderboard handles GET /api/v1/leaderboards/{leaderboardID}.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "leaderboardID")
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid leaderboard id")
		return
	}
	lb, err := h.leaderboards.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, lb)
}

// DeleteLeaderboard handles DELETE /api/v1/leaderboards/{leaderboardID}.
func (h *Handler) DeleteLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "leaderboardID")
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid leaderboard id")
		return
	}
	requester, err := requesterID(r)
	if err != nil {
		h.errorResponse(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := h.leaderboards.Delete(r.Context(), id, requester); err != nil {
		h.serviceError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ArchiveLeaderboard handles POST /api/v1/leaderboards/{leaderboardID}/archive.
func (h *Handler) ArchiveLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "leaderboardID")
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid leaderboard id")
		return
	}
	requester, err := requesterID(r)
	if err != nil {
		h.errorResponse(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := h.leaderboards.Archive(r.Context(), id, requester); err != nil {
		h.serviceError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]string{"status": "archived"})
}

// ListMembers handles GET /api/v1/leaderboards/{leaderboardID}/members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "leaderboardID")
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid leaderboard id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	members, err := h.leaderboards.Members(r.Context(), id, limit)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{"members": members})
}

// JoinLeaderboard handles POST /api/v1/leaderboards/{leaderboardID}/members.
func (h *Handler) JoinLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "leaderboardID")
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid leaderboard id")
		return
	}
	var req models.JoinLeaderboardRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	m, err := h.memberships.Join(r.Context(), id, req.UserID)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusCreated, m)
}

// GetMembership handles GET /api/v1/leaderboards/{leaderboardID}/members/{userID}.
func (h *Handler) GetMembership(w http.ResponseWriter, r *http.Request) {
	leaderboardID, err := urlID(r, "leaderboardID")
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid leaderboard id")
		return
	}
	userID, err := urlID(r, "userID")
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid user id")
		return
	}
	m, err := h.memberships.Membership(r.Context(), leaderboardID, userID)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, m)
}

// LeaveLeaderboard handles DELETE /api/v1/leaderboards/{leaderboardID}/members/{userID}.
func (h *Handler) LeaveLeaderboard(w http.ResponseWriter, r *http.Request) {
	leaderboardID, err := urlID(r, "leaderboardID")
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid leaderboard id")
		return
	}
	userID, err := urlID(r, "userID")
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.memberships.Leave(r.Context(), leaderboardID, userID); err != nil {
		h.serviceError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]string{"status": "left"})
}

// CreateInvite handles POST /api/v1/leaderboards/{leaderboardID}/invites.
func (h *Handler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "leaderboardID")
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid leaderboard id")
		return
	}
	requester, err := requesterID(r)
	if err != nil {
		h.errorResponse(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req models.InviteRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	inv, err := h.leaderboards.Invite(r.Context(), id, requester, &req)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusCreated, inv)
}

// ListInvites handles GET /api/v1/leaderboards/{leaderboardID}/invites.
func (h *Handler) ListInvites(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "leaderboardID")
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid leaderboard id")
		return
	}
	invites, err := h.leaderboards.Invites(r.Context(), id)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{"invites": invites})
}
