// Package api exposes the HTTP surface: poll CRUD, voting, likes, and the
// scope-bound WebSocket endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/pollpulse/pollpulse/internal/polls"
	"github.com/pollpulse/pollpulse/internal/pubsub"
	"github.com/pollpulse/pollpulse/pkg/logger"
)

// PollHandler handles poll management endpoints
type PollHandler struct {
	service    *polls.Service
	statsCache *pubsub.StatsCache
}

// NewPollHandler creates a new poll handler. The stats cache may be nil,
// in which case every stats read hits the store.
func NewPollHandler(service *polls.Service, statsCache *pubsub.StatsCache) *PollHandler {
	return &PollHandler{
		service:    service,
		statsCache: statsCache,
	}
}

type createPollRequest struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Options       []string   `json:"options"`
	IsPublic      *bool      `json:"is_public"`
	AllowMultiple bool       `json:"allow_multiple"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

// CreatePoll handles POST /api/v1/polls
func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Title == "" {
		respondWithError(w, http.StatusBadRequest, "title is required")
		return
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	identity := IdentityFromContext(r.Context())
	poll, err := h.service.CreatePoll(r.Context(), polls.CreatePollInput{
		Title:         req.Title,
		Description:   req.Description,
		Options:       req.Options,
		AuthorID:      identity.UserID(),
		IsPublic:      isPublic,
		AllowMultiple: req.AllowMultiple,
		ExpiresAt:     req.ExpiresAt,
	})
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, poll)
}

// ListPolls handles GET /api/v1/polls
func (h *PollHandler) ListPolls(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.service.ListPolls(r.Context(), limit, offset)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"polls": list,
		"count": len(list),
	})
}

// GetPoll handles GET /api/v1/polls/{id}
func (h *PollHandler) GetPoll(w http.ResponseWriter, r *http.Request) {
	pollID := mux.Vars(r)["id"]

	poll, err := h.service.GetPoll(r.Context(), pollID)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	// View counting is best effort; a failed bump never fails the read.
	h.service.RecordView(r.Context(), pollID)

	respondWithJSON(w, http.StatusOK, poll)
}

// GetPollBySlug handles GET /api/v1/polls/slug/{slug}
func (h *PollHandler) GetPollBySlug(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	poll, err := h.service.GetPollBySlug(r.Context(), slug)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	h.service.RecordView(r.Context(), poll.ID)

	respondWithJSON(w, http.StatusOK, poll)
}

// pollStats is the counter snapshot served by the stats endpoint.
type pollStats struct {
	PollID     string        `json:"poll_id"`
	TotalVotes int           `json:"total_votes"`
	LikesCount int           `json:"likes_count"`
	ViewsCount int           `json:"views_count"`
	Options    []optionStats `json:"options"`
}

type optionStats struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	VoteCount  int     `json:"vote_count"`
	Percentage float64 `json:"percentage"`
}

// GetPollStats handles GET /api/v1/polls/{id}/stats. Hot polls are served
// from the Redis cache when one is configured.
func (h *PollHandler) GetPollStats(w http.ResponseWriter, r *http.Request) {
	pollID := mux.Vars(r)["id"]

	if h.statsCache != nil {
		var cached pollStats
		if err := h.statsCache.Get(r.Context(), pollID, &cached); err == nil {
			respondWithJSON(w, http.StatusOK, cached)
			return
		}
	}

	poll, err := h.service.GetPoll(r.Context(), pollID)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	stats := pollStats{
		PollID:     poll.ID,
		TotalVotes: poll.TotalVotes,
		LikesCount: poll.LikesCount,
		ViewsCount: poll.ViewsCount,
	}
	for _, opt := range poll.Options {
		stats.Options = append(stats.Options, optionStats{
			ID:         opt.ID,
			Text:       opt.Text,
			VoteCount:  opt.VoteCount,
			Percentage: opt.Percentage(poll.TotalVotes),
		})
	}

	if h.statsCache != nil {
		if err := h.statsCache.Set(r.Context(), pollID, stats); err != nil {
			logger.Warn("Failed to cache poll stats",
				logger.ErrorField(err),
				logger.String("poll_id", pollID),
			)
		}
	}

	respondWithJSON(w, http.StatusOK, stats)
}

func (h *PollHandler) invalidateStats(r *http.Request, pollID string) {
	if h.statsCache != nil {
		h.statsCache.Invalidate(r.Context(), pollID)
	}
}

type updatePollRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	IsActive    *bool      `json:"is_active"`
	IsPublic    *bool      `json:"is_public"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ClearExpiry bool       `json:"clear_expiry"`
}

// UpdatePoll handles PATCH /api/v1/polls/{id}
func (h *PollHandler) UpdatePoll(w http.ResponseWriter, r *http.Request) {
	pollID := mux.Vars(r)["id"]

	var req updatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	poll, err := h.service.UpdatePoll(r.Context(), pollID, IdentityFromContext(r.Context()), polls.UpdatePollInput{
		Title:       req.Title,
		Description: req.Description,
		IsActive:    req.IsActive,
		IsPublic:    req.IsPublic,
		ExpiresAt:   req.ExpiresAt,
		ClearExpiry: req.ClearExpiry,
	})
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, poll)
}

// DeletePoll handles DELETE /api/v1/polls/{id}
func (h *PollHandler) DeletePoll(w http.ResponseWriter, r *http.Request) {
	pollID := mux.Vars(r)["id"]

	if err := h.service.DeletePoll(r.Context(), pollID, IdentityFromContext(r.Context())); err != nil {
		respondWithDomainError(w, err)
		return
	}

	h.invalidateStats(r, pollID)
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type optionRequest struct {
	Text string `json:"text"`
}

// AddOption handles POST /api/v1/polls/{id}/options
func (h *PollHandler) AddOption(w http.ResponseWriter, r *http.Request) {
	pollID := mux.Vars(r)["id"]

	var req optionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		respondWithError(w, http.StatusBadRequest, "text is required")
		return
	}

	opt, err := h.service.AddOption(r.Context(), pollID, IdentityFromContext(r.Context()), req.Text)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	h.invalidateStats(r, pollID)
	respondWithJSON(w, http.StatusCreated, opt)
}

// UpdateOption handles PATCH /api/v1/polls/{id}/options/{option_id}
func (h *PollHandler) UpdateOption(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req optionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		respondWithError(w, http.StatusBadRequest, "text is required")
		return
	}

	err := h.service.UpdateOptionText(r.Context(), vars["id"], vars["option_id"], IdentityFromContext(r.Context()), req.Text)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// RemoveOption handles DELETE /api/v1/polls/{id}/options/{option_id}
func (h *PollHandler) RemoveOption(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	err := h.service.RemoveOption(r.Context(), vars["id"], vars["option_id"], IdentityFromContext(r.Context()))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	h.invalidateStats(r, vars["id"])
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type reorderRequest struct {
	Positions map[string]int `json:"positions"`
}

// ReorderOptions handles PUT /api/v1/polls/{id}/options/order
func (h *PollHandler) ReorderOptions(w http.ResponseWriter, r *http.Request) {
	pollID := mux.Vars(r)["id"]

	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Positions) == 0 {
		respondWithError(w, http.StatusBadRequest, "positions map is required")
		return
	}

	err := h.service.ReorderOptions(r.Context(), pollID, IdentityFromContext(r.Context()), req.Positions)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "reordered"})
}
