package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pollpulse/pollpulse/internal/pubsub"
	"github.com/pollpulse/pollpulse/internal/voting"
)

// VoteHandler handles vote and like endpoints
type VoteHandler struct {
	voteEngine *voting.VoteEngine
	likeEngine *voting.LikeEngine
	statsCache *pubsub.StatsCache
}

// NewVoteHandler creates a new vote handler. The stats cache may be nil.
func NewVoteHandler(voteEngine *voting.VoteEngine, likeEngine *voting.LikeEngine, statsCache *pubsub.StatsCache) *VoteHandler {
	return &VoteHandler{
		voteEngine: voteEngine,
		likeEngine: likeEngine,
		statsCache: statsCache,
	}
}

// invalidateStats drops the cached stats snapshot after a mutation so the
// next stats read sees the committed counters.
func (h *VoteHandler) invalidateStats(r *http.Request, pollID string) {
	if h.statsCache != nil {
		h.statsCache.Invalidate(r.Context(), pollID)
	}
}

type castVoteRequest struct {
	OptionIDs []string `json:"option_ids"`
	OptionID  string   `json:"option_id"` // single-option shorthand
}

func (req *castVoteRequest) options() []string {
	if len(req.OptionIDs) > 0 {
		return req.OptionIDs
	}
	if req.OptionID != "" {
		return []string{req.OptionID}
	}
	return nil
}

// CastVote handles POST /api/v1/polls/{id}/votes
func (h *VoteHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	pollID := mux.Vars(r)["id"]

	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.voteEngine.CastVote(
		r.Context(),
		pollID,
		req.options(),
		IdentityFromContext(r.Context()),
		getClientIP(r),
		r.UserAgent(),
	)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	h.invalidateStats(r, pollID)
	respondWithJSON(w, http.StatusCreated, result)
}

type changeVoteRequest struct {
	OptionID string `json:"option_id"`
}

// ChangeVote handles PUT /api/v1/polls/{id}/votes
func (h *VoteHandler) ChangeVote(w http.ResponseWriter, r *http.Request) {
	pollID := mux.Vars(r)["id"]

	var req changeVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OptionID == "" {
		respondWithError(w, http.StatusBadRequest, "option_id is required")
		return
	}

	result, err := h.voteEngine.ChangeVote(r.Context(), pollID, req.OptionID, IdentityFromContext(r.Context()))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	h.invalidateStats(r, pollID)
	respondWithJSON(w, http.StatusOK, result)
}

// DeleteVote handles DELETE /api/v1/votes/{vote_id}
func (h *VoteHandler) DeleteVote(w http.ResponseWriter, r *http.Request) {
	voteID := mux.Vars(r)["vote_id"]

	if err := h.voteEngine.DeleteVote(r.Context(), voteID, IdentityFromContext(r.Context())); err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// VoterStatus handles GET /api/v1/polls/{id}/votes/me
func (h *VoteHandler) VoterStatus(w http.ResponseWriter, r *http.Request) {
	pollID := mux.Vars(r)["id"]

	status, err := h.voteEngine.VoterStatus(r.Context(), pollID, IdentityFromContext(r.Context()))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

// ToggleLike handles POST /api/v1/polls/{id}/like
func (h *VoteHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	pollID := mux.Vars(r)["id"]

	result, err := h.likeEngine.Toggle(r.Context(), pollID, IdentityFromContext(r.Context()), getClientIP(r))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	h.invalidateStats(r, pollID)
	respondWithJSON(w, http.StatusOK, result)
}

// LikeStatus handles GET /api/v1/polls/{id}/like
func (h *VoteHandler) LikeStatus(w http.ResponseWriter, r *http.Request) {
	pollID := mux.Vars(r)["id"]

	liked, err := h.likeEngine.HasLiked(r.Context(), pollID, IdentityFromContext(r.Context()))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"has_liked": liked})
}
