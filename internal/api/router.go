package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pollpulse/pollpulse/internal/realtime"
)

// RouterDeps collects everything the router wires together.
type RouterDeps struct {
	Polls *PollHandler
	Votes *VoteHandler
	WS    *WSHandler
	Hub   *realtime.Hub
	Auth  *realtime.AuthManager

	// RateLimitPerSecond caps requests per client IP; zero disables the cap.
	RateLimitPerSecond int
}

// NewRouter builds the HTTP routing table.
func NewRouter(deps RouterDeps) *mux.Router {
	router := mux.NewRouter()

	middlewares := []Middleware{
		RecoveryMiddleware(),
		CORSMiddleware(),
		LoggingMiddleware(),
	}
	if deps.RateLimitPerSecond > 0 {
		middlewares = append(middlewares, RateLimitMiddleware(deps.RateLimitPerSecond))
	}
	middlewares = append(middlewares, IdentityMiddleware(deps.Auth))
	chain := ChainMiddleware(middlewares...)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(mux.MiddlewareFunc(chain))

	// Polls
	v1.HandleFunc("/polls", deps.Polls.CreatePoll).Methods(http.MethodPost, http.MethodOptions)
	v1.HandleFunc("/polls", deps.Polls.ListPolls).Methods(http.MethodGet)
	v1.HandleFunc("/polls/slug/{slug}", deps.Polls.GetPollBySlug).Methods(http.MethodGet)
	v1.HandleFunc("/polls/{id}", deps.Polls.GetPoll).Methods(http.MethodGet)
	v1.HandleFunc("/polls/{id}/stats", deps.Polls.GetPollStats).Methods(http.MethodGet)
	v1.HandleFunc("/polls/{id}", deps.Polls.UpdatePoll).Methods(http.MethodPatch, http.MethodOptions)
	v1.HandleFunc("/polls/{id}", deps.Polls.DeletePoll).Methods(http.MethodDelete)

	// Options
	v1.HandleFunc("/polls/{id}/options", deps.Polls.AddOption).Methods(http.MethodPost, http.MethodOptions)
	v1.HandleFunc("/polls/{id}/options/order", deps.Polls.ReorderOptions).Methods(http.MethodPut, http.MethodOptions)
	v1.HandleFunc("/polls/{id}/options/{option_id}", deps.Polls.UpdateOption).Methods(http.MethodPatch, http.MethodOptions)
	v1.HandleFunc("/polls/{id}/options/{option_id}", deps.Polls.RemoveOption).Methods(http.MethodDelete)

	// Votes
	v1.HandleFunc("/polls/{id}/votes", deps.Votes.CastVote).Methods(http.MethodPost, http.MethodOptions)
	v1.HandleFunc("/polls/{id}/votes", deps.Votes.ChangeVote).Methods(http.MethodPut)
	v1.HandleFunc("/polls/{id}/votes/me", deps.Votes.VoterStatus).Methods(http.MethodGet)
	v1.HandleFunc("/votes/{vote_id}", deps.Votes.DeleteVote).Methods(http.MethodDelete, http.MethodOptions)

	// Likes
	v1.HandleFunc("/polls/{id}/like", deps.Votes.ToggleLike).Methods(http.MethodPost, http.MethodOptions)
	v1.HandleFunc("/polls/{id}/like", deps.Votes.LikeStatus).Methods(http.MethodGet)

	// WebSocket endpoints, one per subscription scope
	router.HandleFunc("/ws/poll/{poll_id}", deps.WS.HandlePoll)
	router.HandleFunc("/ws/user/{user_id}", deps.WS.HandleUser)
	router.HandleFunc("/ws/global", deps.WS.HandleGlobal)

	// Operational endpoints
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	router.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(deps.Hub.GetStats())
	})

	router.Handle("/metrics", promhttp.Handler())

	return router
}
