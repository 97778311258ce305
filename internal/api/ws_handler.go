package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/pollpulse/pollpulse/internal/config"
	"github.com/pollpulse/pollpulse/internal/realtime"
	"github.com/pollpulse/pollpulse/pkg/logger"
)

// WSHandler upgrades HTTP requests into scope-bound WebSocket connections.
type WSHandler struct {
	hub      *realtime.Hub
	auth     *realtime.AuthManager
	cfg      config.RealtimeConfig
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler(hub *realtime.Hub, auth *realtime.AuthManager, cfg config.RealtimeConfig) *WSHandler {
	return &WSHandler{
		hub:  hub,
		auth: auth,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin filtering happens at the edge proxy
				return true
			},
		},
	}
}

// HandlePoll handles GET /ws/poll/{poll_id}
func (h *WSHandler) HandlePoll(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, realtime.ScopePoll, mux.Vars(r)["poll_id"])
}

// HandleUser handles GET /ws/user/{user_id}
func (h *WSHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, realtime.ScopeUser, mux.Vars(r)["user_id"])
}

// HandleGlobal handles GET /ws/global
func (h *WSHandler) HandleGlobal(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, realtime.ScopeGlobal, "")
}

func (h *WSHandler) serve(w http.ResponseWriter, r *http.Request, scope realtime.Scope, scopeKey string) {
	if h.hub.Registry().Count() >= h.cfg.MaxConnections {
		respondWithError(w, http.StatusServiceUnavailable, "Connection limit reached")
		return
	}

	identity := h.auth.IdentityFromRequest(r)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed",
			logger.ErrorField(err),
			logger.String("remote_addr", r.RemoteAddr),
		)
		return
	}

	conn := realtime.NewConnection(
		uuid.New().String(),
		scope,
		scopeKey,
		identity,
		ws,
		h.cfg.SendBufferSize,
	)
	h.hub.Register(conn)
}
