package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pollpulse/pollpulse/internal/config"
	"github.com/pollpulse/pollpulse/pkg/logger"
)

var (
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_active",
		Help: "Number of active WebSocket connections",
	})

	broadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_broadcasts_total",
			Help: "Total number of broadcast events by message type",
		},
		[]string{"type"},
	)

	messagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_messages_sent_total",
		Help: "Total number of messages enqueued to clients",
	})

	messagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_messages_dropped_total",
		Help: "Total number of messages dropped on full send channels",
	})
)

// Broadcaster is the event delivery contract the vote/like engines and the
// poll service depend on. The Hub is the production implementation.
type Broadcaster interface {
	// BroadcastToPoll delivers to the poll's subscriber set and the
	// global set.
	BroadcastToPoll(pollID string, msg ServerMessage)
	// BroadcastToUser delivers to the user's subscriber set only.
	BroadcastToUser(userID string, msg ServerMessage)
	// BroadcastGlobal delivers to the global set only.
	BroadcastGlobal(msg ServerMessage)
}

// Hub owns the connection registry, routes broadcasts, and runs the
// per-connection read/write pumps.
type Hub struct {
	config   config.RealtimeConfig
	registry *Registry
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	stats    HubStats
}

// HubStats holds counters about hub activity.
type HubStats struct {
	ConnectionsTotal  int64
	ConnectionsActive int64
	EventsBroadcast   int64
	MessagesSent      int64
	MessagesDropped   int64
	LastEventTime     time.Time
	mu                sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub(cfg config.RealtimeConfig) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		config:   cfg,
		registry: NewRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry exposes the hub's connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Start launches the stale-connection sweep and the heartbeat broadcaster.
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	logger.Info("Starting WebSocket hub",
		logger.Duration("stale_threshold", h.config.StaleThreshold),
		logger.Duration("heartbeat_interval", h.config.HeartbeatInterval),
	)

	h.wg.Add(1)
	go h.sweepStaleConnections()

	h.wg.Add(1)
	go h.broadcastHeartbeats()

	return nil
}

// Stop stops the hub and closes every connection.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	logger.Info("Stopping WebSocket hub")
	h.cancel()

	for _, conn := range h.registry.GetAll() {
		h.registry.Remove(conn.ID)
		conn.Close()
	}

	h.wg.Wait()
	logger.Info("WebSocket hub stopped")
}

// Register registers a connection and starts its pumps.
func (h *Hub) Register(conn *Connection) {
	h.registry.Add(conn)
	h.incrementConnections()
	connectionsActive.Set(float64(h.registry.Count()))

	logger.Info("Connection registered",
		logger.String("connection_id", conn.ID),
		logger.String("scope", string(conn.Scope)),
		logger.String("scope_key", conn.ScopeKey),
		logger.String("identity", conn.Identity.String()),
		logger.Int("total_connections", h.registry.Count()),
	)

	h.wg.Add(2)
	go h.writePump(conn)
	go h.readPump(conn)
}

// Unregister removes a connection from the registry and closes it.
func (h *Hub) Unregister(conn *Connection) {
	h.registry.Remove(conn.ID)
	conn.Close()
	connectionsActive.Set(float64(h.registry.Count()))

	logger.Info("Connection unregistered",
		logger.String("connection_id", conn.ID),
		logger.String("scope", string(conn.Scope)),
		logger.Int("total_connections", h.registry.Count()),
	)
}

// BroadcastToPoll delivers a poll event to the poll's subscribers and the
// global set. Global dashboards stay current without a per-poll subscription.
func (h *Hub) BroadcastToPoll(pollID string, msg ServerMessage) {
	targets := h.registry.GetByPoll(pollID)
	seen := make(map[string]bool, len(targets))
	for _, conn := range targets {
		seen[conn.ID] = true
	}
	for _, conn := range h.registry.GetGlobal() {
		if !seen[conn.ID] {
			targets = append(targets, conn)
		}
	}
	h.deliver(targets, msg)
}

// BroadcastToUser delivers a user event to the user's subscribers only.
func (h *Hub) BroadcastToUser(userID string, msg ServerMessage) {
	h.deliver(h.registry.GetByUser(userID), msg)
}

// BroadcastGlobal delivers an event to the global set only.
func (h *Hub) BroadcastGlobal(msg ServerMessage) {
	h.deliver(h.registry.GetGlobal(), msg)
}

func (h *Hub) deliver(targets []*Connection, msg ServerMessage) {
	sent := 0
	for _, conn := range targets {
		if err := conn.Enqueue(msg); err != nil {
			logger.Debug("Failed to enqueue message",
				logger.ErrorField(err),
				logger.String("connection_id", conn.ID),
			)
			continue
		}
		sent++
		messagesSent.Inc()
	}

	broadcastsTotal.WithLabelValues(string(msg.Type)).Inc()
	h.recordBroadcast(int64(sent))

	logger.Debug("Broadcast event",
		logger.String("type", string(msg.Type)),
		logger.String("poll_id", msg.PollID),
		logger.Int("sent", sent),
		logger.Int("targets", len(targets)),
	)
}

// writePump pumps messages from the send channel to the WebSocket.
func (h *Hub) writePump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-conn.Done():
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))

			w, err := conn.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same frame
			n := len(conn.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-conn.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client messages and dispatches them. Malformed payloads
// get an error reply and the connection keeps going.
func (h *Hub) readPump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Heartbeat()
		conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessageRaw()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket error",
					logger.ErrorField(err),
					logger.String("connection_id", conn.ID),
				)
			}
			break
		}

		conn.Heartbeat()
		conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			conn.EnqueueError("Invalid JSON format")
			continue
		}

		if err := h.HandleClientMessage(conn, &clientMsg); err != nil {
			logger.Debug("Failed to handle client message",
				logger.ErrorField(err),
				logger.String("connection_id", conn.ID),
				logger.String("type", string(clientMsg.Type)),
			)
		}
	}
}

// HandleClientMessage dispatches one client message.
func (h *Hub) HandleClientMessage(conn *Connection, msg *ClientMessage) error {
	switch msg.Type {
	case MessageTypePing:
		return conn.Enqueue(NewPongMessage(msg.Timestamp))

	case MessageTypeSubscribe:
		if msg.PollID == "" && msg.UserID == "" {
			return conn.EnqueueError("poll_id or user_id field required")
		}
		h.registry.UpdateSubscription(conn, msg.PollID, msg.UserID)
		logger.Debug("Client updated subscription",
			logger.String("connection_id", conn.ID),
			logger.String("poll_id", msg.PollID),
			logger.String("user_id", msg.UserID),
		)
		return conn.Enqueue(NewSubscribedMessage(msg.PollID, msg.UserID))

	case MessageTypeVoteCast:
		// Client-side notification hook: relay to the poll's
		// subscribers. The authoritative vote path is the HTTP API.
		if msg.PollID == "" {
			return conn.EnqueueError("poll_id field required")
		}
		h.BroadcastToPoll(msg.PollID, NewVoteCastEvent(msg.PollID, msg.Data))
		return nil

	case MessageTypeLikeCast:
		if msg.PollID == "" {
			return conn.EnqueueError("poll_id field required")
		}
		h.BroadcastToPoll(msg.PollID, NewLikeCastEvent(msg.PollID, msg.Data))
		return nil

	default:
		return conn.Enqueue(NewUnknownTypeMessage(msg.Type))
	}
}

// sweepStaleConnections periodically reaps connections with no activity
// inside the staleness threshold.
func (h *Hub) sweepStaleConnections() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			for _, conn := range h.registry.GetAll() {
				idle := now.Sub(conn.LastHeartbeat())
				if idle > h.config.StaleThreshold {
					logger.Info("Removing stale connection",
						logger.String("connection_id", conn.ID),
						logger.String("scope", string(conn.Scope)),
						logger.Duration("idle_time", idle),
					)
					h.Unregister(conn)
				}
			}
		}
	}
}

// broadcastHeartbeats periodically sends connection counts to every client.
func (h *Hub) broadcastHeartbeats() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-ticker.C:
			msg := NewHeartbeatMessage(
				h.registry.Count(),
				h.registry.CountUserConnections(),
				h.registry.CountGlobal(),
			)
			h.deliver(h.registry.GetAll(), msg)

			stats := h.GetStats()
			h.deliver(h.registry.GetGlobal(), NewRealTimeStatsMessage(map[string]int64{
				"connections_active": stats.ConnectionsActive,
				"events_broadcast":   stats.EventsBroadcast,
				"messages_sent":      stats.MessagesSent,
				"messages_dropped":   stats.MessagesDropped,
			}))
		}
	}
}

// GetStats returns a snapshot of hub statistics.
func (h *Hub) GetStats() HubStats {
	h.stats.mu.RLock()
	defer h.stats.mu.RUnlock()

	return HubStats{
		ConnectionsTotal:  h.stats.ConnectionsTotal,
		ConnectionsActive: int64(h.registry.Count()),
		EventsBroadcast:   h.stats.EventsBroadcast,
		MessagesSent:      h.stats.MessagesSent,
		MessagesDropped:   h.stats.MessagesDropped,
		LastEventTime:     h.stats.LastEventTime,
	}
}

func (h *Hub) incrementConnections() {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	h.stats.ConnectionsTotal++
}

func (h *Hub) recordBroadcast(sent int64) {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	h.stats.EventsBroadcast++
	h.stats.MessagesSent += sent
	h.stats.LastEventTime = time.Now()
}
