package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pollpulse/pollpulse/internal/models"
	"github.com/pollpulse/pollpulse/pkg/logger"
)

// Scope identifies which endpoint a connection arrived on. The scope key is
// fixed at connect time; additional subscriptions can be layered on with a
// subscribe message.
type Scope string

const (
	ScopePoll   Scope = "poll"
	ScopeUser   Scope = "user"
	ScopeGlobal Scope = "global"
)

// Connection represents one live WebSocket client.
type Connection struct {
	ID       string
	Scope    Scope
	ScopeKey string // poll ID or user ID, empty for global
	Identity models.Identity
	Conn     *websocket.Conn
	Send     chan []byte

	pollSubs map[string]bool
	userSubs map[string]bool

	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
	lastHeartbeat time.Time
	createdAt     time.Time
}

// NewConnection creates a connection bound to its endpoint scope. Poll and
// user scopes start subscribed to their scope key.
func NewConnection(id string, scope Scope, scopeKey string, identity models.Identity, conn *websocket.Conn, sendBuffer int) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		ID:            id,
		Scope:         scope,
		ScopeKey:      scopeKey,
		Identity:      identity,
		Conn:          conn,
		Send:          make(chan []byte, sendBuffer),
		pollSubs:      make(map[string]bool),
		userSubs:      make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
		createdAt:     time.Now(),
		lastHeartbeat: time.Now(),
	}

	switch scope {
	case ScopePoll:
		c.pollSubs[scopeKey] = true
	case ScopeUser:
		c.userSubs[scopeKey] = true
	}
	return c
}

// SubscribePoll adds a poll subscription.
func (c *Connection) SubscribePoll(pollID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pollSubs[pollID] = true
}

// SubscribeUser adds a user subscription.
func (c *Connection) SubscribeUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userSubs[userID] = true
}

// IsSubscribedToPoll checks if the connection follows a poll.
func (c *Connection) IsSubscribedToPoll(pollID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pollSubs[pollID]
}

// IsSubscribedToUser checks if the connection follows a user.
func (c *Connection) IsSubscribedToUser(userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userSubs[userID]
}

// PollSubscriptions returns a snapshot of the connection's poll subscriptions.
func (c *Connection) PollSubscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	subs := make([]string, 0, len(c.pollSubs))
	for id := range c.pollSubs {
		subs = append(subs, id)
	}
	return subs
}

// UserSubscriptions returns a snapshot of the connection's user subscriptions.
func (c *Connection) UserSubscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	subs := make([]string, 0, len(c.userSubs))
	for id := range c.userSubs {
		subs = append(subs, id)
	}
	return subs
}

// Heartbeat records activity on the connection.
func (c *Connection) Heartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHeartbeat = time.Now()
}

// LastHeartbeat returns the time of the last recorded activity.
func (c *Connection) LastHeartbeat() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHeartbeat
}

// Close tears the connection down. Safe to call more than once. The Send
// channel is never closed: broadcasters may still be selecting on it, and
// the canceled context is what stops both them and the write pump.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// Done is closed when the connection has been torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// ReadMessageRaw reads the next raw frame from the socket.
func (c *Connection) ReadMessageRaw() (messageType int, p []byte, err error) {
	return c.Conn.ReadMessage()
}

// Enqueue serializes a message onto the send channel. Slow consumers get
// messages dropped rather than stalling the broadcast path.
func (c *Connection) Enqueue(msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
	}

	select {
	case c.Send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	case <-time.After(1 * time.Second):
		logger.Warn("Dropping message, send channel full",
			logger.String("connection_id", c.ID),
			logger.String("type", string(msg.Type)),
		)
		messagesDropped.Inc()
		return nil
	}
}

// EnqueueError sends an error reply without blocking; dropped if the
// channel is full.
func (c *Connection) EnqueueError(message string) error {
	data, err := json.Marshal(NewErrorMessage(message))
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return nil
	}
}
