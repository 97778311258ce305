package realtime

import (
	"sync"
)

// Registry maintains the set of live connections and the index structures
// used to resolve broadcast targets: by poll subscription, by user
// subscription, and the global set. Every connection joins the global set
// regardless of scope, so global broadcasts reach all clients.
type Registry struct {
	connections map[string]*Connection
	byPoll      map[string]map[string]*Connection // poll_id -> connection_id -> connection
	byUser      map[string]map[string]*Connection // user_id -> connection_id -> connection
	global      map[string]*Connection            // connection_id -> connection
	mu          sync.RWMutex
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		byPoll:      make(map[string]map[string]*Connection),
		byUser:      make(map[string]map[string]*Connection),
		global:      make(map[string]*Connection),
	}
}

// Add registers a connection and indexes its initial scope.
func (r *Registry) Add(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[conn.ID] = conn

	for _, pollID := range conn.PollSubscriptions() {
		r.indexPoll(conn, pollID)
	}
	for _, userID := range conn.UserSubscriptions() {
		r.indexUser(conn, userID)
	}
	r.global[conn.ID] = conn
}

// Remove unregisters a connection and clears every index entry for it.
func (r *Registry) Remove(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[connectionID]
	if !exists {
		return
	}

	delete(r.connections, connectionID)
	delete(r.global, connectionID)

	for _, pollID := range conn.PollSubscriptions() {
		if pollConns, ok := r.byPoll[pollID]; ok {
			delete(pollConns, connectionID)
			if len(pollConns) == 0 {
				delete(r.byPoll, pollID)
			}
		}
	}
	for _, userID := range conn.UserSubscriptions() {
		if userConns, ok := r.byUser[userID]; ok {
			delete(userConns, connectionID)
			if len(userConns) == 0 {
				delete(r.byUser, userID)
			}
		}
	}
}

// UpdateSubscription layers additional subscriptions onto a registered
// connection without removing prior ones.
func (r *Registry) UpdateSubscription(conn *Connection, pollID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID]; !exists {
		return
	}

	if pollID != "" {
		conn.SubscribePoll(pollID)
		r.indexPoll(conn, pollID)
	}
	if userID != "" {
		conn.SubscribeUser(userID)
		r.indexUser(conn, userID)
	}
}

// indexPoll adds a connection to a poll index. Caller must hold the lock.
func (r *Registry) indexPoll(conn *Connection, pollID string) {
	if r.byPoll[pollID] == nil {
		r.byPoll[pollID] = make(map[string]*Connection)
	}
	r.byPoll[pollID][conn.ID] = conn
}

// indexUser adds a connection to a user index. Caller must hold the lock.
func (r *Registry) indexUser(conn *Connection, userID string) {
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]*Connection)
	}
	r.byUser[userID][conn.ID] = conn
}

// Get retrieves a connection by ID
func (r *Registry) Get(connectionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.connections[connectionID]
	return conn, exists
}

// GetByPoll retrieves the connections subscribed to a poll.
func (r *Registry) GetByPoll(pollID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.byPoll[pollID])
}

// GetByUser retrieves the connections subscribed to a user.
func (r *Registry) GetByUser(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.byUser[userID])
}

// GetGlobal retrieves the global connection set.
func (r *Registry) GetGlobal() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.global)
}

// GetAll retrieves every live connection.
func (r *Registry) GetAll() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.connections)
}

// Count returns the total number of connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CountByPoll returns the number of connections subscribed to a poll.
func (r *Registry) CountByPoll(pollID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPoll[pollID])
}

// CountUserConnections returns the number of connections with at least one
// user subscription.
func (r *Registry) CountUserConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, userConns := range r.byUser {
		count += len(userConns)
	}
	return count
}

// CountGlobal returns the size of the global set.
func (r *Registry) CountGlobal() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.global)
}

func collect(conns map[string]*Connection) []*Connection {
	if len(conns) == 0 {
		return nil
	}
	out := make([]*Connection, 0, len(conns))
	for _, conn := range conns {
		out = append(out, conn)
	}
	return out
}
