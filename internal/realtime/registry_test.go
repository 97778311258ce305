package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/pollpulse/pollpulse/internal/models"
)

func newTestConnection(scope Scope, scopeKey string) *Connection {
	return NewConnection(
		uuid.New().String(),
		scope,
		scopeKey,
		models.AnonIdentity(uuid.New().String()),
		nil, // no socket needed; tests read from the Send channel
		16,
	)
}

func TestRegistry_AddIndexesByScope(t *testing.T) {
	registry := NewRegistry()

	pollConn := newTestConnection(ScopePoll, "poll-1")
	userConn := newTestConnection(ScopeUser, "user-1")
	globalConn := newTestConnection(ScopeGlobal, "")

	registry.Add(pollConn)
	registry.Add(userConn)
	registry.Add(globalConn)

	assert.Equal(t, 3, registry.Count())
	assert.Len(t, registry.GetByPoll("poll-1"), 1)
	assert.Len(t, registry.GetByUser("user-1"), 1)
	assert.Equal(t, 1, registry.CountByPoll("poll-1"))
	assert.Equal(t, 1, registry.CountUserConnections())

	// Every connection lands in the global set.
	assert.Len(t, registry.GetGlobal(), 3)
	assert.Equal(t, 3, registry.CountGlobal())
}

func TestRegistry_RemoveClearsAllIndexes(t *testing.T) {
	registry := NewRegistry()

	conn := newTestConnection(ScopePoll, "poll-1")
	registry.Add(conn)
	registry.UpdateSubscription(conn, "poll-2", "user-1")

	registry.Remove(conn.ID)

	assert.Equal(t, 0, registry.Count())
	assert.Empty(t, registry.GetByPoll("poll-1"))
	assert.Empty(t, registry.GetByPoll("poll-2"))
	assert.Empty(t, registry.GetByUser("user-1"))
}

func TestRegistry_RemoveUnknownConnection(t *testing.T) {
	registry := NewRegistry()
	registry.Remove("nonexistent")
	assert.Equal(t, 0, registry.Count())
}

func TestRegistry_UpdateSubscriptionLayersScopes(t *testing.T) {
	registry := NewRegistry()

	conn := newTestConnection(ScopePoll, "poll-1")
	registry.Add(conn)
	registry.UpdateSubscription(conn, "poll-2", "")

	// Prior subscriptions survive.
	assert.True(t, conn.IsSubscribedToPoll("poll-1"))
	assert.True(t, conn.IsSubscribedToPoll("poll-2"))
	assert.Len(t, registry.GetByPoll("poll-2"), 1)
}

func TestRegistry_UpdateSubscriptionIgnoresUnregistered(t *testing.T) {
	registry := NewRegistry()

	conn := newTestConnection(ScopePoll, "poll-1")
	registry.UpdateSubscription(conn, "poll-2", "")

	assert.Empty(t, registry.GetByPoll("poll-2"))
}

func TestRegistry_MultipleConnectionsPerPoll(t *testing.T) {
	registry := NewRegistry()

	for i := 0; i < 5; i++ {
		registry.Add(newTestConnection(ScopePoll, "poll-1"))
	}
	registry.Add(newTestConnection(ScopePoll, "poll-2"))

	assert.Equal(t, 5, registry.CountByPoll("poll-1"))
	assert.Equal(t, 1, registry.CountByPoll("poll-2"))
	assert.Equal(t, 6, registry.Count())
}
