package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType enumerates every message kind on the wire. Routing and
// dispatch switch over these constants so an unhandled kind is visible at
// the switch, not at runtime.
type MessageType string

const (
	// Client -> server
	MessageTypePing      MessageType = "ping"
	MessageTypeSubscribe MessageType = "subscribe"
	MessageTypeVoteCast  MessageType = "vote_cast"
	MessageTypeLikeCast  MessageType = "like_cast"

	// Server -> client
	MessageTypePong          MessageType = "pong"
	MessageTypeSubscribed    MessageType = "subscribed"
	MessageTypeError         MessageType = "error"
	MessageTypePollCreated   MessageType = "poll_created"
	MessageTypePollUpdate    MessageType = "poll_update"
	MessageTypePollExpired   MessageType = "poll_expired"
	MessageTypeUserUpdate    MessageType = "user_update"
	MessageTypeUserActivity  MessageType = "user_activity"
	MessageTypeNotification  MessageType = "notification"
	MessageTypeGlobalUpdate  MessageType = "global_update"
	MessageTypeAnnouncement  MessageType = "system_announcement"
	MessageTypeHeartbeat     MessageType = "heartbeat"
	MessageTypeRealTimeStats MessageType = "real_time_stats"
)

// ClientMessage is the envelope for client-originated messages.
type ClientMessage struct {
	Type      MessageType     `json:"type"`
	Timestamp string          `json:"timestamp,omitempty"`
	PollID    string          `json:"poll_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is the envelope for server-originated messages.
type ServerMessage struct {
	Type       MessageType `json:"type"`
	PollID     string      `json:"poll_id,omitempty"`
	UserID     string      `json:"user_id,omitempty"`
	UpdateType string      `json:"update_type,omitempty"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Timestamp  string      `json:"timestamp,omitempty"`
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// NewPongMessage builds a pong reply echoing the client's timestamp.
func NewPongMessage(clientTimestamp string) ServerMessage {
	if clientTimestamp == "" {
		clientTimestamp = nowStamp()
	}
	return ServerMessage{
		Type:      MessageTypePong,
		Timestamp: clientTimestamp,
	}
}

// NewSubscribedMessage acknowledges a subscribe request.
func NewSubscribedMessage(pollID, userID string) ServerMessage {
	return ServerMessage{
		Type:      MessageTypeSubscribed,
		PollID:    pollID,
		UserID:    userID,
		Message:   "Subscription updated",
		Timestamp: nowStamp(),
	}
}

// NewErrorMessage builds an error reply for the originating connection.
func NewErrorMessage(message string) ServerMessage {
	return ServerMessage{
		Type:      MessageTypeError,
		Message:   message,
		Timestamp: nowStamp(),
	}
}

// NewUnknownTypeMessage builds the error reply for an unrecognized kind.
func NewUnknownTypeMessage(kind MessageType) ServerMessage {
	return NewErrorMessage(fmt.Sprintf("Unknown message type: %s", kind))
}

// NewVoteCastEvent builds the poll-scoped broadcast for a committed vote.
func NewVoteCastEvent(pollID string, data interface{}) ServerMessage {
	return ServerMessage{
		Type:      MessageTypeVoteCast,
		PollID:    pollID,
		Data:      data,
		Timestamp: nowStamp(),
	}
}

// NewLikeCastEvent builds the poll-scoped broadcast for a like change.
func NewLikeCastEvent(pollID string, data interface{}) ServerMessage {
	return ServerMessage{
		Type:      MessageTypeLikeCast,
		PollID:    pollID,
		Data:      data,
		Timestamp: nowStamp(),
	}
}

// NewPollCreatedEvent builds the global announcement for a new poll.
func NewPollCreatedEvent(pollID string, data interface{}) ServerMessage {
	return ServerMessage{
		Type:      MessageTypePollCreated,
		PollID:    pollID,
		Data:      data,
		Timestamp: nowStamp(),
	}
}

// NewPollUpdateEvent builds the poll-scoped broadcast for a structural
// change: option edits, metadata updates, deletion.
func NewPollUpdateEvent(pollID, updateType string, data interface{}) ServerMessage {
	return ServerMessage{
		Type:       MessageTypePollUpdate,
		PollID:     pollID,
		UpdateType: updateType,
		Data:       data,
		Timestamp:  nowStamp(),
	}
}

// NewPollExpiredEvent builds the broadcast sent when a poll's deadline passes.
func NewPollExpiredEvent(pollID string) ServerMessage {
	return ServerMessage{
		Type:      MessageTypePollExpired,
		PollID:    pollID,
		Message:   "Poll has expired",
		Timestamp: nowStamp(),
	}
}

// NewUserUpdateEvent builds a user-scoped notification.
func NewUserUpdateEvent(userID, updateType string, data interface{}) ServerMessage {
	return ServerMessage{
		Type:       MessageTypeUserUpdate,
		UserID:     userID,
		UpdateType: updateType,
		Data:       data,
		Timestamp:  nowStamp(),
	}
}

// NewUserActivityEvent builds a user-scoped activity event so a user's other
// sessions see their own actions.
func NewUserActivityEvent(userID string, data interface{}) ServerMessage {
	return ServerMessage{
		Type:      MessageTypeUserActivity,
		UserID:    userID,
		Data:      data,
		Timestamp: nowStamp(),
	}
}

// NewNotificationEvent builds a user-scoped notification.
func NewNotificationEvent(userID string, data interface{}) ServerMessage {
	return ServerMessage{
		Type:      MessageTypeNotification,
		UserID:    userID,
		Data:      data,
		Timestamp: nowStamp(),
	}
}

// NewAnnouncementEvent builds a system-wide announcement for the global set.
func NewAnnouncementEvent(message string, data interface{}) ServerMessage {
	return ServerMessage{
		Type:      MessageTypeAnnouncement,
		Message:   message,
		Data:      data,
		Timestamp: nowStamp(),
	}
}

// NewRealTimeStatsMessage builds the global stats snapshot broadcast.
func NewRealTimeStatsMessage(data interface{}) ServerMessage {
	return ServerMessage{
		Type:      MessageTypeRealTimeStats,
		Data:      data,
		Timestamp: nowStamp(),
	}
}

// NewHeartbeatMessage builds the periodic connection-count heartbeat.
func NewHeartbeatMessage(active, user, global int) ServerMessage {
	return ServerMessage{
		Type: MessageTypeHeartbeat,
		Data: map[string]int{
			"active_connections": active,
			"user_connections":   user,
			"global_connections": global,
		},
		Timestamp: nowStamp(),
	}
}
