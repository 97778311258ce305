package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// streamCommander is the slice of the Redis API the publisher needs.
// *redis.Client satisfies it.
type streamCommander interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// EventPublisher appends committed poll events to a Redis stream so other
// processes (notification workers, analytics) can consume them without
// holding a socket to this node.
type EventPublisher struct {
	client streamCommander
	stream string
}

// NewEventPublisher creates a publisher for the given stream.
func NewEventPublisher(client streamCommander, stream string) *EventPublisher {
	return &EventPublisher{client: client, stream: stream}
}

// PublishPollEvent appends one event to the stream. The payload is
// serialized as a JSON field so consumers get a stable envelope.
func (p *EventPublisher) PublishPollEvent(ctx context.Context, eventType, pollID string, data map[string]interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"event_type": eventType,
			"poll_id":    pollID,
			"payload":    string(payload),
			"emitted_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", p.stream, err)
	}
	return nil
}
