// Package flowbus carries purchase-flow outcomes over named publish/subscribe
// channels. Delivery is asynchronous to the publisher and ordered per channel;
// a message published to a channel with no subscriber is dropped.
package flowbus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrClosed is returned by operations on a closed bus.
	ErrClosed = errors.New("flow bus closed")
	// ErrInvalidChannel is returned for a blank channel name.
	ErrInvalidChannel = errors.New("channel name is required")
	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("handler is required")
)

// Message is one delivery on a channel.
type Message struct {
	ID         uuid.UUID       `json:"id"`
	Channel    string          `json:"channel"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewMessage wraps payload for channel.
func NewMessage(channel string, payload []byte) Message {
	return Message{
		ID:         uuid.New(),
		Channel:    channel,
		OccurredAt: time.Now().UTC(),
		Payload:    json.RawMessage(payload),
	}
}

// Handler receives messages from a channel.
// Handlers are compared by identity on Unsubscribe, so implementations must
// be comparable (typically a pointer).
type Handler interface {
	HandleMessage(ctx context.Context, msg Message)
}

// Bus is a named publish/subscribe medium.
type Bus interface {
	// Subscribe registers h on channel. Subscribing the same handler twice is a no-op.
	Subscribe(channel string, h Handler) error

	// Unsubscribe removes h from channel. Removing an unknown handler is a no-op.
	Unsubscribe(channel string, h Handler) error

	// Publish enqueues payload for the channel's current subscribers and returns
	// without waiting for delivery.
	Publish(ctx context.Context, channel string, payload []byte) error

	Close() error
}
