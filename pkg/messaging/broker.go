package messaging

import (
	"context"
)

// Broker moves JSON messages over named channels.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Publisher is the outbox processor's view of a Broker.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Handler processes one raw message payload.
type Handler func(ctx context.Context, payload []byte) error

// EventBus delivers raw payloads to callbacks instead of a channel.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}
