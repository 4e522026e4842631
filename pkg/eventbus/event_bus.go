// Package eventbus provides the publish/subscribe transport between the
// trigger adapter, workers, the scheduler, and platform modules.
package eventbus

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/events"
)

// Event is any message carried on the bus.
type Event interface {
	GetType() events.EventType
}

// EventHandler processes one decoded event.
type EventHandler func(ctx context.Context, event any) error

// EventBus abstracts the underlying transport (Kafka in production,
// gochannel in tests and local development).
type EventBus interface {
	Publish(ctx context.Context, key string, event Event) error
	Subscribe(ctx context.Context) error
	Handle(eventType events.EventType, handler EventHandler) error
	GenerateID() string
	Close() error
}
