// Package notifier broadcasts operator-facing status updates over the event
// bus. Broadcasts are fire-and-forget: the reply path never waits on them.
package notifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Topic carries every operator notification; consumers filter on business id.
const Topic = "parley.operator.notifications"

// Metadata keys set on every published message.
const (
	BusinessIDMetadataKey = "business_id"
	EventMetadataKey      = "event"
)

// Notification is the payload delivered to operator consoles.
type Notification struct {
	BusinessID string         `json:"business_id"`
	Event      string         `json:"event"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Broadcaster is the outbound side of the operator bus.
type Broadcaster interface {
	Broadcast(ctx context.Context, businessID, event string, payload map[string]any)
}

// Handler consumes notifications on the subscriber side.
type Handler func(ctx context.Context, notification Notification) error

// Bus implements Broadcaster over a watermill publisher/subscriber pair.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

func NewBus(publisher message.Publisher, subscriber message.Subscriber, logger *slog.Logger) *Bus {
	return &Bus{
		publisher:  publisher,
		subscriber: subscriber,
		logger:     logger.With("module", "notifier"),
	}
}

// Broadcast publishes asynchronously and swallows failures with a log line.
// Operator notifications are best-effort status updates, never part of the
// reply contract.
func (b *Bus) Broadcast(ctx context.Context, businessID, event string, payload map[string]any) {
	notification := Notification{
		BusinessID: businessID,
		Event:      event,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}

	encoded, err := json.Marshal(notification)
	if err != nil {
		b.logger.WarnContext(ctx, "Failed to encode operator notification",
			"business_id", businessID, "event", event, "error", err)

		return
	}

	msg := message.NewMessage(watermill.NewULID(), encoded)
	msg.Metadata.Set(BusinessIDMetadataKey, businessID)
	msg.Metadata.Set(EventMetadataKey, event)

	go func() {
		if err := b.publisher.Publish(Topic, msg); err != nil {
			b.logger.Warn("Failed to broadcast operator notification",
				"business_id", businessID, "event", event, "error", err)
		}
	}()
}

// Subscribe consumes notifications until the context is cancelled. Messages
// that fail to decode are acked and dropped.
func (b *Bus) Subscribe(ctx context.Context, handler Handler) error {
	messages, err := b.subscriber.Subscribe(ctx, Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var notification Notification

			if err := json.Unmarshal(msg.Payload, &notification); err != nil {
				b.logger.Warn("Dropping undecodable operator notification", "error", err)
				msg.Ack()

				continue
			}

			if err := handler(ctx, notification); err != nil {
				b.logger.Warn("Operator notification handler failed",
					"event", notification.Event, "error", err)
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

// Close shuts both sides of the bus down.
func (b *Bus) Close() error {
	if err := b.publisher.Close(); err != nil {
		return err
	}

	return b.subscriber.Close()
}
