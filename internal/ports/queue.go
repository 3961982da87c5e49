package ports

import (
	"context"

	"whatsapp-campaign-launcher/internal/domain"
)

// EventPublisher publishes launch events to the message queue.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.LaunchEvent) error
}

// EventConsumer consumes launch events from the message queue.
type EventConsumer interface {
	// Consume starts delivery of events; each is passed to the handler.
	// Blocks until ctx is cancelled or a fatal error occurs.
	Consume(ctx context.Context, handler func(ctx context.Context, ev domain.LaunchEvent) error) error
}
