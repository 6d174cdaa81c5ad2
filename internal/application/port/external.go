package port

import (
	"context"

	"github.com/garyjia/demande-workflow/internal/domain/event"
)

// MessageSender delivers a direct text message to a user on the chat platform
type MessageSender interface {
	SendText(ctx context.Context, openID string, content string) error
}

// EventPublisher forwards domain events to an external broker
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event) error
}
