package dispatcher

import (
	"context"

	"github.com/garyjia/demande-workflow/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// AllEvents subscribes a handler to every event type
const AllEvents event.Type = "*"

// HandlerInfo describes a subscription. ListHandlers leaves Handler nil.
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
