package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/demande-workflow/internal/domain/event"
)

// Dispatcher routes demande events to subscribed handlers
type Dispatcher interface {
	// Subscribe registers a handler under a generated name
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler, replacing any handler of the same name for that type.
	// Handlers registered under AllEvents receive every event after the typed handlers.
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	Unsubscribe(eventType event.Type, name string)

	// Dispatch runs every handler in subscription order and joins their errors.
	// One failing sink does not keep the others from seeing the event.
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs the handlers in order on a background goroutine.
	// The handlers do not inherit ctx cancellation.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// ListHandlers returns the subscriptions of an event type
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close rejects new events and waits for pending async dispatches
	Close() error
}

// Logger is satisfied by utils.KVLogger
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

var errDispatcherClosed = errors.New("dispatcher is closed")

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   Logger

	pending sync.WaitGroup
	closed  atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger replaces the silent default logger
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher returns an in-process dispatcher with no subscriptions
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.subscribe(eventType, "", handler)
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.subscribe(eventType, name, handler)
}

func (d *eventDispatcher) subscribe(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.handlers[eventType]
	if name == "" {
		name = fmt.Sprintf("handler-%d", len(list))
	}
	info := HandlerInfo{Name: name, EventType: eventType, Handler: handler}

	replaced := false
	for i := range list {
		if list[i].Name == name {
			list[i] = info
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, info)
	}
	d.handlers[eventType] = list

	d.logger.Info("Handler registered",
		"event_type", eventType,
		"handler_name", name,
		"replaced", replaced,
	)
}

func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.handlers[eventType][:0:0]
	for _, h := range d.handlers[eventType] {
		if h.Name != name {
			kept = append(kept, h)
		}
	}
	d.handlers[eventType] = kept

	d.logger.Info("Handler unregistered", "event_type", eventType, "handler_name", name)
}

// route returns typed handlers followed by wildcard ones
func (d *eventDispatcher) route(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	typed := d.handlers[eventType]
	wildcard := d.handlers[AllEvents]
	out := make([]HandlerInfo, 0, len(typed)+len(wildcard))
	out = append(out, typed...)
	return append(out, wildcard...)
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if d.closed.Load() {
		return errDispatcherClosed
	}
	return d.run(ctx, evt, d.route(evt.Type))
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	if evt == nil {
		return
	}
	handlers := d.route(evt.Type)
	if len(handlers) == 0 {
		return
	}

	// Close flips closed under the write lock, so no Add can slip past its Wait
	d.mu.RLock()
	if d.closed.Load() {
		d.mu.RUnlock()
		d.logger.Error("Dropping event, dispatcher is closed",
			"event_type", evt.Type,
			"event_id", evt.ID,
		)
		return
	}
	d.pending.Add(1)
	d.mu.RUnlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer d.pending.Done()
		// failures are already logged per handler
		_ = d.run(ctx, evt, handlers)
	}()
}

// run executes handlers in order, logging and collecting every failure
func (d *eventDispatcher) run(ctx context.Context, evt *event.Event, handlers []HandlerInfo) error {
	d.logger.Info("Dispatching event",
		"event_type", evt.Type,
		"event_id", evt.ID,
		"demande_id", evt.DemandeID,
		"handler_count", len(handlers),
	)

	var errs []error
	for _, h := range handlers {
		if err := d.safeExecute(ctx, evt, h); err != nil {
			d.logger.Error("Handler error",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", h.Name,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("handler %s failed: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]HandlerInfo, 0, len(d.handlers[eventType]))
	for _, h := range d.handlers[eventType] {
		result = append(result, HandlerInfo{Name: h.Name, EventType: h.EventType})
	}
	return result
}

func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	swapped := d.closed.CompareAndSwap(false, true)
	d.mu.Unlock()
	if !swapped {
		return errDispatcherClosed
	}

	d.logger.Info("Closing dispatcher, waiting for async handlers")
	d.pending.Wait()
	d.logger.Info("Dispatcher closed")
	return nil
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return info.Handler(ctx, evt)
}
