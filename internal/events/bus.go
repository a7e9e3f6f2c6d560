// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrBusClosed = errors.New("event bus is shutting down")
	ErrBusFull   = errors.New("event channel full")
)

// Bus is an in-memory fan-out of pipeline events to notification and
// observability handlers. Publish only blocks for trade results and position
// changes, and then for at most waitFull.
type Bus struct {
	mu        sync.RWMutex
	handlers  map[EventType]map[string]Handler
	wildcard  map[string]Handler
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	eventChan chan Event
	dropped   uint64
	waitFull  time.Duration
}

// mustDeliver lists the events that wait for buffer space instead of being
// dropped; failed executions have to reach the operator.
var mustDeliver = map[EventType]bool{
	TradeExecuted:     true,
	PositionChanged:   true,
	LimitOrderChanged: true,
}

// NewBus creates a bus and starts its dispatch loop.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	bus := &Bus{
		handlers:  make(map[EventType]map[string]Handler),
		wildcard:  make(map[string]Handler),
		logger:    logger.Named("event_bus"),
		ctx:       ctx,
		cancel:    cancel,
		eventChan: make(chan Event, bufferSize),
		waitFull:  5 * time.Second,
	}

	bus.wg.Add(1)
	go bus.processEvents()

	return bus
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}
	b.handlers[eventType][id] = handler

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))

	return &subscription{id: id, bus: b, topic: eventType}
}

// SubscribeAll registers a handler that receives every event.
func (b *Bus) SubscribeAll(handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.wildcard[id] = handler
	return &subscription{id: id, bus: b, topic: anyEvent}
}

// SubscribeFunc subscribes a plain function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish queues an event. A full buffer drops the event with a warning,
// except for mustDeliver types, which wait up to waitFull first.
func (b *Bus) Publish(event Event) error {
	select {
	case <-b.ctx.Done():
		return ErrBusClosed
	default:
	}

	select {
	case b.eventChan <- event:
		return nil
	default:
	}

	if mustDeliver[event.Type()] {
		timer := time.NewTimer(b.waitFull)
		defer timer.Stop()
		select {
		case b.eventChan <- event:
			return nil
		case <-b.ctx.Done():
			return ErrBusClosed
		case <-timer.C:
		}
	}

	b.mu.Lock()
	b.dropped++
	b.mu.Unlock()
	b.logger.Warn("Event channel full, dropping event",
		zap.String("event_type", string(event.Type())))
	return ErrBusFull
}

// PublishSync delivers an event to all handlers before returning.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	targets := make(map[string]Handler, len(b.handlers[event.Type()])+len(b.wildcard))
	for id, h := range b.handlers[event.Type()] {
		targets[id] = h
	}
	for id, h := range b.wildcard {
		targets[id] = h
	}
	b.mu.RUnlock()

	var errs []error
	for id, handler := range targets {
		if err := handler.Handle(ctx, event); err != nil {
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("handler_id", id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// processEvents dispatches queued events in publish order.
func (b *Bus) processEvents() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			for {
				select {
				case event := <-b.eventChan:
					_ = b.PublishSync(context.Background(), event)
				default:
					return
				}
			}
		case event := <-b.eventChan:
			_ = b.PublishSync(b.ctx, event)
		}
	}
}

func (b *Bus) unsubscribe(id string, eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if eventType == anyEvent {
		delete(b.wildcard, id)
		return
	}
	if handlers, ok := b.handlers[eventType]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(b.handlers, eventType)
		}
	}
}

// Shutdown stops accepting events, drains the queue and waits for handlers.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.logger.Info("🛑 Shutting down event bus")
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout")
		return ctx.Err()
	}
}

// Stats reports queue depth and subscriptions.
func (b *Bus) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	perType := make(map[string]int, len(b.handlers))
	for eventType, handlers := range b.handlers {
		perType[string(eventType)] = len(handlers)
	}
	return map[string]interface{}{
		"pending_events":    len(b.eventChan),
		"dropped_events":    b.dropped,
		"wildcard_handlers": len(b.wildcard),
		"handlers_per_type": perType,
	}
}
