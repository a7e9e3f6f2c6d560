// internal/events/handler.go
package events

import (
	"context"
	"sync"
)

// Handler processes events. Handlers run on the bus goroutine, one event at a
// time, and should return quickly.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription detaches a handler from the bus. Unsubscribe may be called
// more than once.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	once  sync.Once
	id    string
	bus   *Bus
	topic EventType
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.bus.unsubscribe(s.id, s.topic) })
}
