// Package eventbus implements the typed, name-indexed publish/subscribe bus
// described in spec §4.6: dispatch is synchronous and happens in
// subscription order on the publishing goroutine; a handler that panics is
// isolated and does not stop delivery to the handlers after it. There is no
// buffering — events published before a subscription exists are lost.
package eventbus

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Event is anything dispatchable on the bus. Type is the name used to index
// subscribers; concrete event kinds live in the events package and simply
// return a fixed string from Type().
type Event interface {
	Type() string
}

// Handler receives one dispatched event.
type Handler func(Event)

// Bus is a typed, synchronous, subscription-ordered publish/subscribe bus.
type Bus struct {
	logger      *zap.Logger
	mu          sync.RWMutex
	subscribers map[string][]*subscription
	nextID      uint64
}

type subscription struct {
	id      uint64
	handler Handler
}

// New builds an empty Bus. A nil logger is replaced with zap.NewNop().
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger:      logger,
		subscribers: make(map[string][]*subscription),
	}
}

// Subscribe registers handler for events whose Type() equals eventType.
// Handlers are invoked in the order they were subscribed. The returned
// function detaches the handler; calling it more than once is a no-op.
func (b *Bus) Subscribe(eventType string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, handler: handler}
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
	b.mu.Unlock()

	detached := false
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if detached {
			return
		}
		detached = true
		subs := b.subscribers[eventType]
		for i, s := range subs {
			if s.id == sub.id {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// wildcardType is the internal subscription key used by SubscribeAll.
const wildcardType = "*"

// SubscribeAll registers handler for every event type, in addition to any
// per-type subscribers. Used by relays (e.g. the HTTP SSE endpoint) that
// forward the full event stream without knowing every type in advance.
func (b *Bus) SubscribeAll(handler Handler) (unsubscribe func()) {
	return b.Subscribe(wildcardType, handler)
}

// Publish dispatches event synchronously, in subscription order, to every
// handler registered for event.Type(), then to every SubscribeAll handler.
// A handler panic is recovered and logged; delivery continues to the
// remaining handlers.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	typed := append([]*subscription(nil), b.subscribers[event.Type()]...)
	var wildcard []*subscription
	if event.Type() != wildcardType {
		wildcard = append([]*subscription(nil), b.subscribers[wildcardType]...)
	}
	b.mu.RUnlock()

	for _, sub := range typed {
		b.dispatchOne(event, sub.handler)
	}
	for _, sub := range wildcard {
		b.dispatchOne(event, sub.handler)
	}
}

func (b *Bus) dispatchOne(event Event, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("eventType", event.Type()),
				zap.Any("recovered", fmt.Sprint(r)),
			)
		}
	}()
	handler(event)
}
