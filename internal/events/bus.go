// Package events provides the typed publish/subscribe dispatcher connecting
// the connection manager, the analysis coordinator, and the rendering layer.
package events

import (
	"fmt"
	"log/slog"
	"sync"
)

// Type identifies an event kind on the bus. Lifecycle events are emitted by
// the connection manager; wire events carry the data of an inbound envelope
// keyed by its envelope type.
type Type string

const (
	// Connected fires after a successful push-channel handshake.
	Connected Type = "connected"
	// Disconnected fires when the push channel closes, cleanly or not.
	Disconnected Type = "disconnected"
	// Error fires on transport errors and on reconnect exhaustion.
	Error Type = "error"
	// Message fires for every well-formed inbound envelope, in addition to
	// the envelope's type-specific event.
	Message Type = "message"
)

// Handler receives the payload of an emitted event.
type Handler func(payload any)

// Subscription identifies one registration so it can be removed again.
// Handlers are funcs and not comparable, so Off takes the handle instead of
// the handler value.
type Subscription struct {
	id    uint64
	event Type
}

type registration struct {
	id      uint64
	handler Handler
}

// Bus dispatches events synchronously to handlers in registration order.
// A panicking handler is recovered and logged and does not prevent the
// remaining handlers from running.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[Type][]registration
	logger   *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[Type][]registration),
		logger:   logger,
	}
}

// On registers a handler for the given event type and returns its handle.
func (b *Bus) On(event Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[event] = append(b.handlers[event], registration{id: b.nextID, handler: handler})
	return &Subscription{id: b.nextID, event: event}
}

// Off removes a registration. Removing an unknown or already removed
// subscription is a no-op.
func (b *Bus) Off(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[sub.event]
	for i, reg := range regs {
		if reg.id == sub.id {
			b.handlers[sub.event] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Emit invokes every handler currently registered for the event, in
// registration order. It returns after all handlers have run; handlers doing
// asynchronous work are not awaited.
func (b *Bus) Emit(event Type, payload any) {
	b.mu.Lock()
	regs := make([]registration, len(b.handlers[event]))
	copy(regs, b.handlers[event])
	b.mu.Unlock()

	for _, reg := range regs {
		b.dispatch(event, reg, payload)
	}
}

func (b *Bus) dispatch(event Type, reg registration, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", string(event), "panic", r)
		}
	}()
	reg.handler(payload)
}

// OnPayload registers a handler expecting a specific payload type. Payloads
// of a different type are logged and skipped instead of panicking, keeping
// dispatch isolated from a mis-registered handler.
func OnPayload[T any](b *Bus, event Type, handler func(T)) *Subscription {
	return b.On(event, func(payload any) {
		typed, ok := payload.(T)
		if !ok {
			b.logger.Warn("event payload type mismatch",
				"event", string(event),
				"payload_type", fmt.Sprintf("%T", payload),
			)
			return
		}
		handler(typed)
	})
}
