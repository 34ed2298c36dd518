package memory

import (
	"sync"

	"go.uber.org/zap"
)

// Event names published by the store.
const (
	EventSharedContextUpdated = "shared_context_updated"
	EventWorkflowStateChanged = "workflow_state_changed"
	EventEntryStored          = "entry_stored"
)

// Event is a single in-process notification. Delivery is best-effort and
// never persisted.
type Event struct {
	Type    string
	Payload map[string]any
}

// Listener receives events of a subscribed type.
type Listener func(Event)

// eventBus fans events out to registered listeners. A panicking listener is
// logged and does not block the publisher or the remaining listeners.
type eventBus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
	logger    *zap.Logger
}

func newEventBus(logger *zap.Logger) *eventBus {
	return &eventBus{
		listeners: make(map[string][]Listener),
		logger:    logger,
	}
}

func (b *eventBus) subscribe(eventType string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[eventType] = append(b.listeners[eventType], l)
}

func (b *eventBus) publish(ev Event) {
	b.mu.RLock()
	subs := append([]Listener(nil), b.listeners[ev.Type]...)
	b.mu.RUnlock()

	for _, l := range subs {
		b.invoke(ev, l)
	}
}

func (b *eventBus) invoke(ev Event, l Listener) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("Event listener panicked",
				zap.String("event_type", ev.Type),
				zap.Any("panic", r),
			)
		}
	}()
	l(ev)
}
