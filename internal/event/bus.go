// Package event provides the synchronous pub/sub bus that broadcasts sync
// lifecycle events to UI observers. No persistence and no buffering: late
// subscribers miss past events and re-derive state from the stats endpoint.
package event

import (
	"sync"

	"go.uber.org/zap"
)

// Type identifies a sync lifecycle event.
type Type string

const (
	TypeStart    Type = "sync_start"
	TypeProgress Type = "sync_progress"
	TypeComplete Type = "sync_complete"
	TypeError    Type = "sync_error"
)

// Event is one sync lifecycle notification.
type Event struct {
	Type      Type     `json:"type"`
	Total     int      `json:"total,omitempty"`
	Completed int      `json:"completed,omitempty"`
	Label     string   `json:"label,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// Start announces a cycle over total pending actions.
func Start(total int) Event {
	return Event{Type: TypeStart, Total: total}
}

// Progress reports one processed action.
func Progress(completed, total int, label string) Event {
	return Event{Type: TypeProgress, Completed: completed, Total: total, Label: label}
}

// Complete announces an error-free cycle.
func Complete() Event {
	return Event{Type: TypeComplete}
}

// Failed carries the error strings recorded during a cycle.
func Failed(errs []string) Event {
	return Event{Type: TypeError, Errors: errs}
}

// Listener receives published events.
type Listener func(Event)

// Bus fans events out to all subscribed listeners synchronously, isolating
// each listener's panics so one bad observer cannot starve the rest or
// crash the publisher.
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
	logger    *zap.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		listeners: make(map[int]Listener),
		logger:    logger,
	}
}

// Subscribe registers a listener and returns its subscription token.
func (b *Bus) Subscribe(l Listener) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.listeners[b.nextID] = l
	return b.nextID
}

// Unsubscribe removes a listener by its subscription token.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, id)
}

// Publish invokes every listener synchronously with the event.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	snapshot := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		snapshot = append(snapshot, l)
	}
	b.mu.RUnlock()

	for _, l := range snapshot {
		b.deliver(l, e)
	}
}

func (b *Bus) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("event listener panicked",
				zap.String("event", string(e.Type)),
				zap.Any("panic", r),
			)
		}
	}()
	l(e)
}
