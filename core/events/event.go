package events

import (
	"sync"

	"arcadeswap/core/types"
)

// Event represents a structured state change emitted by the engine.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. the audit
// journal, metrics).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder collects emitted events in order.
type Recorder struct {
	Events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(e Event) {
	r.Events = append(r.Events, e)
}

// Types returns the type of every recorded event.
func (r *Recorder) Types() []string {
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.EventType()
	}
	return out
}

// Fanout forwards each event to every emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(e Event) {
	for _, em := range f {
		if em != nil {
			em.Emit(e)
		}
	}
}

// Buffer holds events until Flush forwards them to the next emitter. Events
// held when Drop is called are discarded.
type Buffer struct {
	mu      sync.Mutex
	next    Emitter
	pending []Event
}

// NewBuffer returns a Buffer that flushes into next.
func NewBuffer(next Emitter) *Buffer {
	if next == nil {
		next = NoopEmitter{}
	}
	return &Buffer{next: next}
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(e Event) {
	b.mu.Lock()
	b.pending = append(b.pending, e)
	b.mu.Unlock()
}

// Flush forwards held events in order and returns how many were sent.
func (b *Buffer) Flush() int {
	b.mu.Lock()
	released := b.pending
	b.pending = nil
	b.mu.Unlock()
	for _, e := range released {
		b.next.Emit(e)
	}
	return len(released)
}

// Drop discards held events and returns how many were lost.
func (b *Buffer) Drop() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.pending)
	b.pending = nil
	return n
}
