package events

import "tokenlock/core/types"

// Event represents a structured state change emitted by the engines.
type Event interface {
	EventType() string
}

// Broadcastable is implemented by events that render into the generic
// attribute form consumed by RPC clients and indexers.
type Broadcastable interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder buffers emitted events until they are drained. The command
// processor uses one per command so events from aborted commands are dropped.
type Recorder struct {
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.events = append(r.events, evt)
}

// Drain returns the buffered events in emission order and resets the buffer.
func (r *Recorder) Drain() []Event {
	if r == nil {
		return nil
	}
	out := r.events
	r.events = nil
	return out
}

// Reset discards buffered events.
func (r *Recorder) Reset() {
	if r != nil {
		r.events = nil
	}
}

// Render converts events into their broadcastable form, skipping events that
// do not provide one.
func Render(evts []Event) []types.Event {
	out := make([]types.Event, 0, len(evts))
	for _, evt := range evts {
		if b, ok := evt.(Broadcastable); ok {
			if rendered := b.Event(); rendered != nil {
				out = append(out, *rendered)
			}
		}
	}
	return out
}
