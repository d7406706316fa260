package core

// EventStream accumulates the Events emitted by a single transaction replay
// in emission order (spec §3 "Effects.events", §4.7 "emit_event").
//
// Emit simply appends to an in-memory, per-replay slice that Effects.Events
// is built from at the end of execution.
type EventStream struct {
	events []Event
}

// NewEventStream returns an empty stream for one replay.
func NewEventStream() *EventStream {
	return &EventStream{}
}

// Emit appends an event to the stream; this is the concrete implementation
// behind the VM harness's emit_event callback (spec §4.7).
func (s *EventStream) Emit(typeTag TypeTag, sender Address, payload []byte) {
	s.events = append(s.events, Event{Type: typeTag, Sender: sender, Payload: payload})
}

// All returns the accumulated events in emission order.
func (s *EventStream) All() []Event {
	return s.events
}

// Len reports how many events have been emitted so far.
func (s *EventStream) Len() int {
	return len(s.events)
}
