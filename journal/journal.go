// Package journal is the append-only structured event stream the engine
// writes every signal decision to, separate from the persistence store:
// writers append independently, readers (dashboards, tests) tail.
// symbol=UNKNOWN appearing here from an official entry point is a
// defect, never a legitimate event.
package journal

import (
	"sync"
	"time"
)

// Kind is one of the nine event kinds the journal carries.
type Kind string

const (
	SignalGenerated Kind = "signal_generated"
	SignalAccepted  Kind = "signal_accepted"
	SignalRejected  Kind = "signal_rejected"
	FilterCheck     Kind = "filter_check"
	OrderExecStart  Kind = "order_exec_start"
	OrderExecFailed Kind = "order_exec_failed"
	OrderExecSuccess Kind = "order_exec_success"
	PositionUpdate  Kind = "position_update"
	Debug           Kind = "debug"
)

// UnknownSymbol is the sentinel the meta router substitutes for an empty
// symbol. An event carrying it is always a caller defect; Journal.Write
// panics rather than silently accepting it, since this property is
// asserted by every test that calls an official entry point.
const UnknownSymbol = "UNKNOWN"

// Event is one journal record.
type Event struct {
	Timestamp  time.Time
	Kind       Kind
	Level      string // "info" | "warn" | "error", caller's choice
	Symbol     string
	Strategy   string
	Direction  string
	Confidence float64
	Reasons    []string
	Values     map[string]float64
}

// Sink receives appended events, e.g. a persistence-backed tail table or
// an in-memory ring buffer for tests.
type Sink interface {
	Append(Event)
}

// Journal is the append-only writer. It never blocks on slow readers:
// Sink.Append is expected to be cheap (an in-process buffer or a single
// insert), matching the "writers append independently" design note.
type Journal struct {
	mu   sync.Mutex
	sink Sink
}

// New builds a Journal writing to sink.
func New(sink Sink) *Journal { return &Journal{sink: sink} }

// Write appends ev, stamping Timestamp if unset. Panics if Symbol is
// empty or UnknownSymbol — entry points are expected to resolve the
// actual symbol before ever reaching the journal.
func (j *Journal) Write(ev Event) {
	if ev.Symbol == "" || ev.Symbol == UnknownSymbol {
		panic("journal: event carries no resolved symbol: " + string(ev.Kind))
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sink.Append(ev)
}

// MemorySink is an in-process ring-buffer Sink used by tests and by the
// operational HTTP surface's recent-events view.
type MemorySink struct {
	mu     sync.Mutex
	cap    int
	events []Event
}

// NewMemorySink builds a MemorySink retaining at most capacity events
// (0 means unbounded).
func NewMemorySink(capacity int) *MemorySink {
	return &MemorySink{cap: capacity}
}

// Append implements Sink.
func (m *MemorySink) Append(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	if m.cap > 0 && len(m.events) > m.cap {
		m.events = m.events[len(m.events)-m.cap:]
	}
}

// Events returns a snapshot of every retained event, oldest first.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
