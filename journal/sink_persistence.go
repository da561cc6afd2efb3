package journal

import (
	"strings"
	"time"
)

// SignalRecorder is the slice of persistence.Store this sink needs —
// kept as a narrow interface so journal never imports persistence
// directly (it is a pure event-log package; wiring it to a store is the
// caller's job).
type SignalRecorder interface {
	RecordSignal(symbol, strategyName, direction string, confidence float64, accepted bool, reason string, at time.Time) error
}

// PersistenceSink adapts a SignalRecorder into a Sink for
// SignalAccepted/SignalRejected events; every other kind is dropped,
// since the persistence store's signals table only models the
// accept/reject decision, not the full structured event.
type PersistenceSink struct {
	Recorder SignalRecorder
}

// NewPersistenceSink wraps recorder.
func NewPersistenceSink(recorder SignalRecorder) *PersistenceSink {
	return &PersistenceSink{Recorder: recorder}
}

// Append implements Sink.
func (p *PersistenceSink) Append(ev Event) {
	switch ev.Kind {
	case SignalAccepted:
		_ = p.Recorder.RecordSignal(ev.Symbol, ev.Strategy, ev.Direction, ev.Confidence, true, "", ev.Timestamp)
	case SignalRejected:
		_ = p.Recorder.RecordSignal(ev.Symbol, ev.Strategy, ev.Direction, ev.Confidence, false, strings.Join(ev.Reasons, ","), ev.Timestamp)
	}
}
