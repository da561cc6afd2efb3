package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJournalWriteAppendsToSink(t *testing.T) {
	sink := NewMemorySink(0)
	j := New(sink)

	j.Write(Event{Kind: SignalAccepted, Symbol: "BTCUSDT", Strategy: "breakout_retest", Direction: "long", Confidence: 0.8})

	events := sink.Events()
	require.Len(t, events, 1)
	require.Equal(t, SignalAccepted, events[0].Kind)
	require.False(t, events[0].Timestamp.IsZero())
}

func TestJournalWritePanicsOnEmptySymbol(t *testing.T) {
	j := New(NewMemorySink(0))
	require.Panics(t, func() {
		j.Write(Event{Kind: Debug, Symbol: ""})
	})
}

func TestJournalWritePanicsOnUnknownSymbol(t *testing.T) {
	j := New(NewMemorySink(0))
	require.Panics(t, func() {
		j.Write(Event{Kind: Debug, Symbol: UnknownSymbol})
	})
}

func TestMemorySinkEvictsOldestBeyondCapacity(t *testing.T) {
	sink := NewMemorySink(2)
	j := New(sink)

	j.Write(Event{Kind: Debug, Symbol: "BTCUSDT", Timestamp: time.Unix(1, 0)})
	j.Write(Event{Kind: Debug, Symbol: "BTCUSDT", Timestamp: time.Unix(2, 0)})
	j.Write(Event{Kind: Debug, Symbol: "BTCUSDT", Timestamp: time.Unix(3, 0)})

	events := sink.Events()
	require.Len(t, events, 2)
	require.Equal(t, time.Unix(2, 0), events[0].Timestamp)
	require.Equal(t, time.Unix(3, 0), events[1].Timestamp)
}

type fakeRecorder struct {
	calls []string
}

func (f *fakeRecorder) RecordSignal(symbol, strategyName, direction string, confidence float64, accepted bool, reason string, at time.Time) error {
	if accepted {
		f.calls = append(f.calls, "accepted:"+symbol)
	} else {
		f.calls = append(f.calls, "rejected:"+symbol+":"+reason)
	}
	return nil
}

func TestPersistenceSinkRecordsAcceptedAndRejectedOnly(t *testing.T) {
	rec := &fakeRecorder{}
	sink := NewPersistenceSink(rec)
	j := New(sink)

	j.Write(Event{Kind: SignalAccepted, Symbol: "BTCUSDT", Strategy: "breakout_retest", Direction: "long", Confidence: 0.8})
	j.Write(Event{Kind: SignalRejected, Symbol: "BTCUSDT", Reasons: []string{"no_trade_zone"}})
	j.Write(Event{Kind: Debug, Symbol: "BTCUSDT"})

	require.Equal(t, []string{"accepted:BTCUSDT", "rejected:BTCUSDT:no_trade_zone"}, rec.calls)
}
