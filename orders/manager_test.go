package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bybitengine/execution"
)

func TestManagerTrackStartsInNewState(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.Track("BTCUSDT", execution.Buy, dec("0.1"), "o-1", "link-1", now)

	o, ok := m.Get("o-1")
	require.True(t, ok)
	require.Equal(t, execution.OrderNew, o.Status)
	require.True(t, o.FilledQty.IsZero())
}

func TestManagerApplyFillPartialThenFull(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.Track("BTCUSDT", execution.Buy, dec("1"), "o-1", "link-1", now)

	require.NoError(t, m.ApplyFill("o-1", "fill-1", dec("0.4"), now))
	o, _ := m.Get("o-1")
	require.Equal(t, execution.OrderPartiallyFilled, o.Status)
	require.True(t, dec("0.4").Equal(o.FilledQty))

	require.NoError(t, m.ApplyFill("o-1", "fill-2", dec("0.6"), now))
	o, _ = m.Get("o-1")
	require.Equal(t, execution.OrderFilled, o.Status)
	require.True(t, dec("1").Equal(o.FilledQty))
}

func TestManagerApplyFillIsIdempotentOnRedeliveredFillID(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.Track("BTCUSDT", execution.Buy, dec("1"), "o-1", "link-1", now)

	require.NoError(t, m.ApplyFill("o-1", "fill-1", dec("0.4"), now))
	require.NoError(t, m.ApplyFill("o-1", "fill-1", dec("0.4"), now)) // redelivered, must not double-count

	o, _ := m.Get("o-1")
	require.True(t, dec("0.4").Equal(o.FilledQty))
}

func TestManagerApplyFillUnknownOrderErrors(t *testing.T) {
	m := NewManager()
	err := m.ApplyFill("missing", "fill-1", dec("1"), time.Now())
	require.Error(t, err)
}

func TestManagerCancelOnTerminalOrderIsNoop(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.Track("BTCUSDT", execution.Buy, dec("1"), "o-1", "link-1", now)
	require.NoError(t, m.ApplyFill("o-1", "fill-1", dec("1"), now))

	require.NoError(t, m.Cancel("o-1", now)) // already filled, cancel races fill

	o, _ := m.Get("o-1")
	require.Equal(t, execution.OrderFilled, o.Status) // unchanged, not flipped to Cancelled
}

func TestManagerCancelOpenOrderTransitions(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.Track("BTCUSDT", execution.Buy, dec("1"), "o-1", "link-1", now)

	require.NoError(t, m.Cancel("o-1", now))
	o, _ := m.Get("o-1")
	require.Equal(t, execution.OrderCancelled, o.Status)
}

func TestManagerOpenOrdersFiltersTerminalAndSymbol(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.Track("BTCUSDT", execution.Buy, dec("1"), "o-1", "link-1", now)
	m.Track("BTCUSDT", execution.Sell, dec("1"), "o-2", "link-2", now)
	m.Track("ETHUSDT", execution.Buy, dec("1"), "o-3", "link-3", now)
	require.NoError(t, m.Cancel("o-2", now))

	open := m.OpenOrders("BTCUSDT")
	require.Len(t, open, 1)
	require.Equal(t, "o-1", open[0].OrderID)

	allOpen := m.OpenOrders("")
	require.Len(t, allOpen, 2)
}
