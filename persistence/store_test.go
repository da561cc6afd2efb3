package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenSharesConnectionForSamePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	a, err := Open(path)
	require.NoError(t, err)
	b, err := Open(path)
	require.NoError(t, err)
	require.Same(t, a.db, b.db)

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
}

func TestUpsertOrderThenOpenOrdersRoundTrips(t *testing.T) {
	s := tempStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	err := s.UpsertOrder(OrderRecord{
		OrderID: "o-1", Symbol: "BTCUSDT", Side: "Buy",
		Qty: decimal.NewFromFloat(0.1), FilledQty: decimal.Zero,
		Status: "New", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	open, err := s.OpenOrders("BTCUSDT")
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.True(t, open[0].Qty.Equal(decimal.NewFromFloat(0.1)))
}

func TestUpsertOrderExcludesTerminalFromOpenOrders(t *testing.T) {
	s := tempStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.UpsertOrder(OrderRecord{
		OrderID: "o-1", Symbol: "BTCUSDT", Side: "Buy",
		Qty: decimal.NewFromFloat(0.1), FilledQty: decimal.NewFromFloat(0.1),
		Status: "Filled", CreatedAt: now, UpdatedAt: now,
	}))

	open, err := s.OpenOrders("BTCUSDT")
	require.NoError(t, err)
	require.Len(t, open, 0)
}

func TestUpsertPositionThenDelete(t *testing.T) {
	s := tempStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.UpsertPosition(PositionRecord{
		Symbol: "ETHUSDT", Side: "Sell", Qty: decimal.NewFromFloat(2),
		EntryPrice: decimal.NewFromFloat(3000), PyramidLevel: 1,
		OpenedAt: now, UpdatedAt: now,
	}))

	positions, err := s.Positions()
	require.NoError(t, err)
	require.Len(t, positions, 1)

	require.NoError(t, s.DeletePosition("ETHUSDT"))
	positions, err = s.Positions()
	require.NoError(t, err)
	require.Len(t, positions, 0)
}

func TestSetFlagThenReadRoundTrips(t *testing.T) {
	s := tempStore(t)
	now := time.Now()

	_, ok, err := s.Flag("killswitch_halted")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetFlag("killswitch_halted", "true", now))
	value, ok, err := s.Flag("killswitch_halted")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "true", value)
}

func TestRecordExecutionAndSignalDoNotError(t *testing.T) {
	s := tempStore(t)
	now := time.Now()

	require.NoError(t, s.RecordExecution("o-1", "BTCUSDT", "Buy", decimal.NewFromFloat(0.1), decimal.NewFromFloat(50000), decimal.Zero, now))
	require.NoError(t, s.RecordSignal("BTCUSDT", "breakout_retest", "long", 0.8, true, "", now))
	require.NoError(t, s.RecordError("BTCUSDT", "venue_rejection", "insufficient margin", now))
	require.NoError(t, s.SnapshotPosition("BTCUSDT", "Buy", decimal.NewFromFloat(0.1), decimal.NewFromFloat(50000), decimal.NewFromFloat(50500), decimal.NewFromFloat(50), now))
}
