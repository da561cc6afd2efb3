package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBacktestAdvancePriceFillsLimitDeterministically(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bt := NewBacktest(dec("10000"), start)

	bt.AdvancePrice("BTCUSDT", dec("50000"), start)
	_, err := bt.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Limit, Qty: dec("0.1"), Price: dec("49000")})
	require.NoError(t, err)

	_, ok, err := bt.GetPosition("BTCUSDT")
	require.NoError(t, err)
	assert.False(t, ok)

	next := start.Add(time.Minute)
	bt.AdvancePrice("BTCUSDT", dec("48900"), next)

	pos, ok, err := bt.GetPosition("BTCUSDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, pos.Qty.Equal(dec("0.1")))
	assert.True(t, pos.UpdatedAt.Equal(next))
}

func TestBacktestReplayingSameScriptProducesIdenticalLedger(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	run := func() (Balance, []Execution) {
		bt := NewBacktest(dec("10000"), start)
		bt.AdvancePrice("BTCUSDT", dec("50000"), start)
		bt.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Market, Qty: dec("0.1")})
		bt.AdvancePrice("BTCUSDT", dec("51000"), start.Add(time.Minute))
		bt.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: Sell, Type: Market, Qty: dec("0.1"), ReduceOnly: true})
		bal, _ := bt.GetAccountBalance(AccountUnified)
		execs, _ := bt.GetExecutions("BTCUSDT", 0)
		return bal, execs
	}

	bal1, execs1 := run()
	bal2, execs2 := run()
	assert.True(t, bal1.TotalEquity.Equal(bal2.TotalEquity))
	require.Len(t, execs2, len(execs1))
	for i := range execs1 {
		assert.True(t, execs1[i].Price.Equal(execs2[i].Price))
		assert.Equal(t, execs1[i].Timestamp, execs2[i].Timestamp)
	}
}

func TestBacktestMarketOrderWithoutSeededPriceFails(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bt := NewBacktest(dec("10000"), start)
	_, err := bt.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Market, Qty: dec("0.1")})
	require.Error(t, err)
}

func TestBacktestCloseAllPositionsFlattensLedger(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bt := NewBacktest(dec("10000"), start)
	bt.AdvancePrice("BTCUSDT", dec("50000"), start)
	_, err := bt.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Market, Qty: dec("0.1")})
	require.NoError(t, err)

	closed, err := bt.CloseAllPositions("")
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	positions, err := bt.GetPositions()
	require.NoError(t, err)
	assert.Empty(t, positions)
}
