package execution

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPaperMarketOrderFillsAtReferencePrice(t *testing.T) {
	p := NewPaper(dec("10000"))
	p.UpdatePrice("BTCUSDT", dec("50000"))

	res, err := p.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Market, Qty: dec("0.1")})
	require.NoError(t, err)
	assert.True(t, res.Success)

	pos, ok, err := p.GetPosition("BTCUSDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, pos.Qty.Equal(dec("0.1")))
	assert.True(t, pos.EntryPrice.Equal(dec("50000")))
}

func TestPaperMarketOrderWithNoSeededPriceFails(t *testing.T) {
	p := NewPaper(dec("10000"))
	_, err := p.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Market, Qty: dec("0.1")})
	require.Error(t, err)
}

func TestPaperLimitOrderQueuesThenFillsOnCross(t *testing.T) {
	p := NewPaper(dec("10000"))
	p.UpdatePrice("BTCUSDT", dec("50000"))

	res, err := p.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Limit, Qty: dec("0.1"), Price: dec("49000")})
	require.NoError(t, err)
	require.True(t, res.Success)

	orders, err := p.GetOpenOrders("BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	_, ok, err := p.GetPosition("BTCUSDT")
	require.NoError(t, err)
	assert.False(t, ok, "limit order should not fill until price crosses")

	p.UpdatePrice("BTCUSDT", dec("48500"))

	pos, ok, err := p.GetPosition("BTCUSDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, pos.Qty.Equal(dec("0.1")))

	orders, err = p.GetOpenOrders("BTCUSDT")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPaperAddingToPositionBlendsEntryPrice(t *testing.T) {
	p := NewPaper(dec("10000"))
	p.UpdatePrice("BTCUSDT", dec("50000"))
	_, err := p.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Market, Qty: dec("0.1")})
	require.NoError(t, err)

	p.UpdatePrice("BTCUSDT", dec("52000"))
	_, err = p.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Market, Qty: dec("0.1")})
	require.NoError(t, err)

	pos, ok, err := p.GetPosition("BTCUSDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, pos.Qty.Equal(dec("0.2")))
	assert.True(t, pos.EntryPrice.Equal(dec("51000")), "expected blended entry 51000, got %s", pos.EntryPrice)
}

func TestPaperReduceOnlyFlattensPosition(t *testing.T) {
	p := NewPaper(dec("10000"))
	p.UpdatePrice("BTCUSDT", dec("50000"))
	_, err := p.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Market, Qty: dec("0.1")})
	require.NoError(t, err)

	p.UpdatePrice("BTCUSDT", dec("51000"))
	_, err = p.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: Sell, Type: Market, Qty: dec("0.1"), ReduceOnly: true})
	require.NoError(t, err)

	_, ok, err := p.GetPosition("BTCUSDT")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPaperCloseAllPositionsClosesEveryOpenSymbol(t *testing.T) {
	p := NewPaper(dec("10000"))
	p.UpdatePrice("BTCUSDT", dec("50000"))
	p.UpdatePrice("ETHUSDT", dec("3000"))
	_, err := p.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Market, Qty: dec("0.1")})
	require.NoError(t, err)
	_, err = p.PlaceOrder(OrderRequest{Symbol: "ETHUSDT", Side: Sell, Type: Market, Qty: dec("1")})
	require.NoError(t, err)

	closed, err := p.CloseAllPositions("")
	require.NoError(t, err)
	assert.Equal(t, 2, closed)

	positions, err := p.GetPositions()
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestPaperCancelAllOrdersClearsPending(t *testing.T) {
	p := NewPaper(dec("10000"))
	p.UpdatePrice("BTCUSDT", dec("50000"))
	_, err := p.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Limit, Qty: dec("0.1"), Price: dec("40000")})
	require.NoError(t, err)

	cancelled, err := p.CancelAllOrders("")
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	orders, err := p.GetOpenOrders("")
	require.NoError(t, err)
	assert.Empty(t, orders)
}
