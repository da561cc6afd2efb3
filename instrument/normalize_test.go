package instrument

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bybitengine/bterr"
)

func TestNormalizePriceIdempotentAndMonotone(t *testing.T) {
	tick := decimal.NewFromFloat(0.1)
	p1 := decimal.NewFromFloat(42123.456)
	p2 := decimal.NewFromFloat(42123.489)

	n1 := NormalizePrice(tick, p1)
	n2 := NormalizePrice(tick, p2)
	assert.True(t, n1.LessThanOrEqual(n2))

	again := NormalizePrice(tick, n1)
	assert.True(t, again.Equal(n1), "normalizing twice must be a no-op")
}

func TestNormalizeQtyFloors(t *testing.T) {
	step := decimal.NewFromFloat(0.001)
	qty := decimal.NewFromFloat(0.1239)
	got := NormalizeQty(step, qty)
	assert.True(t, got.Equal(decimal.NewFromFloat(0.123)))
}

func TestNormalizeOrderMissingInstrumentIsHardFailure(t *testing.T) {
	reg := NewRegistry()
	n := NewNormalizer(reg)
	_, _, err := n.NormalizeOrder("NOSUCHUSDT", decimal.NewFromFloat(1), decimal.NewFromFloat(1))
	require.Error(t, err)
	assert.Equal(t, bterr.KindIntegrity, bterr.Of(err))
}

func TestNormalizeOrderRejectsBelowMinNotional(t *testing.T) {
	reg := NewRegistry()
	n := NewNormalizer(reg)
	_, _, err := n.NormalizeOrder("BTCUSDT", decimal.NewFromFloat(1), decimal.NewFromFloat(0.001))
	require.Error(t, err)
	assert.Equal(t, bterr.KindIntegrity, bterr.Of(err))
}

func TestNormalizeOrderHappyPath(t *testing.T) {
	reg := NewRegistry()
	n := NewNormalizer(reg)
	price, qty, err := n.NormalizeOrder("BTCUSDT", decimal.NewFromFloat(42123.456), decimal.NewFromFloat(0.5))
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromFloat(42123.5)))
	assert.True(t, qty.Equal(decimal.NewFromFloat(0.5)))
}
