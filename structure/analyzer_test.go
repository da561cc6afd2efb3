package structure

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bybitengine/marketdata"
)

func barsWithLowSwing(lowAt int, lowVal float64) []marketdata.Bar {
	var bars []marketdata.Bar
	base := 100.0
	ts := time.Now()
	for i := 0; i < 20; i++ {
		low := base - 1
		if i == lowAt {
			low = lowVal
		}
		bars = append(bars, marketdata.Bar{
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Open:      decimal.NewFromFloat(base),
			High:      decimal.NewFromFloat(base + 1),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(base),
		})
	}
	return bars
}

func TestFindSwingLowLocatesLocalMinimum(t *testing.T) {
	a := New()
	bars := barsWithLowSwing(10, 80)
	low, ok := a.FindSwingLow(bars)
	require.True(t, ok)
	assert.True(t, low.Equal(decimal.NewFromFloat(80)))
}

func TestStopLossFallsBackToATRWhenNoBars(t *testing.T) {
	a := New()
	sl, reason := a.StopLoss(decimal.NewFromFloat(100), Long, nil, decimal.NewFromFloat(2))
	assert.Equal(t, "fallback_atr", reason)
	assert.True(t, sl.Equal(decimal.NewFromFloat(97)))
}

func TestStopLossClampsTooCloseStructure(t *testing.T) {
	a := New()
	bars := barsWithLowSwing(10, 99.9) // structural swing right next to entry
	sl, reason := a.StopLoss(decimal.NewFromFloat(100), Long, bars, decimal.NewFromFloat(2))
	assert.Contains(t, reason, "structure_too_close")
	// min distance is 1.0 ATR
	assert.True(t, sl.Equal(decimal.NewFromFloat(98)))
}

func TestStopLossClampsTooFarStructure(t *testing.T) {
	a := New()
	bars := barsWithLowSwing(10, 50) // structural swing far below entry
	sl, reason := a.StopLoss(decimal.NewFromFloat(100), Long, bars, decimal.NewFromFloat(2))
	assert.Contains(t, reason, "structure_too_far")
	// max distance is 2.5 ATR
	assert.True(t, sl.Equal(decimal.NewFromFloat(95)))
}
