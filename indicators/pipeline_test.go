package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bybitengine/marketdata"
)

func syntheticFrame(n int, start float64, step float64) *marketdata.Frame {
	f := &marketdata.Frame{Symbol: "BTCUSDT", Interval: "5"}
	price := start
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		open := price
		close := price + step
		high := math.Max(open, close) + 1
		low := math.Min(open, close) - 1
		f.Bars = append(f.Bars, marketdata.Bar{
			Timestamp: ts.Add(time.Duration(i) * 5 * time.Minute),
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(high),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(close),
			Volume:    decimal.NewFromFloat(100 + float64(i%5)),
		})
		price = close
	}
	return f
}

func TestBuildFeaturesWarmupInvariant(t *testing.T) {
	frame := syntheticFrame(250, 100, 0.5)
	ff := BuildFeatures(frame, nil, nil, 5, false)
	require.Len(t, ff.Rows, 250)

	closed, ok := ff.LastClosed()
	require.True(t, ok)
	assert.True(t, closed.Valid(), "canonical indicators must be present after warmup")
}

func TestRSIBounds(t *testing.T) {
	frame := syntheticFrame(100, 100, 1.0)
	ff := BuildFeatures(frame, nil, nil, 5, false)
	for _, r := range ff.Rows {
		if marketdata.IsNA(r.RSI) {
			continue
		}
		assert.GreaterOrEqual(t, r.RSI, 0.0)
		assert.LessOrEqual(t, r.RSI, 100.0)
	}
}

func TestATRNonNegative(t *testing.T) {
	frame := syntheticFrame(100, 100, -0.3)
	ff := BuildFeatures(frame, nil, nil, 5, false)
	for _, r := range ff.Rows {
		if marketdata.IsNA(r.ATR) {
			continue
		}
		assert.GreaterOrEqual(t, r.ATR, 0.0)
	}
}

func TestBollingerOrdering(t *testing.T) {
	frame := syntheticFrame(100, 100, 0.2)
	ff := BuildFeatures(frame, nil, nil, 5, false)
	for _, r := range ff.Rows {
		if marketdata.IsNA(r.BBUpper) {
			continue
		}
		assert.GreaterOrEqual(t, r.BBUpper, r.BBMid)
		assert.GreaterOrEqual(t, r.BBMid, r.BBLower)
	}
}

func TestAnomalyGapDetection(t *testing.T) {
	frame := syntheticFrame(60, 100, 0.1)
	gapIdx := 50
	frame.Bars[gapIdx].Open = frame.Bars[gapIdx-1].Close.Mul(decimal.NewFromFloat(1.05))
	frame.Bars[gapIdx].High = frame.Bars[gapIdx].Open.Add(decimal.NewFromFloat(1))
	frame.Bars[gapIdx].Low = frame.Bars[gapIdx].Open.Sub(decimal.NewFromFloat(1))
	frame.Bars[gapIdx].Close = frame.Bars[gapIdx].Open

	ff := BuildFeatures(frame, nil, nil, 5, false)
	assert.True(t, ff.Rows[gapIdx].AnomalyGap)
	assert.True(t, ff.Rows[gapIdx].HasAnomaly)
}

func TestAnomalyThresholdsRelaxOnTestnetAndShortTimeframe(t *testing.T) {
	mainnet1h := AnomalyThresholdsFor(60, false)
	testnet1m := AnomalyThresholdsFor(1, true)
	assert.Greater(t, testnet1m.WickToBodyRatio, mainnet1h.WickToBodyRatio)
	assert.Less(t, testnet1m.LowVolumeFraction, mainnet1h.LowVolumeFraction)
}

func TestOrderflowComputedOnceWhenBookPresent(t *testing.T) {
	frame := syntheticFrame(30, 100, 0.1)
	book := &marketdata.Orderbook{Symbol: "BTCUSDT"}
	book.ApplySnapshot(
		[]marketdata.Level{{Price: decimal.NewFromFloat(99.9), Size: decimal.NewFromFloat(5)}},
		[]marketdata.Level{{Price: decimal.NewFromFloat(100.1), Size: decimal.NewFromFloat(5)}},
		1,
	)
	ff := BuildFeatures(frame, book, nil, 5, false)
	assert.True(t, ff.Orderflow.Valid)
}

func TestDerivativesWrittenOnlyToLastRow(t *testing.T) {
	frame := syntheticFrame(10, 100, 0.1)
	deriv := &marketdata.Derivatives{
		MarkPrice:    decimal.NewFromFloat(101),
		IndexPrice:   decimal.NewFromFloat(100),
		FundingRate:  decimal.NewFromFloat(0.02),
		OpenInterest: decimal.NewFromFloat(1000),
	}
	ff := BuildFeatures(frame, nil, deriv, 5, false)
	for i := 0; i < len(ff.Rows)-1; i++ {
		assert.NotContains(t, ff.Rows[i].Extra, "mark_price")
	}
	last := ff.Rows[len(ff.Rows)-1]
	assert.Contains(t, last.Extra, "mark_price")
	assert.Equal(t, 1, last.Extra["funding_bias"])
}
