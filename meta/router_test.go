package meta

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bybitengine/marketdata"
	"bybitengine/notradezone"
	"bybitengine/strategy"
)

type fakeStrategy struct {
	name string
	sig  *strategy.Signal
}

func (f *fakeStrategy) Name() string { return f.name }
func (f *fakeStrategy) GenerateSignal(bars *marketdata.Frame, features *marketdata.FeatureFrame) (*strategy.Signal, error) {
	if f.sig == nil {
		return nil, nil
	}
	cp := *f.sig
	return &cp, nil
}

func trendRow() marketdata.FeatureRow {
	return marketdata.FeatureRow{
		ADX: 30, EMA20: 110, EMA50: 100, Close: 110, ATRPercent: 2, BBWidth: 0.02, VolumeZScore: 1,
	}
}

func longSignal(strategyName string, confidence float64) *strategy.Signal {
	return &strategy.Signal{
		Strategy:      strategyName,
		Direction:     strategy.Long,
		RawConfidence: confidence,
		EntryPrice:    decimal.NewFromInt(110),
		StopLoss:      decimal.NewFromInt(105),
		TakeProfit:    decimal.NewFromInt(120),
		Reasons:       []string{"test"},
	}
}

func shortSignal(strategyName string, confidence float64) *strategy.Signal {
	s := longSignal(strategyName, confidence)
	s.Direction = strategy.Short
	return s
}

func twoRowFrame(row marketdata.FeatureRow) *marketdata.FeatureFrame {
	return &marketdata.FeatureFrame{Symbol: "BTCUSDT", Rows: []marketdata.FeatureRow{row, row}}
}

func TestRouterSelectsHighestWeightedCandidate(t *testing.T) {
	strategies := []strategy.Strategy{
		&fakeStrategy{name: "TrendPullback", sig: longSignal("TrendPullback", 0.8)},
		&fakeStrategy{name: "Breakout", sig: longSignal("Breakout", 0.9)},
	}
	r := New(strategies, nil)
	r.Config.MTFEnabled = false

	sig, rej := r.Evaluate("BTCUSDT", &marketdata.Frame{}, twoRowFrame(trendRow()), notradezone.Input{Row: trendRow()}, 0, 0)
	require.Nil(t, rej)
	require.NotNil(t, sig)
	// TrendPullback has weight 1.0 vs Breakout 0.6 in trend_up, so despite
	// lower raw confidence it should still win: 0.8*1.0=0.8 > 0.9*0.6=0.54
	assert.Equal(t, "TrendPullback", sig.Strategy)
}

func TestRouterBlocksOnDirectionConflict(t *testing.T) {
	strategies := []strategy.Strategy{
		&fakeStrategy{name: "TrendPullback", sig: longSignal("TrendPullback", 0.8)},
		&fakeStrategy{name: "Breakout", sig: shortSignal("Breakout", 0.8)},
	}
	r := New(strategies, nil)
	r.Config.MTFEnabled = false

	sig, rej := r.Evaluate("BTCUSDT", &marketdata.Frame{}, twoRowFrame(trendRow()), notradezone.Input{Row: trendRow()}, 0, 0)
	assert.Nil(t, sig)
	require.NotNil(t, rej)
	assert.Equal(t, "signal_conflict", rej.Reason)
}

func TestRouterBlocksOnNoTradeZone(t *testing.T) {
	strategies := []strategy.Strategy{
		&fakeStrategy{name: "TrendPullback", sig: longSignal("TrendPullback", 0.8)},
	}
	r := New(strategies, nil)
	row := trendRow()
	row.HasAnomaly = true
	row.AnomalyWick = true

	sig, rej := r.Evaluate("BTCUSDT", &marketdata.Frame{}, twoRowFrame(row), notradezone.Input{Row: row}, 0, 0)
	assert.Nil(t, sig)
	require.NotNil(t, rej)
	assert.Equal(t, "data_anomaly", rej.Reason)
}

func TestRouterRejectsMissingMTFConfluence(t *testing.T) {
	strategies := []strategy.Strategy{
		&fakeStrategy{name: "TrendPullback", sig: longSignal("TrendPullback", 0.8)},
	}
	cache := NewTimeframeCache()
	cache.Update("BTCUSDT", "1", marketdata.FeatureRow{Close: 90, EMA20: 100})  // 1m trend down
	cache.Update("BTCUSDT", "5", marketdata.FeatureRow{Close: 110, EMA20: 100}) // 5m trend up
	cache.Update("BTCUSDT", "15", marketdata.FeatureRow{ATRPercent: 2})

	r := New(strategies, cache)
	sig, rej := r.Evaluate("BTCUSDT", &marketdata.Frame{}, twoRowFrame(trendRow()), notradezone.Input{Row: trendRow()}, 0, 0)
	assert.Nil(t, sig)
	require.NotNil(t, rej)
	assert.Equal(t, "mtf_no_confluence", rej.Reason)
}

func TestRouterConfirmsWithMTFAgreement(t *testing.T) {
	strategies := []strategy.Strategy{
		&fakeStrategy{name: "TrendPullback", sig: longSignal("TrendPullback", 0.8)},
	}
	cache := NewTimeframeCache()
	cache.Update("BTCUSDT", "1", marketdata.FeatureRow{Close: 110, EMA20: 100})
	cache.Update("BTCUSDT", "5", marketdata.FeatureRow{Close: 110, EMA20: 100})
	cache.Update("BTCUSDT", "15", marketdata.FeatureRow{ATRPercent: 2})

	r := New(strategies, cache)
	sig, rej := r.Evaluate("BTCUSDT", &marketdata.Frame{}, twoRowFrame(trendRow()), notradezone.Input{Row: trendRow()}, 0, 0)
	require.Nil(t, rej)
	require.NotNil(t, sig)
	assert.True(t, sig.MTFConfirmed)
}

func TestRouterHighVolDisablesAllEntries(t *testing.T) {
	strategies := []strategy.Strategy{
		&fakeStrategy{name: "TrendPullback", sig: longSignal("TrendPullback", 0.8)},
	}
	r := New(strategies, nil)
	row := trendRow()
	row.VolRegime = 1 // regime scorer should land on high_vol
	row.ATRPercent = 9

	sig, rej := r.Evaluate("BTCUSDT", &marketdata.Frame{}, twoRowFrame(row), notradezone.Input{Row: row}, 0, 0)
	assert.Nil(t, sig)
	require.NotNil(t, rej)
}
