package strategy

import (
	"github.com/shopspring/decimal"

	"bybitengine/marketdata"
	"bybitengine/regime"
	"bybitengine/structure"
)

// TrendPullback enters on a pullback to ema_20 within an established
// trend. Activation requires regime trend_up/trend_down (adx above the
// same threshold the regime scorer uses) and ema_20 above/below ema_50
// in the trade direction.
type TrendPullback struct {
	MinVolumeZScore float64
	TakeProfitR     decimal.Decimal
	analyzer        *structure.Analyzer
}

// NewTrendPullback builds a TrendPullback strategy instance. Callers
// must create one instance per symbol.
func NewTrendPullback() *TrendPullback {
	return &TrendPullback{
		MinVolumeZScore: 1.0,
		TakeProfitR:     decimal.NewFromInt(2), // minimum acceptable reward multiple is 2R
		analyzer:        structure.New(),
	}
}

func (s *TrendPullback) Name() string { return "TrendPullback" }

func (s *TrendPullback) GenerateSignal(bars *marketdata.Frame, features *marketdata.FeatureFrame) (*Signal, error) {
	last, ok := features.LastClosed()
	if !ok || !last.Valid() {
		return nil, nil
	}
	prev, ok := prevClosedRow(features)
	if !ok {
		return nil, nil
	}

	adxTrending := last.ADX >= regime.DefaultThresholds().ADXTrendMin
	if !adxTrending {
		return nil, nil
	}

	closedBars := bars.ClosedBars()
	if len(closedBars) < 2 {
		return nil, nil
	}
	entryBar := closedBars[len(closedBars)-1]
	prevBar := closedBars[len(closedBars)-2]

	longTrend := last.EMA20 > last.EMA50
	shortTrend := last.EMA20 < last.EMA50

	if longTrend {
		if sig := s.evaluate(Long, last, prev, entryBar, prevBar, closedBars, features.Symbol); sig != nil {
			return sig, nil
		}
	}
	if shortTrend {
		if sig := s.evaluate(Short, last, prev, entryBar, prevBar, closedBars, features.Symbol); sig != nil {
			return sig, nil
		}
	}
	return nil, nil
}

// evaluate checks the pullback-and-reclaim condition for one direction:
// price touched or pierced ema_20 on the prior or current bar, and the
// current closed bar reclaims it (closes back on the trend side).
func (s *TrendPullback) evaluate(dir Direction, last, prev marketdata.FeatureRow, entryBar, prevBar marketdata.Bar, closedBars []marketdata.Bar, symbol string) *Signal {
	if last.VolumeZScore < s.MinVolumeZScore {
		return nil
	}

	touchedEMA := entryBar.Low.LessThanOrEqual(decimal.NewFromFloat(last.EMA20)) ||
		prevBar.Low.LessThanOrEqual(decimal.NewFromFloat(prev.EMA20))
	pierced := entryBar.High.GreaterThanOrEqual(decimal.NewFromFloat(last.EMA20)) ||
		prevBar.High.GreaterThanOrEqual(decimal.NewFromFloat(prev.EMA20))

	if dir == Short {
		touchedEMA = entryBar.High.GreaterThanOrEqual(decimal.NewFromFloat(last.EMA20)) ||
			prevBar.High.GreaterThanOrEqual(decimal.NewFromFloat(prev.EMA20))
		pierced = entryBar.Low.LessThanOrEqual(decimal.NewFromFloat(last.EMA20)) ||
			prevBar.Low.LessThanOrEqual(decimal.NewFromFloat(prev.EMA20))
	}
	if !touchedEMA || !pierced {
		return nil
	}

	reclaimed := (dir == Long && entryBar.Close.GreaterThan(decimal.NewFromFloat(last.EMA20))) ||
		(dir == Short && entryBar.Close.LessThan(decimal.NewFromFloat(last.EMA20)))
	if !reclaimed {
		return nil
	}

	entry := entryBar.Close
	atr := decimal.NewFromFloat(last.ATR)
	side := structure.Long
	if dir == Short {
		side = structure.Short
	}
	stop, reason := s.analyzer.StopLoss(entry, side, closedBars, atr)
	takeProfit := takeProfitAt(entry, stop, dir, s.TakeProfitR)

	return &Signal{
		Strategy:      s.Name(),
		Symbol:        symbol,
		Direction:     dir,
		RawConfidence: 0.7,
		EntryPrice:    entry,
		StopLoss:      stop,
		TakeProfit:    takeProfit,
		Reasons:       []string{"pullback_reclaim", "volume_confirmed", reason},
		Values: map[string]float64{
			"adx":           last.ADX,
			"ema_20":        last.EMA20,
			"ema_50":        last.EMA50,
			"volume_zscore": last.VolumeZScore,
		},
	}
}

func prevClosedRow(features *marketdata.FeatureFrame) (marketdata.FeatureRow, bool) {
	if len(features.Rows) < 3 {
		return marketdata.FeatureRow{}, false
	}
	return features.Rows[len(features.Rows)-3], true
}
