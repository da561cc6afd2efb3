package strategy

import (
	"github.com/shopspring/decimal"

	"bybitengine/marketdata"
)

// MeanReversion fades extremes back toward the Bollinger midline.
// Activation is restricted to range regime by the meta layer (§4.4.3);
// this strategy only checks the RSI/band/anomaly conditions.
type MeanReversion struct {
	OversoldRSI   float64
	OverboughtRSI float64
	TakeProfitR   decimal.Decimal
	ATRStopMult   decimal.Decimal
	RejectOnAnomaly bool
}

// NewMeanReversion builds a MeanReversion strategy instance.
func NewMeanReversion() *MeanReversion {
	return &MeanReversion{
		OversoldRSI:     30,
		OverboughtRSI:   70,
		TakeProfitR:     decimal.NewFromFloat(1.5),
		ATRStopMult:     decimal.NewFromFloat(1.0),
		RejectOnAnomaly: true,
	}
}

func (s *MeanReversion) Name() string { return "MeanReversion" }

func (s *MeanReversion) GenerateSignal(bars *marketdata.Frame, features *marketdata.FeatureFrame) (*Signal, error) {
	last, ok := features.LastClosed()
	if !ok || !last.Valid() {
		return nil, nil
	}
	if last.VolRegime > 0 {
		return nil, nil
	}
	if s.RejectOnAnomaly && last.AnomalyWick {
		return nil, nil
	}

	closedBars := bars.ClosedBars()
	if len(closedBars) == 0 {
		return nil, nil
	}
	entryBar := closedBars[len(closedBars)-1]
	entry := entryBar.Close
	atr := decimal.NewFromFloat(last.ATR)

	if last.RSI < s.OversoldRSI && entry.LessThanOrEqual(decimal.NewFromFloat(last.BBLower)) {
		stop := entry.Sub(atr.Mul(s.ATRStopMult))
		takeProfit := takeProfitAt(entry, stop, Long, s.TakeProfitR)
		return &Signal{
			Strategy:      s.Name(),
			Symbol:        features.Symbol,
			Direction:     Long,
			RawConfidence: 0.65,
			EntryPrice:    entry,
			StopLoss:      stop,
			TakeProfit:    takeProfit,
			Reasons:       []string{"oversold_at_lower_band"},
			Values:        map[string]float64{"rsi": last.RSI, "bb_lower": last.BBLower},
		}, nil
	}

	if last.RSI > s.OverboughtRSI && entry.GreaterThanOrEqual(decimal.NewFromFloat(last.BBUpper)) {
		stop := entry.Add(atr.Mul(s.ATRStopMult))
		takeProfit := takeProfitAt(entry, stop, Short, s.TakeProfitR)
		return &Signal{
			Strategy:      s.Name(),
			Symbol:        features.Symbol,
			Direction:     Short,
			RawConfidence: 0.65,
			EntryPrice:    entry,
			StopLoss:      stop,
			TakeProfit:    takeProfit,
			Reasons:       []string{"overbought_at_upper_band"},
			Values:        map[string]float64{"rsi": last.RSI, "bb_upper": last.BBUpper},
		}, nil
	}

	return nil, nil
}
