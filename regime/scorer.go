// Package regime scores the current market condition on four continuous
// axes and reduces them to a single categorical label consumed by the
// meta-layer to enable or disable strategies.
package regime

import (
	"math"

	"bybitengine/marketdata"
)

// Label is the categorical regime the scorer settles on.
type Label string

const (
	TrendUp  Label = "trend_up"
	TrendDown Label = "trend_down"
	Range    Label = "range"
	HighVol  Label = "high_vol"
	Choppy   Label = "choppy"
	Unknown  Label = "unknown"
)

// AllLabels enumerates every label the scorer can produce, for callers
// that need to zero out a per-label gauge vector on a label change.
var AllLabels = []Label{TrendUp, TrendDown, Range, HighVol, Choppy, Unknown}

// Scores is the full output of one scoring pass.
type Scores struct {
	TrendScore      float64
	RangeScore      float64
	VolatilityScore float64
	ChopScore       float64
	Label           Label
	Confidence      float64
	Reasons         []string
	Values          map[string]float64
}

// Thresholds are the design constants the scorer is built around. They
// are not meant to be tuned per deployment; they are exposed as a struct
// only so tests can exercise edge cases without magic numbers scattered
// through assertions.
type Thresholds struct {
	ADXTrendMin   float64
	ADXTrendMax   float64
	ADXRangeMax   float64
	BBWidthRange  float64
	ATRPctHigh    float64
	ATRPctExtreme float64
}

// DefaultThresholds matches the constants the regime scorer was designed
// around: ADX 25-50 for trend, ADX<=20 for range, BB width <=0.03 for
// range, ATR% 3-7 for volatility.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ADXTrendMin:   25,
		ADXTrendMax:   50,
		ADXRangeMax:   20,
		BBWidthRange:  0.03,
		ATRPctHigh:    3,
		ATRPctExtreme: 7,
	}
}

// Scorer computes Scores from a feature row and optional orderflow
// context. Stateless and safe for concurrent use.
type Scorer struct {
	T Thresholds
}

// New builds a Scorer with the default thresholds.
func New() *Scorer { return &Scorer{T: DefaultThresholds()} }

// Score evaluates the regime from the last closed feature row. bbWidthPctChange
// and atrSlope are short-window derivatives of bb_width/atr the caller
// tracks across consecutive rows (the pipeline does not carry history
// inside a single row).
func (s *Scorer) Score(row marketdata.FeatureRow, bbWidthPctChange, atrSlope float64, orderflow *marketdata.OrderflowFeatures) Scores {
	adx := valueOr(row.ADX, 0)
	ema20 := valueOr(row.EMA20, 0)
	ema50 := valueOr(row.EMA50, 0)
	close := row.Close
	atrPercent := valueOr(row.ATRPercent, 0)
	bbWidth := valueOr(row.BBWidth, 0)
	volZ := valueOr(row.VolumeZScore, 0)

	if ema20 == 0 || ema50 == 0 || close == 0 {
		return s.neutral("missing_critical_indicators")
	}

	trend := s.trendScore(adx, ema20, ema50, bbWidthPctChange)
	rng := s.rangeScore(adx, bbWidth, bbWidthPctChange, atrSlope)
	vol := s.volatilityScore(atrPercent)
	chop := s.chopScore(adx, bbWidthPctChange, atrSlope, volZ)

	label, confidence, reasons := s.determineLabel(trend, rng, vol, chop, ema20, ema50, close)

	values := map[string]float64{
		"adx":                  adx,
		"atr_percent":          atrPercent,
		"bb_width":             bbWidth,
		"bb_width_pct_change":  bbWidthPctChange,
		"atr_slope":            atrSlope,
		"ema_20":               ema20,
		"ema_50":               ema50,
		"close":                close,
		"volume_zscore":        volZ,
	}
	if orderflow != nil && orderflow.Valid {
		values["spread_percent"] = orderflow.SpreadPercent
		values["depth_imbalance"] = orderflow.DepthImbalance
	}

	return Scores{
		TrendScore:      trend,
		RangeScore:      rng,
		VolatilityScore: vol,
		ChopScore:       chop,
		Label:           label,
		Confidence:      confidence,
		Reasons:         reasons,
		Values:          values,
	}
}

func (s *Scorer) trendScore(adx, ema20, ema50, bbWidthPctChange float64) float64 {
	adxComp := normalize(adx, s.T.ADXTrendMin, s.T.ADXTrendMax)
	var emaDiffPct float64
	if ema50 > 0 {
		emaDiffPct = math.Abs(ema20-ema50) / ema50
	}
	emaComp := math.Min(emaDiffPct/0.05, 1.0)
	bbComp := math.Max(0, math.Min(bbWidthPctChange/0.2, 1.0))
	score := 0.5*adxComp + 0.3*emaComp + 0.2*bbComp
	return clamp01(score)
}

func (s *Scorer) rangeScore(adx, bbWidth, bbWidthPctChange, atrSlope float64) float64 {
	adxComp := 1.0 - normalize(adx, 0, s.T.ADXRangeMax)
	bbComp := 1.0 - normalize(bbWidth, 0, s.T.BBWidthRange)
	bbChangeComp := math.Max(0, math.Min(-bbWidthPctChange/0.2, 1.0))
	atrComp := 1.0 - math.Min(math.Abs(atrSlope)/1.0, 1.0)
	score := 0.4*adxComp + 0.3*bbComp + 0.2*bbChangeComp + 0.1*atrComp
	return clamp01(score)
}

func (s *Scorer) volatilityScore(atrPercent float64) float64 {
	return normalize(atrPercent, s.T.ATRPctHigh, s.T.ATRPctExtreme)
}

func (s *Scorer) chopScore(adx, bbWidthPctChange, atrSlope, volZ float64) float64 {
	adxComp := 1.0 - normalize(adx, 0, 25.0)
	atrComp := math.Min(math.Abs(atrSlope)/2.0, 1.0)
	volComp := math.Min(math.Abs(volZ)/3.0, 1.0)
	bbComp := math.Min(math.Abs(bbWidthPctChange)/0.3, 1.0)
	score := 0.4*adxComp + 0.3*atrComp + 0.2*volComp + 0.1*bbComp
	return clamp01(score)
}

func (s *Scorer) determineLabel(trend, rng, vol, chop, ema20, ema50, close float64) (Label, float64, []string) {
	if vol >= 0.7 {
		return HighVol, vol, []string{"extreme_volatility"}
	}
	if chop >= 0.6 {
		return Choppy, chop, []string{"high_noise", "no_clear_direction"}
	}
	if trend > rng {
		var label Label
		var reasons []string
		switch {
		case ema20 > ema50 && close > ema50:
			label = TrendUp
			reasons = []string{"strong_adx", "ema_aligned_up"}
		case ema20 < ema50 && close < ema50:
			label = TrendDown
			reasons = []string{"strong_adx", "ema_aligned_down"}
		default:
			if ema20 > ema50 {
				label = TrendUp
			} else {
				label = TrendDown
			}
			reasons = []string{"partial_trend"}
		}
		return label, trend, reasons
	}
	if rng >= 0.5 {
		return Range, rng, []string{"low_adx", "narrow_bb"}
	}
	return Unknown, 0.5, []string{"mixed_signals"}
}

func (s *Scorer) neutral(reason string) Scores {
	return Scores{Label: Unknown, Reasons: []string{reason}, Values: map[string]float64{}}
}

func normalize(value, min, max float64) float64 {
	if max <= min {
		if value < max {
			return 0
		}
		return 1
	}
	return clamp01((value - min) / (max - min))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func valueOr(v, fallback float64) float64 {
	if marketdata.IsNA(v) {
		return fallback
	}
	return v
}
