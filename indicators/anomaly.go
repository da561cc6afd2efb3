package indicators

import (
	"math"

	"bybitengine/marketdata"
)

// anomalyMeanWindow is the rolling window used to establish a "normal"
// volume baseline for the low-volume flag.
const anomalyMeanWindow = 50

// AnomalyThresholds bounds what counts as an anomalous bar. Shorter
// timeframes are noisier by nature and testnet feeds are noisier still,
// so both dimensions relax the same three knobs rather than scattering
// magic numbers through the detector.
type AnomalyThresholds struct {
	WickToBodyRatio  float64 // wick beyond this multiple of body -> anomaly_wick
	MinWickPriceRatio float64 // body below this fraction of price marks a doji, never flagged anomaly_wick
	LowVolumeFraction float64 // volume below this fraction of rolling mean -> anomaly_low_volume
	GapPriceFraction  float64 // open/prev-close gap beyond this fraction of price -> anomaly_gap
}

// AnomalyThresholdsFor resolves the threshold set for a given candle
// interval (minutes) and venue. Testnet feeds get a relaxed multiplier on
// every knob; shorter timeframes get progressively more tolerance since
// wick/gap noise is proportionally larger on 1m/5m bars than on 1h/4h.
func AnomalyThresholdsFor(intervalMinutes int, isTestnet bool) AnomalyThresholds {
	base := AnomalyThresholds{
		WickToBodyRatio:   3.0,
		MinWickPriceRatio:  0.001,
		LowVolumeFraction: 0.2,
		GapPriceFraction:  0.01,
	}

	switch {
	case intervalMinutes <= 5:
		base.WickToBodyRatio *= 1.5
		base.GapPriceFraction *= 1.5
		base.LowVolumeFraction *= 0.75
	case intervalMinutes <= 15:
		base.WickToBodyRatio *= 1.2
		base.GapPriceFraction *= 1.2
	}

	if isTestnet {
		base.WickToBodyRatio *= 1.5
		base.GapPriceFraction *= 1.5
		base.LowVolumeFraction *= 0.5
	}

	return base
}

// applyAnomalies flags the last closed bar's candle anomalies. Detection
// runs over the whole series (to maintain the rolling volume baseline)
// but is only meaningful once warmed up.
func applyAnomalies(rows []marketdata.FeatureRow, t AnomalyThresholds) {
	n := len(rows)
	volumes := make([]float64, n)
	for i, r := range rows {
		volumes[i] = r.Volume
	}
	volumeMean := sma(volumes, anomalyMeanWindow)

	for i := range rows {
		body := math.Abs(rows[i].Close - rows[i].Open)
		upperWick := rows[i].High - math.Max(rows[i].Close, rows[i].Open)
		lowerWick := math.Min(rows[i].Close, rows[i].Open) - rows[i].Low

		isDoji := body < rows[i].Close*t.MinWickPriceRatio
		wickAnomaly := !isDoji && (upperWick > t.WickToBodyRatio*body || lowerWick > t.WickToBodyRatio*body)
		rows[i].AnomalyWick = wickAnomaly

		if !math.IsNaN(volumeMean[i]) && volumeMean[i] > 0 {
			rows[i].AnomalyLowVolume = rows[i].Volume < t.LowVolumeFraction*volumeMean[i]
		}

		if i > 0 && rows[i].Close != 0 {
			gap := math.Abs(rows[i].Open - rows[i-1].Close)
			rows[i].AnomalyGap = gap/rows[i].Close > t.GapPriceFraction
		}

		rows[i].HasAnomaly = rows[i].AnomalyWick || rows[i].AnomalyLowVolume || rows[i].AnomalyGap

		rows[i].VolRegime = volRegimeFor(rows[i].ATRPercent)
	}
}

// volRegimeFor buckets ATR% into -1 (below 1%), 0 (normal) or +1 (at or
// above 3%, the regime scorer's default high-volatility boundary; the
// scorer's extreme boundary is not used here).
func volRegimeFor(atrPercent float64) int {
	if math.IsNaN(atrPercent) {
		return 0
	}
	switch {
	case atrPercent >= 3.0:
		return 1
	case atrPercent < 1.0:
		return -1
	default:
		return 0
	}
}
