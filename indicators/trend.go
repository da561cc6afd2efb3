package indicators

import (
	"math"

	"bybitengine/marketdata"
)

// trueRange is Wilder's true range: max(high-low, |high-prevClose|, |low-prevClose|).
func trueRange(highs, lows, closes []float64) []float64 {
	out := make([]float64, len(highs))
	for i := range highs {
		tr := highs[i] - lows[i]
		if i > 0 {
			tr = math.Max(tr, math.Abs(highs[i]-closes[i-1]))
			tr = math.Max(tr, math.Abs(lows[i]-closes[i-1]))
		}
		out[i] = tr
	}
	return out
}

// wilderSmooth is Wilder's running moving average: the standard smoothing
// ADX, ATR, +DI/-DI all share. Leading NaN inputs (an upstream series'
// own warmup) yield NaN and the seed window starts at the first non-NaN
// value.
func wilderSmooth(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	var sum float64
	start := 0
	for i, v := range values {
		if i == start && math.IsNaN(v) {
			out[i] = math.NaN()
			start++
			continue
		}
		if k := i - start; k < period {
			sum += v
			if k < period-1 {
				out[i] = math.NaN()
			} else {
				out[i] = sum / float64(period)
			}
			continue
		}
		out[i] = (out[i-1]*float64(period-1) + v) / float64(period)
	}
	return out
}

func applyATR(rows []marketdata.FeatureRow, highs, lows, closes []float64) {
	tr := trueRange(highs, lows, closes)
	atr := wilderSmooth(tr, atrPeriod)
	for i := range rows {
		rows[i].ATR = atr[i]
		if rows[i].Close != 0 && !math.IsNaN(atr[i]) {
			rows[i].ATRPercent = atr[i] / rows[i].Close * 100
		} else {
			rows[i].ATRPercent = math.NaN()
		}
	}
}

func applyADX(rows []marketdata.FeatureRow, highs, lows, closes []float64) {
	n := len(highs)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	tr := trueRange(highs, lows, closes)
	atr := wilderSmooth(tr, adxPeriod)
	plusSmoothed := wilderSmooth(plusDM, adxPeriod)
	minusSmoothed := wilderSmooth(minusDM, adxPeriod)

	plusDI := make([]float64, n)
	minusDI := make([]float64, n)
	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(atr[i]) || atr[i] == 0 {
			plusDI[i] = math.NaN()
			minusDI[i] = math.NaN()
			dx[i] = math.NaN()
			continue
		}
		plusDI[i] = 100 * plusSmoothed[i] / atr[i]
		minusDI[i] = 100 * minusSmoothed[i] / atr[i]
		sum := plusDI[i] + minusDI[i]
		if sum == 0 {
			dx[i] = 0
		} else {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
		}
	}
	adx := wilderSmooth(dx, adxPeriod)
	for i := range rows {
		rows[i].ADX = adx[i]
		rows[i].DMP = plusDI[i]
		rows[i].DMN = minusDI[i]
	}
}

func applyBollinger(rows []marketdata.FeatureRow, closes []float64) {
	mid := sma(closes, bbPeriod)
	std := rollingStd(closes, bbPeriod)
	for i := range rows {
		if math.IsNaN(mid[i]) || math.IsNaN(std[i]) {
			rows[i].BBUpper, rows[i].BBMid, rows[i].BBLower = math.NaN(), math.NaN(), math.NaN()
			rows[i].BBWidth, rows[i].BBPercent = math.NaN(), math.NaN()
			continue
		}
		upper := mid[i] + bbStdDev*std[i]
		lower := mid[i] - bbStdDev*std[i]
		rows[i].BBUpper = upper
		rows[i].BBMid = mid[i]
		rows[i].BBLower = lower
		if mid[i] != 0 {
			rows[i].BBWidth = (upper - lower) / mid[i]
		} else {
			rows[i].BBWidth = math.NaN()
		}
		if span := upper - lower; span != 0 {
			rows[i].BBPercent = (closes[i] - lower) / span
		} else {
			rows[i].BBPercent = math.NaN()
		}
	}
}

func applyRSI(rows []marketdata.FeatureRow, closes []float64) {
	n := len(closes)
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}
	avgGain := wilderSmooth(gains, rsiPeriod)
	avgLoss := wilderSmooth(losses, rsiPeriod)
	for i := range rows {
		if math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]) {
			rows[i].RSI = math.NaN()
			continue
		}
		if avgLoss[i] == 0 {
			rows[i].RSI = 100
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		rows[i].RSI = 100 - (100 / (1 + rs))
	}
}

func applyOBV(rows []marketdata.FeatureRow, closes, volumes []float64) {
	var obv float64
	for i := range rows {
		if i == 0 {
			rows[i].OBV = 0
			obv = 0
			continue
		}
		switch {
		case closes[i] > closes[i-1]:
			obv += volumes[i]
		case closes[i] < closes[i-1]:
			obv -= volumes[i]
		}
		rows[i].OBV = obv
	}
}

func applyVWAP(rows []marketdata.FeatureRow, highs, lows, closes, volumes []float64) {
	n := len(rows)
	typical := make([]float64, n)
	for i := range rows {
		typical[i] = (highs[i] + lows[i] + closes[i]) / 3
	}
	for i := range rows {
		if i < vwapWindow-1 {
			rows[i].VWAP = math.NaN()
			rows[i].VWAPDistance = math.NaN()
			continue
		}
		var num, den float64
		for j := i - vwapWindow + 1; j <= i; j++ {
			num += typical[j] * volumes[j]
			den += volumes[j]
		}
		if den == 0 {
			rows[i].VWAP = math.NaN()
			rows[i].VWAPDistance = math.NaN()
			continue
		}
		vwap := num / den
		rows[i].VWAP = vwap
		if vwap != 0 {
			rows[i].VWAPDistance = (closes[i] - vwap) / vwap * 100
		} else {
			rows[i].VWAPDistance = math.NaN()
		}
	}
}

// volumeZStdEpsilon guards the z-score denominator against a zero
// rolling std collapsing the ratio to NaN when volume is flat.
const volumeZStdEpsilon = 1e-6

func applyVolumeFeatures(rows []marketdata.FeatureRow, volumes, closes []float64) {
	volSMA := sma(volumes, volumeWindow)
	volStd := rollingStd(volumes, volumeWindow)
	for i := range rows {
		rows[i].VolumeSMA = volSMA[i]
		if math.IsNaN(volSMA[i]) || math.IsNaN(volStd[i]) {
			rows[i].VolumeZScore = math.NaN()
			rows[i].VolumeImpulse = math.NaN()
			continue
		}
		z := (volumes[i] - volSMA[i]) / (volStd[i] + volumeZStdEpsilon)
		rows[i].VolumeZScore = z
		var priceChange float64
		if i > 0 && closes[i-1] != 0 {
			priceChange = (closes[i] - closes[i-1]) / closes[i-1]
		}
		rows[i].VolumeImpulse = z * math.Abs(priceChange)
	}
}

func applyStructure(rows []marketdata.FeatureRow, highs, lows []float64) {
	n := len(rows)
	rollingMaxHigh := rollingExtreme(highs, swingLookback, true)
	rollingMinLow := rollingExtreme(lows, swingLookback, false)
	for i := range rows {
		if i < swingLookback {
			rows[i].SwingHigh = math.NaN()
			rows[i].SwingLow = math.NaN()
			rows[i].Structure = 0
			continue
		}
		rows[i].SwingHigh = rollingMaxHigh[i]
		rows[i].SwingLow = rollingMinLow[i]

		switch {
		case rollingMaxHigh[i] > rollingMaxHigh[i-1]:
			rows[i].Structure = 1
		case rollingMinLow[i] < rollingMinLow[i-1]:
			rows[i].Structure = -1
		default:
			rows[i].Structure = 0
		}
	}
}

func rollingExtreme(values []float64, window int, max bool) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		best := values[i-window+1]
		for j := i - window + 2; j <= i; j++ {
			if max && values[j] > best {
				best = values[j]
			}
			if !max && values[j] < best {
				best = values[j]
			}
		}
		out[i] = best
	}
	return out
}
