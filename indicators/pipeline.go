// Package indicators turns a raw OHLCV frame into the canonical feature
// frame the rest of the engine decides on. It is a pure, single-pass
// transform: no network calls, no shared state, safe to run concurrently
// across symbols.
package indicators

import (
	"math"

	"bybitengine/marketdata"
)

// swingLookback is the window used for swing high/low and structure
// detection. ATR and ADX use Wilder's period of 14; Bollinger and RSI
// use 20/14 respectively; VWAP and volume stats use a 20-bar window.
const (
	swingLookback = 10
	adxPeriod     = 14
	atrPeriod     = 14
	bbPeriod      = 20
	bbStdDev      = 2.0
	rsiPeriod     = 14
	vwapWindow    = 20
	volumeWindow  = 20
)

var emaPeriods = []int{10, 20, 50, 200}
var smaPeriods = []int{10, 20, 50, 200}

// BuildFeatures transforms a frame into a feature frame. orderbook and
// derivatives are optional; when present, orderflow features are computed
// once here and derivatives columns are written only to the last row.
func BuildFeatures(frame *marketdata.Frame, book *marketdata.Orderbook, deriv *marketdata.Derivatives, intervalMinutes int, isTestnet bool) *marketdata.FeatureFrame {
	n := len(frame.Bars)
	rows := make([]marketdata.FeatureRow, n)
	for i, b := range frame.Bars {
		rows[i] = blankFrom(b)
	}
	if n == 0 {
		return &marketdata.FeatureFrame{Symbol: frame.Symbol, Interval: frame.Interval, Rows: rows}
	}

	closes := closesOf(rows)
	highs := highsOf(rows)
	lows := lowsOf(rows)
	volumes := volumesOf(rows)

	applyEMA(rows, closes)
	applySMA(rows, closes)
	applyADX(rows, highs, lows, closes)
	applyATR(rows, highs, lows, closes)
	applyBollinger(rows, closes)
	applyRSI(rows, closes)
	applyOBV(rows, closes, volumes)
	applyVWAP(rows, highs, lows, closes, volumes)
	applyVolumeFeatures(rows, volumes, closes)
	applyStructure(rows, highs, lows)
	applyAnomalies(rows, AnomalyThresholdsFor(intervalMinutes, isTestnet))

	ff := &marketdata.FeatureFrame{Symbol: frame.Symbol, Interval: frame.Interval, Rows: rows}

	if book != nil {
		ff.Orderflow = book.Compute()
	}
	if deriv != nil && n > 0 {
		last := &rows[n-1]
		last.Extra["mark_price"], _ = deriv.MarkPrice.Float64()
		last.Extra["index_price"], _ = deriv.IndexPrice.Float64()
		last.Extra["funding_rate"], _ = deriv.FundingRate.Float64()
		last.Extra["open_interest"], _ = deriv.OpenInterest.Float64()
		last.Extra["oi_change"], _ = deriv.OIChange.Float64()
		last.Extra["mark_index_deviation"] = deriv.MarkIndexDeviation()
		last.Extra["funding_bias"] = deriv.FundingBias()
	}

	return ff
}

func blankFrom(b marketdata.Bar) marketdata.FeatureRow {
	row := marketdata.FeatureRow{
		Timestamp: b.Timestamp,
		Extra:     map[string]any{},
	}
	row.Open, _ = b.Open.Float64()
	row.High, _ = b.High.Float64()
	row.Low, _ = b.Low.Float64()
	row.Close, _ = b.Close.Float64()
	row.Volume, _ = b.Volume.Float64()

	row.ADX, row.DMP, row.DMN = na3()
	row.RSI = marketdata.NA
	row.ATR, row.ATRPercent = marketdata.NA, marketdata.NA
	row.EMA10, row.EMA20, row.EMA50, row.EMA200 = na4()
	row.SMA10, row.SMA20, row.SMA50, row.SMA200 = na4()
	row.BBUpper, row.BBMid, row.BBLower, row.BBWidth, row.BBPercent = na5()
	row.VolumeSMA, row.VolumeZScore, row.VolumeImpulse = na3()
	row.VWAP, row.VWAPDistance = marketdata.NA, marketdata.NA
	row.OBV = marketdata.NA
	row.SwingHigh, row.SwingLow = marketdata.NA, marketdata.NA
	return row
}

func na3() (a, b, c float64)             { return marketdata.NA, marketdata.NA, marketdata.NA }
func na4() (a, b, c, d float64)          { return marketdata.NA, marketdata.NA, marketdata.NA, marketdata.NA }
func na5() (a, b, c, d, e float64)       { return marketdata.NA, marketdata.NA, marketdata.NA, marketdata.NA, marketdata.NA }

func closesOf(rows []marketdata.FeatureRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Close
	}
	return out
}
func highsOf(rows []marketdata.FeatureRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.High
	}
	return out
}
func lowsOf(rows []marketdata.FeatureRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Low
	}
	return out
}
func volumesOf(rows []marketdata.FeatureRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Volume
	}
	return out
}

// ema computes the standard recursive EMA with zero-state warmup (the
// first value seeds the series, matching pandas' adjust=False behavior).
func ema(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	for i := 0; i < period-1 && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// sma is a plain windowed mean; NaN until the window fills.
func sma(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(period)
	}
	return out
}

// rollingStd is the population standard deviation (ddof=0) over a
// trailing window, NaN until the window fills.
func rollingStd(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	means := sma(values, period)
	for i := range values {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		m := means[i]
		var sq float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - m
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(period))
	}
	return out
}

func applyEMA(rows []marketdata.FeatureRow, closes []float64) {
	for _, p := range emaPeriods {
		series := ema(closes, p)
		for i := range rows {
			switch p {
			case 10:
				rows[i].EMA10 = series[i]
			case 20:
				rows[i].EMA20 = series[i]
			case 50:
				rows[i].EMA50 = series[i]
			case 200:
				rows[i].EMA200 = series[i]
			}
		}
	}
}

func applySMA(rows []marketdata.FeatureRow, closes []float64) {
	for _, p := range smaPeriods {
		series := sma(closes, p)
		for i := range rows {
			switch p {
			case 10:
				rows[i].SMA10 = series[i]
			case 20:
				rows[i].SMA20 = series[i]
			case 50:
				rows[i].SMA50 = series[i]
			case 200:
				rows[i].SMA200 = series[i]
			}
		}
	}
}
