package marketdata

import (
	"math"
	"time"
)

// NA is the sentinel for a canonical column the pipeline could not
// compute (insufficient warmup, upstream data gap, etc). Consumers must
// treat it as unavailable, never as zero.
var NA = math.NaN()

// IsNA reports whether v is the missing-value sentinel.
func IsNA(v float64) bool { return math.IsNaN(v) }

// FeatureRow is one OHLCV bar extended with the canonical indicator set.
// Column names and presence are an immutable contract: every consumer
// reads these fields directly rather than a dynamic lookup, so a
// provider-specific alias never leaks downstream. Extra carries transient,
// non-canonical columns (e.g. intermediate orderflow or derivatives
// values) that a specific strategy may opt into reading.
type FeatureRow struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64

	ADX float64
	DMP float64
	DMN float64
	RSI float64

	ATR        float64
	ATRPercent float64

	EMA10  float64
	EMA20  float64
	EMA50  float64
	EMA200 float64
	SMA10  float64
	SMA20  float64
	SMA50  float64
	SMA200 float64

	BBUpper  float64
	BBMid    float64
	BBLower  float64
	BBWidth  float64
	BBPercent float64

	VolumeSMA     float64
	VolumeZScore  float64
	VolumeImpulse float64

	VWAP         float64
	VWAPDistance float64
	OBV          float64

	SwingHigh float64
	SwingLow  float64
	Structure int // -1, 0, +1

	AnomalyWick      bool
	AnomalyLowVolume bool
	AnomalyGap       bool
	HasAnomaly       bool

	VolRegime int // -1 low, 0 normal, +1 high

	Extra map[string]any
}

// blankFeatureRow returns a row with every canonical numeric column set to
// the NA sentinel, ready to be filled in by the pipeline one stage at a
// time.
func blankFeatureRow() FeatureRow {
	return FeatureRow{
		ADX: NA, DMP: NA, DMN: NA, RSI: NA,
		ATR: NA, ATRPercent: NA,
		EMA10: NA, EMA20: NA, EMA50: NA, EMA200: NA,
		SMA10: NA, SMA20: NA, SMA50: NA, SMA200: NA,
		BBUpper: NA, BBMid: NA, BBLower: NA, BBWidth: NA, BBPercent: NA,
		VolumeSMA: NA, VolumeZScore: NA, VolumeImpulse: NA,
		VWAP: NA, VWAPDistance: NA, OBV: NA,
		SwingHigh: NA, SwingLow: NA,
	}
}

// Valid reports whether every canonical indicator this row exposes is
// present (non-NA). Used to gate the post-warmup invariant: after 200
// bars, the last closed bar's canonical indicators are never unavailable.
func (r FeatureRow) Valid() bool {
	for _, v := range []float64{
		r.ADX, r.DMP, r.DMN, r.RSI, r.ATR, r.ATRPercent,
		r.EMA10, r.EMA20, r.EMA50, r.EMA200,
		r.SMA10, r.SMA20, r.SMA50, r.SMA200,
		r.BBUpper, r.BBMid, r.BBLower, r.BBWidth, r.BBPercent,
		r.VolumeSMA, r.VolumeZScore, r.VolumeImpulse,
		r.VWAP, r.VWAPDistance, r.OBV, r.SwingHigh, r.SwingLow,
	} {
		if IsNA(v) {
			return false
		}
	}
	return true
}

// FeatureFrame is the output of the indicator pipeline: one FeatureRow per
// input bar, in the same order, plus the orderflow snapshot computed once
// when an orderbook was supplied.
type FeatureFrame struct {
	Symbol    string
	Interval  string
	Rows      []FeatureRow
	Orderflow OrderflowFeatures
}

// Last returns the last row (the forming bar) and true, or a zero row and
// false if the frame is empty.
func (f *FeatureFrame) Last() (FeatureRow, bool) {
	if len(f.Rows) == 0 {
		return FeatureRow{}, false
	}
	return f.Rows[len(f.Rows)-1], true
}

// LastClosed returns the last closed row (index len-2, since the final
// row is always the still-forming bar), or false if there are fewer than
// two rows.
func (f *FeatureFrame) LastClosed() (FeatureRow, bool) {
	if len(f.Rows) < 2 {
		return FeatureRow{}, false
	}
	return f.Rows[len(f.Rows)-2], true
}
