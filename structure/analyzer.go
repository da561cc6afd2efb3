// Package structure places stop-losses behind real swing levels rather
// than a mechanical ATR distance, with buffers against stop-hunting and
// bounds against both noise and oversized risk.
package structure

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bybitengine/marketdata"
)

const (
	defaultLookback       = 20
	defaultMinATRDistance = 1.0
	defaultMaxATRDistance = 2.5
	defaultBufferPercent  = 0.5 // percent of entry price
	bufferATRFraction     = 0.3
)

// Side mirrors the position side the stop is being placed for.
type Side int

const (
	Long Side = iota
	Short
)

// Analyzer finds swing-based stop levels over a window of closed bars.
type Analyzer struct {
	Lookback       int
	MinATRDistance float64
	MaxATRDistance float64
	BufferPercent  float64
}

// New builds an Analyzer with the design defaults.
func New() *Analyzer {
	return &Analyzer{
		Lookback:       defaultLookback,
		MinATRDistance: defaultMinATRDistance,
		MaxATRDistance: defaultMaxATRDistance,
		BufferPercent:  defaultBufferPercent,
	}
}

// FindSwingLow returns the most recent local minimum (a low strictly
// below both neighbors) within the lookback window, scanning from the
// most recent candle backward. Falls back to the absolute min of the
// window when no local minimum exists.
func (a *Analyzer) FindSwingLow(bars []marketdata.Bar) (decimal.Decimal, bool) {
	recent := window(bars, a.Lookback)
	if len(recent) < 3 {
		return decimal.Zero, false
	}
	for i := len(recent) - 2; i > 0; i-- {
		if recent[i].Low.LessThan(recent[i-1].Low) && recent[i].Low.LessThan(recent[i+1].Low) {
			return recent[i].Low, true
		}
	}
	min := recent[0].Low
	for _, b := range recent[1:] {
		if b.Low.LessThan(min) {
			min = b.Low
		}
	}
	return min, true
}

// FindSwingHigh mirrors FindSwingLow for local maxima.
func (a *Analyzer) FindSwingHigh(bars []marketdata.Bar) (decimal.Decimal, bool) {
	recent := window(bars, a.Lookback)
	if len(recent) < 3 {
		return decimal.Zero, false
	}
	for i := len(recent) - 2; i > 0; i-- {
		if recent[i].High.GreaterThan(recent[i-1].High) && recent[i].High.GreaterThan(recent[i+1].High) {
			return recent[i].High, true
		}
	}
	max := recent[0].High
	for _, b := range recent[1:] {
		if b.High.GreaterThan(max) {
			max = b.High
		}
	}
	return max, true
}

// StopLoss computes the stop for a position opened at entryPrice, with
// reason naming which branch produced it (fallback_atr, structure_based,
// structure_too_close, structure_too_far).
func (a *Analyzer) StopLoss(entryPrice decimal.Decimal, side Side, bars []marketdata.Bar, atr decimal.Decimal) (decimal.Decimal, string) {
	if atr.IsZero() || len(bars) == 0 {
		return atrBasedSL(entryPrice, side, atr, 1.5), "fallback_atr"
	}

	var level decimal.Decimal
	var found bool
	if side == Long {
		level, found = a.FindSwingLow(bars)
	} else {
		level, found = a.FindSwingHigh(bars)
	}
	if !found {
		return atrBasedSL(entryPrice, side, atr, 1.5), "fallback_atr"
	}

	bufferFromPrice := entryPrice.Mul(decimal.NewFromFloat(a.BufferPercent / 100))
	bufferFromATR := atr.Mul(decimal.NewFromFloat(bufferATRFraction))
	buffer := decimal.Min(bufferFromPrice, bufferFromATR)

	var slWithBuffer decimal.Decimal
	if side == Long {
		slWithBuffer = level.Sub(buffer)
	} else {
		slWithBuffer = level.Add(buffer)
	}

	distance := entryPrice.Sub(slWithBuffer).Abs()
	distanceATR, _ := distance.Div(atr).Float64()

	switch {
	case distanceATR < a.MinATRDistance:
		return atrBasedSL(entryPrice, side, atr, a.MinATRDistance), fmt.Sprintf("structure_too_close_%.2fatr", distanceATR)
	case distanceATR > a.MaxATRDistance:
		return atrBasedSL(entryPrice, side, atr, a.MaxATRDistance), fmt.Sprintf("structure_too_far_%.2fatr", distanceATR)
	default:
		return slWithBuffer, fmt.Sprintf("structure_based_%.2fatr", distanceATR)
	}
}

func atrBasedSL(entryPrice decimal.Decimal, side Side, atr decimal.Decimal, multiplier float64) decimal.Decimal {
	distance := atr.Mul(decimal.NewFromFloat(multiplier))
	if side == Long {
		return entryPrice.Sub(distance)
	}
	return entryPrice.Add(distance)
}

func window(bars []marketdata.Bar, lookback int) []marketdata.Bar {
	if len(bars) <= lookback {
		return bars
	}
	return bars[len(bars)-lookback:]
}
