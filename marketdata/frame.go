// Package marketdata defines the wire-independent data model the rest of
// the engine operates on: OHLCV frames, orderbook and derivatives
// snapshots, and the canonical feature row produced by the indicator
// pipeline.
//
// Prices and sizes are decimal.Decimal everywhere a venue interprets them
// (tick/step rounding, order qty, notional); indicator math works in
// float64, matching how every TA computation in the wild is done.
package marketdata

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is a single OHLCV candle.
type Bar struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Turnover  decimal.Decimal // optional, zero value means absent
}

// Frame is an ordered sequence of bars for one symbol/interval.
type Frame struct {
	Symbol   string
	Interval string // e.g. "1", "5", "15", "60", "240" (minutes, Bybit convention)
	Bars     []Bar
}

// Validate checks the frame invariants from the data model contract:
// strictly increasing timestamps, low <= min(open,close), high >=
// max(open,close), volume >= 0.
func (f *Frame) Validate() error {
	for i, b := range f.Bars {
		if i > 0 && !b.Timestamp.After(f.Bars[i-1].Timestamp) {
			return fmt.Errorf("marketdata: bar %d timestamp %s not strictly after previous %s", i, b.Timestamp, f.Bars[i-1].Timestamp)
		}
		minOC := decimal.Min(b.Open, b.Close)
		maxOC := decimal.Max(b.Open, b.Close)
		if b.Low.GreaterThan(minOC) {
			return fmt.Errorf("marketdata: bar %d low %s above min(open,close) %s", i, b.Low, minOC)
		}
		if b.High.LessThan(maxOC) {
			return fmt.Errorf("marketdata: bar %d high %s below max(open,close) %s", i, b.High, maxOC)
		}
		if b.Volume.IsNegative() {
			return fmt.Errorf("marketdata: bar %d has negative volume %s", i, b.Volume)
		}
	}
	return nil
}

// ClosedBars returns all bars except the last, which is treated as the
// still-forming (open) bar and excluded from any decisioning path.
func (f *Frame) ClosedBars() []Bar {
	if len(f.Bars) == 0 {
		return nil
	}
	return f.Bars[:len(f.Bars)-1]
}

// LastClosed returns the last closed bar, or false if fewer than 2 bars
// exist (i.e. there is no closed bar yet, only the forming one).
func (f *Frame) LastClosed() (Bar, bool) {
	closed := f.ClosedBars()
	if len(closed) == 0 {
		return Bar{}, false
	}
	return closed[len(closed)-1], true
}

// Forming returns the last (open, still-forming) bar.
func (f *Frame) Forming() (Bar, bool) {
	if len(f.Bars) == 0 {
		return Bar{}, false
	}
	return f.Bars[len(f.Bars)-1], true
}
