// Package strategy holds the three entry strategies and their common
// signal contract. Every strategy instance is exclusive to one symbol;
// callers must never share an instance across symbols, since the
// breakout retest state machine carries per-symbol memory.
package strategy

import (
	"github.com/shopspring/decimal"

	"bybitengine/marketdata"
	"bybitengine/regime"
)

// Direction is the signal's trade direction.
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Long {
		return "long"
	}
	return "short"
}

// Signal is the common record every strategy emits. Reasons are stable
// snake_case tokens; Values carries the numeric evidence behind them.
type Signal struct {
	Strategy      string
	Symbol        string
	Direction     Direction
	Regime        regime.Label
	RawConfidence float64
	// ScaledConfidence and MTFConfirmed are filled in by the meta layer,
	// not by the strategy itself.
	ScaledConfidence float64
	MTFConfirmed     bool

	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal

	Reasons []string
	Values  map[string]float64
}

// Strategy is the common contract: generate zero or one candidate signal
// from the current bars and computed features. Implementations are pure
// given their own internal state (e.g. retest FSM) and never share state
// across symbols.
type Strategy interface {
	Name() string
	GenerateSignal(bars *marketdata.Frame, features *marketdata.FeatureFrame) (*Signal, error)
}

func riskDistance(entry, stop decimal.Decimal) decimal.Decimal {
	return entry.Sub(stop).Abs()
}

// takeProfitAt returns entry + n*risk in the signal's direction.
func takeProfitAt(entry, stop decimal.Decimal, dir Direction, n decimal.Decimal) decimal.Decimal {
	risk := riskDistance(entry, stop)
	delta := risk.Mul(n)
	if dir == Long {
		return entry.Add(delta)
	}
	return entry.Sub(delta)
}
