// Package notradezone runs the ordered hygiene filters that veto entries
// before a strategy ever gets a chance to generate a signal.
package notradezone

import (
	"bybitengine/marketdata"
)

// Input bundles everything a gate might need. OrderbookInvalid is
// supplied by the caller (e.g. best bid/ask deviating from last trade, or
// a stale snapshot) since that check depends on venue context the
// feature row does not carry.
type Input struct {
	Row              marketdata.FeatureRow
	Orderflow        marketdata.OrderflowFeatures
	OrderbookInvalid bool
	ErrorBudgetCount int

	AllowAnomalyOnTestnet bool
	IsTestnet             bool
	MaxSpreadPercent      float64
	DepthImbalanceLimit   float64 // 0 disables the gate
	ErrorBudgetCeiling    int
	MaxATRPercentExtreme  float64
}

// Result is the outcome of running the gate sequence.
type Result struct {
	Allowed bool
	Reason  string
	Details map[string]any
}

func allow() Result { return Result{Allowed: true} }

func block(reason string, details map[string]any) Result {
	return Result{Allowed: false, Reason: reason, Details: details}
}

// Gate is one hygiene check. It returns ok=true to let evaluation
// continue, or a Result{Allowed:false,...} to veto the tick.
type Gate func(in Input) (ok bool, blocked Result)

// DefaultGates returns the six gates in the exact evaluation order the
// hygiene contract requires. Exposed as a slice literal so tests can
// assert on ordering independent of Evaluate's control flow.
func DefaultGates() []Gate {
	return []Gate{
		dataAnomalyGate,
		orderbookInvalidGate,
		excessiveSpreadGate,
		depthImbalanceGate,
		errorBudgetGate,
		extremeVolatilityGate,
	}
}

// Evaluate runs the gates in order and returns the first failure, or
// Result{Allowed:true} if every gate passes.
func Evaluate(in Input, gates []Gate) Result {
	for _, g := range gates {
		if ok, res := g(in); !ok {
			return res
		}
	}
	return allow()
}

func dataAnomalyGate(in Input) (bool, Result) {
	if !in.Row.HasAnomaly {
		return true, Result{}
	}
	if in.IsTestnet && in.AllowAnomalyOnTestnet {
		if !in.Row.AnomalyWick {
			return true, Result{}
		}
	}
	return false, block("data_anomaly", map[string]any{
		"anomaly_wick":       in.Row.AnomalyWick,
		"anomaly_low_volume": in.Row.AnomalyLowVolume,
		"anomaly_gap":        in.Row.AnomalyGap,
	})
}

func orderbookInvalidGate(in Input) (bool, Result) {
	if !in.OrderbookInvalid {
		return true, Result{}
	}
	return false, block("orderbook_invalid", nil)
}

func excessiveSpreadGate(in Input) (bool, Result) {
	if in.MaxSpreadPercent <= 0 || !in.Orderflow.Valid {
		return true, Result{}
	}
	if in.Orderflow.SpreadPercent > in.MaxSpreadPercent {
		return false, block("excessive_spread", map[string]any{"spread_percent": in.Orderflow.SpreadPercent})
	}
	return true, Result{}
}

func depthImbalanceGate(in Input) (bool, Result) {
	if in.DepthImbalanceLimit <= 0 || in.IsTestnet || !in.Orderflow.Valid {
		return true, Result{}
	}
	imbalance := in.Orderflow.DepthImbalance
	if imbalance < 0 {
		imbalance = -imbalance
	}
	if imbalance > in.DepthImbalanceLimit {
		return false, block("depth_imbalance", map[string]any{"depth_imbalance": in.Orderflow.DepthImbalance})
	}
	return true, Result{}
}

func errorBudgetGate(in Input) (bool, Result) {
	if in.ErrorBudgetCeiling <= 0 {
		return true, Result{}
	}
	if in.ErrorBudgetCount > in.ErrorBudgetCeiling {
		return false, block("error_budget_exceeded", map[string]any{"error_count": in.ErrorBudgetCount})
	}
	return true, Result{}
}

func extremeVolatilityGate(in Input) (bool, Result) {
	if in.Row.VolRegime != 1 || in.MaxATRPercentExtreme <= 0 {
		return true, Result{}
	}
	if in.Row.ATRPercent > in.MaxATRPercentExtreme {
		return false, block("extreme_volatility", map[string]any{"atr_percent": in.Row.ATRPercent})
	}
	return true, Result{}
}
