package notradezone

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bybitengine/marketdata"
)

func TestEvaluateOrderOfGates(t *testing.T) {
	gates := DefaultGates()
	in := Input{
		Row:              marketdata.FeatureRow{HasAnomaly: true},
		OrderbookInvalid: true,
	}
	res := Evaluate(in, gates)
	assert.False(t, res.Allowed)
	assert.Equal(t, "data_anomaly", res.Reason, "anomaly gate must win over a later gate when both fail")
}

func TestEvaluateAllowsCleanInput(t *testing.T) {
	in := Input{
		Row:       marketdata.FeatureRow{VolRegime: 0},
		Orderflow: marketdata.OrderflowFeatures{Valid: true, SpreadPercent: 0.01, DepthImbalance: 0.05},
		MaxSpreadPercent:     0.5,
		DepthImbalanceLimit:  0.3,
		ErrorBudgetCeiling:   10,
		MaxATRPercentExtreme: 7,
	}
	res := Evaluate(in, DefaultGates())
	assert.True(t, res.Allowed)
}

func TestExcessiveSpreadGate(t *testing.T) {
	in := Input{
		Orderflow:        marketdata.OrderflowFeatures{Valid: true, SpreadPercent: 1.0},
		MaxSpreadPercent: 0.5,
	}
	res := Evaluate(in, DefaultGates())
	assert.False(t, res.Allowed)
	assert.Equal(t, "excessive_spread", res.Reason)
}

func TestDepthImbalanceGateOffByDefaultOnTestnet(t *testing.T) {
	in := Input{
		Orderflow:           marketdata.OrderflowFeatures{Valid: true, DepthImbalance: 0.9},
		IsTestnet:           true,
		DepthImbalanceLimit: 0.3,
	}
	res := Evaluate(in, DefaultGates())
	assert.True(t, res.Allowed)
}

func TestExtremeVolatilityGate(t *testing.T) {
	in := Input{
		Row:                  marketdata.FeatureRow{VolRegime: 1, ATRPercent: 9},
		MaxATRPercentExtreme: 7,
	}
	res := Evaluate(in, DefaultGates())
	assert.False(t, res.Allowed)
	assert.Equal(t, "extreme_volatility", res.Reason)
}

func TestErrorBudgetGate(t *testing.T) {
	in := Input{ErrorBudgetCount: 11, ErrorBudgetCeiling: 10}
	res := Evaluate(in, DefaultGates())
	assert.False(t, res.Allowed)
	assert.Equal(t, "error_budget_exceeded", res.Reason)
}
