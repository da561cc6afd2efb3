// Package metrics exposes the engine's Prometheus surface: one gauge
// family per symbol/strategy dimension, plus counters for signals,
// orders, and errors. All metrics share a private registry so the HTTP
// handler controls exactly what is exported.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registry is the engine's private prometheus registry.
	Registry = prometheus.NewRegistry()

	// ============================================
	// Position / equity
	// ============================================

	PositionQty = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "bybitengine", Subsystem: "position", Name: "qty", Help: "Open position quantity"},
		[]string{"symbol"},
	)

	PositionUnrealizedPnL = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "bybitengine", Subsystem: "position", Name: "unrealized_pnl", Help: "Unrealized P&L in quote currency"},
		[]string{"symbol"},
	)

	EquityTotal = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{Namespace: "bybitengine", Subsystem: "account", Name: "equity_total", Help: "Total account equity"},
	)

	// ============================================
	// Signal / strategy pipeline
	// ============================================

	SignalsGenerated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{Namespace: "bybitengine", Subsystem: "signal", Name: "generated_total", Help: "Candidate signals generated per strategy"},
		[]string{"symbol", "strategy", "direction"},
	)

	SignalsRejected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{Namespace: "bybitengine", Subsystem: "signal", Name: "rejected_total", Help: "Signals rejected by the meta layer, by reason"},
		[]string{"symbol", "reason"},
	)

	RegimeLabel = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "bybitengine", Subsystem: "regime", Name: "label", Help: "1 for the currently active regime label, 0 otherwise"},
		[]string{"symbol", "label"},
	)

	// ============================================
	// Orders / executions
	// ============================================

	OrdersSubmitted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{Namespace: "bybitengine", Subsystem: "order", Name: "submitted_total", Help: "Orders submitted to the gateway"},
		[]string{"symbol", "side", "order_type"},
	)

	OrdersRejected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{Namespace: "bybitengine", Subsystem: "order", Name: "rejected_total", Help: "Orders rejected by the venue"},
		[]string{"symbol", "reason"},
	)

	OrderLatencySeconds = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "bybitengine", Subsystem: "order", Name: "latency_seconds", Help: "Round-trip latency of place_order calls", Buckets: prometheus.DefBuckets},
		[]string{"symbol"},
	)

	// ============================================
	// Errors / gateway health
	// ============================================

	ErrorsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{Namespace: "bybitengine", Subsystem: "errors", Name: "total", Help: "Errors raised by kind"},
		[]string{"kind", "op"},
	)

	KillSwitchActivations = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{Namespace: "bybitengine", Subsystem: "kill_switch", Name: "activations_total", Help: "Number of kill switch activations since process start"},
	)

	KillSwitchHalted = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{Namespace: "bybitengine", Subsystem: "kill_switch", Name: "halted", Help: "1 while the kill switch is active, 0 otherwise"},
	)

	// ============================================
	// Orchestrator / loop lifecycle
	// ============================================

	LoopRunning = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "bybitengine", Subsystem: "loop", Name: "running", Help: "1 while a symbol's loop goroutine is active, 0 once it has exited"},
		[]string{"symbol"},
	)

	LoopCrashesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{Namespace: "bybitengine", Subsystem: "loop", Name: "crashes_total", Help: "Loop.Run returns by symbol, after exhausting its error budget or hitting an unrecoverable error"},
		[]string{"symbol"},
	)
)

// SetRegimeLabel zeroes every known label for symbol then sets the
// active one to 1, so the gauge vector never accumulates stale labels
// reading 1 after a regime change.
func SetRegimeLabel(symbol, active string, allLabels []string) {
	for _, label := range allLabels {
		v := 0.0
		if label == active {
			v = 1.0
		}
		RegimeLabel.WithLabelValues(symbol, label).Set(v)
	}
}
