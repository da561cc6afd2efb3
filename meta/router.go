// Package meta runs the per-tick sequence that turns strategy output
// into a single actionable signal: regime scoring, no-trade zone gates,
// regime-based strategy enablement, confidence scaling, arbitration
// (simple or weighted), and multi-timeframe confluence.
package meta

import (
	"bybitengine/marketdata"
	"bybitengine/notradezone"
	"bybitengine/regime"
	"bybitengine/strategy"
)

// ConfidenceScale is the per-strategy linear transform scaled =
// clamp(a*raw+b, 0, 1).
type ConfidenceScale struct {
	A float64
	B float64
}

func defaultScale() ConfidenceScale { return ConfidenceScale{A: 1, B: 0} }

func scale(raw float64, s ConfidenceScale) float64 {
	v := s.A*raw + s.B
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// MTFSnapshot is the multi-timeframe confluence state for one symbol at
// evaluation time: 1m/5m trend direction (close vs ema_20) and the 15m
// volatility ceiling check.
type MTFSnapshot struct {
	Trend1m       int // -1/0/+1
	Trend5m       int
	ATRPercent15m float64
	Available     bool
}

// MTFProvider supplies the cached higher-timeframe snapshot for a
// symbol. Returns ok=false when the cache has no data yet (confluence
// is then skipped, never treated as a failure).
type MTFProvider interface {
	Snapshot(symbol string) (MTFSnapshot, bool)
}

// Weights maps regime label -> strategy name -> routing weight. High_vol
// entries attenuate every weight (applied as a flat multiplier rather
// than per-strategy, per the "multiplies every weight by 0.1" design
// note).
type Weights map[regime.Label]map[string]float64

// DefaultWeights are the routing weight design constants: trend regimes
// favor TrendPullback and Breakout, range favors MeanReversion and
// Breakout.
func DefaultWeights() Weights {
	return Weights{
		regime.TrendUp:   {"TrendPullback": 1.0, "Breakout": 0.6},
		regime.TrendDown: {"TrendPullback": 1.0, "Breakout": 0.6},
		regime.Range:     {"MeanReversion": 1.0, "Breakout": 0.5},
	}
}

const highVolAttenuation = 0.1

// Config bundles per-router tuning. Zero value is usable with
// DefaultWeights and identity confidence scales.
type Config struct {
	UseWeightedRouter bool
	Weights           Weights
	PerStrategyScale  map[string]ConfidenceScale
	MTFEnabled        bool
	MTFATRCeiling     float64
}

// DefaultConfig mirrors the design defaults: weighted router, MTF
// confluence enabled with a 7% 15m ATR ceiling.
func DefaultConfig() Config {
	return Config{
		UseWeightedRouter: true,
		Weights:           DefaultWeights(),
		MTFEnabled:        true,
		MTFATRCeiling:     7.0,
	}
}

// Rejection is returned (with a nil signal) when the tick produced no
// tradeable output; Reason is a stable snake_case token.
type Rejection struct {
	Reason  string
	Details map[string]float64
}

// Router runs the full per-tick sequence for one symbol's strategy set.
// Strategy instances must already be exclusive to this symbol.
type Router struct {
	Strategies []strategy.Strategy
	Scorer     *regime.Scorer
	Gates      []notradezone.Gate
	Config     Config
	MTF        MTFProvider
}

// New builds a Router with the design defaults.
func New(strategies []strategy.Strategy, mtf MTFProvider) *Router {
	return &Router{
		Strategies: strategies,
		Scorer:     regime.New(),
		Gates:      notradezone.DefaultGates(),
		Config:     DefaultConfig(),
		MTF:        mtf,
	}
}

// Evaluate runs the full sequence and returns the final signal, or a
// Rejection explaining why none was produced. bbWidthPctChange and
// atrSlope are short-window derivatives the caller tracks across ticks,
// passed straight through to the regime scorer.
func (r *Router) Evaluate(symbol string, bars *marketdata.Frame, features *marketdata.FeatureFrame, ntInput notradezone.Input, bbWidthPctChange, atrSlope float64) (*strategy.Signal, *Rejection) {
	// Step 1: symbol guard.
	if symbol == "" {
		symbol = "UNKNOWN"
	}

	last, ok := features.LastClosed()
	if !ok {
		return nil, &Rejection{Reason: "insufficient_data"}
	}

	// Step 2: regime scoring.
	scores := r.Scorer.Score(last, bbWidthPctChange, atrSlope, &features.Orderflow)

	// Step 3: no-trade zones.
	ntResult := notradezone.Evaluate(ntInput, r.Gates)
	if !ntResult.Allowed {
		details := make(map[string]float64, len(ntResult.Details))
		for k, v := range ntResult.Details {
			if f, ok := v.(float64); ok {
				details[k] = f
			}
		}
		return nil, &Rejection{Reason: ntResult.Reason, Details: details}
	}

	// Step 4: enable/disable strategies by regime.
	enabled := enabledFor(scores.Label, r.Strategies)
	if len(enabled) == 0 {
		return nil, &Rejection{Reason: "no_strategy_enabled_for_regime"}
	}

	// Step 5: candidate generation.
	var candidates []*strategy.Signal
	for _, s := range enabled {
		sig, err := s.GenerateSignal(bars, features)
		if err != nil || sig == nil {
			continue
		}
		sig.Symbol = symbol
		sig.Regime = scores.Label
		candidates = append(candidates, sig)
	}
	if len(candidates) == 0 {
		return nil, &Rejection{Reason: "no_candidates"}
	}

	// Step 6: confidence scaler.
	for _, c := range candidates {
		sc := r.scaleFor(c.Strategy)
		c.ScaledConfidence = scale(c.RawConfidence, sc)
	}

	// Step 7: arbitration.
	var final *strategy.Signal
	var rej *Rejection
	mtfSnap, mtfOk := MTFSnapshot{}, false
	if r.MTF != nil {
		mtfSnap, mtfOk = r.MTF.Snapshot(symbol)
	}
	if r.Config.UseWeightedRouter {
		final, rej = weightedRoute(candidates, scores.Label, r.Config.Weights, mtfSnap, mtfOk)
	} else {
		final, rej = simpleArbitrate(candidates)
	}
	if rej != nil {
		return nil, rej
	}

	// Step 8: multi-timeframe confluence.
	if r.Config.MTFEnabled && mtfOk {
		if !confluenceAgrees(final.Direction, mtfSnap, r.Config.MTFATRCeiling) {
			return nil, &Rejection{Reason: "mtf_no_confluence"}
		}
		final.MTFConfirmed = true
	}

	return final, nil
}

func (r *Router) scaleFor(strategyName string) ConfidenceScale {
	if r.Config.PerStrategyScale != nil {
		if sc, ok := r.Config.PerStrategyScale[strategyName]; ok {
			return sc
		}
	}
	return defaultScale()
}

// enabledFor filters strategies by the regime-enablement rule: trend_*
// enables TrendPullback and Breakout, range enables Breakout and
// MeanReversion, high_vol, choppy and unknown disable all entries.
func enabledFor(label regime.Label, strategies []strategy.Strategy) []strategy.Strategy {
	if label == regime.HighVol || label == regime.Choppy || label == regime.Unknown {
		return nil
	}
	var out []strategy.Strategy
	for _, s := range strategies {
		switch s.Name() {
		case "TrendPullback":
			if label == regime.TrendUp || label == regime.TrendDown {
				out = append(out, s)
			}
		case "Breakout":
			if label == regime.Range || label == regime.TrendUp || label == regime.TrendDown {
				out = append(out, s)
			}
		case "MeanReversion":
			if label == regime.Range {
				out = append(out, s)
			}
		default:
			out = append(out, s)
		}
	}
	return out
}

func simpleArbitrate(candidates []*strategy.Signal) (*strategy.Signal, *Rejection) {
	hasLong, hasShort := false, false
	for _, c := range candidates {
		if c.Direction == strategy.Long {
			hasLong = true
		} else {
			hasShort = true
		}
	}
	if hasLong && hasShort {
		return nil, &Rejection{Reason: "signal_conflict"}
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.ScaledConfidence > best.ScaledConfidence {
			best = c
		}
	}
	return best, nil
}

func weightedRoute(candidates []*strategy.Signal, label regime.Label, weights Weights, mtf MTFSnapshot, mtfOk bool) (*strategy.Signal, *Rejection) {
	type scored struct {
		sig   *strategy.Signal
		score float64
	}
	var scoredCandidates []scored
	hasLong, hasShort := false, false
	for _, c := range candidates {
		w := strategyWeight(weights, label, c.Strategy)
		mult := mtfMultiplier(c.Direction, mtf, mtfOk)
		finalScore := c.ScaledConfidence * w * mult
		scoredCandidates = append(scoredCandidates, scored{sig: c, score: finalScore})
		if c.Direction == strategy.Long {
			hasLong = true
		} else {
			hasShort = true
		}
	}
	if hasLong && hasShort {
		return nil, &Rejection{Reason: "signal_conflict"}
	}

	best := scoredCandidates[0]
	for _, sc := range scoredCandidates[1:] {
		if sc.score > best.score || (sc.score == best.score && sc.sig.ScaledConfidence > best.sig.ScaledConfidence) {
			best = sc
		}
	}
	return best.sig, nil
}

func strategyWeight(weights Weights, label regime.Label, strategyName string) float64 {
	w := 1.0
	if byRegime, ok := weights[label]; ok {
		if v, ok := byRegime[strategyName]; ok {
			w = v
		}
	}
	if label == regime.HighVol {
		w *= highVolAttenuation
	}
	return w
}

// mtfMultiplier is 1.0 when confluence data is unavailable (never blocks
// on missing cache data at the scoring stage — step 8 enforces the hard
// reject once data IS available).
func mtfMultiplier(dir strategy.Direction, snap MTFSnapshot, ok bool) float64 {
	if !ok {
		return 1.0
	}
	if confluenceAgrees(dir, snap, 100) { // ATR ceiling checked separately in step 8
		return 1.0
	}
	return 0.5
}

func confluenceAgrees(dir strategy.Direction, snap MTFSnapshot, atrCeiling float64) bool {
	want := 1
	if dir == strategy.Short {
		want = -1
	}
	if snap.Trend1m != want || snap.Trend5m != want {
		return false
	}
	return snap.ATRPercent15m <= atrCeiling
}
