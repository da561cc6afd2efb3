package strategy

import (
	"github.com/shopspring/decimal"

	"bybitengine/marketdata"
	"bybitengine/regime"
)

// EntryMode selects how Breakout confirms a detected breakout.
type EntryMode int

const (
	Immediate EntryMode = iota
	Retest
)

const defaultRetestTTLBars = 5

// retestState tracks one direction's pending retest. Breakout keeps two
// independent instances (long and short) since either can be pending at
// once, though only one normally resolves before the other expires.
type retestState struct {
	pending bool
	level   decimal.Decimal
	ttl     int
}

// Breakout detects a Bollinger-band breakout and, depending on Mode,
// either confirms immediately or waits for a retest of the broken level
// before confirming. State is per-symbol and must never be shared.
type Breakout struct {
	Mode            EntryMode
	TTLBars         int
	SqueezeMaxWidth float64
	MinVolumeZScore float64
	MinVolumeRatio  float64
	ATRStopMult     decimal.Decimal
	TakeProfitR     decimal.Decimal

	longRetest  retestState
	shortRetest retestState
}

// NewBreakout builds a Breakout strategy instance. Callers must create
// one instance per symbol — the retest state machine is not safe to
// share.
func NewBreakout(mode EntryMode) *Breakout {
	return &Breakout{
		Mode:            mode,
		TTLBars:         defaultRetestTTLBars,
		SqueezeMaxWidth: regime.DefaultThresholds().BBWidthRange,
		MinVolumeZScore: 1.5,
		MinVolumeRatio:  1.2,
		ATRStopMult:     decimal.NewFromFloat(1.0),
		TakeProfitR:     decimal.NewFromFloat(2.5),
	}
}

func (s *Breakout) Name() string { return "Breakout" }

func (s *Breakout) GenerateSignal(bars *marketdata.Frame, features *marketdata.FeatureFrame) (*Signal, error) {
	last, ok := features.LastClosed()
	if !ok || !last.Valid() {
		return nil, nil
	}
	prev, ok := prevClosedRow(features)
	if !ok {
		return nil, nil
	}
	closedBars := bars.ClosedBars()
	if len(closedBars) == 0 {
		return nil, nil
	}
	entryBar := closedBars[len(closedBars)-1]

	longBreakout := prev.Close <= prev.BBUpper && last.Close > last.BBUpper
	shortBreakout := prev.Close >= prev.BBLower && last.Close < last.BBLower

	if sig := s.handleDirection(Long, longBreakout, last, prev, entryBar, features.Symbol, &s.longRetest, decimal.NewFromFloat(last.BBUpper)); sig != nil {
		return sig, nil
	}
	if sig := s.handleDirection(Short, shortBreakout, last, prev, entryBar, features.Symbol, &s.shortRetest, decimal.NewFromFloat(last.BBLower)); sig != nil {
		return sig, nil
	}
	return nil, nil
}

func (s *Breakout) handleDirection(dir Direction, breakoutBar bool, last, prev marketdata.FeatureRow, entryBar marketdata.Bar, symbol string, state *retestState, level decimal.Decimal) *Signal {
	squeezeOk := last.BBWidth <= s.SqueezeMaxWidth
	volumeOk := last.VolumeZScore >= s.MinVolumeZScore && last.VolumeImpulse >= s.MinVolumeRatio
	expansionOk := last.BBWidth > prev.BBWidth && last.ATRPercent > prev.ATRPercent

	if s.Mode == Immediate {
		if !breakoutBar {
			return nil
		}
		if !squeezeOk || !volumeOk || !expansionOk {
			return nil
		}
		return s.emit(dir, last, entryBar, symbol, squeezeOk, expansionOk, volumeOk, false)
	}

	// Retest mode: state machine per direction.
	if !state.pending {
		if breakoutBar {
			state.pending = true
			state.level = level
			state.ttl = s.TTLBars
		}
		return nil
	}

	state.ttl--
	retested := (dir == Long && entryBar.Low.LessThanOrEqual(state.level) && entryBar.Close.GreaterThan(state.level)) ||
		(dir == Short && entryBar.High.GreaterThanOrEqual(state.level) && entryBar.Close.LessThan(state.level))

	if retested {
		*state = retestState{}
		if !squeezeOk || !volumeOk || !expansionOk {
			return nil
		}
		return s.emit(dir, last, entryBar, symbol, squeezeOk, expansionOk, volumeOk, true)
	}

	if state.ttl <= 0 {
		*state = retestState{}
	}
	return nil
}

func (s *Breakout) emit(dir Direction, last marketdata.FeatureRow, entryBar marketdata.Bar, symbol string, squeezeOk, expansionOk, volumeOk, retestConfirmed bool) *Signal {
	entry := entryBar.Close
	atr := decimal.NewFromFloat(last.ATR)
	var stop decimal.Decimal
	if dir == Long {
		stop = decimal.NewFromFloat(last.BBUpper).Sub(atr.Mul(s.ATRStopMult))
	} else {
		stop = decimal.NewFromFloat(last.BBLower).Add(atr.Mul(s.ATRStopMult))
	}
	takeProfit := takeProfitAt(entry, stop, dir, s.TakeProfitR)

	reasons := []string{"squeeze_ok", "expansion_ok", "volume_ok"}
	if retestConfirmed {
		reasons = append(reasons, "retest_confirmed")
	}

	return &Signal{
		Strategy:      s.Name(),
		Symbol:        symbol,
		Direction:     dir,
		RawConfidence: 0.75,
		EntryPrice:    entry,
		StopLoss:      stop,
		TakeProfit:    takeProfit,
		Reasons:       reasons,
		Values: map[string]float64{
			"bb_width":      last.BBWidth,
			"atr_percent":   last.ATRPercent,
			"volume_zscore": last.VolumeZScore,
			"volume_ratio":  last.VolumeImpulse,
		},
	}
}
