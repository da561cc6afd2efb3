// Package killswitch implements the two-state emergency stop: ACTIVE
// (trading allowed) and HALTED (every order placement is refused until an
// explicit reset). It is the one process-wide mutable flag the engine
// carries outside of per-symbol loop state.
package killswitch

import (
	"sync"
	"time"

	"bybitengine/bterr"
	"bybitengine/metrics"
)

// Status is the kill switch's coarse state.
type Status string

const (
	Active Status = "active"
	Halted Status = "halted"
)

// Activation records one activate() call, successful or not.
type Activation struct {
	Timestamp       time.Time
	Reason          string
	Symbols         []string // nil means "all symbols"
	OrdersCancelled int
	PositionsClosed int
	Errors          []string
}

// Closer cancels orders and closes positions as part of an emergency
// shutdown. The Live gateway implements this; Paper/Backtest gateways can
// implement a no-op or simulated version.
type Closer interface {
	CancelAllOrders(symbol string) (cancelled int, err error)
	CloseAllPositions(symbol string) (closed int, err error)
}

// PersistedFlag is the dual-indicator durability contract: a legacy flag
// living in an errors-table row, and the current flag in the config-flags
// table. Both must be cleared on reset; either one being set means halted
// on read.
type PersistedFlag interface {
	SetHalted(halted bool) error
	SetLegacyHalted(halted bool) error
	IsHalted() (bool, error)
	IsLegacyHalted() (bool, error)
}

// Switch is the in-memory kill switch, optionally backed by a persisted
// dual-indicator flag.
type Switch struct {
	mu      sync.Mutex
	halted  bool
	haltedAt time.Time
	activationCount int
	history []Activation
	cancelledOrders int
	closedPositions int

	Persist PersistedFlag

	// knownSymbols is the deployment's actual symbol set, swept by
	// Activate when called with no explicit symbol list. Unlike a
	// hardcoded fallback, this reflects whatever the caller is actually
	// trading.
	knownSymbols []string
}

// New builds a Switch starting in the Active state. knownSymbols is the
// full set of symbols this deployment trades; Activate sweeps it when
// called with no explicit symbol list, so "all known" means what the
// deployment actually configured rather than a guessed default.
func New(persist PersistedFlag, knownSymbols []string) *Switch {
	return &Switch{Persist: persist, knownSymbols: knownSymbols}
}

// IsHalted reports the current in-memory state. Callers needing the
// durable cross-process view should also consult Persist directly (the
// engine calls Activate/Reset through the same Switch instance so the two
// normally agree).
func (s *Switch) IsHalted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// Activate performs an emergency shutdown: optionally cancels orders and
// closes positions via closer, then sets halted. A no-op (with a single
// "already halted" error entry) if already halted.
func (s *Switch) Activate(reason string, symbols []string, closer Closer, cancelOrders, closePositions bool) Activation {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.halted {
		return Activation{Timestamp: now, Reason: reason, Errors: []string{"already halted"}}
	}

	target := symbols
	if len(target) == 0 {
		target = s.knownSymbols
	}

	var errs []string
	var cancelled, closed int

	if cancelOrders && closer != nil {
		for _, sym := range target {
			n, err := closer.CancelAllOrders(sym)
			cancelled += n
			if err != nil {
				errs = append(errs, err.Error())
			}
		}
	}
	if closePositions && closer != nil {
		for _, sym := range target {
			n, err := closer.CloseAllPositions(sym)
			closed += n
			if err != nil {
				errs = append(errs, err.Error())
			}
		}
	}

	s.halted = true
	s.haltedAt = now
	s.activationCount++
	s.cancelledOrders += cancelled
	s.closedPositions += closed
	metrics.KillSwitchActivations.Inc()
	metrics.KillSwitchHalted.Set(1)

	if s.Persist != nil {
		if err := s.Persist.SetHalted(true); err != nil {
			errs = append(errs, err.Error())
		}
		if err := s.Persist.SetLegacyHalted(true); err != nil {
			errs = append(errs, err.Error())
		}
	}

	record := Activation{
		Timestamp:       now,
		Reason:          reason,
		Symbols:         symbols,
		OrdersCancelled: cancelled,
		PositionsClosed: closed,
		Errors:          errs,
	}
	s.history = append(s.history, record)
	return record
}

// Reset clears both the in-memory flag and the persisted dual indicator
// (new config-flags row and the legacy errors-table row), so a single
// reset call truly re-enables trading.
func (s *Switch) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halted = false
	s.haltedAt = time.Time{}
	metrics.KillSwitchHalted.Set(0)
	if s.Persist == nil {
		return nil
	}
	if err := s.Persist.SetHalted(false); err != nil {
		return err
	}
	return s.Persist.SetLegacyHalted(false)
}

// GuardPlaceOrder returns a HaltedError if trading is currently disabled.
// The execution gateway calls this before submitting any order.
func (s *Switch) GuardPlaceOrder(symbol string) error {
	if s.IsHalted() {
		return bterr.New(bterr.KindHalted, "killswitch.GuardPlaceOrder", symbol, "kill switch active", nil)
	}
	return nil
}

// History returns a copy of the activation history.
func (s *Switch) History() []Activation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Activation, len(s.history))
	copy(out, s.history)
	return out
}

// ActivationCount reports how many times Activate has successfully
// transitioned the switch from Active to Halted.
func (s *Switch) ActivationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activationCount
}
