package orders

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bybitengine/execution"
)

// PositionManager is the single place position state mutates. Every
// symbol is owned exclusively: callers never touch the venue's position
// for a symbol except through the gateway calls this package's siblings
// (signal_action, scaled_entry) drive.
type PositionManager struct {
	mu        sync.Mutex
	orders    *Manager
	positions map[string]TrackedPosition
}

// NewPositionManager wraps an order Manager.
func NewPositionManager(orders *Manager) *PositionManager {
	return &PositionManager{orders: orders, positions: make(map[string]TrackedPosition)}
}

// RegisterPosition records a freshly opened position at pyramid level 1.
func (pm *PositionManager) RegisterPosition(symbol string, side execution.Side, entryPrice, qty decimal.Decimal, orderID, strategyID string, at time.Time) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.positions[symbol] = TrackedPosition{
		Symbol:       symbol,
		Side:         side,
		Qty:          qty,
		EntryPrice:   entryPrice,
		PyramidLevel: 1,
		StrategyID:   strategyID,
		OrderID:      orderID,
		OpenedAt:     at,
		UpdatedAt:    at,
	}
}

// AddToPosition pyramids into an existing position, volume-weighting the
// entry price and incrementing the pyramid level. No-op if the symbol
// has no open position.
func (pm *PositionManager) AddToPosition(symbol string, addQty, entryPrice decimal.Decimal, orderID string, at time.Time) (TrackedPosition, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pos, ok := pm.positions[symbol]
	if !ok {
		return TrackedPosition{}, false
	}

	totalQty := pos.Qty.Add(addQty)
	weighted := pos.EntryPrice.Mul(pos.Qty).Add(entryPrice.Mul(addQty))
	pos.EntryPrice = weighted.Div(totalQty)
	pos.Qty = totalQty
	pos.PyramidLevel++
	pos.OrderID = orderID
	pos.UpdatedAt = at
	pm.positions[symbol] = pos
	return pos, true
}

// ClosePosition removes the tracked position and returns it, or false if
// there was none.
func (pm *PositionManager) ClosePosition(symbol string) (TrackedPosition, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pos, ok := pm.positions[symbol]
	if !ok {
		return TrackedPosition{}, false
	}
	delete(pm.positions, symbol)
	return pos, true
}

// GetPosition returns the tracked position for symbol, if any.
func (pm *PositionManager) GetPosition(symbol string) (TrackedPosition, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pos, ok := pm.positions[symbol]
	return pos, ok
}

// HasPosition reports whether symbol currently has an open position.
func (pm *PositionManager) HasPosition(symbol string) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	_, ok := pm.positions[symbol]
	return ok
}

// GetAllPositions returns a snapshot of every open position, keyed by
// symbol.
func (pm *PositionManager) GetAllPositions() map[string]TrackedPosition {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make(map[string]TrackedPosition, len(pm.positions))
	for k, v := range pm.positions {
		out[k] = v
	}
	return out
}
