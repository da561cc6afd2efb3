// Package orders tracks order lifecycle and open-position state, and
// decides what a new signal does to an existing position: ignore, add
// (pyramid), or flip. None of it talks to the venue directly — every
// state change here is paired with a caller-driven execution.Gateway
// call, so this package stays deterministic and unit-testable without a
// network.
package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"bybitengine/execution"
)

// TrackedPosition is the engine's local record of an open position,
// richer than execution.Position: it remembers pyramid level and which
// strategy opened it, neither of which the venue reports back.
type TrackedPosition struct {
	Symbol       string
	Side         execution.Side
	Qty          decimal.Decimal
	EntryPrice   decimal.Decimal
	PyramidLevel int
	StrategyID   string
	OrderID      string
	OpenedAt     time.Time
	UpdatedAt    time.Time
}

func (p TrackedPosition) empty() bool { return p.Symbol == "" }
