package orders

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bybitengine/execution"
	"bybitengine/strategy"
)

// Action is the decision a new signal produces against an existing
// position.
type Action string

const (
	ActionIgnore Action = "ignore"
	ActionAdd    Action = "add"
	ActionFlip   Action = "flip"
)

// ActionConfig mirrors config.SignalActionsConfig, expanded to the
// per-direction shape the decision table actually branches on.
type ActionConfig struct {
	OnSameDirection     Action // ignore | add, applied when the new signal agrees with the open position
	OnOppositeDirection Action // ignore | flip, applied when it disagrees
	MaxPyramidLevels    int
	PyramidQtyIncrease  decimal.Decimal // fraction of current qty added per ADD, e.g. 0.5 = 50%
	MaxPositionQtyIncreasePercent decimal.Decimal // ADD rejected if it would grow qty beyond this fraction of current
	RequireHigherConfidence       bool
	MinConfidenceForAction        float64
}

// DefaultActionConfig is the conservative default: ignore both same- and
// opposite-direction conflicts until a deployment opts into pyramiding
// or flipping.
func DefaultActionConfig() ActionConfig {
	return ActionConfig{
		OnSameDirection:               ActionIgnore,
		OnOppositeDirection:           ActionIgnore,
		MaxPyramidLevels:              3,
		PyramidQtyIncrease:            decimal.NewFromFloat(0.5),
		MaxPositionQtyIncreasePercent: decimal.NewFromFloat(0.5),
	}
}

// ActionResult is the outcome of evaluating one signal against one
// position (or the absence of one).
type ActionResult struct {
	Action  Action
	Success bool
	Message string

	OldQty decimal.Decimal
	NewQty decimal.Decimal

	// Set only when Action == ActionFlip and Success.
	CloseSide execution.Side
	CloseQty  decimal.Decimal
	OpenSide  execution.Side
}

func directionToSide(d strategy.Direction) execution.Side {
	if d == strategy.Long {
		return execution.Buy
	}
	return execution.Sell
}

// Handler evaluates the signal-action decision table: given the current
// position (if any), a new signal, and config, decide whether to
// ignore, add, or flip.
type Handler struct {
	Config ActionConfig
}

// NewHandler builds a Handler with the given config.
func NewHandler(cfg ActionConfig) *Handler { return &Handler{Config: cfg} }

// Evaluate decides what sig does to current (nil when flat).
func (h *Handler) Evaluate(current *TrackedPosition, sig *strategy.Signal, currentPrice decimal.Decimal) ActionResult {
	signalSide := directionToSide(sig.Direction)

	if current == nil || current.empty() {
		return ActionResult{Action: ActionIgnore, Success: true, Message: "no position conflict"}
	}

	sameDirection := current.Side == signalSide
	if sameDirection {
		return h.evaluateSameDirection(*current, sig)
	}
	return h.evaluateOppositeDirection(*current, sig, signalSide)
}

func (h *Handler) evaluateSameDirection(current TrackedPosition, sig *strategy.Signal) ActionResult {
	switch h.Config.OnSameDirection {
	case ActionAdd:
		return h.evaluateAdd(current, sig)
	default:
		return ActionResult{Action: ActionIgnore, Success: false, Message: "position conflict: same-direction signal ignored by config"}
	}
}

func (h *Handler) evaluateOppositeDirection(current TrackedPosition, sig *strategy.Signal, signalSide execution.Side) ActionResult {
	switch h.Config.OnOppositeDirection {
	case ActionFlip:
		return h.evaluateFlip(current, sig, signalSide)
	default:
		return ActionResult{Action: ActionIgnore, Success: false, Message: "position conflict: opposite-direction signal ignored by config"}
	}
}

func (h *Handler) evaluateAdd(current TrackedPosition, sig *strategy.Signal) ActionResult {
	if h.Config.RequireHigherConfidence && sig.ScaledConfidence < h.Config.MinConfidenceForAction {
		return ActionResult{Action: ActionAdd, Success: false, Message: fmt.Sprintf("confidence too low: %.2f < %.2f", sig.ScaledConfidence, h.Config.MinConfidenceForAction)}
	}
	if current.PyramidLevel >= h.Config.MaxPyramidLevels {
		return ActionResult{Action: ActionAdd, Success: false, Message: fmt.Sprintf("max pyramid levels reached (%d)", h.Config.MaxPyramidLevels)}
	}

	increase := h.Config.PyramidQtyIncrease
	if increase.IsZero() {
		increase = decimal.NewFromFloat(0.5)
	}
	addQty := current.Qty.Mul(increase)

	maxIncreasePct := h.Config.MaxPositionQtyIncreasePercent
	if !maxIncreasePct.IsZero() && addQty.GreaterThan(current.Qty.Mul(maxIncreasePct)) {
		return ActionResult{Action: ActionAdd, Success: false, Message: "exposure too high: add qty exceeds max position qty increase percent"}
	}

	newQty := current.Qty.Add(addQty)
	return ActionResult{
		Action:  ActionAdd,
		Success: true,
		Message: "pyramiding into existing position",
		OldQty:  current.Qty,
		NewQty:  newQty,
	}
}

func (h *Handler) evaluateFlip(current TrackedPosition, sig *strategy.Signal, signalSide execution.Side) ActionResult {
	if h.Config.RequireHigherConfidence && sig.ScaledConfidence < h.Config.MinConfidenceForAction {
		return ActionResult{Action: ActionFlip, Success: false, Message: fmt.Sprintf("confidence too low: %.2f < %.2f", sig.ScaledConfidence, h.Config.MinConfidenceForAction)}
	}
	return ActionResult{
		Action:    ActionFlip,
		Success:   true,
		Message:   "flipping position to opposite direction",
		CloseSide: current.Side,
		CloseQty:  current.Qty,
		OpenSide:  signalSide,
	}
}
