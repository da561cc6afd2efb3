package orders

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bybitengine/execution"
)

// LevelSpec is one step of a volatility profile: what fraction of the
// total position this level accounts for, and the condition that
// triggers it.
type LevelSpec struct {
	Percent   float64 // fraction of total qty, e.g. 0.6 = 60%
	Trigger   string  // "immediate" | "pullback" | "confirm_profit"
	Value     float64 // ATR multiple (pullback) or R multiple (confirm_profit); unused for immediate
}

// VolatilityProfiles maps an ATR% band name to its ordered entry levels.
type VolatilityProfiles map[string][]LevelSpec

// DefaultVolatilityProfiles mirrors the original system's volatility
// bands: low ATR% gets mostly-immediate entries, high ATR% spreads the
// size out over pullback/profit-confirmation levels to avoid paying the
// full size into a whippy market.
func DefaultVolatilityProfiles() VolatilityProfiles {
	return VolatilityProfiles{
		"low": {
			{Percent: 0.6, Trigger: "immediate"},
			{Percent: 0.4, Trigger: "confirm_profit", Value: 0.5},
		},
		"medium": {
			{Percent: 0.5, Trigger: "immediate"},
			{Percent: 0.3, Trigger: "pullback", Value: 0.3},
			{Percent: 0.2, Trigger: "confirm_profit", Value: 0.5},
		},
		"high": {
			{Percent: 0.4, Trigger: "immediate"},
			{Percent: 0.3, Trigger: "pullback", Value: 0.5},
			{Percent: 0.2, Trigger: "confirm_profit", Value: 0.5},
			{Percent: 0.1, Trigger: "confirm_profit", Value: 1.0},
		},
	}
}

const (
	atrBandLowCeiling    = 2.0
	atrBandMediumCeiling = 5.0
)

func bandFor(atrPercent float64) string {
	switch {
	case atrPercent < atrBandLowCeiling:
		return "low"
	case atrPercent <= atrBandMediumCeiling:
		return "medium"
	default:
		return "high"
	}
}

// EntryLevel is one level of a scaled entry, tracked from calculation
// through execution.
type EntryLevel struct {
	LevelNumber      int
	PercentOfTotal   float64
	TriggerCondition string
	TriggerValue     float64
	Qty              decimal.Decimal // absolute qty, set once the position's total size is known

	Executed    bool
	OrderID     string
	FilledQty   decimal.Decimal
	FilledPrice decimal.Decimal
	Timestamp   time.Time
}

// ScaledEntryManager splits a position's entry into multiple levels
// sized by the instrument's current ATR%, so a single signal doesn't pay
// the full position size at one price. Ported from the volatility-band
// entry splitter used by the discretionary desk this engine replaces.
type ScaledEntryManager struct {
	mu       sync.Mutex
	profiles VolatilityProfiles
	levels   map[string][]EntryLevel // positionID -> levels
}

// NewScaledEntryManager builds a manager using the default volatility
// profiles.
func NewScaledEntryManager() *ScaledEntryManager {
	return &ScaledEntryManager{profiles: DefaultVolatilityProfiles(), levels: make(map[string][]EntryLevel)}
}

// CalculateEntryLevels builds the level schedule for a new position,
// selecting a volatility profile by atrPercent and converting each
// level's percent-of-total into an absolute qty.
func (s *ScaledEntryManager) CalculateEntryLevels(positionID string, totalQty decimal.Decimal, atrPercent float64) []EntryLevel {
	s.mu.Lock()
	defer s.mu.Unlock()

	specs := s.profiles[bandFor(atrPercent)]
	levels := make([]EntryLevel, 0, len(specs))
	for i, spec := range specs {
		pct := decimal.NewFromFloat(spec.Percent)
		levels = append(levels, EntryLevel{
			LevelNumber:      i + 1,
			PercentOfTotal:   spec.Percent,
			TriggerCondition: spec.Trigger,
			TriggerValue:     spec.Value,
			Qty:              totalQty.Mul(pct),
		})
	}
	s.levels[positionID] = levels
	return levels
}

// GetNextEntryTrigger returns the next unexecuted level for positionID
// and the price action should trigger at, or ok=false if every level is
// already executed. action is "place_now", "wait_above", "wait_below",
// or "wait" (no directional trigger computable yet).
func (s *ScaledEntryManager) GetNextEntryTrigger(positionID string, entryPrice, atr decimal.Decimal, side execution.Side) (level EntryLevel, trigger decimal.Decimal, action string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	levels := s.levels[positionID]
	for _, lvl := range levels {
		if lvl.Executed {
			continue
		}
		switch lvl.TriggerCondition {
		case "immediate":
			return lvl, entryPrice, "place_now", true

		case "pullback":
			pullbackDistance := atr.Mul(decimal.NewFromFloat(lvl.TriggerValue))
			if side == execution.Buy {
				trigger = entryPrice.Sub(pullbackDistance)
				return lvl, trigger, "wait_below", true
			}
			trigger = entryPrice.Add(pullbackDistance)
			return lvl, trigger, "wait_above", true

		case "confirm_profit":
			slDistance := atr.Mul(decimal.NewFromFloat(1.5))
			profitTarget := slDistance.Mul(decimal.NewFromFloat(lvl.TriggerValue))
			if side == execution.Buy {
				trigger = entryPrice.Add(profitTarget)
				return lvl, trigger, "wait_above", true
			}
			trigger = entryPrice.Sub(profitTarget)
			return lvl, trigger, "wait_below", true

		default:
			return lvl, decimal.Zero, "wait", true
		}
	}
	return EntryLevel{}, decimal.Zero, "", false
}

// MarkLevelExecuted records a fill against levelNumber. Returns false if
// positionID or levelNumber is unknown.
func (s *ScaledEntryManager) MarkLevelExecuted(positionID string, levelNumber int, orderID string, filledQty, filledPrice decimal.Decimal, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	levels := s.levels[positionID]
	for i := range levels {
		if levels[i].LevelNumber != levelNumber {
			continue
		}
		levels[i].Executed = true
		levels[i].OrderID = orderID
		levels[i].FilledQty = filledQty
		levels[i].FilledPrice = filledPrice
		levels[i].Timestamp = at
		return true
	}
	return false
}

// GetTotalFilledQty sums FilledQty across every executed level.
func (s *ScaledEntryManager) GetTotalFilledQty(positionID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, lvl := range s.levels[positionID] {
		if lvl.Executed {
			total = total.Add(lvl.FilledQty)
		}
	}
	return total
}

// GetAverageEntryPrice volume-weights FilledPrice across every executed
// level. ok is false if nothing has executed yet.
func (s *ScaledEntryManager) GetAverageEntryPrice(positionID string) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totalQty := decimal.Zero
	weighted := decimal.Zero
	for _, lvl := range s.levels[positionID] {
		if !lvl.Executed {
			continue
		}
		totalQty = totalQty.Add(lvl.FilledQty)
		weighted = weighted.Add(lvl.FilledPrice.Mul(lvl.FilledQty))
	}
	if totalQty.IsZero() {
		return decimal.Zero, false
	}
	return weighted.Div(totalQty), true
}

// CleanupPosition discards all level state for positionID, once it is
// closed or abandoned.
func (s *ScaledEntryManager) CleanupPosition(positionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.levels, positionID)
}

// EntrySummary is a human-readable snapshot of a position's scaled
// entry progress, used for logging and the status API.
type EntrySummary struct {
	PositionID    string
	TotalLevels   int
	ExecutedCount int
	FilledQty     decimal.Decimal
	AveragePrice  decimal.Decimal
	Complete      bool
}

// GetEntrySummary reports progress for positionID. ok is false if the
// position has no calculated levels.
func (s *ScaledEntryManager) GetEntrySummary(positionID string) (EntrySummary, bool) {
	s.mu.Lock()
	levels, ok := s.levels[positionID]
	s.mu.Unlock()
	if !ok {
		return EntrySummary{}, false
	}

	executed := 0
	for _, lvl := range levels {
		if lvl.Executed {
			executed++
		}
	}
	filledQty := s.GetTotalFilledQty(positionID)
	avgPrice, _ := s.GetAverageEntryPrice(positionID)

	return EntrySummary{
		PositionID:    positionID,
		TotalLevels:   len(levels),
		ExecutedCount: executed,
		FilledQty:     filledQty,
		AveragePrice:  avgPrice,
		Complete:      executed == len(levels),
	}, true
}
