package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bybitengine/execution"
)

func TestCalculateEntryLevelsLowVolatilityProfile(t *testing.T) {
	s := NewScaledEntryManager()
	levels := s.CalculateEntryLevels("pos-1", dec("1.0"), 1.2)

	require.Len(t, levels, 2)
	require.Equal(t, "immediate", levels[0].TriggerCondition)
	require.True(t, dec("0.6").Equal(levels[0].Qty))
	require.Equal(t, "confirm_profit", levels[1].TriggerCondition)
	require.True(t, dec("0.4").Equal(levels[1].Qty))
}

func TestCalculateEntryLevelsMediumVolatilityProfile(t *testing.T) {
	s := NewScaledEntryManager()
	levels := s.CalculateEntryLevels("pos-1", dec("10"), 3.0)

	require.Len(t, levels, 3)
	require.Equal(t, "pullback", levels[1].TriggerCondition)
	require.True(t, dec("3").Equal(levels[1].Qty))
}

func TestCalculateEntryLevelsHighVolatilityProfile(t *testing.T) {
	s := NewScaledEntryManager()
	levels := s.CalculateEntryLevels("pos-1", dec("10"), 6.0)

	require.Len(t, levels, 4)
	require.True(t, dec("1").Equal(levels[3].Qty))
	require.Equal(t, "confirm_profit", levels[3].TriggerCondition)
	require.Equal(t, 1.0, levels[3].TriggerValue)
}

func TestGetNextEntryTriggerImmediatePlacesNow(t *testing.T) {
	s := NewScaledEntryManager()
	s.CalculateEntryLevels("pos-1", dec("1.0"), 1.2)

	lvl, trigger, action, ok := s.GetNextEntryTrigger("pos-1", dec("50000"), dec("500"), execution.Buy)
	require.True(t, ok)
	require.Equal(t, "place_now", action)
	require.Equal(t, 1, lvl.LevelNumber)
	require.True(t, dec("50000").Equal(trigger))
}

func TestGetNextEntryTriggerPullbackWaitsBelowForLong(t *testing.T) {
	s := NewScaledEntryManager()
	s.CalculateEntryLevels("pos-1", dec("10"), 3.0)
	s.MarkLevelExecuted("pos-1", 1, "o-1", dec("5"), dec("50000"), time.Now())

	_, trigger, action, ok := s.GetNextEntryTrigger("pos-1", dec("50000"), dec("100"), execution.Buy)
	require.True(t, ok)
	require.Equal(t, "wait_below", action)
	require.True(t, dec("49970").Equal(trigger)) // 50000 - (100 * 0.3)
}

func TestGetNextEntryTriggerConfirmProfitWaitsAboveForLong(t *testing.T) {
	s := NewScaledEntryManager()
	s.CalculateEntryLevels("pos-1", dec("1.0"), 1.2)
	s.MarkLevelExecuted("pos-1", 1, "o-1", dec("0.6"), dec("50000"), time.Now())

	_, trigger, action, ok := s.GetNextEntryTrigger("pos-1", dec("50000"), dec("100"), execution.Buy)
	require.True(t, ok)
	require.Equal(t, "wait_above", action)
	require.True(t, dec("50075").Equal(trigger)) // sl_distance=150, target=150*0.5=75
}

func TestGetNextEntryTriggerAllExecutedReturnsNotOK(t *testing.T) {
	s := NewScaledEntryManager()
	s.CalculateEntryLevels("pos-1", dec("1.0"), 1.2)
	s.MarkLevelExecuted("pos-1", 1, "o-1", dec("0.6"), dec("50000"), time.Now())
	s.MarkLevelExecuted("pos-1", 2, "o-2", dec("0.4"), dec("50500"), time.Now())

	_, _, _, ok := s.GetNextEntryTrigger("pos-1", dec("50000"), dec("100"), execution.Buy)
	require.False(t, ok)
}

func TestMarkLevelExecutedUnknownLevelReturnsFalse(t *testing.T) {
	s := NewScaledEntryManager()
	s.CalculateEntryLevels("pos-1", dec("1.0"), 1.2)
	ok := s.MarkLevelExecuted("pos-1", 99, "o-1", dec("0.1"), dec("50000"), time.Now())
	require.False(t, ok)
}

func TestGetAverageEntryPriceVolumeWeightsExecutedLevels(t *testing.T) {
	s := NewScaledEntryManager()
	s.CalculateEntryLevels("pos-1", dec("1.0"), 1.2)
	s.MarkLevelExecuted("pos-1", 1, "o-1", dec("0.6"), dec("50000"), time.Now())
	s.MarkLevelExecuted("pos-1", 2, "o-2", dec("0.4"), dec("51000"), time.Now())

	avg, ok := s.GetAverageEntryPrice("pos-1")
	require.True(t, ok)
	require.True(t, dec("50400").Equal(avg)) // (50000*0.6 + 51000*0.4) / 1.0

	total := s.GetTotalFilledQty("pos-1")
	require.True(t, dec("1.0").Equal(total))
}

func TestGetAverageEntryPriceNoExecutionsReturnsNotOK(t *testing.T) {
	s := NewScaledEntryManager()
	s.CalculateEntryLevels("pos-1", dec("1.0"), 1.2)
	_, ok := s.GetAverageEntryPrice("pos-1")
	require.False(t, ok)
}

func TestGetEntrySummaryReportsCompleteness(t *testing.T) {
	s := NewScaledEntryManager()
	s.CalculateEntryLevels("pos-1", dec("1.0"), 1.2)
	s.MarkLevelExecuted("pos-1", 1, "o-1", dec("0.6"), dec("50000"), time.Now())

	summary, ok := s.GetEntrySummary("pos-1")
	require.True(t, ok)
	require.Equal(t, 2, summary.TotalLevels)
	require.Equal(t, 1, summary.ExecutedCount)
	require.False(t, summary.Complete)

	s.MarkLevelExecuted("pos-1", 2, "o-2", dec("0.4"), dec("51000"), time.Now())
	summary, _ = s.GetEntrySummary("pos-1")
	require.True(t, summary.Complete)
}

func TestCleanupPositionRemovesLevelState(t *testing.T) {
	s := NewScaledEntryManager()
	s.CalculateEntryLevels("pos-1", dec("1.0"), 1.2)
	s.CleanupPosition("pos-1")

	_, ok := s.GetEntrySummary("pos-1")
	require.False(t, ok)
}
