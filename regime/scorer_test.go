package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bybitengine/marketdata"
)

func rowWith(adx, ema20, ema50, close, atrPercent, bbWidth, volZ float64) marketdata.FeatureRow {
	return marketdata.FeatureRow{
		ADX: adx, EMA20: ema20, EMA50: ema50, Close: close,
		ATRPercent: atrPercent, BBWidth: bbWidth, VolumeZScore: volZ,
	}
}

func TestScoreHighVolatilityTakesPriority(t *testing.T) {
	s := New()
	row := rowWith(30, 105, 100, 110, 10, 0.05, 0)
	scores := s.Score(row, 0, 0, nil)
	assert.Equal(t, HighVol, scores.Label)
}

func TestScoreTrendUp(t *testing.T) {
	s := New()
	row := rowWith(35, 110, 100, 112, 1.0, 0.02, 0)
	scores := s.Score(row, 0.1, 0.1, nil)
	assert.Equal(t, TrendUp, scores.Label)
	assert.Contains(t, scores.Reasons, "strong_adx")
}

func TestScoreTrendDown(t *testing.T) {
	s := New()
	row := rowWith(35, 90, 100, 88, 1.0, 0.02, 0)
	scores := s.Score(row, 0.1, 0.1, nil)
	assert.Equal(t, TrendDown, scores.Label)
}

func TestScoreRange(t *testing.T) {
	s := New()
	row := rowWith(10, 100, 100.5, 100, 1.0, 0.01, 0)
	scores := s.Score(row, -0.1, 0.1, nil)
	assert.Equal(t, Range, scores.Label)
}

func TestScoreMissingCriticalIndicatorsReturnsUnknown(t *testing.T) {
	s := New()
	row := marketdata.FeatureRow{EMA20: 0, EMA50: 0, Close: 0}
	scores := s.Score(row, 0, 0, nil)
	assert.Equal(t, Unknown, scores.Label)
	assert.Equal(t, 0.0, scores.TrendScore)
}

func TestNormalizeClampsToUnitRange(t *testing.T) {
	assert.Equal(t, 0.0, normalize(-10, 0, 100))
	assert.Equal(t, 1.0, normalize(200, 0, 100))
	assert.InDelta(t, 0.5, normalize(50, 0, 100), 1e-9)
}
