package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffCapsAtMax(t *testing.T) {
	assert.Equal(t, InitialBackoff, Backoff(0))
	assert.Equal(t, MaxBackoff, Backoff(20))
}

func TestBackoffGrowsExponentially(t *testing.T) {
	first := Backoff(0)
	second := Backoff(1)
	assert.Equal(t, time.Duration(float64(first)*Multiplier), second)
}

func TestClassifySuccess(t *testing.T) {
	assert.Equal(t, ClassSuccess, Classify(0))
}

func TestClassifyAuthNotRetriable(t *testing.T) {
	c := Classify(10004)
	assert.Equal(t, ClassAuth, c)
	assert.False(t, Retriable(c))
}

func TestClassifyRateLimitIsRetriable(t *testing.T) {
	c := Classify(10018)
	assert.Equal(t, ClassRateLimited, c)
	assert.True(t, Retriable(c))
}

func TestClassifyUnknownCodeRejectedByDefault(t *testing.T) {
	c := Classify(999999)
	assert.Equal(t, ClassRejected, c)
	assert.False(t, Retriable(c))
}
