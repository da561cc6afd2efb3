package meta

import (
	"sync"

	"bybitengine/marketdata"
)

// TimeframeCache tracks the latest closed feature row per timeframe for
// every symbol, feeding the 1m/5m/15m confluence check. Trend direction
// is close vs ema_20, matching the confluence rule in the meta sequence.
type TimeframeCache struct {
	mu   sync.RWMutex
	rows map[string]map[string]marketdata.FeatureRow // symbol -> interval -> row
}

// NewTimeframeCache builds an empty cache.
func NewTimeframeCache() *TimeframeCache {
	return &TimeframeCache{rows: make(map[string]map[string]marketdata.FeatureRow)}
}

// Update records the latest closed row for a symbol/interval pair.
func (c *TimeframeCache) Update(symbol, interval string, row marketdata.FeatureRow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rows[symbol] == nil {
		c.rows[symbol] = make(map[string]marketdata.FeatureRow)
	}
	c.rows[symbol][interval] = row
}

// Snapshot implements MTFProvider: it is available only once 1m, 5m and
// 15m rows have all been seen for the symbol.
func (c *TimeframeCache) Snapshot(symbol string) (MTFSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byInterval, ok := c.rows[symbol]
	if !ok {
		return MTFSnapshot{}, false
	}
	r1, ok1 := byInterval["1"]
	r5, ok5 := byInterval["5"]
	r15, ok15 := byInterval["15"]
	if !ok1 || !ok5 || !ok15 {
		return MTFSnapshot{}, false
	}

	return MTFSnapshot{
		Trend1m:       trendDirection(r1),
		Trend5m:       trendDirection(r5),
		ATRPercent15m: r15.ATRPercent,
		Available:     true,
	}, true
}

func trendDirection(row marketdata.FeatureRow) int {
	switch {
	case row.Close > row.EMA20:
		return 1
	case row.Close < row.EMA20:
		return -1
	default:
		return 0
	}
}
