// Package instrument holds the per-symbol tick/step/notional rules and
// the price/qty normalization built on top of them.
package instrument

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"bybitengine/marketdata"
)

// fallbackCatalog is the fixed table used when the venue's
// instruments-info endpoint is unavailable at startup. Values mirror
// Bybit's commonly observed USDT-perpetual contract specs for the
// symbols this engine is most likely to run; any symbol outside this
// table has no fallback and must come from a live catalog refresh.
var fallbackCatalog = map[string]marketdata.Instrument{
	"BTCUSDT": {Symbol: "BTCUSDT", TickSize: dec("0.1"), QtyStep: dec("0.001"), MinOrderQty: dec("0.001"), MaxOrderQty: dec("100"), MinNotional: dec("5")},
	"ETHUSDT": {Symbol: "ETHUSDT", TickSize: dec("0.01"), QtyStep: dec("0.01"), MinOrderQty: dec("0.01"), MaxOrderQty: dec("1000"), MinNotional: dec("5")},
	"SOLUSDT": {Symbol: "SOLUSDT", TickSize: dec("0.001"), QtyStep: dec("0.1"), MinOrderQty: dec("0.1"), MaxOrderQty: dec("10000"), MinNotional: dec("5")},
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("instrument: bad fallback literal %q: %v", s, err))
	}
	return d
}

// Registry is a read-mostly, concurrency-safe store of instrument
// descriptors. Refreshed wholesale at startup (and optionally on an
// interval); readers never see a partially-updated catalog because the
// whole map is swapped atomically.
type Registry struct {
	current atomic.Pointer[map[string]marketdata.Instrument]
	mu      sync.Mutex // serializes refreshes only
}

// NewRegistry seeds a registry from the fixed fallback catalog.
func NewRegistry() *Registry {
	r := &Registry{}
	seed := make(map[string]marketdata.Instrument, len(fallbackCatalog))
	for k, v := range fallbackCatalog {
		seed[k] = v
	}
	r.current.Store(&seed)
	return r
}

// Refresh atomically replaces the catalog with the supplied set of
// instruments fetched from the venue.
func (r *Registry) Refresh(instruments []marketdata.Instrument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[string]marketdata.Instrument, len(instruments))
	for _, inst := range instruments {
		next[inst.Symbol] = inst
	}
	r.current.Store(&next)
}

// Get returns the instrument descriptor for symbol, or false if neither
// the live catalog nor the fallback table carries it.
func (r *Registry) Get(symbol string) (marketdata.Instrument, bool) {
	m := r.current.Load()
	if m == nil {
		inst, ok := fallbackCatalog[symbol]
		return inst, ok
	}
	inst, ok := (*m)[symbol]
	if !ok {
		inst, ok = fallbackCatalog[symbol]
	}
	return inst, ok
}
