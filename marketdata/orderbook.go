package marketdata

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Level is one price/size rung of an orderbook.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Orderbook is a local, snapshot-replaced order book. Bids are sorted
// descending by price, asks ascending.
type Orderbook struct {
	Symbol    string
	Bids      []Level // descending by price
	Asks      []Level // ascending by price
	UpdatedAt int64   // venue sequence/timestamp, ms
	gotSnapshot bool
}

// ErrNoSnapshot is returned when a delta arrives before any snapshot.
var ErrNoSnapshot = fmt.Errorf("marketdata: delta received before snapshot")

// ApplySnapshot replaces the local book wholesale.
func (ob *Orderbook) ApplySnapshot(bids, asks []Level, updatedAt int64) {
	ob.Bids = append([]Level(nil), bids...)
	ob.Asks = append([]Level(nil), asks...)
	ob.UpdatedAt = updatedAt
	ob.gotSnapshot = true
}

// ApplyDelta merges a delta frame into the local book. A size of zero
// removes that price level. Deltas received before a snapshot are
// discarded (ErrNoSnapshot).
func (ob *Orderbook) ApplyDelta(bidUpdates, askUpdates []Level, updatedAt int64) error {
	if !ob.gotSnapshot {
		return ErrNoSnapshot
	}
	ob.Bids = mergeLevels(ob.Bids, bidUpdates, true)
	ob.Asks = mergeLevels(ob.Asks, askUpdates, false)
	ob.UpdatedAt = updatedAt
	return nil
}

func mergeLevels(book []Level, updates []Level, descending bool) []Level {
	idx := make(map[string]int, len(book))
	keyOf := func(p decimal.Decimal) string { return p.String() }
	for i, l := range book {
		idx[keyOf(l.Price)] = i
	}
	for _, u := range updates {
		k := keyOf(u.Price)
		if u.Size.IsZero() {
			if i, ok := idx[k]; ok {
				book = append(book[:i], book[i+1:]...)
				idx = rebuildIndex(book, keyOf)
			}
			continue
		}
		if i, ok := idx[k]; ok {
			book[i].Size = u.Size
		} else {
			book = append(book, u)
			idx[k] = len(book) - 1
		}
	}
	sortLevels(book, descending)
	return book
}

func rebuildIndex(book []Level, keyOf func(decimal.Decimal) string) map[string]int {
	idx := make(map[string]int, len(book))
	for i, l := range book {
		idx[keyOf(l.Price)] = i
	}
	return idx
}

func sortLevels(book []Level, descending bool) {
	for i := 1; i < len(book); i++ {
		j := i
		for j > 0 {
			var outOfOrder bool
			if descending {
				outOfOrder = book[j-1].Price.LessThan(book[j].Price)
			} else {
				outOfOrder = book[j-1].Price.GreaterThan(book[j].Price)
			}
			if !outOfOrder {
				break
			}
			book[j-1], book[j] = book[j], book[j-1]
			j--
		}
	}
}

// BestBid returns the top bid level, if any.
func (ob *Orderbook) BestBid() (Level, bool) {
	if len(ob.Bids) == 0 {
		return Level{}, false
	}
	return ob.Bids[0], true
}

// BestAsk returns the top ask level, if any.
func (ob *Orderbook) BestAsk() (Level, bool) {
	if len(ob.Asks) == 0 {
		return Level{}, false
	}
	return ob.Asks[0], true
}

// OrderflowFeatures are the derived features computed once by the
// indicator pipeline whenever an orderbook is present.
type OrderflowFeatures struct {
	Spread                 decimal.Decimal
	SpreadPercent          float64
	MidPrice               decimal.Decimal
	DepthImbalance         float64 // (sum top10 bid - sum top10 ask) / sum top10
	LiquidityConcentration float64 // top5 / top10
	Valid                  bool
}

// Compute derives orderflow features from the current book. Returns
// Valid=false if best_ask <= best_bid or the book is empty.
func (ob *Orderbook) Compute() OrderflowFeatures {
	bestBid, okB := ob.BestBid()
	bestAsk, okA := ob.BestAsk()
	if !okB || !okA || !bestAsk.Price.GreaterThan(bestBid.Price) || bestBid.Price.LessThanOrEqual(decimal.Zero) {
		return OrderflowFeatures{}
	}

	spread := bestAsk.Price.Sub(bestBid.Price)
	mid := bestAsk.Price.Add(bestBid.Price).Div(decimal.NewFromInt(2))
	spreadPct, _ := spread.Div(mid).Mul(decimal.NewFromInt(100)).Float64()

	sumTop := func(levels []Level, n int) decimal.Decimal {
		sum := decimal.Zero
		for i := 0; i < n && i < len(levels); i++ {
			sum = sum.Add(levels[i].Size)
		}
		return sum
	}
	bid10 := sumTop(ob.Bids, 10)
	ask10 := sumTop(ob.Asks, 10)
	total10 := bid10.Add(ask10)
	var imbalance float64
	if total10.IsPositive() {
		imbalance, _ = bid10.Sub(ask10).Div(total10).Float64()
	}

	bid5 := sumTop(ob.Bids, 5)
	ask5 := sumTop(ob.Asks, 5)
	var concentration float64
	if total10.IsPositive() {
		concentration, _ = bid5.Add(ask5).Div(total10).Float64()
	}

	return OrderflowFeatures{
		Spread:                 spread,
		SpreadPercent:          spreadPct,
		MidPrice:               mid,
		DepthImbalance:         imbalance,
		LiquidityConcentration: concentration,
		Valid:                  true,
	}
}
