package marketdata

import "github.com/shopspring/decimal"

// Instrument describes the tradable-unit rules for one symbol. Immutable
// once loaded; refreshed only at startup against the venue catalog.
type Instrument struct {
	Symbol      string
	TickSize    decimal.Decimal
	QtyStep     decimal.Decimal
	MinOrderQty decimal.Decimal
	MaxOrderQty decimal.Decimal
	MinNotional decimal.Decimal
}
