package marketdata

import "github.com/shopspring/decimal"

// fundingBiasThreshold is the funding-rate magnitude above which funding is
// considered directionally biased rather than neutral.
var fundingBiasThreshold = decimal.NewFromFloat(0.01)

// Derivatives is a perpetual-futures snapshot: mark/index price, funding,
// and open interest. Only meaningful for derivatives symbols.
type Derivatives struct {
	MarkPrice    decimal.Decimal
	IndexPrice   decimal.Decimal
	FundingRate  decimal.Decimal
	OpenInterest decimal.Decimal
	OIChange     decimal.Decimal // signed change vs previous snapshot
}

// MarkIndexDeviation is the percent deviation of mark from index price.
func (d Derivatives) MarkIndexDeviation() float64 {
	if d.IndexPrice.IsZero() {
		return 0
	}
	dev, _ := d.MarkPrice.Sub(d.IndexPrice).Div(d.IndexPrice).Mul(decimal.NewFromInt(100)).Float64()
	return dev
}

// FundingBias buckets the funding rate into -1 (short-favoring, rate
// negative beyond threshold), 0 (neutral) or +1 (long-favoring).
func (d Derivatives) FundingBias() int {
	switch {
	case d.FundingRate.GreaterThan(fundingBiasThreshold):
		return 1
	case d.FundingRate.LessThan(fundingBiasThreshold.Neg()):
		return -1
	default:
		return 0
	}
}
