package instrument

import (
	"bybitengine/bterr"
	"bybitengine/marketdata"

	"github.com/shopspring/decimal"
)

// NormalizePrice rounds p to the nearest multiple of tickSize (half-up).
// Idempotent and monotone: normalizing an already-normalized price is a
// no-op, and p1 <= p2 implies normalize(p1) <= normalize(p2).
func NormalizePrice(tickSize, p decimal.Decimal) decimal.Decimal {
	if tickSize.IsZero() {
		return p
	}
	steps := p.DivRound(tickSize, 0)
	return steps.Mul(tickSize)
}

// NormalizeQty floors q down to the nearest multiple of qtyStep. Flooring
// (rather than rounding) guarantees the normalized qty never exceeds what
// the risk model sized.
func NormalizeQty(qtyStep, q decimal.Decimal) decimal.Decimal {
	if qtyStep.IsZero() {
		return q
	}
	steps := q.Div(qtyStep).Floor()
	return steps.Mul(qtyStep)
}

// Validate checks a normalized (price, qty) pair against an instrument's
// minimums. Returns a *bterr.Error(KindIntegrity) on violation.
func Validate(inst marketdata.Instrument, price, qty decimal.Decimal, op string) error {
	if qty.LessThan(inst.MinOrderQty) {
		return bterr.New(bterr.KindIntegrity, op, inst.Symbol, "qty below min_order_qty", nil)
	}
	notional := qty.Mul(price)
	if notional.LessThan(inst.MinNotional) {
		return bterr.New(bterr.KindIntegrity, op, inst.Symbol, "notional below min_notional", nil)
	}
	return nil
}
