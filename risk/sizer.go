// Package risk sizes positions and enforces the exposure caps that bound
// how much of the account any single entry, or the whole book, can risk.
package risk

import (
	"github.com/shopspring/decimal"

	"bybitengine/bterr"
	"bybitengine/marketdata"
)

// Limits are the per-deployment risk caps. RiskPerTradePct is a fraction
// (0.01 == 1%); ATRPctHigh is in percent units, like atr_percent.
type Limits struct {
	RiskPerTradePct   decimal.Decimal
	MaxLeverage       decimal.Decimal
	MaxTotalExposure  decimal.Decimal
	ATRPctHigh        float64 // reuses the regime scorer's high-volatility boundary
	ATRAttenuation    decimal.Decimal // multiplier applied to RiskPerTradePct when atr_percent > ATRPctHigh
}

// DefaultATRAttenuation halves the risk budget in high-ATR% markets.
var DefaultATRAttenuation = decimal.NewFromFloat(0.5)

// Request is the sizing input.
type Request struct {
	Equity     decimal.Decimal
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	Side       Side
	Symbol     string
	Instrument marketdata.Instrument
	ATRPercent float64

	OpenNotionalExcludingSymbol decimal.Decimal // sum of notional across all other open symbols
}

// Side is long or short, used only to validate the stop is on the
// correct side of entry.
type Side int

const (
	Long Side = iota
	Short
)

// Sizer computes position size under the equity-percent risk model.
type Sizer struct {
	Limits Limits
}

// New builds a Sizer with the given limits.
func New(limits Limits) *Sizer { return &Sizer{Limits: limits} }

// Size computes the qty for req, rounding to the instrument's qty_step
// and enforcing the full cap sequence from the risk contract. Returns a
// *bterr.Error(KindIntegrity) when the request cannot be sized at all.
func (s *Sizer) Size(req Request) (decimal.Decimal, error) {
	const op = "risk.Size"

	if req.Side == Long && !req.StopLoss.LessThan(req.EntryPrice) {
		return decimal.Zero, bterr.New(bterr.KindIntegrity, op, req.Symbol, "stop not below entry for long", nil)
	}
	if req.Side == Short && !req.StopLoss.GreaterThan(req.EntryPrice) {
		return decimal.Zero, bterr.New(bterr.KindIntegrity, op, req.Symbol, "stop not above entry for short", nil)
	}

	riskPct := s.Limits.RiskPerTradePct
	if req.ATRPercent > s.Limits.ATRPctHigh {
		atten := s.Limits.ATRAttenuation
		if atten.IsZero() {
			atten = DefaultATRAttenuation
		}
		riskPct = riskPct.Mul(atten)
	}

	riskBudget := req.Equity.Mul(riskPct)
	perUnitRisk := req.EntryPrice.Sub(req.StopLoss).Abs()
	if perUnitRisk.IsZero() {
		return decimal.Zero, bterr.New(bterr.KindIntegrity, op, req.Symbol, "stop equals entry", nil)
	}

	qty := riskBudget.Div(perUnitRisk)
	qty = floorToStep(qty, req.Instrument.QtyStep)

	if qty.LessThan(req.Instrument.MinOrderQty) {
		return decimal.Zero, bterr.New(bterr.KindIntegrity, op, req.Symbol, "sized qty below min_order_qty", nil)
	}

	notional := qty.Mul(req.EntryPrice)
	if notional.LessThan(req.Instrument.MinNotional) {
		return decimal.Zero, bterr.New(bterr.KindIntegrity, op, req.Symbol, "sized notional below min_notional", nil)
	}

	if !s.Limits.MaxLeverage.IsZero() && !req.Equity.IsZero() {
		leverage := notional.Div(req.Equity)
		if leverage.GreaterThan(s.Limits.MaxLeverage) {
			scaled := req.Equity.Mul(s.Limits.MaxLeverage).Div(req.EntryPrice)
			scaled = floorToStep(scaled, req.Instrument.QtyStep)
			if scaled.LessThan(req.Instrument.MinOrderQty) {
				return decimal.Zero, bterr.New(bterr.KindIntegrity, op, req.Symbol, "leverage-scaled qty below min_order_qty", nil)
			}
			qty = scaled
			notional = qty.Mul(req.EntryPrice)
		}
	}

	if !s.Limits.MaxTotalExposure.IsZero() {
		total := req.OpenNotionalExcludingSymbol.Add(notional)
		if total.GreaterThan(s.Limits.MaxTotalExposure) {
			return decimal.Zero, bterr.New(bterr.KindIntegrity, op, req.Symbol, "exceeds max_total_exposure", nil)
		}
	}

	return qty, nil
}

func floorToStep(v, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}
