package instrument

import (
	"github.com/shopspring/decimal"

	"bybitengine/bterr"
)

// Normalizer binds a Registry to the normalize+validate path so callers
// never normalize against a stale or hand-built Instrument.
type Normalizer struct {
	Registry *Registry
}

// NewNormalizer wraps a registry.
func NewNormalizer(r *Registry) *Normalizer { return &Normalizer{Registry: r} }

// NormalizeOrder rounds price and qty per the symbol's instrument rules
// and validates the result. A symbol with no instrument descriptor is a
// hard IntegrityError — there is no silent pass-through.
func (n *Normalizer) NormalizeOrder(symbol string, price, qty decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	inst, ok := n.Registry.Get(symbol)
	if !ok {
		return decimal.Zero, decimal.Zero, bterr.New(bterr.KindIntegrity, "instrument.NormalizeOrder", symbol, "no instrument descriptor", nil)
	}
	normPrice := NormalizePrice(inst.TickSize, price)
	normQty := NormalizeQty(inst.QtyStep, qty)
	if err := Validate(inst, normPrice, normQty, "instrument.NormalizeOrder"); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return normPrice, normQty, nil
}
