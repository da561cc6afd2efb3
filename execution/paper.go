package execution

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bybitengine/bterr"
)

// pendingLimit is a resting limit order waiting for a reference price
// that crosses it.
type pendingLimit struct {
	req    OrderRequest
	id     string
	linkID string
}

// Paper is an in-process Gateway simulator. Market orders fill
// immediately at the last reference price pushed via UpdatePrice; limit
// orders queue and fill the instant a later reference price crosses
// them. There is no latency, slippage, or partial-fill modelling: paper
// mode exists to exercise the order/position managers against something
// that behaves like a venue, not to model venue microstructure.
type Paper struct {
	mu sync.Mutex

	equity        decimal.Decimal
	refPrices     map[string]decimal.Decimal
	positions     map[string]Position
	pendingOrders map[string]pendingLimit
	executions    []Execution
	nextOrderID   int
}

// NewPaper builds a Paper gateway seeded with startingEquity.
func NewPaper(startingEquity decimal.Decimal) *Paper {
	return &Paper{
		equity:        startingEquity,
		refPrices:     make(map[string]decimal.Decimal),
		positions:     make(map[string]Position),
		pendingOrders: make(map[string]pendingLimit),
	}
}

// UpdatePrice feeds a new reference price for symbol, marks positions to
// market, and crosses any resting limit orders that the new price
// reaches. Callers invoke this once per closed bar (or per tick) to
// advance the simulator.
func (p *Paper) UpdatePrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refPrices[symbol] = price
	if pos, ok := p.positions[symbol]; ok && !pos.IsFlat() {
		pos.MarkPrice = price
		pos.UnrealizedPnL = unrealizedPnL(pos, price)
		p.positions[symbol] = pos
	}

	for id, pending := range p.pendingOrders {
		if pending.req.Symbol != symbol {
			continue
		}
		if crosses(pending.req, price) {
			p.fillLocked(pending.req, id, pending.linkID, price)
			delete(p.pendingOrders, id)
		}
	}
}

func crosses(req OrderRequest, price decimal.Decimal) bool {
	if req.Side == Buy {
		return price.LessThanOrEqual(req.Price)
	}
	return price.GreaterThanOrEqual(req.Price)
}

func (p *Paper) PlaceOrder(req OrderRequest) (OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextOrderID++
	id := "paper-" + decimal.NewFromInt(int64(p.nextOrderID)).String()

	if req.Type == Market {
		ref, ok := p.refPrices[req.Symbol]
		if !ok {
			err := bterr.New(bterr.KindIntegrity, "execution.Paper.PlaceOrder", req.Symbol, "no reference price seeded for market order", nil)
			return orderFailure(err), err
		}
		p.fillLocked(req, id, req.ClientLinkID, ref)
		return OrderResult{Success: true, OrderID: id}, nil
	}

	p.pendingOrders[id] = pendingLimit{req: req, id: id, linkID: req.ClientLinkID}
	return OrderResult{Success: true, OrderID: id}, nil
}

func (p *Paper) fillLocked(req OrderRequest, id, linkID string, fillPrice decimal.Decimal) {
	pos := p.positions[req.Symbol]
	pos.Symbol = req.Symbol

	signedDelta := req.Qty
	if req.Side == Sell {
		signedDelta = signedDelta.Neg()
	}
	existingSigned := pos.Qty
	if pos.Side == Sell {
		existingSigned = existingSigned.Neg()
	}
	newSigned := existingSigned.Add(signedDelta)

	switch {
	case newSigned.IsZero():
		pos.Qty = decimal.Zero
	case newSigned.IsPositive():
		pos.Side = Buy
		pos.Qty = newSigned
		pos.EntryPrice = blendedEntry(pos, existingSigned, signedDelta, fillPrice, req)
	default:
		pos.Side = Sell
		pos.Qty = newSigned.Neg()
		pos.EntryPrice = blendedEntry(pos, existingSigned, signedDelta, fillPrice, req)
	}
	pos.MarkPrice = fillPrice
	pos.UnrealizedPnL = unrealizedPnL(pos, fillPrice)
	pos.UpdatedAt = time.Now()
	p.positions[req.Symbol] = pos

	p.executions = append(p.executions, Execution{
		OrderID:   id,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Qty:       req.Qty,
		Price:     fillPrice,
		Fee:       decimal.Zero,
		Timestamp: time.Now(),
	})
}

// blendedEntry keeps the volume-weighted entry price when adding to an
// existing same-direction position; a direction flip or fresh position
// simply takes the fill price as the new entry.
func blendedEntry(pos Position, existingSigned, delta decimal.Decimal, fillPrice decimal.Decimal, req OrderRequest) decimal.Decimal {
	sameDirection := (existingSigned.IsPositive() && delta.IsPositive()) || (existingSigned.IsNegative() && delta.IsNegative())
	if !sameDirection || existingSigned.IsZero() {
		return fillPrice
	}
	totalQty := existingSigned.Abs().Add(delta.Abs())
	if totalQty.IsZero() {
		return fillPrice
	}
	weighted := pos.EntryPrice.Mul(existingSigned.Abs()).Add(fillPrice.Mul(delta.Abs()))
	return weighted.Div(totalQty)
}

func unrealizedPnL(pos Position, mark decimal.Decimal) decimal.Decimal {
	diff := mark.Sub(pos.EntryPrice)
	if pos.Side == Sell {
		diff = diff.Neg()
	}
	return diff.Mul(pos.Qty)
}

func (p *Paper) CancelOrder(symbol, orderID, clientLinkID string) (OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, pending := range p.pendingOrders {
		if (orderID != "" && id == orderID) || (clientLinkID != "" && pending.linkID == clientLinkID) {
			delete(p.pendingOrders, id)
			return OrderResult{Success: true, OrderID: id}, nil
		}
	}
	return OrderResult{Success: false, Error: "order not found"}, nil
}

func (p *Paper) CancelAllOrders(symbol string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancelled := 0
	for id, pending := range p.pendingOrders {
		if symbol != "" && pending.req.Symbol != symbol {
			continue
		}
		delete(p.pendingOrders, id)
		cancelled++
	}
	return cancelled, nil
}

func (p *Paper) GetPosition(symbol string) (Position, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[symbol]
	if !ok || pos.IsFlat() {
		return Position{}, false, nil
	}
	return pos, true, nil
}

func (p *Paper) GetPositions() ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		if !pos.IsFlat() {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (p *Paper) GetOpenOrders(symbol string) ([]OpenOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OpenOrder, 0, len(p.pendingOrders))
	for id, pending := range p.pendingOrders {
		if symbol != "" && pending.req.Symbol != symbol {
			continue
		}
		out = append(out, OpenOrder{
			OrderID:      id,
			Symbol:       pending.req.Symbol,
			Side:         pending.req.Side,
			Type:         pending.req.Type,
			Qty:          pending.req.Qty,
			Price:        pending.req.Price,
			Status:       OrderNew,
			ClientLinkID: pending.linkID,
		})
	}
	return out, nil
}

// SetTradingStop/CancelTradingStop are no-ops in paper mode: the
// reference-price simulator has no server-side stop engine, so stop
// enforcement is the caller's responsibility (checking stop/TP levels
// against each UpdatePrice tick and issuing a reduce-only market order).
func (p *Paper) SetTradingStop(stop TradingStop) error { return nil }
func (p *Paper) CancelTradingStop(symbol string) error { return nil }

func (p *Paper) GetAccountBalance(accountType AccountType) (Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	unrealized := decimal.Zero
	for _, pos := range p.positions {
		unrealized = unrealized.Add(pos.UnrealizedPnL)
	}
	return Balance{
		AccountType:      accountType,
		TotalEquity:      p.equity.Add(unrealized),
		AvailableBalance: p.equity,
	}, nil
}

func (p *Paper) GetExecutions(symbol string, limit int) ([]Execution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Execution
	for i := len(p.executions) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if symbol != "" && p.executions[i].Symbol != symbol {
			continue
		}
		out = append(out, p.executions[i])
	}
	return out, nil
}

// CancelAllOrders above plus CloseAllPositions implement
// killswitch.Closer for paper mode.
func (p *Paper) CloseAllPositions(symbol string) (int, error) {
	p.mu.Lock()
	positions := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		if symbol != "" && pos.Symbol != symbol {
			continue
		}
		if !pos.IsFlat() {
			positions = append(positions, pos)
		}
	}
	p.mu.Unlock()

	closed := 0
	for _, pos := range positions {
		ref, ok := p.refPrices[pos.Symbol]
		if !ok {
			continue
		}
		if _, err := p.PlaceOrder(OrderRequest{
			Symbol:     pos.Symbol,
			Side:       pos.Side.Opposite(),
			Type:       Market,
			Qty:        pos.Qty,
			TIF:        IOC,
			ReduceOnly: true,
		}); err == nil {
			closed++
		}
		_ = ref
	}
	return closed, nil
}
