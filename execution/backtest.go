package execution

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"bybitengine/bterr"
)

// Backtest is a pure, deterministic Gateway simulator: no wall-clock
// reads, no randomness. Every notion of "now" comes from the timestamp
// the caller passes into AdvancePrice, so replaying the same script of
// calls against the same price series always produces the same ledger.
type Backtest struct {
	equity        decimal.Decimal
	refPrices     map[string]decimal.Decimal
	positions     map[string]Position
	pendingOrders map[string]pendingLimit
	executions    []Execution
	nextOrderID   int
	now           time.Time
}

// NewBacktest builds a Backtest gateway seeded with startingEquity. start
// is the simulated clock's starting value; AdvancePrice moves it
// forward.
func NewBacktest(startingEquity decimal.Decimal, start time.Time) *Backtest {
	return &Backtest{
		equity:        startingEquity,
		refPrices:     make(map[string]decimal.Decimal),
		positions:     make(map[string]Position),
		pendingOrders: make(map[string]pendingLimit),
		now:           start,
	}
}

// AdvancePrice is the only way simulated time and price move: the
// caller (a backtest runner replaying historical bars) drives both
// explicitly, so two runs over the same bar series are byte-identical.
func (b *Backtest) AdvancePrice(symbol string, price decimal.Decimal, at time.Time) {
	b.now = at
	b.refPrices[symbol] = price
	if pos, ok := b.positions[symbol]; ok && !pos.IsFlat() {
		pos.MarkPrice = price
		pos.UnrealizedPnL = unrealizedPnL(pos, price)
		b.positions[symbol] = pos
	}
	ids := make([]string, 0, len(b.pendingOrders))
	for id := range b.pendingOrders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		pending := b.pendingOrders[id]
		if pending.req.Symbol != symbol {
			continue
		}
		if crosses(pending.req, price) {
			b.fill(pending.req, id, pending.linkID, price)
			delete(b.pendingOrders, id)
		}
	}
}

func (b *Backtest) fill(req OrderRequest, id, linkID string, fillPrice decimal.Decimal) {
	pos := b.positions[req.Symbol]
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
	pos.UpdatedAt = b.now
	b.positions[req.Symbol] = pos

	b.executions = append(b.executions, Execution{
		OrderID:   id,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Qty:       req.Qty,
		Price:     fillPrice,
		Fee:       decimal.Zero,
		Timestamp: b.now,
	})
}

func (b *Backtest) PlaceOrder(req OrderRequest) (OrderResult, error) {
	b.nextOrderID++
	id := "bt-" + decimal.NewFromInt(int64(b.nextOrderID)).String()

	if req.Type == Market {
		ref, ok := b.refPrices[req.Symbol]
		if !ok {
			err := bterr.New(bterr.KindIntegrity, "execution.Backtest.PlaceOrder", req.Symbol, "no reference price seeded for market order", nil)
			return orderFailure(err), err
		}
		b.fill(req, id, req.ClientLinkID, ref)
		return OrderResult{Success: true, OrderID: id}, nil
	}

	b.pendingOrders[id] = pendingLimit{req: req, id: id, linkID: req.ClientLinkID}
	return OrderResult{Success: true, OrderID: id}, nil
}

func (b *Backtest) CancelOrder(symbol, orderID, clientLinkID string) (OrderResult, error) {
	for id, pending := range b.pendingOrders {
		if (orderID != "" && id == orderID) || (clientLinkID != "" && pending.linkID == clientLinkID) {
			delete(b.pendingOrders, id)
			return OrderResult{Success: true, OrderID: id}, nil
		}
	}
	return OrderResult{Success: false, Error: "order not found"}, nil
}

func (b *Backtest) CancelAllOrders(symbol string) (int, error) {
	cancelled := 0
	for id, pending := range b.pendingOrders {
		if symbol != "" && pending.req.Symbol != symbol {
			continue
		}
		delete(b.pendingOrders, id)
		cancelled++
	}
	return cancelled, nil
}

func (b *Backtest) GetPosition(symbol string) (Position, bool, error) {
	pos, ok := b.positions[symbol]
	if !ok || pos.IsFlat() {
		return Position{}, false, nil
	}
	return pos, true, nil
}

func (b *Backtest) GetPositions() ([]Position, error) {
	out := make([]Position, 0, len(b.positions))
	for _, pos := range b.positions {
		if !pos.IsFlat() {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (b *Backtest) GetOpenOrders(symbol string) ([]OpenOrder, error) {
	out := make([]OpenOrder, 0, len(b.pendingOrders))
	for id, pending := range b.pendingOrders {
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

// SetTradingStop/CancelTradingStop are no-ops for the same reason as in
// Paper: backtest has no server-side stop engine, the runner is
// responsible for checking stop/TP levels against each AdvancePrice.
func (b *Backtest) SetTradingStop(stop TradingStop) error { return nil }
func (b *Backtest) CancelTradingStop(symbol string) error { return nil }

func (b *Backtest) GetAccountBalance(accountType AccountType) (Balance, error) {
	unrealized := decimal.Zero
	for _, pos := range b.positions {
		unrealized = unrealized.Add(pos.UnrealizedPnL)
	}
	return Balance{
		AccountType:      accountType,
		TotalEquity:      b.equity.Add(unrealized),
		AvailableBalance: b.equity,
	}, nil
}

func (b *Backtest) GetExecutions(symbol string, limit int) ([]Execution, error) {
	var out []Execution
	for i := len(b.executions) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if symbol != "" && b.executions[i].Symbol != symbol {
			continue
		}
		out = append(out, b.executions[i])
	}
	return out, nil
}

// CloseAllPositions implements killswitch.Closer for backtest mode.
func (b *Backtest) CloseAllPositions(symbol string) (int, error) {
	positions := make([]Position, 0, len(b.positions))
	for _, pos := range b.positions {
		if symbol != "" && pos.Symbol != symbol {
			continue
		}
		if !pos.IsFlat() {
			positions = append(positions, pos)
		}
	}

	closed := 0
	for _, pos := range positions {
		if _, err := b.PlaceOrder(OrderRequest{
			Symbol:     pos.Symbol,
			Side:       pos.Side.Opposite(),
			Type:       Market,
			Qty:        pos.Qty,
			TIF:        IOC,
			ReduceOnly: true,
		}); err == nil {
			closed++
		}
	}
	return closed, nil
}
