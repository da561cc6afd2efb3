package orders

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bybitengine/bterr"
	"bybitengine/execution"
)

// TrackedOrder is the order manager's lifecycle record for one order:
// New -> (PartiallyFilled)* -> Filled | Cancelled | Rejected.
type TrackedOrder struct {
	OrderID      string
	ClientLinkID string
	Symbol       string
	Side         execution.Side
	Qty          decimal.Decimal
	FilledQty    decimal.Decimal
	Status       execution.OrderStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time

	seenFills map[string]bool // execution ids already applied, for fill idempotency
}

// Manager tracks order lifecycle state keyed by order ID. It never calls
// the gateway itself; callers place/cancel via execution.Gateway and
// report the result (or a stream event) back through these methods.
type Manager struct {
	mu     sync.Mutex
	orders map[string]*TrackedOrder
}

// NewManager builds an empty order manager.
func NewManager() *Manager {
	return &Manager{orders: make(map[string]*TrackedOrder)}
}

// Track registers a newly placed order in the New state.
func (m *Manager) Track(symbol string, side execution.Side, qty decimal.Decimal, orderID, clientLinkID string, at time.Time) *TrackedOrder {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := &TrackedOrder{
		OrderID:      orderID,
		ClientLinkID: clientLinkID,
		Symbol:       symbol,
		Side:         side,
		Qty:          qty,
		FilledQty:    decimal.Zero,
		Status:       execution.OrderNew,
		CreatedAt:    at,
		UpdatedAt:    at,
		seenFills:    make(map[string]bool),
	}
	m.orders[orderID] = o
	return o
}

// Get returns the tracked order, or false if unknown.
func (m *Manager) Get(orderID string) (TrackedOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return TrackedOrder{}, false
	}
	return *o, true
}

// ApplyFill records a fill against orderID, keyed by a caller-supplied
// fillID (e.g. the execution's own id) so duplicate delivery of the
// same fill — the private WS can redeliver on reconnect — is a no-op
// rather than double-counting filled quantity.
func (m *Manager) ApplyFill(orderID, fillID string, qty decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return bterr.New(bterr.KindIntegrity, "orders.Manager.ApplyFill", "", "fill for unknown order "+orderID, nil)
	}
	if o.seenFills[fillID] {
		return nil // already applied, idempotent
	}
	o.seenFills[fillID] = true

	o.FilledQty = o.FilledQty.Add(qty)
	o.UpdatedAt = at
	switch {
	case o.FilledQty.GreaterThanOrEqual(o.Qty):
		o.Status = execution.OrderFilled
	default:
		o.Status = execution.OrderPartiallyFilled
	}
	return nil
}

// Cancel marks an order Cancelled. No-op (returns nil) if the order is
// already in a terminal state, since a cancel racing a fill is expected
// and must not be treated as an error.
func (m *Manager) Cancel(orderID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return bterr.New(bterr.KindIntegrity, "orders.Manager.Cancel", "", "cancel for unknown order "+orderID, nil)
	}
	if isTerminal(o.Status) {
		return nil
	}
	o.Status = execution.OrderCancelled
	o.UpdatedAt = at
	return nil
}

// Reject marks an order Rejected.
func (m *Manager) Reject(orderID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return bterr.New(bterr.KindIntegrity, "orders.Manager.Reject", "", "reject for unknown order "+orderID, nil)
	}
	o.Status = execution.OrderRejected
	o.UpdatedAt = at
	return nil
}

// OpenOrders returns every order not yet in a terminal state.
func (m *Manager) OpenOrders(symbol string) []TrackedOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TrackedOrder
	for _, o := range m.orders {
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		if !isTerminal(o.Status) {
			out = append(out, *o)
		}
	}
	return out
}

func isTerminal(s execution.OrderStatus) bool {
	return s == execution.OrderFilled || s == execution.OrderCancelled || s == execution.OrderRejected
}
