// Package execution is the one seam between the strategy/meta/risk
// layers and the outside world. Every order placement, cancellation,
// and position query goes through the Gateway interface, so the same
// order manager and signal-action handler run unchanged against the
// live venue, a paper simulator, or a deterministic backtest ledger.
package execution

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order/position side.
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

// Opposite returns the reduce-only side used to flatten a position on
// this side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType selects the order's execution style.
type OrderType string

const (
	Market OrderType = "Market"
	Limit  OrderType = "Limit"
)

// TimeInForce mirrors Bybit's tif values this engine actually uses.
type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
)

// OrderStatus is the lifecycle state an order manager tracks.
type OrderStatus string

const (
	OrderNew             OrderStatus = "New"
	OrderPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderFilled          OrderStatus = "Filled"
	OrderCancelled       OrderStatus = "Cancelled"
	OrderRejected        OrderStatus = "Rejected"
)

// OrderRequest is the normalized, fully-sized order the risk/normalize
// stages hand to the gateway. Price is empty for Market orders.
type OrderRequest struct {
	Category     string // always "linear" for this engine
	Symbol       string
	Side         Side
	Type         OrderType
	Qty          decimal.Decimal
	Price        decimal.Decimal
	TIF          TimeInForce
	ReduceOnly   bool
	ClientLinkID string
}

// OrderResult is the uniform response shape every backend returns:
// success flag, an order ID on success, an error string on failure, and
// the raw backend response for logging.
type OrderResult struct {
	Success bool
	OrderID string
	Error   string
	Raw     any
}

// Position is the engine's normalized view of an open position.
type Position struct {
	Symbol        string
	Side          Side
	Qty           decimal.Decimal
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	UnrealizedPnL decimal.Decimal
	LiqPrice      decimal.Decimal
	UpdatedAt     time.Time
}

// IsFlat reports whether the position carries zero quantity.
func (p Position) IsFlat() bool { return p.Qty.IsZero() }

// OpenOrder is the engine's normalized view of a resting order.
type OpenOrder struct {
	OrderID      string
	Symbol       string
	Side         Side
	Type         OrderType
	Qty          decimal.Decimal
	Price        decimal.Decimal
	Status       OrderStatus
	ClientLinkID string
	CreatedAt    time.Time
}

// Execution is a single fill report, used by the order manager to
// reconcile partial fills and by the journal to record exact fill price.
type Execution struct {
	OrderID   string
	Symbol    string
	Side      Side
	Qty       decimal.Decimal
	Price     decimal.Decimal
	Fee       decimal.Decimal
	Timestamp time.Time
}

// AccountType names the venue account a balance query targets.
type AccountType string

const (
	AccountUnified AccountType = "UNIFIED"
)

// Balance is the subset of account state the engine consults for
// position sizing and health reporting.
type Balance struct {
	AccountType      AccountType
	TotalEquity      decimal.Decimal
	AvailableBalance decimal.Decimal
}

// TradingStop is a server-side stop-loss/take-profit attachment.
type TradingStop struct {
	Symbol     string
	StopLoss   decimal.Decimal // zero means "leave unset"
	TakeProfit decimal.Decimal
	SLTrigger  string // "LastPrice" | "MarkPrice" | "IndexPrice"
	TPTrigger  string
}

// Gateway is the full order/position surface a trading loop needs. All
// three backends (Live, Paper, Backtest) implement it identically from
// the caller's point of view: same inputs, same OrderResult shape, same
// error kinds on failure.
type Gateway interface {
	PlaceOrder(req OrderRequest) (OrderResult, error)
	CancelOrder(symbol, orderID, clientLinkID string) (OrderResult, error)
	CancelAllOrders(symbol string) (cancelled int, err error)
	GetPosition(symbol string) (Position, bool, error)
	GetPositions() ([]Position, error)
	GetOpenOrders(symbol string) ([]OpenOrder, error)
	SetTradingStop(stop TradingStop) error
	CancelTradingStop(symbol string) error
	GetAccountBalance(accountType AccountType) (Balance, error)
	GetExecutions(symbol string, limit int) ([]Execution, error)
}
