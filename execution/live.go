package execution

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bybitengine/bterr"
	"bybitengine/bybit"
)

func msToTime(ms int64) time.Time { return time.UnixMilli(ms) }

const linearCategory = "linear"

// Live is the Gateway backed by signed Bybit V5 REST calls. A separate
// PrivateStream (private_stream.go) owns the private WS connection
// and feeds order/position updates into a bounded channel; Live
// itself stays synchronous and makes no assumption about who drains
// that channel.
type Live struct {
	rest *bybit.Client
	log  zerolog.Logger
}

// NewLive wraps a signed REST client as a Gateway.
func NewLive(rest *bybit.Client, log zerolog.Logger) *Live {
	return &Live{rest: rest, log: log}
}

func (l *Live) PlaceOrder(req OrderRequest) (OrderResult, error) {
	body := map[string]string{
		"category":  coalesce(req.Category, linearCategory),
		"symbol":    req.Symbol,
		"side":      string(req.Side),
		"orderType": string(req.Type),
		"qty":       req.Qty.String(),
		"timeInForce": string(req.TIF),
	}
	if req.Type == Limit {
		body["price"] = req.Price.String()
	}
	if req.ReduceOnly {
		body["reduceOnly"] = "true"
	}
	if req.ClientLinkID != "" {
		body["orderLinkId"] = req.ClientLinkID
	}

	raw, err := l.rest.Post("/v5/order/create", body)
	if err != nil {
		return orderFailure(err), err
	}

	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		wrapped := bterr.New(bterr.KindIntegrity, "execution.Live.PlaceOrder", req.Symbol, "decode order-create result", err)
		return orderFailure(wrapped), wrapped
	}
	return OrderResult{Success: true, OrderID: result.OrderID, Raw: raw}, nil
}

func (l *Live) CancelOrder(symbol, orderID, clientLinkID string) (OrderResult, error) {
	body := map[string]string{"category": linearCategory, "symbol": symbol}
	if orderID != "" {
		body["orderId"] = orderID
	}
	if clientLinkID != "" {
		body["orderLinkId"] = clientLinkID
	}

	raw, err := l.rest.Post("/v5/order/cancel", body)
	if err != nil {
		return orderFailure(err), err
	}
	var result struct {
		OrderID string `json:"orderId"`
	}
	_ = json.Unmarshal(raw, &result)
	return OrderResult{Success: true, OrderID: result.OrderID, Raw: raw}, nil
}

func (l *Live) CancelAllOrders(symbol string) (int, error) {
	body := map[string]string{"category": linearCategory}
	if symbol != "" {
		body["symbol"] = symbol
	}
	raw, err := l.rest.Post("/v5/order/cancel-all", body)
	if err != nil {
		return 0, err
	}
	var result struct {
		List []struct {
			OrderID string `json:"orderId"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, bterr.New(bterr.KindIntegrity, "execution.Live.CancelAllOrders", symbol, "decode cancel-all result", err)
	}
	return len(result.List), nil
}

func (l *Live) GetPosition(symbol string) (Position, bool, error) {
	positions, err := l.GetPositions()
	if err != nil {
		return Position{}, false, err
	}
	for _, p := range positions {
		if p.Symbol == symbol && !p.IsFlat() {
			return p, true, nil
		}
	}
	return Position{}, false, nil
}

func (l *Live) GetPositions() ([]Position, error) {
	raw, err := l.rest.Get("/v5/position/list", map[string]string{"category": linearCategory}, true)
	if err != nil {
		return nil, err
	}
	var result struct {
		List []struct {
			Symbol         string `json:"symbol"`
			Side           string `json:"side"`
			Size           string `json:"size"`
			AvgPrice       string `json:"avgPrice"`
			MarkPrice      string `json:"markPrice"`
			UnrealisedPnl  string `json:"unrealisedPnl"`
			LiqPrice       string `json:"liqPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, bterr.New(bterr.KindIntegrity, "execution.Live.GetPositions", "", "decode position-list result", err)
	}

	positions := make([]Position, 0, len(result.List))
	for _, p := range result.List {
		side := Buy
		if p.Side == "Sell" {
			side = Sell
		}
		positions = append(positions, Position{
			Symbol:        p.Symbol,
			Side:          side,
			Qty:           parseDecOrZero(p.Size),
			EntryPrice:    parseDecOrZero(p.AvgPrice),
			MarkPrice:     parseDecOrZero(p.MarkPrice),
			UnrealizedPnL: parseDecOrZero(p.UnrealisedPnl),
			LiqPrice:      parseDecOrZero(p.LiqPrice),
		})
	}
	return positions, nil
}

func (l *Live) GetOpenOrders(symbol string) ([]OpenOrder, error) {
	params := map[string]string{"category": linearCategory}
	if symbol != "" {
		params["symbol"] = symbol
	}
	raw, err := l.rest.Get("/v5/order/realtime", params, true)
	if err != nil {
		return nil, err
	}
	var result struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderLinkID string `json:"orderLinkId"`
			Symbol      string `json:"symbol"`
			Side        string `json:"side"`
			OrderType   string `json:"orderType"`
			Qty         string `json:"qty"`
			Price       string `json:"price"`
			OrderStatus string `json:"orderStatus"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, bterr.New(bterr.KindIntegrity, "execution.Live.GetOpenOrders", symbol, "decode order-realtime result", err)
	}

	orders := make([]OpenOrder, 0, len(result.List))
	for _, o := range result.List {
		side := Buy
		if o.Side == "Sell" {
			side = Sell
		}
		orders = append(orders, OpenOrder{
			OrderID:      o.OrderID,
			Symbol:       o.Symbol,
			Side:         side,
			Type:         OrderType(o.OrderType),
			Qty:          parseDecOrZero(o.Qty),
			Price:        parseDecOrZero(o.Price),
			Status:       OrderStatus(o.OrderStatus),
			ClientLinkID: o.OrderLinkID,
		})
	}
	return orders, nil
}

func (l *Live) SetTradingStop(stop TradingStop) error {
	body := map[string]string{
		"category":  linearCategory,
		"symbol":    stop.Symbol,
		"slTriggerBy": coalesce(stop.SLTrigger, "LastPrice"),
		"tpTriggerBy": coalesce(stop.TPTrigger, "LastPrice"),
		"positionIdx": "0",
	}
	if !stop.StopLoss.IsZero() {
		body["stopLoss"] = stop.StopLoss.String()
	}
	if !stop.TakeProfit.IsZero() {
		body["takeProfit"] = stop.TakeProfit.String()
	}
	_, err := l.rest.Post("/v5/position/trading-stop", body)
	return err
}

func (l *Live) CancelTradingStop(symbol string) error {
	body := map[string]string{
		"category":    linearCategory,
		"symbol":      symbol,
		"stopLoss":    "0",
		"takeProfit":  "0",
		"positionIdx": "0",
	}
	_, err := l.rest.Post("/v5/position/trading-stop", body)
	return err
}

func (l *Live) GetAccountBalance(accountType AccountType) (Balance, error) {
	raw, err := l.rest.Get("/v5/account/wallet-balance", map[string]string{"accountType": string(accountType)}, true)
	if err != nil {
		return Balance{}, err
	}
	var result struct {
		List []struct {
			TotalEquity          string `json:"totalEquity"`
			TotalAvailableBalance string `json:"totalAvailableBalance"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return Balance{}, bterr.New(bterr.KindIntegrity, "execution.Live.GetAccountBalance", "", "decode wallet-balance result", err)
	}
	if len(result.List) == 0 {
		return Balance{AccountType: accountType}, nil
	}
	return Balance{
		AccountType:      accountType,
		TotalEquity:      parseDecOrZero(result.List[0].TotalEquity),
		AvailableBalance: parseDecOrZero(result.List[0].TotalAvailableBalance),
	}, nil
}

func (l *Live) GetExecutions(symbol string, limit int) ([]Execution, error) {
	params := map[string]string{"category": linearCategory}
	if symbol != "" {
		params["symbol"] = symbol
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	raw, err := l.rest.Get("/v5/execution/list", params, true)
	if err != nil {
		return nil, err
	}
	var result struct {
		List []struct {
			OrderID   string `json:"orderId"`
			Symbol    string `json:"symbol"`
			Side      string `json:"side"`
			ExecQty   string `json:"execQty"`
			ExecPrice string `json:"execPrice"`
			ExecFee   string `json:"execFee"`
			ExecTime  string `json:"execTime"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, bterr.New(bterr.KindIntegrity, "execution.Live.GetExecutions", symbol, "decode execution-list result", err)
	}

	executions := make([]Execution, 0, len(result.List))
	for _, e := range result.List {
		side := Buy
		if e.Side == "Sell" {
			side = Sell
		}
		ts, _ := strconv.ParseInt(e.ExecTime, 10, 64)
		executions = append(executions, Execution{
			OrderID: e.OrderID,
			Symbol:  e.Symbol,
			Side:    side,
			Qty:     parseDecOrZero(e.ExecQty),
			Price:   parseDecOrZero(e.ExecPrice),
			Fee:     parseDecOrZero(e.ExecFee),
		}.withMillis(ts))
	}
	return executions, nil
}

// CloseAllPositions implements killswitch.Closer (alongside
// CancelAllOrders above) directly on top of the same REST surface, so
// activating the kill switch in live mode needs no separate client.
func (l *Live) CloseAllPositions(symbol string) (int, error) {
	positions, err := l.GetPositions()
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, p := range positions {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		if p.IsFlat() {
			continue
		}
		_, err := l.PlaceOrder(OrderRequest{
			Category:   linearCategory,
			Symbol:     p.Symbol,
			Side:       p.Side.Opposite(),
			Type:       Market,
			Qty:        p.Qty,
			TIF:        IOC,
			ReduceOnly: true,
		})
		if err != nil {
			l.log.Error().Err(err).Str("symbol", p.Symbol).Msg("failed to close position during emergency shutdown")
			continue
		}
		closed++
	}
	return closed, nil
}

func coalesce(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func parseDecOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func orderFailure(err error) OrderResult {
	return OrderResult{Success: false, Error: fmt.Sprintf("%v", err)}
}

func (e Execution) withMillis(ms int64) Execution {
	if ms > 0 {
		e.Timestamp = msToTime(ms)
	}
	return e
}
