package execution

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"bybitengine/bybit"
)

// StreamEvent is a decoded private-channel update: exactly one of the
// pointer fields is set, depending on which topic produced it.
type StreamEvent struct {
	Order    *OpenOrder
	Position *Position
}

// PrivateStream owns the private WS connection and republishes
// order/position updates as typed StreamEvents on a bounded channel.
// It never blocks a slow consumer: like the underlying bybit.WSClient,
// a full Events channel drops the connection rather than buffering
// without limit.
type PrivateStream struct {
	ws     *bybit.WSClient
	log    zerolog.Logger
	Events chan StreamEvent
}

// NewPrivateStream wraps a private bybit.WSClient (caller constructs it
// via bybit.NewPrivateWSClient with the right URL/credentials).
func NewPrivateStream(ws *bybit.WSClient, log zerolog.Logger) *PrivateStream {
	return &PrivateStream{ws: ws, log: log, Events: make(chan StreamEvent, 256)}
}

// Start connects, subscribes to order and position topics, and runs the
// decode loop in a background goroutine until the underlying connection
// closes (the caller is responsible for reconnecting and re-subscribing).
func (p *PrivateStream) Start() error {
	if err := p.ws.Connect(); err != nil {
		return err
	}
	if err := p.ws.Subscribe([]string{"order", "position"}); err != nil {
		return err
	}
	go p.decodeLoop()
	return nil
}

func (p *PrivateStream) decodeLoop() {
	defer close(p.Events)
	for msg := range p.ws.Messages {
		switch msg.Topic {
		case "order":
			p.decodeOrders(msg.Data)
		case "position":
			p.decodePositions(msg.Data)
		default:
			p.log.Debug().Str("topic", msg.Topic).Msg("ignoring unrecognized private topic")
		}
	}
}

func (p *PrivateStream) decodeOrders(raw json.RawMessage) {
	var rows []struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
		Symbol      string `json:"symbol"`
		Side        string `json:"side"`
		OrderType   string `json:"orderType"`
		Qty         string `json:"qty"`
		Price       string `json:"price"`
		OrderStatus string `json:"orderStatus"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		p.log.Warn().Err(err).Msg("decode order-stream payload")
		return
	}
	for _, r := range rows {
		side := Buy
		if r.Side == "Sell" {
			side = Sell
		}
		order := OpenOrder{
			OrderID:      r.OrderID,
			ClientLinkID: r.OrderLinkID,
			Symbol:       r.Symbol,
			Side:         side,
			Type:         OrderType(r.OrderType),
			Qty:          parseDecOrZero(r.Qty),
			Price:        parseDecOrZero(r.Price),
			Status:       OrderStatus(r.OrderStatus),
		}
		p.publish(StreamEvent{Order: &order})
	}
}

func (p *PrivateStream) decodePositions(raw json.RawMessage) {
	var rows []struct {
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Size          string `json:"size"`
		AvgPrice      string `json:"avgPrice"`
		MarkPrice     string `json:"markPrice"`
		UnrealisedPnl string `json:"unrealisedPnl"`
		LiqPrice      string `json:"liqPrice"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		p.log.Warn().Err(err).Msg("decode position-stream payload")
		return
	}
	for _, r := range rows {
		side := Buy
		if r.Side == "Sell" {
			side = Sell
		}
		pos := Position{
			Symbol:        r.Symbol,
			Side:          side,
			Qty:           parseDecOrZero(r.Size),
			EntryPrice:    parseDecOrZero(r.AvgPrice),
			MarkPrice:     parseDecOrZero(r.MarkPrice),
			UnrealizedPnL: parseDecOrZero(r.UnrealisedPnl),
			LiqPrice:      parseDecOrZero(r.LiqPrice),
		}
		p.publish(StreamEvent{Position: &pos})
	}
}

func (p *PrivateStream) publish(ev StreamEvent) {
	select {
	case p.Events <- ev:
	default:
		p.log.Warn().Msg("private stream events channel full, dropping event and closing connection")
		p.ws.Close()
	}
}

// Close tears down the underlying connection.
func (p *PrivateStream) Close() { p.ws.Close() }
