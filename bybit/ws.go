package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bybitengine/bterr"
)

// Message is a decoded frame off a public or private WS channel, passed
// upstream through a bounded channel per the engine's async event-loop
// design: backpressure is applied at the channel, never inside the
// read loop.
type Message struct {
	Topic string
	Data  json.RawMessage
}

const (
	wsPingInterval = 20 * time.Second
	wsReadTimeout  = 40 * time.Second
	wsSendBuffer   = 256
)

// WSClient manages one websocket connection with ping/pong keepalive. It
// does not reconnect itself: on any read error, timeout, or full Messages
// channel it closes the connection and returns, leaving reconnection and
// re-subscription to the caller's supervisory loop. It never blocks the
// caller's read loop on a slow consumer: Messages is bounded and the
// connection is dropped rather than applying unbounded backpressure into
// the gorilla/websocket read goroutine.
type WSClient struct {
	url       string
	apiKey    string
	apiSecret string
	private   bool
	log       zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	Messages chan Message
	done     chan struct{}
}

// NewPublicWSClient connects to a public channel (kline, orderbook,
// markPrice, funding); no authentication frame is sent.
func NewPublicWSClient(url string, log zerolog.Logger) *WSClient {
	return &WSClient{url: url, log: log, Messages: make(chan Message, wsSendBuffer), done: make(chan struct{})}
}

// NewPrivateWSClient connects to the private channel (order/position/
// wallet updates) and authenticates immediately after connecting.
func NewPrivateWSClient(url, apiKey, apiSecret string, log zerolog.Logger) *WSClient {
	return &WSClient{url: url, apiKey: apiKey, apiSecret: apiSecret, private: true, Messages: make(chan Message, wsSendBuffer), done: make(chan struct{})}
}

// Connect dials the socket, authenticates if private, and starts the
// background read and ping goroutines. It returns once the initial
// handshake (and auth, if private) succeeds.
func (c *WSClient) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return bterr.New(bterr.KindNetwork, "bybit.WSClient.Connect", "", "dial", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if c.private {
		if err := c.authenticate(); err != nil {
			conn.Close()
			return err
		}
	}

	go c.readLoop()
	go c.pingLoop()
	return nil
}

// Subscribe sends a subscribe frame for the given topics.
func (c *WSClient) Subscribe(topics []string) error {
	return c.send(map[string]any{"op": "subscribe", "args": topics})
}

func (c *WSClient) authenticate() error {
	expires := strconv.FormatInt(time.Now().Add(5*time.Second).UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte("GET/realtime" + expires))
	sig := hex.EncodeToString(mac.Sum(nil))
	return c.send(map[string]any{"op": "auth", "args": []string{c.apiKey, expires, sig}})
}

func (c *WSClient) send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return bterr.New(bterr.KindNetwork, "bybit.WSClient.send", "", "not connected", nil)
	}
	return conn.WriteJSON(v)
}

func (c *WSClient) readLoop() {
	defer close(c.Messages)
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.log.Warn().Err(err).Str("url", c.url).Msg("websocket read failed, closing")
			return
		}

		var frame struct {
			Topic string          `json:"topic"`
			Data  json.RawMessage `json:"data"`
			Op    string          `json:"op"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		if frame.Topic == "" {
			continue // control frame (pong, subscribe ack, auth ack)
		}

		select {
		case c.Messages <- Message{Topic: frame.Topic, Data: frame.Data}:
		case <-c.done:
			return
		default:
			c.log.Warn().Str("topic", frame.Topic).Msg("message channel full, dropping connection for reconnect")
			c.Close()
			return
		}
	}
}

func (c *WSClient) pingLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.send(map[string]any{"op": "ping"}); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
