package execution

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"bybitengine/bybit"
)

func newPrivateEchoServer(t *testing.T, push func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		go push(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	return httptest.NewServer(mux)
}

func TestPrivateStreamDecodesOrderUpdate(t *testing.T) {
	srv := newPrivateEchoServer(t, func(conn *websocket.Conn) {
		time.Sleep(50 * time.Millisecond)
		conn.WriteJSON(map[string]any{
			"topic": "order",
			"data": []map[string]any{
				{"orderId": "o-1", "symbol": "BTCUSDT", "side": "Buy", "orderType": "Limit", "qty": "0.1", "price": "50000", "orderStatus": "New"},
			},
		})
	})
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws := bybit.NewPrivateWSClient(url, "key", "secret", zerolog.Nop())
	stream := NewPrivateStream(ws, zerolog.Nop())
	require.NoError(t, stream.Start())
	defer stream.Close()

	select {
	case ev := <-stream.Events:
		require.NotNil(t, ev.Order)
		require.Equal(t, "o-1", ev.Order.OrderID)
		require.Equal(t, "BTCUSDT", ev.Order.Symbol)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for order event")
	}
}

func TestPrivateStreamDecodesPositionUpdate(t *testing.T) {
	srv := newPrivateEchoServer(t, func(conn *websocket.Conn) {
		time.Sleep(50 * time.Millisecond)
		conn.WriteJSON(map[string]any{
			"topic": "position",
			"data": []map[string]any{
				{"symbol": "ETHUSDT", "side": "Sell", "size": "2", "avgPrice": "3000", "markPrice": "2950", "unrealisedPnl": "100", "liqPrice": "4000"},
			},
		})
	})
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws := bybit.NewPrivateWSClient(url, "key", "secret", zerolog.Nop())
	stream := NewPrivateStream(ws, zerolog.Nop())
	require.NoError(t, stream.Start())
	defer stream.Close()

	select {
	case ev := <-stream.Events:
		require.NotNil(t, ev.Position)
		require.Equal(t, "ETHUSDT", ev.Position.Symbol)
		require.Equal(t, Sell, ev.Position.Side)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for position event")
	}
}
