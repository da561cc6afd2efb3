package bybit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newEchoWSServer(t *testing.T, onMessage func(conn *websocket.Conn, msg []byte)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			onMessage(conn, msg)
		}
	})
	srv := httptest.NewServer(mux)
	return srv
}

func TestPublicWSClientDeliversTopicMessage(t *testing.T) {
	srv := newEchoWSServer(t, func(conn *websocket.Conn, msg []byte) {
		conn.WriteJSON(map[string]any{"topic": "kline.1.BTCUSDT", "data": map[string]any{"close": "1"}})
	})
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewPublicWSClient(url, zerolog.Nop())
	require.NoError(t, c.Connect())
	defer c.Close()

	require.NoError(t, c.Subscribe([]string{"kline.1.BTCUSDT"}))

	select {
	case msg := <-c.Messages:
		require.Equal(t, "kline.1.BTCUSDT", msg.Topic)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
