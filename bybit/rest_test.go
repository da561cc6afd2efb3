package bybit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := NewClient("testkey", "testsecret", Testnet, zerolog.Nop()).WithBaseURL(srv.URL)
	return c, srv
}

func TestGetSendsSortedQueryAndSignatureHeaders(t *testing.T) {
	var gotSig, gotQuery string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-BAPI-SIGN")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"ok":true}}`))
	})
	defer srv.Close()

	res, err := c.Get("/v5/position/list", map[string]string{"settleCoin": "USDT", "category": "linear"}, true)
	require.NoError(t, err)

	assert.Equal(t, "category=linear&settleCoin=USDT", gotQuery)
	assert.NotEmpty(t, gotSig)

	var decoded map[string]bool
	require.NoError(t, json.Unmarshal(res, &decoded))
	assert.True(t, decoded["ok"])
}

func TestPostSignsExactBodyBytes(t *testing.T) {
	var gotBody string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{}}`))
	})
	defer srv.Close()

	_, err := c.Post("/v5/order/create", map[string]string{"symbol": "BTCUSDT"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"BTCUSDT"}`, gotBody)
}

func TestDoClassifiesAuthErrorAsNonRetriable(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10004,"retMsg":"bad signature","result":{}}`))
	})
	defer srv.Close()

	_, err := c.Get("/v5/position/list", nil, true)
	require.Error(t, err)
}

func TestDoReturnsResultOnSuccess(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[]}}`))
	})
	defer srv.Close()

	res, err := c.Get("/v5/market/kline", map[string]string{"symbol": "BTCUSDT"}, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"list":[]}`, string(res))
}
