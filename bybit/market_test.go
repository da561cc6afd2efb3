package bybit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetKlineOrdersBarsOldestFirst(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[
			["2000","105","106","104","105.5","10","1050"],
			["1000","100","102","99","101","20","2000"]
		]}}`))
	})
	defer srv.Close()

	frame, err := c.GetKline("BTCUSDT", "1", 200)
	require.NoError(t, err)
	require.Len(t, frame.Bars, 2)
	assert.True(t, frame.Bars[0].Timestamp.Before(frame.Bars[1].Timestamp))
	assert.Equal(t, "101", frame.Bars[0].Close.String())
	assert.Equal(t, "105.5", frame.Bars[1].Close.String())
}

func TestGetOrderbookAppliesSnapshot(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"b":[["100","1"]],"a":[["101","2"]],"ts":12345}}`))
	})
	defer srv.Close()

	ob, err := c.GetOrderbook("BTCUSDT", 50)
	require.NoError(t, err)
	bid, ok := ob.BestBid()
	require.True(t, ok)
	assert.Equal(t, "100", bid.Price.String())
	ask, ok := ob.BestAsk()
	require.True(t, ok)
	assert.Equal(t, "101", ask.Price.String())
}

func TestGetDerivativesSnapshotMapsFields(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[{"markPrice":"50000","indexPrice":"49950","fundingRate":"0.0001","openInterest":"1000"}]}}`))
	})
	defer srv.Close()

	deriv, err := c.GetDerivativesSnapshot("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "50000", deriv.MarkPrice.String())
	assert.Equal(t, "49950", deriv.IndexPrice.String())
}

func TestGetDerivativesSnapshotErrorsOnEmptyList(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[]}}`))
	})
	defer srv.Close()

	_, err := c.GetDerivativesSnapshot("BTCUSDT")
	require.Error(t, err)
}
