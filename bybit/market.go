package bybit

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"bybitengine/bterr"
	"bybitengine/marketdata"
)

const linearCategory = "linear"

// GetKline fetches up to limit linear-perpetual candles for symbol at
// interval (Bybit convention: "1","5","15","60","240",...), newest last.
func (c *Client) GetKline(symbol, interval string, limit int) (*marketdata.Frame, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	raw, err := c.Get("/v5/market/kline", map[string]string{
		"category": linearCategory,
		"symbol":   symbol,
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	}, false)
	if err != nil {
		return nil, err
	}

	var result struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, bterr.New(bterr.KindIntegrity, "bybit.GetKline", symbol, "decode kline result", err)
	}

	bars := make([]marketdata.Bar, len(result.List))
	for i, row := range result.List {
		row := row
		idx := len(result.List) - 1 - i // venue returns newest-first; frame wants oldest-first
		if len(row) < 7 {
			return nil, bterr.New(bterr.KindIntegrity, "bybit.GetKline", symbol, "short kline row", nil)
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, bterr.New(bterr.KindIntegrity, "bybit.GetKline", symbol, "parse kline timestamp", err)
		}
		bars[idx] = marketdata.Bar{
			Timestamp: time.UnixMilli(ms),
			Open:      decOrZero(row[1]),
			High:      decOrZero(row[2]),
			Low:       decOrZero(row[3]),
			Close:     decOrZero(row[4]),
			Volume:    decOrZero(row[5]),
			Turnover:  decOrZero(row[6]),
		}
	}

	return &marketdata.Frame{Symbol: symbol, Interval: interval, Bars: bars}, nil
}

// GetOrderbook fetches a depth snapshot and returns it as a populated
// Orderbook (ApplySnapshot already run).
func (c *Client) GetOrderbook(symbol string, depth int) (*marketdata.Orderbook, error) {
	if depth <= 0 {
		depth = 50
	}
	raw, err := c.Get("/v5/market/orderbook", map[string]string{
		"category": linearCategory,
		"symbol":   symbol,
		"limit":    strconv.Itoa(depth),
	}, false)
	if err != nil {
		return nil, err
	}

	var result struct {
		Bids []([2]string) `json:"b"`
		Asks []([2]string) `json:"a"`
		Ts   int64         `json:"ts"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, bterr.New(bterr.KindIntegrity, "bybit.GetOrderbook", symbol, "decode orderbook result", err)
	}

	ob := &marketdata.Orderbook{}
	ob.ApplySnapshot(toLevels(result.Bids), toLevels(result.Asks), result.Ts)
	return ob, nil
}

// GetDerivativesSnapshot fetches the linear ticker for symbol and maps
// it to the engine's Derivatives view. OIChange is left zero; the caller
// is expected to diff consecutive snapshots itself if it needs it.
func (c *Client) GetDerivativesSnapshot(symbol string) (*marketdata.Derivatives, error) {
	raw, err := c.Get("/v5/market/tickers", map[string]string{
		"category": linearCategory,
		"symbol":   symbol,
	}, false)
	if err != nil {
		return nil, err
	}

	var result struct {
		List []struct {
			MarkPrice    string `json:"markPrice"`
			IndexPrice   string `json:"indexPrice"`
			FundingRate  string `json:"fundingRate"`
			OpenInterest string `json:"openInterest"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, bterr.New(bterr.KindIntegrity, "bybit.GetDerivativesSnapshot", symbol, "decode tickers result", err)
	}
	if len(result.List) == 0 {
		return nil, bterr.New(bterr.KindDataQuality, "bybit.GetDerivativesSnapshot", symbol, "empty tickers list", nil)
	}

	t := result.List[0]
	return &marketdata.Derivatives{
		MarkPrice:    decOrZero(t.MarkPrice),
		IndexPrice:   decOrZero(t.IndexPrice),
		FundingRate:  decOrZero(t.FundingRate),
		OpenInterest: decOrZero(t.OpenInterest),
	}, nil
}

func decOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func toLevels(raw [][2]string) []marketdata.Level {
	out := make([]marketdata.Level, len(raw))
	for i, l := range raw {
		out[i] = marketdata.Level{Price: decOrZero(l[0]), Size: decOrZero(l[1])}
	}
	return out
}
