package bybit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"bybitengine/bterr"
	"bybitengine/retry"
)

// Envelope is the standard Bybit V5 response wrapper.
type Envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// Client is a signed Bybit V5 REST client. The retryable transport
// handles transient network/5xx failures; Client itself classifies the
// in-body retCode on every HTTP-200 envelope, since retryablehttp never
// sees inside the JSON body.
type Client struct {
	apiKey    string
	apiSecret string
	env       Environment
	http      *retryablehttp.Client
	log       zerolog.Logger

	baseURLOverride string // set via WithBaseURL, for tests and proxied deployments
}

// WithBaseURL overrides the environment-resolved REST base URL. Used by
// tests against an httptest.Server and by deployments that front Bybit
// with an internal proxy.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURLOverride = url
	return c
}

func (c *Client) baseURL() string {
	if c.baseURLOverride != "" {
		return c.baseURLOverride
	}
	return c.env.endpoints().RESTBase
}

// NewClient builds a Client. apiKey/apiSecret may be empty for
// public-only usage.
func NewClient(apiKey, apiSecret string, env Environment, log zerolog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil // the engine's own logger replaces retryablehttp's default stdlib logger
	rc.HTTPClient.Timeout = 15 * time.Second

	return &Client{apiKey: apiKey, apiSecret: apiSecret, env: env, http: rc, log: log}
}

// Get issues a signed or public GET request and returns the raw result
// payload, or a classified error.
func (c *Client) Get(endpoint string, params map[string]string, signed bool) (json.RawMessage, error) {
	query := encodeSortedQuery(params)
	fullURL := c.baseURL() + endpoint
	if query != "" {
		fullURL += "?" + query
	}

	req, err := retryablehttp.NewRequest(http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, bterr.New(bterr.KindNetwork, "bybit.Get", "", "build request", err)
	}
	if signed {
		c.applySignature(req.Request, query)
	}
	return c.do(req, "bybit.Get")
}

// Post issues a signed POST request. body is marshalled to compact JSON
// once and that exact byte sequence is both signed and transmitted, per
// the V5 signing contract.
func (c *Client) Post(endpoint string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, bterr.New(bterr.KindIntegrity, "bybit.Post", "", "marshal request body", err)
	}

	fullURL := c.baseURL() + endpoint
	req, err := retryablehttp.NewRequest(http.MethodPost, fullURL, bytes.NewReader(payload))
	if err != nil {
		return nil, bterr.New(bterr.KindNetwork, "bybit.Post", "", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.applySignature(req.Request, string(payload))

	return c.do(req, "bybit.Post")
}

func (c *Client) applySignature(req *http.Request, payload string) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig := signPayload(c.apiSecret, c.apiKey, timestamp, payload)
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-SIGN", sig)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
}

func (c *Client) do(req *retryablehttp.Request, op string) (json.RawMessage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, bterr.New(bterr.KindNetwork, op, "", "transport error after retries", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bterr.New(bterr.KindNetwork, op, "", "read response body", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, bterr.New(bterr.KindIntegrity, op, "", "decode envelope: "+string(raw), err)
	}

	class := retry.Classify(env.RetCode)
	switch class {
	case retry.ClassSuccess:
		return env.Result, nil
	case retry.ClassAuth:
		return nil, bterr.New(bterr.KindAuth, op, "", fmt.Sprintf("retCode=%d %s", env.RetCode, env.RetMsg), nil)
	case retry.ClassRateLimited:
		return nil, bterr.New(bterr.KindRateLimit, op, "", fmt.Sprintf("retCode=%d %s", env.RetCode, env.RetMsg), nil)
	case retry.ClassRetriable:
		return nil, bterr.New(bterr.KindNetwork, op, "", fmt.Sprintf("retCode=%d %s", env.RetCode, env.RetMsg), nil)
	default:
		return nil, bterr.New(bterr.KindVenue, op, "", fmt.Sprintf("retCode=%d %s", env.RetCode, env.RetMsg), nil)
	}
}

// encodeSortedQuery builds a deterministic, sorted URL-encoded query
// string — Bybit signs params in sorted-key order.
func encodeSortedQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(params[k]))
	}
	return strings.Join(parts, "&")
}
