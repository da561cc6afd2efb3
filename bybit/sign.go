package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// recvWindow is fixed at 5000ms; it is part of the signed string so it
// cannot vary per-request without also changing the signature.
const recvWindow = "5000"

// signPayload builds the Bybit V5 signed string
// (timestamp + api_key + recv_window + payload) and its hex HMAC-SHA256
// under apiSecret. payload is the URL-encoded query string for GET, or
// the exact compact-JSON bytes for POST — the caller is responsible for
// producing the same bytes here and on the wire, since any whitespace
// difference invalidates the signature.
func signPayload(apiSecret, apiKey, timestamp, payload string) string {
	preimage := timestamp + apiKey + recvWindow + payload
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(preimage))
	return hex.EncodeToString(mac.Sum(nil))
}
