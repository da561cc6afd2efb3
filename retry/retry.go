// Package retry owns the engine's backoff policy and the
// application-layer classification of Bybit's in-body retCode, layered
// on top of hashicorp/go-retryablehttp's transport-level retries (which
// only see network errors and HTTP status, never the JSON envelope).
package retry

import (
	"time"
)

const (
	// InitialBackoff is the first retry delay.
	InitialBackoff = 500 * time.Millisecond
	// MaxBackoff caps exponential growth.
	MaxBackoff = 10 * time.Second
	// Multiplier is the exponential growth factor between attempts.
	Multiplier = 2.0
)

// Backoff computes the delay before the nth retry (n starting at 0 for
// the first retry), exponential with a hard cap.
func Backoff(attempt int) time.Duration {
	d := InitialBackoff
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * Multiplier)
		if d > MaxBackoff {
			return MaxBackoff
		}
	}
	if d > MaxBackoff {
		d = MaxBackoff
	}
	return d
}

// Class is the outcome of classifying a Bybit retCode.
type Class int

const (
	// ClassSuccess: retCode==0, no retry needed.
	ClassSuccess Class = iota
	// ClassRetriable: transient venue-side condition, retry with backoff.
	ClassRetriable
	// ClassRateLimited: retriable, but the caller should also respect
	// Bybit's rate-limit headers if present.
	ClassRateLimited
	// ClassRejected: the venue permanently refused the request; do not retry.
	ClassRejected
	// ClassAuth: bad signature/credentials; do not retry.
	ClassAuth
)

// retriableCodes are Bybit V5 retCodes documented as transient (busy
// system, internal error, request timeout at the matching engine).
// rateLimitCodes are the codes Bybit uses for throttling.
// authCodes are signature/key/timestamp failures.
// Every other non-zero code is treated as a permanent rejection: the
// open question this resolves is "retry by allowlist, reject by
// default" rather than attempting to enumerate every rejection code
// Bybit has ever returned.
var (
	retriableCodes = map[int]bool{
		10002: true, // recv_window / timestamp drift, safe to retry with a resynced clock
		10006: true, // too many visits / system busy
		10016: true, // internal system error
		130035: true, // order creation timeout at the matching engine
	}
	rateLimitCodes = map[int]bool{
		10018: true, // IP-level rate limit
		10017: true, // request rate limit exceeded
	}
	authCodes = map[int]bool{
		10003: true, // invalid API key
		10004: true, // invalid signature
		10005: true, // permission denied
	}
)

// Classify maps a Bybit V5 retCode to a retry Class.
func Classify(code int) Class {
	switch {
	case code == 0:
		return ClassSuccess
	case authCodes[code]:
		return ClassAuth
	case rateLimitCodes[code]:
		return ClassRateLimited
	case retriableCodes[code]:
		return ClassRetriable
	default:
		return ClassRejected
	}
}

// Retriable reports whether a class should be retried by the caller.
func Retriable(c Class) bool {
	return c == ClassRetriable || c == ClassRateLimited
}
