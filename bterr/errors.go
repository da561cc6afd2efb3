// Package bterr defines the stable error taxonomy shared across the engine.
//
// Every error the core raises is one of the kinds below, wrapped with
// context via fmt.Errorf("%w", ...). Callers use errors.Is/errors.As
// against the sentinel Kind values rather than string-matching messages.
package bterr

import (
	"errors"
	"fmt"
)

// Kind is a stable, comparable error category.
type Kind string

const (
	KindConfig      Kind = "config_error"       // invalid mode/environment/symbol set; fatal at startup
	KindAuth        Kind = "auth_error"         // bad credentials or signature; non-retriable
	KindNetwork     Kind = "network_error"      // transient connectivity/timeout; retried
	KindRateLimit   Kind = "rate_limit_error"   // retriable with backoff
	KindVenue       Kind = "venue_rejection"    // venue refused the action; not retried
	KindIntegrity   Kind = "integrity_error"    // local invariant broken; not retried
	KindHalted      Kind = "halted_error"       // kill switch active
	KindDataQuality Kind = "data_quality_error" // feature build failed; skip this tick
)

// Error is the concrete error type carrying a Kind plus context.
type Error struct {
	Kind    Kind
	Op      string // component/operation that raised it, e.g. "gateway.PlaceOrder"
	Symbol  string
	Message string
	Err     error // wrapped cause, if any
}

func (e *Error) Error() string {
	sym := ""
	if e.Symbol != "" {
		sym = fmt.Sprintf("[%s] ", e.Symbol)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s%s: %s: %s: %v", sym, e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s%s: %s: %s", sym, e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, bterr.KindHalted) style checks by comparing Kind
// against another *Error's Kind, or against a bare Kind value wrapped via New.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New builds an *Error. cause may be nil.
func New(kind Kind, op, symbol, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Symbol: symbol, Message: message, Err: cause}
}

// Of reports the Kind of err, or "" if err is not (or does not wrap) a *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is (or wraps) a bterr.Error of the given kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}

// Recoverable reports whether an error of this kind should be retried inside
// the owning trading loop rather than escalated to the orchestrator.
func Recoverable(kind Kind) bool {
	switch kind {
	case KindNetwork, KindRateLimit, KindDataQuality:
		return true
	default:
		return false
	}
}
