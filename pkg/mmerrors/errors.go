// Package mmerrors is the error taxonomy shared by every component of the
// engine (spec.md §7). It replaces the teacher's plain sentinel errors
// (pkg/oms/error.go) with a small tagged sum so callers can classify an
// error with errors.As instead of string comparison.
package mmerrors

import "fmt"

// ConfigurationError marks an invalid strategy/account/market document.
// Fatal at startup; mid-run it disables the offending strategy.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// TransientExchangeError marks a network, timeout, or rate-limit failure.
// The executor retries these with backoff.
type TransientExchangeError struct {
	Op  string
	Err error
}

func (e *TransientExchangeError) Error() string {
	return fmt.Sprintf("transient exchange error during %s: %v", e.Op, e.Err)
}

func (e *TransientExchangeError) Unwrap() error { return e.Err }

// PermanentExchangeError marks authentication, malformed-request,
// insufficient-funds, or market-closed failures. Never retried.
type PermanentExchangeError struct {
	Op  string
	Err error
}

func (e *PermanentExchangeError) Error() string {
	return fmt.Sprintf("permanent exchange error during %s: %v", e.Op, e.Err)
}

func (e *PermanentExchangeError) Unwrap() error { return e.Err }

// InvariantViolation marks a crossed book where forbidden, or a duplicate
// order observed on both sides during NotifyPrivateTrade. Logged, the
// offending action is suppressed, and the strategy survives.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Reason)
}

// FxUnavailable marks an FX rate that has not been produced yet. The
// dependent hedge is rescheduled one second later.
type FxUnavailable struct {
	Pair string
}

func (e *FxUnavailable) Error() string {
	return fmt.Sprintf("fx rate not ready for %s", e.Pair)
}

// FatalReactorError marks an uncaught error in a strategy's periodic
// scheduling stack. The strategy is stopped; other strategies continue.
type FatalReactorError struct {
	StrategyID string
	Err        error
}

func (e *FatalReactorError) Error() string {
	return fmt.Sprintf("fatal error in strategy %s: %v", e.StrategyID, e.Err)
}

func (e *FatalReactorError) Unwrap() error { return e.Err }

// StrategyError marks a Call() precondition failure: more than one source
// configured, or a missing base/quote currency on an account.
type StrategyError struct {
	Reason string
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy error: %s", e.Reason)
}
