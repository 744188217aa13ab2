// Package plugins holds the balance-limit plugins Strategy.Call consults
// before adjusting volume: pure functions mapping (orderbook, balances) to
// per-side limits (spec.md §2, §4.2). Grounded on the teacher's
// pkg/oms/risk_rule package — a narrow interface with one method, several
// interchangeable implementations, no shared state.
package plugins

import (
	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/shopspring/decimal"
)

// Limits is what a balance-limit plugin returns: the top of book observed
// at evaluation time plus how much base/quote volume may be quoted.
type Limits struct {
	TopBidPrice decimal.Decimal
	TopAskPrice decimal.Decimal
	LimitInBase decimal.Decimal
	LimitInQuote decimal.Decimal
}

// Plugin computes Limits from a book and the account's balances. Balances
// are keyed by currency code.
type Plugin interface {
	Limits(ob BookView, balances map[string]core.Balance) Limits
}

// BookView is the minimal read surface a plugin needs from an Orderbook,
// kept separate from pkg/orderbook to avoid a dependency cycle (plugins
// are consumed by pkg/strategy, which already depends on pkg/orderbook).
type BookView interface {
	Best(side core.Side) (core.OrderbookLevel, bool)
}

// FullBalance makes the entire free balance of base and quote available,
// with no safety margin. It is the degenerate plugin used when a strategy
// has no configured limit.
type FullBalance struct {
	BaseCurrency  string
	QuoteCurrency string
}

func (p FullBalance) Limits(ob BookView, balances map[string]core.Balance) Limits {
	out := Limits{}
	if bid, ok := ob.Best(core.Buy); ok {
		out.TopBidPrice = bid.Price
	}
	if ask, ok := ob.Best(core.Sell); ok {
		out.TopAskPrice = ask.Price
	}
	out.LimitInBase = balances[p.BaseCurrency].Free
	out.LimitInQuote = balances[p.QuoteCurrency].Free
	return out
}

// FractionalBalance reserves a flat fraction of the free balance, leaving
// the rest for purposes outside this strategy (e.g. another concurrent
// strategy sharing the account).
type FractionalBalance struct {
	BaseCurrency  string
	QuoteCurrency string
	Fraction      decimal.Decimal
}

func (p FractionalBalance) Limits(ob BookView, balances map[string]core.Balance) Limits {
	out := Limits{}
	if bid, ok := ob.Best(core.Buy); ok {
		out.TopBidPrice = bid.Price
	}
	if ask, ok := ob.Best(core.Sell); ok {
		out.TopAskPrice = ask.Price
	}
	out.LimitInBase = balances[p.BaseCurrency].Free.Mul(p.Fraction)
	out.LimitInQuote = balances[p.QuoteCurrency].Free.Mul(p.Fraction)
	return out
}

// FixedCap clamps LimitInBase/LimitInQuote at configured ceilings,
// regardless of account balance, for notional risk limits independent of
// how much capital the account actually holds.
type FixedCap struct {
	BaseCurrency  string
	QuoteCurrency string
	MaxBase       decimal.Decimal
	MaxQuote      decimal.Decimal
}

func (p FixedCap) Limits(ob BookView, balances map[string]core.Balance) Limits {
	out := Limits{}
	if bid, ok := ob.Best(core.Buy); ok {
		out.TopBidPrice = bid.Price
	}
	if ask, ok := ob.Best(core.Sell); ok {
		out.TopAskPrice = ask.Price
	}
	free := balances[p.BaseCurrency].Free
	if free.GreaterThan(p.MaxBase) {
		free = p.MaxBase
	}
	out.LimitInBase = free

	freeQuote := balances[p.QuoteCurrency].Free
	if freeQuote.GreaterThan(p.MaxQuote) {
		freeQuote = p.MaxQuote
	}
	out.LimitInQuote = freeQuote
	return out
}
