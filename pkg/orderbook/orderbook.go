// Package orderbook implements the side-indexed order book and its algebra:
// aggregation onto price grids, spread application, and volume limiting
// (spec.md §4.1). It is grounded on the teacher's pkg/orderbook/orderbook.go
// map-per-side structure, generalized from float64 matching-engine levels
// to decimal market-making levels with ordered (not just best-of) access.
package orderbook

import (
	"fmt"
	"sort"
	"sync"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/mmerrors"
	"github.com/shopspring/decimal"
)

// Orderbook is a pair of side-indexed maps from price to amount.
type Orderbook struct {
	mu   sync.Mutex
	bids map[string]core.OrderbookLevel
	asks map[string]core.OrderbookLevel
}

// New returns an empty order book.
func New() *Orderbook {
	return &Orderbook{
		bids: make(map[string]core.OrderbookLevel),
		asks: make(map[string]core.OrderbookLevel),
	}
}

func (ob *Orderbook) sideMap(side core.Side) map[string]core.OrderbookLevel {
	if side == core.Buy {
		return ob.bids
	}
	return ob.asks
}

// Update inserts or replaces the (side, price) level with amount. A zero
// amount removes the level (spec.md §4.1). Negative amounts fail with
// InvariantViolation.
func (ob *Orderbook) Update(side core.Side, price, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return &mmerrors.InvariantViolation{Reason: fmt.Sprintf("negative amount %s at price %s", amount, price)}
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	key := price.String()
	m := ob.sideMap(side)
	if amount.IsZero() {
		delete(m, key)
		return nil
	}
	m[key] = core.OrderbookLevel{Price: price, Amount: amount}
	return nil
}

// Delete idempotently removes the (side, price) level.
func (ob *Orderbook) Delete(side core.Side, price decimal.Decimal) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	delete(ob.sideMap(side), price.String())
}

// Best returns the highest bid / lowest ask, or false if that side is empty.
func (ob *Orderbook) Best(side core.Side) (core.OrderbookLevel, bool) {
	levels := ob.Levels(side)
	if len(levels) == 0 {
		return core.OrderbookLevel{}, false
	}
	return levels[0], true
}

// Levels returns the side's levels best-first: descending price for bids,
// ascending price for asks.
func (ob *Orderbook) Levels(side core.Side) []core.OrderbookLevel {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	m := ob.sideMap(side)
	out := make([]core.OrderbookLevel, 0, len(m))
	for _, lv := range m {
		out = append(out, lv)
	}
	sortLevels(out, side)
	return out
}

func sortLevels(levels []core.OrderbookLevel, side core.Side) {
	sort.Slice(levels, func(i, j int) bool {
		if side == core.Buy {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
}

// IsCrossed reports whether best_bid >= best_ask.
func (ob *Orderbook) IsCrossed() bool {
	bestBid, okBid := ob.Best(core.Buy)
	bestAsk, okAsk := ob.Best(core.Sell)
	if !okBid || !okAsk {
		return false
	}
	return bestBid.Price.GreaterThanOrEqual(bestAsk.Price)
}

// Clone returns a deep copy.
func (ob *Orderbook) Clone() *Orderbook {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	out := New()
	for k, v := range ob.bids {
		out.bids[k] = v
	}
	for k, v := range ob.asks {
		out.asks[k] = v
	}
	return out
}

// Equal reports whether two books hold the same levels, ignoring ordering.
func (ob *Orderbook) Equal(other *Orderbook) bool {
	if other == nil {
		return false
	}
	ob.mu.Lock()
	defer ob.mu.Unlock()
	other.mu.Lock()
	defer other.mu.Unlock()

	return mapsEqual(ob.bids, other.bids) && mapsEqual(ob.asks, other.asks)
}

func mapsEqual(a, b map[string]core.OrderbookLevel) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || !bv.Amount.Equal(v.Amount) {
			return false
		}
	}
	return true
}

// Spread returns a new book with every bid price multiplied by (1 - bidBps)
// and every ask price multiplied by (1 + askBps). bidBps/askBps are
// non-negative fractions (0.01 = 1%) (spec.md §4.1).
func (ob *Orderbook) Spread(bidBps, askBps decimal.Decimal) *Orderbook {
	one := decimal.NewFromInt(1)
	out := New()
	for _, lv := range ob.Levels(core.Buy) {
		out.bids[lv.Price.Mul(one.Sub(bidBps)).String()] = core.OrderbookLevel{
			Price:  lv.Price.Mul(one.Sub(bidBps)),
			Amount: lv.Amount,
		}
	}
	for _, lv := range ob.Levels(core.Sell) {
		out.asks[lv.Price.Mul(one.Add(askBps)).String()] = core.OrderbookLevel{
			Price:  lv.Price.Mul(one.Add(askBps)),
			Amount: lv.Amount,
		}
	}
	return out
}

// AdjustVolumeSimple walks asks ascending capping cumulative base volume at
// asksBaseLimit, and bids descending capping cumulative quote volume
// (Σ price·amount) at bidsQuoteLimit. A nil limit means unlimited. When
// sideSwap is true the units swap: the ask limit is read as quote volume
// and the bid limit as base volume (spec.md §4.1).
func (ob *Orderbook) AdjustVolumeSimple(asksLimit, bidsLimit *decimal.Decimal, sideSwap bool) *Orderbook {
	out := New()

	askInBase := !sideSwap
	bidInQuote := !sideSwap

	cumulative := decimal.Zero
	for _, lv := range ob.Levels(core.Sell) {
		truncated, stop := capLevel(lv, asksLimit, askInBase, &cumulative)
		if truncated.Amount.IsPositive() {
			out.asks[truncated.Price.String()] = truncated
		}
		if stop {
			break
		}
	}

	cumulative = decimal.Zero
	for _, lv := range ob.Levels(core.Buy) {
		truncated, stop := capLevel(lv, bidsLimit, bidInQuote, &cumulative)
		if truncated.Amount.IsPositive() {
			out.bids[truncated.Price.String()] = truncated
		}
		if stop {
			break
		}
	}

	return out
}

// capLevel measures lv in base units (inBase) or quote units (Σ price*amount)
// against limit, truncating lv's amount to whatever headroom remains under
// cumulative and reporting whether the caller should stop (limit reached).
// A nil limit is unlimited. cumulative is advanced by the measured amount of
// whatever portion of lv survives.
func capLevel(lv core.OrderbookLevel, limit *decimal.Decimal, inBase bool, cumulative *decimal.Decimal) (core.OrderbookLevel, bool) {
	if limit == nil {
		return lv, false
	}

	remaining := limit.Sub(*cumulative)
	if !remaining.IsPositive() {
		return core.OrderbookLevel{Price: lv.Price}, true
	}

	measured := lv.Amount
	if !inBase {
		measured = lv.Price.Mul(lv.Amount)
	}

	if measured.LessThanOrEqual(remaining) {
		*cumulative = cumulative.Add(measured)
		return lv, false
	}

	// Truncate: keep only the fraction of amount that fits in `remaining`.
	fraction := remaining.Div(measured)
	keepAmount := lv.Amount.Mul(fraction)
	*cumulative = cumulative.Add(remaining)
	return core.OrderbookLevel{Price: lv.Price, Amount: keepAmount}, true
}
