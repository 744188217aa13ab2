// Package scheduler implements the "Smart" diffing algorithm that turns a
// current resting-order set plus a desired order book into a minimal
// ordered sequence of create/cancel actions (spec.md §4.3). Grounded on the
// teacher's pkg/oms order_manager.go diff-and-replay shape, generalized
// from a matching engine's single-order lifecycle to a whole-book diff.
package scheduler

import (
	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/market"
	"github.com/orderflow-labs/mmcore/pkg/openorders"
	"github.com/orderflow-labs/mmcore/pkg/orderbook"
	"github.com/shopspring/decimal"
)

// Action is an alias for the shared action currency pkg/core defines, kept
// as a local name so callers read `scheduler.Action` while the type itself
// is exercised by both pkg/scheduler and pkg/executor without either
// package importing the other.
type Action = core.Action

// ActionKind is the local name for core.ActionKind, the type of Action.Kind.
type ActionKind = core.ActionKind

const (
	OrderCreate  = core.ActionCreate
	OrderCancel  = core.ActionCancel
	OrderStop    = core.ActionStop
	OrderStopAll = core.ActionStopAll
)

// PriceLevels is the per-side price grid new orders are snapped onto; a nil
// slice for a side means no grid is enforced for it.
type PriceLevels struct {
	Asks []core.PricePoint
	Bids []core.PricePoint
}

// Options configures one Schedule call (spec.md §4.3).
type Options struct {
	PriceLevels       PriceLevels
	StrategyID        core.StrategyID
	OrderType         core.OrderType
	MaxAmountPerOrder *decimal.Decimal

	LimitAsksBase  *decimal.Decimal
	LimitAsksQuote *decimal.Decimal
	LimitBidsBase  *decimal.Decimal
	LimitBidsQuote *decimal.Decimal
}

func (o Options) grid(side core.Side) []core.PricePoint {
	if side == core.Buy {
		return o.PriceLevels.Bids
	}
	return o.PriceLevels.Asks
}

// Schedule diffs current against desired and returns an ordered action list
// (spec.md §4.3): cancel asks, cancel bids, create best-first asks, create
// best-first bids.
func Schedule(current *openorders.Cache, desired *orderbook.Orderbook, target *market.Market, opts Options) []Action {
	cancelAsks, keptAsks := diffCancelSide(current, desired, target, core.Sell, opts)
	cancelBids, keptBids := diffCancelSide(current, desired, target, core.Buy, opts)

	createAsks := diffCreateSide(desired, keptAsks, target, core.Sell, opts)
	createBids := diffCreateSide(desired, keptBids, target, core.Buy, opts)

	actions := make([]Action, 0, len(cancelAsks)+len(cancelBids)+len(createAsks)+len(createBids))
	actions = append(actions, cancelAsks...)
	actions = append(actions, cancelBids...)
	actions = append(actions, createAsks...)
	actions = append(actions, createBids...)
	return actions
}

// amountTolerance is the smallest amount difference the market's precision
// can represent; a resting order within it of the desired amount is left
// alone rather than cancelled and re-created (spec.md §4.3 rule 2).
func amountTolerance(precision int32) decimal.Decimal {
	return decimal.New(1, -precision)
}

// diffCancelSide walks current's resting orders on one side and decides
// which to cancel (spec.md §4.3 rules 1-2). It returns the cancel actions
// plus, per aligned price, the amount of resting volume kept in place —
// diffCreateSide subtracts this from the desired amount so it only creates
// what isn't already covered.
func diffCancelSide(current *openorders.Cache, desired *orderbook.Orderbook, target *market.Market, side core.Side, opts Options) ([]Action, map[string]decimal.Decimal) {
	grid := opts.grid(side)
	tolerance := amountTolerance(target.AmountPrecision)
	kept := make(map[string]decimal.Decimal)

	var actions []Action
	for _, o := range current.All(side) {
		aligned := alignToGrid(o.Price, grid)
		if !aligned.Equal(o.Price) {
			actions = append(actions, cancelAction(o, target.ID, opts.StrategyID))
			continue
		}

		level, ok := lookupLevel(desired, side, aligned)
		if !ok {
			actions = append(actions, cancelAction(o, target.ID, opts.StrategyID))
			continue
		}

		diff := o.Amount.Sub(level.Amount).Abs()
		if diff.GreaterThan(tolerance) {
			actions = append(actions, cancelAction(o, target.ID, opts.StrategyID))
			continue
		}

		key := aligned.String()
		kept[key] = kept[key].Add(o.Amount)
	}
	return actions, kept
}

func cancelAction(o *core.Order, marketID core.MarketID, strategyID core.StrategyID) Action {
	return Action{Kind: OrderCancel, Side: o.Side, Price: o.Price, Amount: o.Amount, OrderID: o.ID, MarketID: marketID, StrategyID: strategyID}
}

func lookupLevel(ob *orderbook.Orderbook, side core.Side, price decimal.Decimal) (core.OrderbookLevel, bool) {
	for _, lv := range ob.Levels(side) {
		if lv.Price.Equal(price) {
			return lv, true
		}
	}
	return core.OrderbookLevel{}, false
}

// alignToGrid snaps price to the nearest grid point, or returns price
// unchanged if no grid is configured for this side.
func alignToGrid(price decimal.Decimal, grid []core.PricePoint) decimal.Decimal {
	if len(grid) == 0 {
		return price
	}
	best := grid[0].Price
	bestDist := price.Sub(best).Abs()
	for _, p := range grid[1:] {
		dist := price.Sub(p.Price).Abs()
		if dist.LessThan(bestDist) {
			best = p.Price
			bestDist = dist
		}
	}
	return best
}

// diffCreateSide builds create actions for the desired amount not already
// covered by kept resting orders, respecting MaxAmountPerOrder chunking
// and the side's volume caps (spec.md §4.3 rules 3-4).
func diffCreateSide(desired *orderbook.Orderbook, kept map[string]decimal.Decimal, target *market.Market, side core.Side, opts Options) []Action {
	grid := opts.grid(side)

	baseLimit, quoteLimit := sideLimits(side, opts)
	cumulativeBase := decimal.Zero
	cumulativeQuote := decimal.Zero

	var actions []Action
	for _, lv := range desired.Levels(side) {
		aligned := alignToGrid(lv.Price, grid)
		remaining := lv.Amount.Sub(kept[aligned.String()])
		if !remaining.IsPositive() {
			continue
		}

		remaining, stop := capAgainstSideLimits(remaining, aligned, baseLimit, quoteLimit, &cumulativeBase, &cumulativeQuote)
		if remaining.IsPositive() {
			actions = append(actions, chunkCreate(remaining, aligned, side, target, opts)...)
		}
		if stop {
			break
		}
	}
	return actions
}

func sideLimits(side core.Side, opts Options) (base, quote *decimal.Decimal) {
	if side == core.Sell {
		return opts.LimitAsksBase, opts.LimitAsksQuote
	}
	return opts.LimitBidsBase, opts.LimitBidsQuote
}

// capAgainstSideLimits truncates amount so neither the cumulative base nor
// cumulative quote volume for this side exceeds whichever limits are
// configured (spec.md §4.3 rule 4). stop=true once a limit is saturated,
// signalling the caller to drop every level beyond this one (furthest from
// top is dropped first because Levels() is best-first).
func capAgainstSideLimits(amount, price decimal.Decimal, baseLimit, quoteLimit *decimal.Decimal, cumulativeBase, cumulativeQuote *decimal.Decimal) (decimal.Decimal, bool) {
	kept := amount
	stop := false

	if baseLimit != nil {
		remaining := baseLimit.Sub(*cumulativeBase)
		if !remaining.IsPositive() {
			return decimal.Zero, true
		}
		if kept.GreaterThan(remaining) {
			kept = remaining
			stop = true
		}
	}
	if quoteLimit != nil {
		remainingQuote := quoteLimit.Sub(*cumulativeQuote)
		if !remainingQuote.IsPositive() {
			return decimal.Zero, true
		}
		maxByQuote := remainingQuote.Div(price)
		if kept.GreaterThan(maxByQuote) {
			kept = maxByQuote
			stop = true
		}
	}

	*cumulativeBase = cumulativeBase.Add(kept)
	*cumulativeQuote = cumulativeQuote.Add(kept.Mul(price))
	return kept, stop
}

func orderType(opts Options) core.OrderType {
	if opts.OrderType == "" {
		return core.Limit
	}
	return opts.OrderType
}

func chunkCreate(amount, price decimal.Decimal, side core.Side, target *market.Market, opts Options) []Action {
	typ := orderType(opts)
	if opts.MaxAmountPerOrder == nil || !opts.MaxAmountPerOrder.IsPositive() || amount.LessThanOrEqual(*opts.MaxAmountPerOrder) {
		return []Action{{Kind: OrderCreate, Side: side, Price: price, Amount: amount, Type: typ, MarketID: target.ID, StrategyID: opts.StrategyID}}
	}

	var actions []Action
	remaining := amount
	for remaining.IsPositive() {
		chunk := *opts.MaxAmountPerOrder
		if remaining.LessThan(chunk) {
			chunk = remaining
		}
		actions = append(actions, Action{Kind: OrderCreate, Side: side, Price: price, Amount: chunk, Type: typ, MarketID: target.ID, StrategyID: opts.StrategyID})
		remaining = remaining.Sub(chunk)
	}
	return actions
}
