// Package strategy computes the desired target order book each tick and
// reacts to private fills by hedging on the source (spec.md §4.2). The
// Orderback type is the only strategy variant this module implements;
// grounded on the teacher's pkg/oms order-lifecycle handling for the
// notify/react shape (order_manager.go, fix/application.go), generalized
// from matching-engine fills to market-making hedges.
package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/exchange"
	"github.com/orderflow-labs/mmcore/pkg/ledger"
	"github.com/orderflow-labs/mmcore/pkg/logging"
	"github.com/orderflow-labs/mmcore/pkg/market"
	"github.com/orderflow-labs/mmcore/pkg/mmerrors"
	"github.com/orderflow-labs/mmcore/pkg/orderbook"
	"github.com/orderflow-labs/mmcore/pkg/plugins"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceFunc selects how price-point grids are spaced away from top of book.
type PriceFunc string

const (
	Constant    PriceFunc = "constant"
	Linear      PriceFunc = "linear"
	Exponential PriceFunc = "exponential"
)

// SideScope restricts which sides a strategy quotes.
type SideScope string

const (
	SideAsks SideScope = "asks"
	SideBids SideScope = "bids"
	SideBoth SideScope = "both"
)

// Config is the orderback strategy's parameter set (spec.md §4.2).
type Config struct {
	LevelsPriceStep    decimal.Decimal
	LevelsPriceFunc    PriceFunc
	LevelsCount        int
	SpreadBids         decimal.Decimal
	SpreadAsks         decimal.Decimal
	Side               SideScope
	EnableOrderback    bool
	MinOrderBackAmount decimal.Decimal
	OrderbackGraceTime time.Duration
	OrderbackType      core.OrderType
	ApplySafeLimitsOnSource bool
}

// Validate reports a ConfigurationError for any invalid field (spec.md §7).
func (c Config) Validate() error {
	if c.LevelsCount < 1 {
		return &mmerrors.ConfigurationError{Reason: fmt.Sprintf("levels_count must be >= 1, got %d", c.LevelsCount)}
	}
	if c.SpreadBids.IsNegative() || c.SpreadAsks.IsNegative() {
		return &mmerrors.ConfigurationError{Reason: "spread_bids/spread_asks must be non-negative"}
	}
	if c.OrderbackType != core.Limit && c.OrderbackType != core.Market {
		return &mmerrors.ConfigurationError{Reason: fmt.Sprintf("unknown orderback_type %q", c.OrderbackType)}
	}
	switch c.Side {
	case SideAsks, SideBids, SideBoth:
	default:
		return &mmerrors.ConfigurationError{Reason: fmt.Sprintf("unknown side %q", c.Side)}
	}
	return nil
}

// SourceRef pairs a source market with the account it belongs to.
type SourceRef struct {
	Market  *market.Market
	Account *market.Account
}

// PriceGrids are the spread-adjusted price points the scheduler aligns
// resting orders onto (spec.md §4.2).
type PriceGrids struct {
	Asks []core.PricePoint
	Bids []core.PricePoint
}

type pendingHedge struct {
	MarketID core.MarketID
	Price    decimal.Decimal
	Amount   decimal.Decimal
	Side     core.Side
}

// Orderback is the market-making + hedge-on-fill strategy (spec.md §4.2).
type Orderback struct {
	ID            core.StrategyID
	Config        Config
	Target        *market.Market
	TargetAccount *market.Account
	Sources       []SourceRef

	TargetPlugin plugins.Plugin
	SourcePlugin plugins.Plugin
	Fx           exchange.Fx
	Ledger       ledger.Publisher
	Log          *logging.Logger

	mu         sync.Mutex
	pending    map[string]pendingHedge
	timerArmed bool
	timer      *time.Timer
}

// New constructs an Orderback strategy. Ledger and Log may be nil; Ledger
// defaults to a no-op publisher and Log calls are skipped when nil.
func New(id core.StrategyID, cfg Config, target *market.Market, targetAccount *market.Account, sources []SourceRef, targetPlugin, sourcePlugin plugins.Plugin) *Orderback {
	return &Orderback{
		ID:            id,
		Config:        cfg,
		Target:        target,
		TargetAccount: targetAccount,
		Sources:       sources,
		TargetPlugin:  targetPlugin,
		SourcePlugin:  sourcePlugin,
		Ledger:        ledger.NopPublisher{},
		pending:       make(map[string]pendingHedge),
	}
}

// Call computes the desired target order book for this tick (spec.md
// §4.2).
func (o *Orderback) Call() (*orderbook.Orderbook, PriceGrids, error) {
	if len(o.Sources) != 1 {
		return nil, PriceGrids{}, &mmerrors.StrategyError{Reason: fmt.Sprintf("orderback requires exactly one source, got %d", len(o.Sources))}
	}
	src := o.Sources[0]

	if err := requireCurrency(o.TargetAccount, o.Target.BaseCurrency); err != nil {
		return nil, PriceGrids{}, err
	}
	if err := requireCurrency(o.TargetAccount, o.Target.QuoteCurrency); err != nil {
		return nil, PriceGrids{}, err
	}
	if err := requireCurrency(src.Account, src.Market.BaseCurrency); err != nil {
		return nil, PriceGrids{}, err
	}
	if err := requireCurrency(src.Account, src.Market.QuoteCurrency); err != nil {
		return nil, PriceGrids{}, err
	}

	targetLimits := o.TargetPlugin.Limits(o.Target.Orderbook, o.TargetAccount.Balances())
	sourceLimits := o.SourcePlugin.Limits(src.Market.Orderbook, src.Account.Balances())

	askPoints := buildPricePoints(targetLimits.TopAskPrice, o.Config.LevelsCount, o.Config.LevelsPriceFunc, o.Config.LevelsPriceStep, core.Sell, o.Target.PricePrecision)
	bidPoints := buildPricePoints(targetLimits.TopBidPrice, o.Config.LevelsCount, o.Config.LevelsPriceFunc, o.Config.LevelsPriceStep, core.Buy, o.Target.PricePrecision)

	if o.Config.Side == SideAsks {
		bidPoints = nil
	}
	if o.Config.Side == SideBids {
		askPoints = nil
	}

	agg := src.Market.Orderbook.Aggregate(bidPoints, askPoints, o.Target.MinAmount)
	adjusted := agg.ToOrderbook().AdjustVolumeSimple(&targetLimits.LimitInBase, &targetLimits.LimitInQuote, false)
	if o.Config.ApplySafeLimitsOnSource {
		// sideSwap=true: the source's limits are denominated on the source's
		// own currencies, which sit opposite target's ask/bid base/quote
		// convention (a hedge buys on source what it sold on target).
		adjusted = adjusted.AdjustVolumeSimple(&sourceLimits.LimitInQuote, &sourceLimits.LimitInBase, true)
	}

	desired := adjusted.Spread(o.Config.SpreadBids, o.Config.SpreadAsks)

	grids := PriceGrids{
		Asks: spreadPoints(askPoints, decimal.Zero, o.Config.SpreadAsks),
		Bids: spreadPoints(bidPoints, o.Config.SpreadBids, decimal.Zero),
	}
	return desired, grids, nil
}

func requireCurrency(acct *market.Account, currency string) error {
	if currency == "" {
		return nil
	}
	if _, ok := acct.Balances()[currency]; !ok {
		return &mmerrors.StrategyError{Reason: fmt.Sprintf("account %s missing currency %s", acct.ID, currency)}
	}
	return nil
}

// spreadPoints applies the same multiplicative spread transform the book
// itself receives, so the scheduler aligns onto the post-spread grid.
func spreadPoints(points []core.PricePoint, bidBps, askBps decimal.Decimal) []core.PricePoint {
	one := decimal.NewFromInt(1)
	out := make([]core.PricePoint, len(points))
	for i, p := range points {
		factor := one.Add(askBps).Sub(bidBps) // exactly one of bidBps/askBps is non-zero per call site
		out[i] = core.PricePoint{Price: p.Price.Mul(factor)}
	}
	return out
}

// buildPricePoints constructs a price grid around topPrice (spec.md
// §4.2): constant/linear/exponential spacing, signed away from top of
// book (+ for asks, - for bids), rounded to market precision and
// deduplicated.
func buildPricePoints(top decimal.Decimal, count int, fn PriceFunc, step decimal.Decimal, side core.Side, precision int32) []core.PricePoint {
	if top.IsZero() && count == 0 {
		return nil
	}
	sign := decimal.NewFromInt(1)
	if side == core.Buy {
		sign = decimal.NewFromInt(-1)
	}

	out := make([]core.PricePoint, 0, count)
	seen := make(map[string]bool)
	cumulative := decimal.Zero

	for i := 0; i < count; i++ {
		var price decimal.Decimal
		switch fn {
		case Linear:
			cumulative = cumulative.Add(step.Mul(decimal.NewFromInt(int64(i + 1))))
			price = top.Add(sign.Mul(cumulative))
		case Exponential:
			factor := decimal.NewFromInt(1).Add(sign.Mul(step))
			price = top.Mul(factor.Pow(decimal.NewFromInt(int64(i))))
		default: // Constant
			price = top.Add(sign.Mul(step.Mul(decimal.NewFromInt(int64(i)))))
		}
		price = price.Round(precision)
		key := price.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, core.PricePoint{Price: price})
	}
	return out
}

// NotifyPrivateTrade reacts to a fill on the target market (spec.md
// §4.2).
func (o *Orderback) NotifyPrivateTrade(trade exchange.PrivateTrade, trust bool) error {
	if !o.Config.EnableOrderback || trade.MarketID != o.Target.ID {
		return nil
	}

	if trust {
		order := &core.Order{ID: trade.OrderID, MarketID: trade.MarketID, Price: trade.Price, Amount: trade.Amount, Side: trade.Side}
		return o.OrderBack(trade, order)
	}

	sides := o.Target.OpenOrders.FindSides(trade.OrderID)
	if len(sides) > 1 {
		if o.Log != nil {
			o.Log.WithStrategy(string(o.ID)).Error(context.Background(), "order resting on both sides during notify", zap.String("order_id", trade.OrderID))
		}
		return &mmerrors.InvariantViolation{Reason: fmt.Sprintf("order %s resting on both sides", trade.OrderID)}
	}

	order, ok := o.Target.OpenOrders.Get(trade.OrderID)
	if !ok {
		return nil
	}
	return o.OrderBack(trade, order)
}

// OrderBack de-spreads the fill price, applies FX if configured, and
// buffers the hedge for grace-window grouping (spec.md §4.2).
func (o *Orderback) OrderBack(trade exchange.PrivateTrade, order *core.Order) error {
	hedgeSide := order.Side.Opposite()

	one := decimal.NewFromInt(1)
	var price decimal.Decimal
	switch order.Side {
	case core.Sell:
		price = order.Price.Div(one.Add(o.Config.SpreadAsks))
	default: // core.Buy
		price = order.Price.Div(one.Sub(o.Config.SpreadBids))
	}

	if o.Fx != nil {
		if !o.Fx.Ready() {
			time.AfterFunc(time.Second, func() {
				_ = o.OrderBack(trade, order)
			})
			return &mmerrors.FxUnavailable{Pair: string(o.Sources[0].Market.ID)}
		}
		price = o.Fx.Apply(price)
	}

	key := trade.ID + "|" + order.ID

	o.mu.Lock()
	o.pending[key] = pendingHedge{MarketID: o.Sources[0].Market.ID, Price: price, Amount: trade.Amount, Side: hedgeSide}
	needsArm := !o.timerArmed
	if needsArm {
		o.timerArmed = true
		o.timer = time.AfterFunc(graceDuration(o.Config.OrderbackGraceTime), o.fireHedge)
	}
	o.mu.Unlock()

	return nil
}

func graceDuration(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return d
}

type hedgeGroup struct {
	MarketID core.MarketID
	Price    decimal.Decimal
	Side     core.Side
	Amount   decimal.Decimal
}

// fireHedge drains the pending buffer, groups by (price, side), and pushes
// one create-order action per surviving group to the source executor
// (spec.md §4.2). The timer-armed flag is cleared before any work that can
// fail, so every exit path leaves it disarmed.
func (o *Orderback) fireHedge() {
	o.mu.Lock()
	pending := o.pending
	o.pending = make(map[string]pendingHedge)
	o.timerArmed = false
	o.mu.Unlock()

	groups := make(map[string]*hedgeGroup, len(pending))
	for _, p := range pending {
		key := p.Price.String() + "|" + string(p.Side)
		g, ok := groups[key]
		if !ok {
			g = &hedgeGroup{MarketID: p.MarketID, Price: p.Price, Side: p.Side, Amount: decimal.Zero}
			groups[key] = g
		}
		g.Amount = g.Amount.Add(p.Amount)
	}

	src := o.Sources[0]
	ctx := context.Background()
	for _, g := range groups {
		if g.Amount.LessThanOrEqual(o.Config.MinOrderBackAmount) {
			continue
		}
		action := core.Action{
			Kind:       core.ActionCreate,
			MarketID:   g.MarketID,
			StrategyID: o.ID,
			Side:       g.Side,
			Price:      g.Price,
			Amount:     g.Amount,
			Type:       o.Config.OrderbackType,
		}

		if err := src.Account.Executor.Push(ctx, o.ID, []core.Action{action}); err != nil {
			if o.Log != nil {
				o.Log.WithStrategy(string(o.ID)).WithMarket(string(g.MarketID)).Error(ctx, "failed to push orderback action", zap.Error(err))
			}
			continue
		}

		_ = o.Ledger.Publish(ctx, ledger.Event{
			Kind:       ledger.KindHedgeEmitted,
			StrategyID: o.ID,
			AccountID:  src.Account.ID,
			MarketID:   g.MarketID,
			Side:       g.Side,
			Price:      g.Price,
			Amount:     g.Amount,
			At:         time.Now(),
		})
	}
}
