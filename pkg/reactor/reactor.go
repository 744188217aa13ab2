// Package reactor owns every account/market/strategy and schedules their
// periodic work on goroutines: one per strategy's tick loop and one per
// background loop (spec.md §4.5). Grounded on the teacher's cmd/oms/main.go
// context+signal.Notify+cancel shutdown shape and pkg/oms.OMS's
// Start/Stop lifecycle methods.
package reactor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/executor"
	"github.com/orderflow-labs/mmcore/pkg/logging"
	"github.com/orderflow-labs/mmcore/pkg/market"
	"github.com/orderflow-labs/mmcore/pkg/mmerrors"
	"github.com/orderflow-labs/mmcore/pkg/scheduler"
	"github.com/orderflow-labs/mmcore/pkg/strategy"
	"go.uber.org/zap"
)

// MetricsSink is the external metrics surface (spec.md §6); the default
// implementation logs at debug level.
type MetricsSink interface {
	Gauge(name string, value float64, tags map[string]string)
	Counter(name string, delta float64, tags map[string]string)
}

// loggingSink is the default MetricsSink: it logs rather than exporting
// anywhere, so the reactor never needs a nil check.
type loggingSink struct{ log *logging.Logger }

func (s loggingSink) Gauge(name string, value float64, tags map[string]string) {
	if s.log == nil {
		return
	}
	s.log.Debug(context.Background(), "gauge", zap.String("name", name), zap.Float64("value", value))
}

func (s loggingSink) Counter(name string, delta float64, tags map[string]string) {
	if s.log == nil {
		return
	}
	s.log.Debug(context.Background(), "counter", zap.String("name", name), zap.Float64("delta", delta))
}

// StrategyEntry binds an Orderback instance to its scheduling parameters
// (spec.md §4.5/§6).
type StrategyEntry struct {
	ID                core.StrategyID
	Strategy          *strategy.Orderback
	Period            time.Duration
	PeriodRandomDelay time.Duration
	DelayFirstTick    bool
	SchedOptions      scheduler.Options

	firstTickDone bool
	stopped       bool
}

// Reactor owns the account/market/strategy registries and the background
// loops that drive them (spec.md §4.5).
type Reactor struct {
	Accounts   *market.AccountRegistry
	Markets    *market.Registry
	Strategies []*StrategyEntry
	Executors  map[core.AccountID]*executor.Executor

	Metrics MetricsSink
	Log     *logging.Logger

	DryRun               bool
	DelayTheFirstExecute bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Reactor over already-built registries; cmd/ wires
// AppConfig into these before calling New.
func New(accounts *market.AccountRegistry, markets *market.Registry, executors map[core.AccountID]*executor.Executor, log *logging.Logger) *Reactor {
	return &Reactor{
		Accounts:  accounts,
		Markets:   markets,
		Executors: executors,
		Metrics:   loggingSink{log: log},
		Log:       log,
	}
}

// AddStrategy registers a strategy entry to be ticked once Run starts.
func (r *Reactor) AddStrategy(entry *StrategyEntry) {
	entry.firstTickDone = !(entry.DelayFirstTick || r.DelayTheFirstExecute)
	r.Strategies = append(r.Strategies, entry)
}

// Run executes the startup sequence (spec.md §4.5 steps 1-8) and blocks
// its background loops on ctx; call Stop or cancel ctx to shut down.
func (r *Reactor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for _, m := range r.Markets.All() {
		if err := r.startMarket(ctx, m); err != nil {
			r.logError(ctx, "failed to start market", logTags{MarketID: string(m.ID)}, err)
		}
	}

	r.updateBalances(ctx)
	r.spawnLoop(ctx, 23*time.Second, r.updateBalances)

	for _, entry := range r.Strategies {
		r.wireStrategyQueues(entry)
	}

	if !r.DryRun {
		for _, exec := range r.Executors {
			exec.Start(ctx)
		}
	}

	for _, m := range r.Markets.All() {
		if acct, ok := r.Accounts.Get(m.AccountRef); ok && m.Flags.WSPublic {
			acct.SetWSPublicReady(true)
		}
		if acct, ok := r.Accounts.Get(m.AccountRef); ok && m.Flags.WSPrivate {
			acct.SetWSPrivateReady(true)
		}
	}

	r.spawnLoop(ctx, 600*time.Second, r.reconcileAll)
	r.spawnLoop(ctx, 30*time.Second, r.emitGauges)

	for _, entry := range r.Strategies {
		r.scheduleStrategy(ctx, entry)
	}

	<-ctx.Done()
	return nil
}

// Stop halts every background loop and executor, and waits for them to
// exit (spec.md §4.5 Shutdown).
func (r *Reactor) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	for _, exec := range r.Executors {
		exec.Stop()
	}
	r.wg.Wait()
}

func (r *Reactor) startMarket(ctx context.Context, m *market.Market) error {
	if !m.Flags.FetchPublicOrderbook {
		return nil
	}
	return r.refreshOrderbook(ctx, m)
}

func (r *Reactor) refreshOrderbook(ctx context.Context, m *market.Market) error {
	exec, ok := r.Executors[m.AccountRef]
	if !ok {
		return nil
	}
	bids, asks, err := exec.Adapter.FetchOrderbook(ctx, m.ID, 0)
	if err != nil {
		return err
	}
	for _, lv := range bids {
		if err := m.Orderbook.Update(core.Buy, lv.Price, lv.Amount); err != nil {
			return err
		}
	}
	for _, lv := range asks {
		if err := m.Orderbook.Update(core.Sell, lv.Price, lv.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reactor) updateBalances(ctx context.Context) {
	for _, acct := range r.Accounts.All() {
		exec, ok := r.Executors[acct.ID]
		if !ok {
			continue
		}
		balances, err := exec.Adapter.FetchBalances(ctx)
		if err != nil {
			r.logError(ctx, "failed to fetch balances", logTags{AccountID: string(acct.ID)}, err)
			continue
		}
		acct.SetBalances(balances)
	}
}

func (r *Reactor) wireStrategyQueues(entry *StrategyEntry) {
	strat := entry.Strategy
	if exec, ok := r.Executors[strat.TargetAccount.ID]; ok {
		exec.CreateQueue(entry.ID)
	}
	for _, src := range strat.Sources {
		if exec, ok := r.Executors[src.Account.ID]; ok {
			exec.CreateQueue(entry.ID)
		}
	}
}

func (r *Reactor) reconcileAll(ctx context.Context) {
	for _, m := range r.Markets.All() {
		exec, ok := r.Executors[m.AccountRef]
		if !ok {
			continue
		}
		if _, _, _, err := exec.FetchOpenOrders(ctx, m, 0); err != nil {
			r.logError(ctx, "reconciliation failed", logTags{MarketID: string(m.ID)}, err)
		}
	}
}

func (r *Reactor) emitGauges(ctx context.Context) {
	for _, m := range r.Markets.All() {
		for _, side := range []core.Side{core.Buy, core.Sell} {
			r.Metrics.Gauge("order_count", float64(len(m.OpenOrders.All(side))), map[string]string{"side": string(side), "market": string(m.ID)})
		}
	}
}

// spawnLoop runs fn on its own goroutine every period until ctx is
// cancelled; the first call comes one period after spawnLoop returns.
func (r *Reactor) spawnLoop(ctx context.Context, period time.Duration, fn func(context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// scheduleStrategy runs entry.Strategy's Tick on its own goroutine at
// Period, jittered by up to PeriodRandomDelay, skipping exactly the first
// tick when configured (spec.md §4.5 step 8).
func (r *Reactor) scheduleStrategy(ctx context.Context, entry *StrategyEntry) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			delay := entry.Period
			if entry.PeriodRandomDelay > 0 {
				delay += time.Duration(rand.Int63n(int64(entry.PeriodRandomDelay)))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			if !entry.firstTickDone {
				entry.firstTickDone = true
				continue
			}
			r.Tick(ctx, entry)
			if entry.stopped {
				return
			}
		}
	}()
}

// Tick is the hot path (spec.md §4.5): refresh sources, compute the
// desired book, diff it against resting orders, and push the result. A
// panic here is an uncaught error in the periodic scheduling stack, so it
// is recovered and reclassified as a FatalReactorError, which stops this
// strategy's loop; every other error is logged and the strategy survives.
func (r *Reactor) Tick(ctx context.Context, entry *StrategyEntry) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logTickError(ctx, entry, &mmerrors.FatalReactorError{
				StrategyID: string(entry.ID),
				Err:        fmt.Errorf("panic: %v", rec),
			})
		}
	}()

	strat := entry.Strategy
	if !strat.TargetAccount.WSPrivateReady() && strat.Target.Flags.WSPrivate {
		return
	}
	for _, src := range strat.Sources {
		if src.Market.Flags.WSPrivate && !src.Account.WSPrivateReady() {
			return
		}
	}

	for _, src := range strat.Sources {
		if src.Market.Flags.FetchPublicOrderbook {
			if err := r.refreshOrderbook(ctx, src.Market); err != nil {
				r.logError(ctx, "failed to refresh source orderbook", logTags{StrategyID: string(entry.ID)}, err)
				return
			}
		}
	}

	desired, grids, err := strat.Call()
	if err != nil {
		r.logTickError(ctx, entry, err)
		return
	}
	if desired == nil {
		return
	}

	if r.DryRun {
		return
	}

	opts := entry.SchedOptions
	opts.StrategyID = entry.ID
	opts.PriceLevels = scheduler.PriceLevels{Asks: grids.Asks, Bids: grids.Bids}

	actions := scheduler.Schedule(strat.Target.OpenOrders, desired, strat.Target, opts)
	if len(actions) == 0 {
		return
	}

	exec, ok := r.Executors[strat.TargetAccount.ID]
	if !ok {
		return
	}
	if err := exec.Push(ctx, entry.ID, actions); err != nil {
		r.logError(ctx, "failed to push scheduler actions", logTags{StrategyID: string(entry.ID)}, err)
	}
}

// logTickError classifies the error the way §7's propagation policy
// requires: a FatalReactorError stops the strategy's loop, everything else
// is logged and the strategy survives to the next tick.
func (r *Reactor) logTickError(ctx context.Context, entry *StrategyEntry, err error) {
	var fatal *mmerrors.FatalReactorError
	if asFatal(err, &fatal) {
		r.logError(ctx, "fatal error in strategy, stopping", logTags{StrategyID: string(entry.ID)}, err)
		entry.stopped = true
		return
	}
	r.logError(ctx, "strategy tick error", logTags{StrategyID: string(entry.ID)}, err)
}

func asFatal(err error, target **mmerrors.FatalReactorError) bool {
	for err != nil {
		if f, ok := err.(*mmerrors.FatalReactorError); ok {
			*target = f
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// logTags scopes a log line to the strategy/account/market it concerns, per
// §7's propagation policy, using the Logger.With* helpers rather than
// one-off inline zap.String fields.
type logTags struct {
	StrategyID string
	AccountID  string
	MarketID   string
}

func (r *Reactor) logError(ctx context.Context, msg string, tags logTags, err error) {
	if r.Log == nil {
		return
	}
	log := r.Log
	if tags.StrategyID != "" {
		log = log.WithStrategy(tags.StrategyID)
	}
	if tags.AccountID != "" {
		log = log.WithAccount(tags.AccountID)
	}
	if tags.MarketID != "" {
		log = log.WithMarket(tags.MarketID)
	}
	log.Error(ctx, msg, zap.Error(err))
}
