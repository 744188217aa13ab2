// Package executor dispatches scheduler actions to an exchange adapter,
// one FIFO queue per (account, strategy) (spec.md §4.4). Grounded on the
// teacher's pkg/oms/worker.Worker pull-consumer loop (fetch a batch, handle
// each, ack) and pkg/infra/postgres.InitPostgresWithBackoff's retry shape,
// repurposed from connection bring-up to per-action retry.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gammazero/deque"
	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/exchange"
	"github.com/orderflow-labs/mmcore/pkg/ledger"
	"github.com/orderflow-labs/mmcore/pkg/logging"
	"github.com/orderflow-labs/mmcore/pkg/market"
	"github.com/orderflow-labs/mmcore/pkg/mmerrors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config tunes one account's executor (spec.md §4.4).
type Config struct {
	// RequestsPerSecond and Burst parameterize the per-account outbound
	// rate limiter.
	RequestsPerSecond float64
	Burst             int

	// MaxRetries bounds retries of a transient CreateOrder failure.
	MaxRetries uint64

	// PurgeOnPush replaces a strategy's queue contents on every Push
	// instead of appending; the market-making default (spec.md §4.4).
	PurgeOnPush bool

	// DefaultGrace is used by FetchOpenOrders when the caller passes zero.
	DefaultGrace time.Duration
}

// DefaultConfig is a reasonable starting point for a single account.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 5,
		Burst:             5,
		MaxRetries:        3,
		PurgeOnPush:       true,
		DefaultGrace:      2 * time.Second,
	}
}

// Executor owns one account's outbound connection: it is the sole writer
// to the adapter for that account (spec.md §5).
type Executor struct {
	AccountID core.AccountID
	Adapter   exchange.Adapter
	Markets   *market.Registry
	Ledger    ledger.Publisher
	Log       *logging.Logger

	cfg     Config
	limiter *rate.Limiter

	mu     sync.Mutex
	queues map[core.StrategyID]*deque.Deque[core.Action]
	order  []core.StrategyID
	cursor int

	recent   map[string]time.Time
	recentMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Executor for one account. Ledger defaults to a no-op
// publisher when nil.
func New(accountID core.AccountID, adapter exchange.Adapter, markets *market.Registry, log *logging.Logger, cfg Config) *Executor {
	publisher := ledger.Publisher(ledger.NopPublisher{})
	return &Executor{
		AccountID: accountID,
		Adapter:   adapter,
		Markets:   markets,
		Ledger:    publisher,
		Log:       log,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		queues:    make(map[core.StrategyID]*deque.Deque[core.Action]),
		recent:    make(map[string]time.Time),
	}
}

// CreateQueue registers a strategy's queue; idempotent.
func (e *Executor) CreateQueue(strategyID core.StrategyID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.createQueueLocked(strategyID)
}

func (e *Executor) createQueueLocked(strategyID core.StrategyID) *deque.Deque[core.Action] {
	q, ok := e.queues[strategyID]
	if ok {
		return q
	}
	q = &deque.Deque[core.Action]{}
	e.queues[strategyID] = q
	e.order = append(e.order, strategyID)
	return q
}

// Push installs actions onto a strategy's queue. With PurgeOnPush (the
// default) it replaces the queue's contents so a stale plan never clobbers
// a fresher one (spec.md §4.4); otherwise it appends.
func (e *Executor) Push(ctx context.Context, strategyID core.StrategyID, actions []core.Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.createQueueLocked(strategyID)

	if e.cfg.PurgeOnPush {
		q.Clear()
	}
	for _, a := range actions {
		q.PushBack(a)
	}
	return nil
}

// Start spawns the per-account dispatcher goroutine, draining queues in
// round-robin across strategies at the configured rate (spec.md §4.4).
func (e *Executor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(1)
	go e.run(ctx)
}

// Stop halts the dispatcher goroutine and waits for it to exit.
func (e *Executor) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Executor) run(ctx context.Context) {
	defer e.wg.Done()
	for {
		if err := e.limiter.Wait(ctx); err != nil {
			return
		}
		action, strategyID, ok := e.nextAction()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		e.dispatch(ctx, strategyID, action)
	}
}

// nextAction pops the next action in round-robin order across non-empty
// strategy queues.
func (e *Executor) nextAction() (core.Action, core.StrategyID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.order)
	for i := 0; i < n; i++ {
		idx := (e.cursor + i) % n
		strategyID := e.order[idx]
		q := e.queues[strategyID]
		if q.Len() > 0 {
			action := q.PopFront()
			e.cursor = (idx + 1) % n
			return action, strategyID, true
		}
	}
	return core.Action{}, "", false
}

// dispatch sends one action to the adapter, retrying transient CreateOrder
// failures with exponential backoff and dropping permanent ones (spec.md
// §4.4/§7). Every outcome is published to the ledger, best-effort.
func (e *Executor) dispatch(ctx context.Context, strategyID core.StrategyID, action core.Action) {
	var err error
	switch action.Kind {
	case core.ActionCreate:
		err = e.dispatchCreate(ctx, action)
	case core.ActionCancel:
		err = e.Adapter.CancelOrder(ctx, action.MarketID, action.OrderID)
	case core.ActionStop:
		err = e.cancelSide(ctx, action.MarketID, action.Side)
	case core.ActionStopAll:
		err = e.cancelAllMarkets(ctx)
	}

	kind := ledger.KindActionDispatched
	if err != nil {
		kind = ledger.KindActionFailed
		e.logError(ctx, "action dispatch failed", strategyID, action, err)
	}
	_ = e.Ledger.Publish(ctx, ledger.Event{
		Kind:       kind,
		StrategyID: strategyID,
		AccountID:  e.AccountID,
		MarketID:   action.MarketID,
		Side:       action.Side,
		Price:      action.Price,
		Amount:     action.Amount,
		OrderID:    action.OrderID,
		At:         time.Now(),
	})
}

func (e *Executor) dispatchCreate(ctx context.Context, action core.Action) error {
	order := core.Order{MarketID: action.MarketID, Price: action.Price, Amount: action.Amount, Side: action.Side, Type: action.Type}

	var orderID string
	operation := func() error {
		var createErr error
		orderID, createErr = e.Adapter.CreateOrder(ctx, order)
		if createErr == nil {
			return nil
		}
		var transient *mmerrors.TransientExchangeError
		if isTransient(createErr, &transient) {
			return createErr
		}
		return backoff.Permanent(createErr)
	}

	boff := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.cfg.MaxRetries)
	if err := backoff.Retry(operation, boff); err != nil {
		return err
	}

	order.ID = orderID
	e.markRecent(orderID)
	if m, mErr := e.Markets.Get(action.MarketID); mErr == nil {
		m.OpenOrders.Insert(&order)
	}
	return nil
}

func isTransient(err error, target **mmerrors.TransientExchangeError) bool {
	for err != nil {
		if t, ok := err.(*mmerrors.TransientExchangeError); ok {
			*target = t
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

func (e *Executor) cancelSide(ctx context.Context, marketID core.MarketID, side core.Side) error {
	m, err := e.Markets.Get(marketID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, o := range m.OpenOrders.All(side) {
		if cancelErr := e.Adapter.CancelOrder(ctx, marketID, o.ID); cancelErr != nil && firstErr == nil {
			firstErr = cancelErr
		}
	}
	return firstErr
}

func (e *Executor) cancelAllMarkets(ctx context.Context) error {
	var firstErr error
	for _, m := range e.Markets.All() {
		if m.AccountRef != e.AccountID {
			continue
		}
		for _, side := range []core.Side{core.Buy, core.Sell} {
			if err := e.cancelSide(ctx, m.ID, side); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (e *Executor) markRecent(orderID string) {
	if orderID == "" {
		return
	}
	e.recentMu.Lock()
	e.recent[orderID] = time.Now()
	e.recentMu.Unlock()
}

// recentWithinGrace returns the set of locally-created order IDs younger
// than grace, pruning everything older as a side effect.
func (e *Executor) recentWithinGrace(grace time.Duration) map[string]bool {
	e.recentMu.Lock()
	defer e.recentMu.Unlock()

	out := make(map[string]bool)
	now := time.Now()
	for id, at := range e.recent {
		if now.Sub(at) < grace {
			out[id] = true
		} else {
			delete(e.recent, id)
		}
	}
	return out
}

// FetchOpenOrders reconciles a market's OpenOrders cache with the
// exchange's authoritative list, ignoring locally-created orders younger
// than grace (spec.md §4.4). grace<=0 uses the executor's configured
// default.
func (e *Executor) FetchOpenOrders(ctx context.Context, m *market.Market, grace time.Duration) (inserted, removed, amended []string, err error) {
	if grace <= 0 {
		grace = e.cfg.DefaultGrace
	}
	truth, err := e.Adapter.FetchOpenOrders(ctx, m.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	ignoreRecent := e.recentWithinGrace(grace)
	inserted, removed, amended = m.OpenOrders.Reconcile(truth, ignoreRecent)
	return inserted, removed, amended, nil
}

func (e *Executor) logError(ctx context.Context, msg string, strategyID core.StrategyID, action core.Action, err error) {
	if e.Log == nil {
		return
	}
	e.Log.WithStrategy(string(strategyID)).WithMarket(string(action.MarketID)).Error(ctx, msg,
		zap.String("kind", string(action.Kind)),
		zap.Error(err),
	)
}
