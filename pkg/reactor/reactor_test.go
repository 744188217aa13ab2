package reactor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/exchange"
	"github.com/orderflow-labs/mmcore/pkg/executor"
	"github.com/orderflow-labs/mmcore/pkg/market"
	"github.com/orderflow-labs/mmcore/pkg/mmerrors"
	"github.com/orderflow-labs/mmcore/pkg/plugins"
	"github.com/orderflow-labs/mmcore/pkg/strategy"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// noopAdapter never errors and never returns liquidity; tests drive the
// books directly rather than through FetchOrderbook.
type noopAdapter struct {
	mu      sync.Mutex
	created []core.Order
}

func (a *noopAdapter) Markets() []core.MarketID { return nil }
func (a *noopAdapter) MarketConfig(id core.MarketID) (exchange.MarketConfig, error) {
	return exchange.MarketConfig{}, nil
}
func (a *noopAdapter) FetchOrderbook(ctx context.Context, marketID core.MarketID, depth int) ([]core.OrderbookLevel, []core.OrderbookLevel, error) {
	return nil, nil, nil
}
func (a *noopAdapter) CreateOrder(ctx context.Context, order core.Order) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created = append(a.created, order)
	return "order-1", nil
}
func (a *noopAdapter) CancelOrder(ctx context.Context, marketID core.MarketID, orderID string) error {
	return nil
}
func (a *noopAdapter) FetchOpenOrders(ctx context.Context, marketID core.MarketID) ([]core.Order, error) {
	return nil, nil
}
func (a *noopAdapter) FetchBalances(ctx context.Context) ([]core.Balance, error) { return nil, nil }
func (a *noopAdapter) OnPublicTrade(fn func(exchange.PublicTrade))               {}
func (a *noopAdapter) OnPrivateTrade(fn func(exchange.PrivateTrade))             {}
func (a *noopAdapter) Supports(c exchange.Capability) bool                      { return true }

func (a *noopAdapter) createCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.created)
}

func newFixture(t *testing.T) (*Reactor, *StrategyEntry, *noopAdapter) {
	t.Helper()

	targetMarket := market.New("target", "target-acct", market.ModeFlags{}, d("0.0001"), 2).WithAmountPrecision(4).WithCurrencies("BTC", "USD")
	sourceMarket := market.New("source", "source-acct", market.ModeFlags{}, d("0.0001"), 2).WithAmountPrecision(4).WithCurrencies("BTC", "USD")

	targetAcct := market.NewAccount("target-acct", "sim", nil)
	sourceAcct := market.NewAccount("source-acct", "sim", nil)
	targetAcct.SetBalances([]core.Balance{{Currency: "BTC", Free: d("10")}, {Currency: "USD", Free: d("100000")}})
	sourceAcct.SetBalances([]core.Balance{{Currency: "BTC", Free: d("10")}, {Currency: "USD", Free: d("100000")}})
	targetAcct.SetWSPrivateReady(true)
	sourceAcct.SetWSPrivateReady(true)

	_ = sourceMarket.Orderbook.Update(core.Buy, d("99"), d("1"))
	_ = sourceMarket.Orderbook.Update(core.Sell, d("101"), d("1"))
	_ = targetMarket.Orderbook.Update(core.Buy, d("99"), d("1"))
	_ = targetMarket.Orderbook.Update(core.Sell, d("101"), d("1"))

	markets := market.NewRegistry()
	markets.Put(targetMarket)
	markets.Put(sourceMarket)

	accounts := market.NewAccountRegistry()
	accounts.Put(targetAcct)
	accounts.Put(sourceAcct)

	adapter := &noopAdapter{}
	targetExec := executor.New("target-acct", adapter, markets, nil, testExecConfig())
	sourceExec := executor.New("source-acct", adapter, markets, nil, testExecConfig())
	targetAcct.Executor = targetExec
	sourceAcct.Executor = sourceExec

	cfg := strategy.Config{
		LevelsCount:     1,
		Side:            strategy.SideBoth,
		OrderbackType:   core.Limit,
		SpreadBids:      d("0.01"),
		SpreadAsks:      d("0.01"),
	}
	strat := strategy.New("strat1", cfg, targetMarket, targetAcct,
		[]strategy.SourceRef{{Market: sourceMarket, Account: sourceAcct}},
		plugins.FullBalance{BaseCurrency: "BTC", QuoteCurrency: "USD"},
		plugins.FullBalance{BaseCurrency: "BTC", QuoteCurrency: "USD"},
	)

	r := New(accounts, markets, map[core.AccountID]*executor.Executor{
		"target-acct": targetExec,
		"source-acct": sourceExec,
	}, nil)

	entry := &StrategyEntry{ID: "strat1", Strategy: strat, Period: time.Hour}
	r.AddStrategy(entry)

	return r, entry, adapter
}

func testExecConfig() executor.Config {
	cfg := executor.DefaultConfig()
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 1000
	return cfg
}

func TestTickSkipsWhenTargetWebsocketNotConnected(t *testing.T) {
	r, entry, adapter := newFixture(t)
	entry.Strategy.TargetAccount.SetWSPrivateReady(false)
	entry.Strategy.Target.Flags.WSPrivate = true

	r.Tick(context.Background(), entry)

	if n := adapter.createCount(); n != 0 {
		t.Fatalf("expected Tick to skip entirely, got %d CreateOrder calls", n)
	}
}

func TestTickPushesScheduledActionsWhenLive(t *testing.T) {
	r, entry, _ := newFixture(t)
	targetExec := r.Executors["target-acct"]
	targetExec.CreateQueue(entry.ID)

	r.Tick(context.Background(), entry)

	targetExec.Start(context.Background())
	defer targetExec.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if entry.Strategy.Target.OpenOrders.Len() > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected Tick to schedule and dispatch at least one create action")
}

func TestTickIsNoOpInDryRun(t *testing.T) {
	r, entry, adapter := newFixture(t)
	r.DryRun = true

	r.Tick(context.Background(), entry)

	if n := adapter.createCount(); n != 0 {
		t.Fatalf("expected dry run to push nothing to the adapter, got %d calls", n)
	}
}

func TestDelayTheFirstExecuteSkipsExactlyOneTick(t *testing.T) {
	r, _, _ := newFixture(t)
	r.DelayTheFirstExecute = true

	entry := &StrategyEntry{ID: "strat2", Period: time.Hour}
	r.AddStrategy(entry)

	if entry.firstTickDone {
		t.Fatalf("expected DelayTheFirstExecute to leave firstTickDone false until one tick elapses")
	}
}

func TestTickRecoversFromPanicAndStopsOnlyThatStrategy(t *testing.T) {
	r, entry, _ := newFixture(t)
	entry.Strategy.Target = nil // nil deref once Tick reaches strat.Call

	defer func() {
		if rec := recover(); rec != nil {
			t.Fatalf("Tick must recover its own panics, but one escaped: %v", rec)
		}
	}()
	r.Tick(context.Background(), entry)

	if !entry.stopped {
		t.Fatalf("expected a panic in Tick to surface as a FatalReactorError and stop the strategy")
	}
}

func TestFatalReactorErrorStopsOnlyThatStrategy(t *testing.T) {
	r, entry, _ := newFixture(t)
	err := &mmerrors.FatalReactorError{StrategyID: "strat1", Err: context.Canceled}
	r.logTickError(context.Background(), entry, err)

	if !entry.stopped {
		t.Fatalf("expected a FatalReactorError to mark the strategy entry stopped")
	}
}
