package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/exchange"
	"github.com/orderflow-labs/mmcore/pkg/market"
	"github.com/orderflow-labs/mmcore/pkg/mmerrors"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// fakeAdapter is a minimal exchange.Adapter double driven entirely by test
// cases; it records every call it receives.
type fakeAdapter struct {
	mu sync.Mutex

	createErr   error
	createCalls int
	failUntil   int // CreateOrder fails transiently this many times, then succeeds
	cancelErr   error

	created []core.Order
	opened  []core.Order
	cancels []string
}

func (f *fakeAdapter) Markets() []core.MarketID { return nil }
func (f *fakeAdapter) MarketConfig(id core.MarketID) (exchange.MarketConfig, error) {
	return exchange.MarketConfig{}, nil
}
func (f *fakeAdapter) FetchOrderbook(ctx context.Context, marketID core.MarketID, depth int) ([]core.OrderbookLevel, []core.OrderbookLevel, error) {
	return nil, nil, nil
}

func (f *fakeAdapter) CreateOrder(ctx context.Context, order core.Order) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createCalls <= f.failUntil {
		return "", &mmerrors.TransientExchangeError{Op: "create_order", Err: context.DeadlineExceeded}
	}
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, order)
	return "order-1", nil
}

func (f *fakeAdapter) CancelOrder(ctx context.Context, marketID core.MarketID, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, orderID)
	return f.cancelErr
}

func (f *fakeAdapter) FetchOpenOrders(ctx context.Context, marketID core.MarketID) ([]core.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, nil
}

func (f *fakeAdapter) FetchBalances(ctx context.Context) ([]core.Balance, error) { return nil, nil }
func (f *fakeAdapter) OnPublicTrade(fn func(exchange.PublicTrade))              {}
func (f *fakeAdapter) OnPrivateTrade(fn func(exchange.PrivateTrade))            {}
func (f *fakeAdapter) Supports(c exchange.Capability) bool                     { return true }

func (f *fakeAdapter) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 1000
	return cfg
}

func TestPushWithPurgeReplacesQueue(t *testing.T) {
	reg := market.NewRegistry()
	exec := New("acct1", &fakeAdapter{}, reg, nil, testConfig())

	_ = exec.Push(context.Background(), "strat1", []core.Action{{Kind: core.ActionCancel, OrderID: "a"}})
	_ = exec.Push(context.Background(), "strat1", []core.Action{{Kind: core.ActionCancel, OrderID: "b"}})

	exec.mu.Lock()
	q := exec.queues["strat1"]
	n := q.Len()
	exec.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected purge-on-push to leave exactly 1 action queued, got %d", n)
	}
}

func TestPushWithoutPurgeAppends(t *testing.T) {
	reg := market.NewRegistry()
	cfg := testConfig()
	cfg.PurgeOnPush = false
	exec := New("acct1", &fakeAdapter{}, reg, nil, cfg)

	_ = exec.Push(context.Background(), "strat1", []core.Action{{Kind: core.ActionCancel, OrderID: "a"}})
	_ = exec.Push(context.Background(), "strat1", []core.Action{{Kind: core.ActionCancel, OrderID: "b"}})

	exec.mu.Lock()
	q := exec.queues["strat1"]
	n := q.Len()
	exec.mu.Unlock()
	if n != 2 {
		t.Fatalf("expected append-on-push to accumulate 2 actions, got %d", n)
	}
}

func TestCreateQueueIsIdempotent(t *testing.T) {
	reg := market.NewRegistry()
	exec := New("acct1", &fakeAdapter{}, reg, nil, testConfig())

	exec.CreateQueue("strat1")
	exec.CreateQueue("strat1")

	exec.mu.Lock()
	n := len(exec.order)
	exec.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected CreateQueue to be idempotent, got %d registered queues", n)
	}
}

func TestDispatchCreateInsertsIntoMarketOpenOrders(t *testing.T) {
	reg := market.NewRegistry()
	m := market.New("m1", "acct1", market.ModeFlags{}, d("0.001"), 2)
	reg.Put(m)

	adapter := &fakeAdapter{}
	exec := New("acct1", adapter, reg, nil, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := exec.Push(ctx, "strat1", []core.Action{{Kind: core.ActionCreate, MarketID: "m1", Side: core.Buy, Price: d("100"), Amount: d("1"), Type: core.Limit}}); err != nil {
		t.Fatal(err)
	}
	exec.Start(ctx)
	defer exec.Stop()

	waitFor(t, func() bool { return adapter.createCount() == 1 })
	waitFor(t, func() bool { return m.OpenOrders.Len() == 1 })
}

func TestDispatchCancelCallsAdapter(t *testing.T) {
	reg := market.NewRegistry()
	m := market.New("m1", "acct1", market.ModeFlags{}, d("0.001"), 2)
	reg.Put(m)

	adapter := &fakeAdapter{}
	exec := New("acct1", adapter, reg, nil, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := exec.Push(ctx, "strat1", []core.Action{{Kind: core.ActionCancel, MarketID: "m1", OrderID: "o1"}}); err != nil {
		t.Fatal(err)
	}
	exec.Start(ctx)
	defer exec.Stop()

	waitFor(t, func() bool {
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		return len(adapter.cancels) == 1 && adapter.cancels[0] == "o1"
	})
}

func TestDispatchCreateRetriesTransientThenSucceeds(t *testing.T) {
	reg := market.NewRegistry()
	m := market.New("m1", "acct1", market.ModeFlags{}, d("0.001"), 2)
	reg.Put(m)

	adapter := &fakeAdapter{failUntil: 2}
	exec := New("acct1", adapter, reg, nil, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := exec.Push(ctx, "strat1", []core.Action{{Kind: core.ActionCreate, MarketID: "m1", Side: core.Buy, Price: d("100"), Amount: d("1")}}); err != nil {
		t.Fatal(err)
	}
	exec.Start(ctx)
	defer exec.Stop()

	waitFor(t, func() bool { return m.OpenOrders.Len() == 1 })
	if adapter.createCount() != 3 {
		t.Fatalf("expected 2 transient failures then a success (3 calls), got %d", adapter.createCount())
	}
}

func TestDispatchCreatePermanentErrorIsNotRetried(t *testing.T) {
	reg := market.NewRegistry()
	m := market.New("m1", "acct1", market.ModeFlags{}, d("0.001"), 2)
	reg.Put(m)

	adapter := &fakeAdapter{createErr: &mmerrors.PermanentExchangeError{Op: "create_order", Err: context.Canceled}}
	exec := New("acct1", adapter, reg, nil, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := exec.Push(ctx, "strat1", []core.Action{{Kind: core.ActionCreate, MarketID: "m1", Side: core.Buy, Price: d("100"), Amount: d("1")}}); err != nil {
		t.Fatal(err)
	}
	exec.Start(ctx)
	defer exec.Stop()

	waitFor(t, func() bool { return adapter.createCount() == 1 })
	time.Sleep(20 * time.Millisecond)
	if adapter.createCount() != 1 {
		t.Fatalf("expected permanent error to be dropped without retry, got %d calls", adapter.createCount())
	}
	if m.OpenOrders.Len() != 0 {
		t.Fatalf("expected no order inserted on permanent failure")
	}
}

func TestRoundRobinDrainsAcrossStrategies(t *testing.T) {
	reg := market.NewRegistry()
	m := market.New("m1", "acct1", market.ModeFlags{}, d("0.001"), 2)
	reg.Put(m)

	adapter := &fakeAdapter{}
	exec := New("acct1", adapter, reg, nil, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = exec.Push(ctx, "strat1", []core.Action{{Kind: core.ActionCancel, MarketID: "m1", OrderID: "a"}})
	_ = exec.Push(ctx, "strat2", []core.Action{{Kind: core.ActionCancel, MarketID: "m1", OrderID: "b"}})

	exec.Start(ctx)
	defer exec.Stop()

	waitFor(t, func() bool {
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		return len(adapter.cancels) == 2
	})
}

func TestFetchOpenOrdersReconciles(t *testing.T) {
	reg := market.NewRegistry()
	m := market.New("m1", "acct1", market.ModeFlags{}, d("0.001"), 2)
	reg.Put(m)

	adapter := &fakeAdapter{opened: []core.Order{{ID: "x1", Side: core.Buy, Price: d("100"), Amount: d("1")}}}
	exec := New("acct1", adapter, reg, nil, testConfig())

	inserted, removed, amended, err := exec.FetchOpenOrders(context.Background(), m, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inserted) != 1 || inserted[0] != "x1" {
		t.Fatalf("expected x1 inserted, got %+v", inserted)
	}
	if len(removed) != 0 || len(amended) != 0 {
		t.Fatalf("expected no removals/amendments, got removed=%v amended=%v", removed, amended)
	}
}

func TestFetchOpenOrdersIgnoresRecentlyCreatedOrder(t *testing.T) {
	reg := market.NewRegistry()
	m := market.New("m1", "acct1", market.ModeFlags{}, d("0.001"), 2)
	reg.Put(m)

	adapter := &fakeAdapter{}
	exec := New("acct1", adapter, reg, nil, testConfig())
	exec.markRecent("fresh")
	m.OpenOrders.Insert(&core.Order{ID: "fresh", Side: core.Buy, Price: d("100"), Amount: d("1")})

	_, removed, _, err := exec.FetchOpenOrders(context.Background(), m, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("expected the recently-created order protected by the grace window, got removed=%v", removed)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
