package scheduler

import (
	"testing"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/market"
	"github.com/orderflow-labs/mmcore/pkg/openorders"
	"github.com/orderflow-labs/mmcore/pkg/orderbook"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestTarget() *market.Market {
	return market.New("m1", "acc1", market.ModeFlags{}, d("0.001"), 2).WithAmountPrecision(4)
}

func actionsByKind(actions []Action, kind ActionKind) []Action {
	var out []Action
	for _, a := range actions {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// TestScheduleScenarioD mirrors SPEC_FULL.md §8 Scenario D: current bids
// {100:1, 99:1}, desired bids {100:1, 98:1}. Expected: cancel(bid@99),
// create(bid@98, amount=1), in that order.
func TestScheduleScenarioD(t *testing.T) {
	current := openorders.New()
	current.Insert(&core.Order{ID: "b100", Side: core.Buy, Price: d("100"), Amount: d("1")})
	current.Insert(&core.Order{ID: "b99", Side: core.Buy, Price: d("99"), Amount: d("1")})

	desired := orderbook.New()
	if err := desired.Update(core.Buy, d("100"), d("1")); err != nil {
		t.Fatal(err)
	}
	if err := desired.Update(core.Buy, d("98"), d("1")); err != nil {
		t.Fatal(err)
	}

	target := newTestTarget()
	actions := Schedule(current, desired, target, Options{StrategyID: "s1"})

	if len(actions) != 2 {
		t.Fatalf("expected exactly 2 actions, got %+v", actions)
	}
	if actions[0].Kind != OrderCancel || actions[0].OrderID != "b99" {
		t.Fatalf("expected first action to cancel b99, got %+v", actions[0])
	}
	if actions[1].Kind != OrderCreate || !actions[1].Price.Equal(d("98")) || !actions[1].Amount.Equal(d("1")) {
		t.Fatalf("expected second action to create bid@98 amount=1, got %+v", actions[1])
	}
}

// TestScheduleOrdersCancelAsksBeforeCancelBidsBeforeCreates checks the
// mandated action ordering (spec.md §4.3): cancel asks, cancel bids, create
// asks, create bids.
func TestScheduleOrdersCancelAsksBeforeCancelBidsBeforeCreates(t *testing.T) {
	current := openorders.New()
	current.Insert(&core.Order{ID: "stale-ask", Side: core.Sell, Price: d("105"), Amount: d("1")})
	current.Insert(&core.Order{ID: "stale-bid", Side: core.Buy, Price: d("95"), Amount: d("1")})

	desired := orderbook.New()
	if err := desired.Update(core.Sell, d("101"), d("1")); err != nil {
		t.Fatal(err)
	}
	if err := desired.Update(core.Buy, d("99"), d("1")); err != nil {
		t.Fatal(err)
	}

	target := newTestTarget()
	actions := Schedule(current, desired, target, Options{StrategyID: "s1"})

	if len(actions) != 4 {
		t.Fatalf("expected 4 actions, got %+v", actions)
	}
	wantKinds := []ActionKind{OrderCancel, OrderCancel, OrderCreate, OrderCreate}
	for i, k := range wantKinds {
		if actions[i].Kind != k {
			t.Fatalf("action %d: expected kind %s, got %+v", i, k, actions[i])
		}
	}
	if actions[0].Side != core.Sell {
		t.Fatalf("expected cancel-ask first, got %+v", actions[0])
	}
	if actions[1].Side != core.Buy {
		t.Fatalf("expected cancel-bid second, got %+v", actions[1])
	}
	if actions[2].Side != core.Sell {
		t.Fatalf("expected create-ask third, got %+v", actions[2])
	}
	if actions[3].Side != core.Buy {
		t.Fatalf("expected create-bid fourth, got %+v", actions[3])
	}
}

// TestScheduleKeepsOrderWithinAmountTolerance covers rule 2: an amount
// difference within the market's precision tolerance is left alone.
func TestScheduleKeepsOrderWithinAmountTolerance(t *testing.T) {
	current := openorders.New()
	current.Insert(&core.Order{ID: "o1", Side: core.Buy, Price: d("100"), Amount: d("1.00001")})

	desired := orderbook.New()
	if err := desired.Update(core.Buy, d("100"), d("1")); err != nil {
		t.Fatal(err)
	}

	target := newTestTarget()
	actions := Schedule(current, desired, target, Options{StrategyID: "s1"})
	if len(actions) != 0 {
		t.Fatalf("expected no actions for a within-tolerance amount, got %+v", actions)
	}
}

// TestScheduleCancelsOrderBeyondAmountTolerance covers rule 2's negative
// case: a difference larger than the tolerance forces a cancel+recreate.
func TestScheduleCancelsOrderBeyondAmountTolerance(t *testing.T) {
	current := openorders.New()
	current.Insert(&core.Order{ID: "o1", Side: core.Buy, Price: d("100"), Amount: d("1.5")})

	desired := orderbook.New()
	if err := desired.Update(core.Buy, d("100"), d("1")); err != nil {
		t.Fatal(err)
	}

	target := newTestTarget()
	actions := Schedule(current, desired, target, Options{StrategyID: "s1"})

	cancels := actionsByKind(actions, OrderCancel)
	creates := actionsByKind(actions, OrderCreate)
	if len(cancels) != 1 || cancels[0].OrderID != "o1" {
		t.Fatalf("expected o1 cancelled, got %+v", actions)
	}
	if len(creates) != 1 || !creates[0].Amount.Equal(d("1")) {
		t.Fatalf("expected a fresh create for amount 1, got %+v", actions)
	}
}

// TestScheduleChunksByMaxAmountPerOrder covers rule 3: an uncovered amount
// larger than MaxAmountPerOrder is split into multiple create actions.
func TestScheduleChunksByMaxAmountPerOrder(t *testing.T) {
	current := openorders.New()
	desired := orderbook.New()
	if err := desired.Update(core.Sell, d("101"), d("2.5")); err != nil {
		t.Fatal(err)
	}

	maxPerOrder := d("1")
	target := newTestTarget()
	actions := Schedule(current, desired, target, Options{StrategyID: "s1", MaxAmountPerOrder: &maxPerOrder})

	creates := actionsByKind(actions, OrderCreate)
	if len(creates) != 3 {
		t.Fatalf("expected 3 chunks, got %+v", creates)
	}
	total := decimal.Zero
	for _, c := range creates {
		if c.Amount.GreaterThan(maxPerOrder) {
			t.Fatalf("chunk %+v exceeds MaxAmountPerOrder", c)
		}
		total = total.Add(c.Amount)
	}
	if !total.Equal(d("2.5")) {
		t.Fatalf("expected chunks to sum to 2.5, got %s", total)
	}
}

// TestScheduleTruncatesAtSideBaseCap covers rule 4: cumulative base volume
// beyond the side cap is truncated, dropping furthest-from-top volume first.
func TestScheduleTruncatesAtSideBaseCap(t *testing.T) {
	current := openorders.New()
	desired := orderbook.New()
	if err := desired.Update(core.Sell, d("101"), d("1")); err != nil {
		t.Fatal(err)
	}
	if err := desired.Update(core.Sell, d("102"), d("1")); err != nil {
		t.Fatal(err)
	}
	if err := desired.Update(core.Sell, d("103"), d("1")); err != nil {
		t.Fatal(err)
	}

	sideCap := d("1.5")
	target := newTestTarget()
	actions := Schedule(current, desired, target, Options{StrategyID: "s1", LimitAsksBase: &sideCap})

	creates := actionsByKind(actions, OrderCreate)
	total := decimal.Zero
	for _, c := range creates {
		if c.Price.Equal(d("103")) {
			t.Fatalf("expected the furthest-from-top level (103) dropped entirely, got %+v", creates)
		}
		total = total.Add(c.Amount)
	}
	if total.GreaterThan(sideCap) {
		t.Fatalf("expected cumulative base volume capped at %s, got %s", sideCap, total)
	}
	if !total.Equal(sideCap) {
		t.Fatalf("expected cumulative base volume to exactly reach the cap, got %s", total)
	}
}

// TestScheduleCancelsOrderOffGrid covers the price-alignment rule: a resting
// order whose price doesn't match any configured grid point is cancelled
// even if a desired level happens to sit at that same price.
func TestScheduleCancelsOrderOffGrid(t *testing.T) {
	current := openorders.New()
	current.Insert(&core.Order{ID: "off-grid", Side: core.Buy, Price: d("99.5"), Amount: d("1")})

	desired := orderbook.New()
	if err := desired.Update(core.Buy, d("99"), d("1")); err != nil {
		t.Fatal(err)
	}

	target := newTestTarget()
	grid := PriceLevels{Bids: []core.PricePoint{{Price: d("100")}, {Price: d("99")}, {Price: d("98")}}}
	actions := Schedule(current, desired, target, Options{StrategyID: "s1", PriceLevels: grid})

	cancels := actionsByKind(actions, OrderCancel)
	if len(cancels) != 1 || cancels[0].OrderID != "off-grid" {
		t.Fatalf("expected the off-grid order cancelled, got %+v", actions)
	}
}

// TestScheduleIsIdempotentWhenCurrentMatchesDesired covers the universal
// property that an already-converged book produces no actions.
func TestScheduleIsIdempotentWhenCurrentMatchesDesired(t *testing.T) {
	current := openorders.New()
	current.Insert(&core.Order{ID: "o1", Side: core.Buy, Price: d("100"), Amount: d("1")})
	current.Insert(&core.Order{ID: "o2", Side: core.Sell, Price: d("101"), Amount: d("2")})

	desired := orderbook.New()
	if err := desired.Update(core.Buy, d("100"), d("1")); err != nil {
		t.Fatal(err)
	}
	if err := desired.Update(core.Sell, d("101"), d("2")); err != nil {
		t.Fatal(err)
	}

	target := newTestTarget()
	actions := Schedule(current, desired, target, Options{StrategyID: "s1"})
	if len(actions) != 0 {
		t.Fatalf("expected no actions on a converged book, got %+v", actions)
	}
}

// TestScheduleCreatesForEveryUncoveredDesiredLevel covers an empty current
// book: every desired level must be created.
func TestScheduleCreatesForEveryUncoveredDesiredLevel(t *testing.T) {
	current := openorders.New()
	desired := orderbook.New()
	if err := desired.Update(core.Buy, d("100"), d("1")); err != nil {
		t.Fatal(err)
	}
	if err := desired.Update(core.Buy, d("99"), d("2")); err != nil {
		t.Fatal(err)
	}

	target := newTestTarget()
	actions := Schedule(current, desired, target, Options{StrategyID: "s1"})
	creates := actionsByKind(actions, OrderCreate)
	if len(creates) != 2 {
		t.Fatalf("expected a create for both uncovered levels, got %+v", actions)
	}
}
