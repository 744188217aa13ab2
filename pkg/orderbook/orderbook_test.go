package orderbook

import (
	"testing"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func point(s string) core.PricePoint {
	return core.PricePoint{Price: d(s)}
}

func TestUpdateAndBest(t *testing.T) {
	ob := New()
	_ = ob.Update(core.Buy, d("100"), d("1"))
	_ = ob.Update(core.Buy, d("99"), d("5"))
	_ = ob.Update(core.Sell, d("101"), d("2"))

	best, ok := ob.Best(core.Buy)
	if !ok || !best.Price.Equal(d("100")) {
		t.Fatalf("expected best bid 100, got %+v ok=%v", best, ok)
	}
	best, ok = ob.Best(core.Sell)
	if !ok || !best.Price.Equal(d("101")) {
		t.Fatalf("expected best ask 101, got %+v ok=%v", best, ok)
	}
}

func TestUpdateZeroAmountDeletes(t *testing.T) {
	ob := New()
	_ = ob.Update(core.Buy, d("100"), d("1"))
	_ = ob.Update(core.Buy, d("100"), d("0"))
	if _, ok := ob.Best(core.Buy); ok {
		t.Fatalf("expected bid side empty after zero-amount update")
	}
}

func TestUpdateNegativeAmountRejected(t *testing.T) {
	ob := New()
	err := ob.Update(core.Buy, d("100"), d("-1"))
	if err == nil {
		t.Fatalf("expected InvariantViolation for negative amount")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	ob := New()
	ob.Delete(core.Buy, d("100"))
	_ = ob.Update(core.Buy, d("100"), d("1"))
	ob.Delete(core.Buy, d("100"))
	ob.Delete(core.Buy, d("100"))
	if _, ok := ob.Best(core.Buy); ok {
		t.Fatalf("expected bid side empty after delete")
	}
}

func TestIsCrossed(t *testing.T) {
	ob := New()
	_ = ob.Update(core.Buy, d("100"), d("1"))
	_ = ob.Update(core.Sell, d("101"), d("1"))
	if ob.IsCrossed() {
		t.Fatalf("expected not crossed")
	}
	_ = ob.Update(core.Sell, d("100"), d("1"))
	if !ob.IsCrossed() {
		t.Fatalf("expected crossed when best bid >= best ask")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	ob := New()
	_ = ob.Update(core.Buy, d("100"), d("1"))
	clone := ob.Clone()
	_ = ob.Update(core.Buy, d("99"), d("2"))
	if _, ok := clone.Best(core.Buy); !ok {
		t.Fatalf("clone should retain its own bid")
	}
	if len(clone.Levels(core.Buy)) != 1 {
		t.Fatalf("mutating source book after Clone must not affect the clone")
	}
}

func TestEqual(t *testing.T) {
	a := New()
	_ = a.Update(core.Buy, d("100"), d("1"))
	b := New()
	_ = b.Update(core.Buy, d("100"), d("1"))
	if !a.Equal(b) {
		t.Fatalf("expected equal books")
	}
	_ = b.Update(core.Buy, d("100"), d("2"))
	if a.Equal(b) {
		t.Fatalf("expected unequal books after amount change")
	}
}

// TestSpreadScenarioB mirrors spec.md Scenario B: a single-level book spread
// by 1% on the bid side and 2% on the ask side.
func TestSpreadScenarioB(t *testing.T) {
	ob := New()
	_ = ob.Update(core.Buy, d("100"), d("1"))
	_ = ob.Update(core.Sell, d("101"), d("1"))

	spread := ob.Spread(d("0.01"), d("0.02"))

	bestBid, ok := spread.Best(core.Buy)
	if !ok || !bestBid.Price.Equal(d("99")) {
		t.Fatalf("expected bid spread to 99, got %+v", bestBid)
	}
	bestAsk, ok := spread.Best(core.Sell)
	if !ok || !bestAsk.Price.Equal(d("103.02")) {
		t.Fatalf("expected ask spread to 103.02, got %+v", bestAsk)
	}
}

func TestSpreadPreservesAmount(t *testing.T) {
	ob := New()
	_ = ob.Update(core.Buy, d("100"), d("3"))
	spread := ob.Spread(d("0.1"), d("0.1"))
	bestBid, _ := spread.Best(core.Buy)
	if !bestBid.Amount.Equal(d("3")) {
		t.Fatalf("spread must not alter amount, got %s", bestBid.Amount)
	}
}

// TestAdjustVolumeSimpleScenarioC mirrors spec.md Scenario C: asks capped at
// 6 base units truncate the boundary level proportionally.
func TestAdjustVolumeSimpleScenarioC(t *testing.T) {
	ob := New()
	_ = ob.Update(core.Sell, d("101"), d("3"))
	_ = ob.Update(core.Sell, d("102"), d("5"))
	_ = ob.Update(core.Sell, d("103"), d("10"))

	limit := d("6")
	adjusted := ob.AdjustVolumeSimple(&limit, nil, false)

	levels := adjusted.Levels(core.Sell)
	if len(levels) != 2 {
		t.Fatalf("expected 2 surviving ask levels, got %d: %+v", len(levels), levels)
	}
	if !levels[0].Price.Equal(d("101")) || !levels[0].Amount.Equal(d("3")) {
		t.Fatalf("expected 101:3 untouched, got %+v", levels[0])
	}
	if !levels[1].Price.Equal(d("102")) || !levels[1].Amount.Equal(d("3")) {
		t.Fatalf("expected 102 truncated to 3, got %+v", levels[1])
	}
}

func TestAdjustVolumeSimpleUnlimitedWhenNil(t *testing.T) {
	ob := New()
	_ = ob.Update(core.Sell, d("101"), d("3"))
	_ = ob.Update(core.Sell, d("102"), d("5"))

	adjusted := ob.AdjustVolumeSimple(nil, nil, false)
	if len(adjusted.Levels(core.Sell)) != 2 {
		t.Fatalf("nil limit must keep every level")
	}
}

func TestAdjustVolumeSimpleQuoteUnits(t *testing.T) {
	ob := New()
	_ = ob.Update(core.Buy, d("100"), d("1"))
	_ = ob.Update(core.Buy, d("99"), d("1"))

	// bid quote-volume limit of 150: first level costs 100 (fits), second
	// level would cost 99 against 50 remaining, so it truncates to 50/99.
	limit := d("150")
	adjusted := ob.AdjustVolumeSimple(nil, &limit, false)

	levels := adjusted.Levels(core.Buy)
	if len(levels) != 2 {
		t.Fatalf("expected 2 surviving bid levels, got %d: %+v", len(levels), levels)
	}
	if !levels[0].Amount.Equal(d("1")) {
		t.Fatalf("expected first bid level untouched, got %+v", levels[0])
	}
	wantFraction := d("50").Div(d("99"))
	if !levels[1].Amount.Equal(wantFraction) {
		t.Fatalf("expected truncated bid amount %s, got %s", wantFraction, levels[1].Amount)
	}
}

// TestAggregateScenarioA mirrors spec.md Scenario A: bids aggregated onto a
// four-point grid, with 99.5 receiving no source level and therefore
// dropped by the min-amount floor.
func TestAggregateScenarioA(t *testing.T) {
	ob := New()
	_ = ob.Update(core.Buy, d("100"), d("1"))
	_ = ob.Update(core.Buy, d("99"), d("2"))
	_ = ob.Update(core.Buy, d("98"), d("5"))

	points := []core.PricePoint{point("100"), point("99.5"), point("99"), point("98")}
	agg := ob.Aggregate(points, nil, d("0.0000001"))

	levels := agg.Levels(core.Buy)
	if len(levels) != 3 {
		t.Fatalf("expected 3 surviving buckets (99.5 dropped), got %d: %+v", len(levels), levels)
	}
	want := map[string]string{"100": "1", "99": "2", "98": "5"}
	for _, lv := range levels {
		key := lv.Point.Price.String()
		wantAmt, ok := want[key]
		if !ok {
			t.Fatalf("unexpected bucket at %s", key)
		}
		if !lv.TotalAmount.Equal(d(wantAmt)) {
			t.Fatalf("bucket %s: expected %s, got %s", key, wantAmt, lv.TotalAmount)
		}
	}
}

func TestAggregateDropsSourceWorseThanEveryPoint(t *testing.T) {
	ob := New()
	_ = ob.Update(core.Sell, d("105"), d("1")) // worse than every configured point

	points := []core.PricePoint{point("101"), point("102")}
	agg := ob.Aggregate(nil, points, decimal.Zero)

	for _, lv := range agg.Levels(core.Sell) {
		if lv.TotalAmount.IsPositive() {
			t.Fatalf("source level worse than every point must not be assigned, got %+v", lv)
		}
	}
}

func TestAggregateAccumulatesMultipleSourceLevelsOntoOnePoint(t *testing.T) {
	ob := New()
	_ = ob.Update(core.Sell, d("101"), d("1"))
	_ = ob.Update(core.Sell, d("101.5"), d("2"))

	points := []core.PricePoint{point("102")}
	agg := ob.Aggregate(nil, points, decimal.Zero)

	best, ok := agg.Best(core.Sell)
	if !ok {
		t.Fatalf("expected a surviving ask bucket")
	}
	if !best.TotalAmount.Equal(d("3")) {
		t.Fatalf("expected accumulated amount 3, got %s", best.TotalAmount)
	}
	if len(best.Provenance) != 2 {
		t.Fatalf("expected 2 provenance entries, got %d", len(best.Provenance))
	}
}

// TestAggregateIdempotent checks property 1 from spec.md §8: aggregating an
// already-aggregated book (round-tripped through ToOrderbook) onto the same
// grid reproduces the same buckets.
func TestAggregateIdempotent(t *testing.T) {
	ob := New()
	_ = ob.Update(core.Buy, d("100"), d("1"))
	_ = ob.Update(core.Buy, d("99"), d("2"))

	points := []core.PricePoint{point("100"), point("99")}
	first := ob.Aggregate(points, nil, decimal.Zero)
	second := first.ToOrderbook().Aggregate(points, nil, decimal.Zero)

	firstLevels := first.Levels(core.Buy)
	secondLevels := second.Levels(core.Buy)
	if len(firstLevels) != len(secondLevels) {
		t.Fatalf("expected stable bucket count across re-aggregation, got %d vs %d", len(firstLevels), len(secondLevels))
	}
	for i := range firstLevels {
		if !firstLevels[i].TotalAmount.Equal(secondLevels[i].TotalAmount) {
			t.Fatalf("bucket %d drifted: %s vs %s", i, firstLevels[i].TotalAmount, secondLevels[i].TotalAmount)
		}
	}
}
