package orderbook

import (
	"sort"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/shopspring/decimal"
)

// Provenance records one source level that contributed to an aggregated
// bucket, so order-back can recover the average source price and original
// source volume (spec.md §3).
type Provenance struct {
	SourcePrice  decimal.Decimal
	SourceAmount decimal.Decimal
}

// AggregatedLevel is one bucket of an AggregatedOrderbook.
type AggregatedLevel struct {
	Point       core.PricePoint
	TotalAmount decimal.Decimal
	Provenance  []Provenance
}

// AggregatedOrderbook is an Orderbook quantised onto externally supplied
// price grids, keyed by PricePoint instead of raw source price (spec.md §3).
type AggregatedOrderbook struct {
	bids map[string]*AggregatedLevel
	asks map[string]*AggregatedLevel
}

func newAggregated() *AggregatedOrderbook {
	return &AggregatedOrderbook{
		bids: make(map[string]*AggregatedLevel),
		asks: make(map[string]*AggregatedLevel),
	}
}

func (a *AggregatedOrderbook) sideMap(side core.Side) map[string]*AggregatedLevel {
	if side == core.Buy {
		return a.bids
	}
	return a.asks
}

// Levels returns the side's buckets best-first.
func (a *AggregatedOrderbook) Levels(side core.Side) []AggregatedLevel {
	m := a.sideMap(side)
	out := make([]AggregatedLevel, 0, len(m))
	for _, lv := range m {
		out = append(out, *lv)
	}
	sort.Slice(out, func(i, j int) bool {
		if side == core.Buy {
			return out[i].Point.Price.GreaterThan(out[j].Point.Price)
		}
		return out[i].Point.Price.LessThan(out[j].Point.Price)
	})
	return out
}

// Best returns the best (nearest-to-market) bucket on the given side.
func (a *AggregatedOrderbook) Best(side core.Side) (AggregatedLevel, bool) {
	levels := a.Levels(side)
	if len(levels) == 0 {
		return AggregatedLevel{}, false
	}
	return levels[0], true
}

// ToOrderbook collapses the aggregated buckets into a plain Orderbook,
// dropping provenance (spec.md §4.1's total-bijection contract, modulo
// provenance which has no place in a plain Orderbook).
func (a *AggregatedOrderbook) ToOrderbook() *Orderbook {
	out := New()
	for _, lv := range a.Levels(core.Buy) {
		_ = out.Update(core.Buy, lv.Point.Price, lv.TotalAmount)
	}
	for _, lv := range a.Levels(core.Sell) {
		_ = out.Update(core.Sell, lv.Point.Price, lv.TotalAmount)
	}
	return out
}

// ToAggregated wraps a plain Orderbook's levels into an AggregatedOrderbook
// with each level as its own PricePoint and trivial single-entry provenance,
// the inverse of ToOrderbook for a book that was never aggregated. Nothing
// in this module calls it; the idempotency test (spec.md §8 property 1)
// round-trips through Aggregate/ToOrderbook instead.
func (ob *Orderbook) ToAggregated() *AggregatedOrderbook {
	out := newAggregated()
	for _, lv := range ob.Levels(core.Buy) {
		out.bids[lv.Price.String()] = &AggregatedLevel{
			Point:       core.PricePoint{Price: lv.Price},
			TotalAmount: lv.Amount,
			Provenance:  []Provenance{{SourcePrice: lv.Price, SourceAmount: lv.Amount}},
		}
	}
	for _, lv := range ob.Levels(core.Sell) {
		out.asks[lv.Price.String()] = &AggregatedLevel{
			Point:       core.PricePoint{Price: lv.Price},
			TotalAmount: lv.Amount,
			Provenance:  []Provenance{{SourcePrice: lv.Price, SourceAmount: lv.Amount}},
		}
	}
	return out
}

// Aggregate walks this book's levels in best-first order on each side and
// assigns each to the nearest-but-not-better point on the matching grid:
// for bids, the highest point <= the source price; for asks, the lowest
// point >= the source price. A source level worse than every configured
// point is dropped (there is nothing for the engine to quote into).
// Consecutive source levels that land on the same point accumulate; buckets
// whose total falls below minAmount are dropped (spec.md §4.1).
func (ob *Orderbook) Aggregate(bidPoints, askPoints []core.PricePoint, minAmount decimal.Decimal) *AggregatedOrderbook {
	out := newAggregated()

	bidSorted := append([]core.PricePoint(nil), bidPoints...)
	sort.Slice(bidSorted, func(i, j int) bool { return bidSorted[i].Price.GreaterThan(bidSorted[j].Price) })
	askSorted := append([]core.PricePoint(nil), askPoints...)
	sort.Slice(askSorted, func(i, j int) bool { return askSorted[i].Price.LessThan(askSorted[j].Price) })

	assignSide(out.bids, ob.Levels(core.Buy), bidSorted, func(point, price decimal.Decimal) bool {
		return point.LessThanOrEqual(price) // largest point <= price
	})
	assignSide(out.asks, ob.Levels(core.Sell), askSorted, func(point, price decimal.Decimal) bool {
		return point.GreaterThanOrEqual(price) // smallest point >= price
	})

	dropBelowMin(out.bids, minAmount)
	dropBelowMin(out.asks, minAmount)

	return out
}

// assignSide finds, for each source level (best-first), the qualifying
// point nearest the source price among `points` (already sorted best-first
// for the side) and accumulates the level's amount and provenance there.
func assignSide(buckets map[string]*AggregatedLevel, levels []core.OrderbookLevel, points []core.PricePoint, qualifies func(point, price decimal.Decimal) bool) {
	for _, lv := range levels {
		var best *core.PricePoint
		for i := range points {
			p := points[i]
			if qualifies(p.Price, lv.Price) {
				best = &p
				break // points are sorted best-first, first qualifier is nearest
			}
		}
		if best == nil {
			continue // worse than every configured point: out of range, dropped
		}

		key := best.Price.String()
		bucket, ok := buckets[key]
		if !ok {
			bucket = &AggregatedLevel{Point: *best, TotalAmount: decimal.Zero}
			buckets[key] = bucket
		}
		bucket.TotalAmount = bucket.TotalAmount.Add(lv.Amount)
		bucket.Provenance = append(bucket.Provenance, Provenance{SourcePrice: lv.Price, SourceAmount: lv.Amount})
	}

	// Ensure every point has a (possibly empty) bucket, so callers can see
	// which grid points the source book doesn't reach (spec.md Scenario A
	// shows 99.5 appearing at amount 0 before the min_amount drop).
	for _, p := range points {
		key := p.Price.String()
		if _, ok := buckets[key]; !ok {
			buckets[key] = &AggregatedLevel{Point: p, TotalAmount: decimal.Zero}
		}
	}
}

func dropBelowMin(buckets map[string]*AggregatedLevel, minAmount decimal.Decimal) {
	for k, bucket := range buckets {
		if bucket.TotalAmount.LessThan(minAmount) {
			delete(buckets, k)
		}
	}
}
