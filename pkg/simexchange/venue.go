// Package simexchange is the reference/test exchange adapter (spec.md §6,
// SPEC_FULL.md §1 item 8): a simulated venue that implements the
// exchange.Adapter contract so the scheduler/executor/reactor can be
// exercised against something that behaves like a real exchange without
// depending on a named production venue. The matching engine is grounded on
// the teacher's pkg/orderbook (orderbook.go/priceheap.go/match.go,
// price-time-priority over a per-price-level deque, driven by a min/max
// heap of price levels) adapted from float64 to decimal.Decimal throughout;
// the wire protocol is grounded on pkg/oms/fix and pkg/fixserver (QuickFIX/Go
// acceptor, NewOrderSingle/ExecutionReport translation).
package simexchange

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/deque"
	"github.com/shopspring/decimal"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/exchange"
)

// Fill is one match produced by PlaceOrder, reported for both the aggressing
// order and the resting counter-order it traded against.
type Fill struct {
	OrderID        string
	CounterOrderID string
	Price          decimal.Decimal
	Amount         decimal.Decimal
	Side           core.Side
}

// restingOrder is one order resting in a market's book.
type restingOrder struct {
	order  core.Order
	amount decimal.Decimal // remaining, unfilled
}

type marketBook struct {
	mu sync.Mutex

	bids    map[string]*deque.Deque[*restingOrder]
	asks    map[string]*deque.Deque[*restingOrder]
	bidHeap *priceHeap
	askHeap *priceHeap

	orders map[string]*restingOrder // orderID -> resting order, any side
}

func newMarketBook() *marketBook {
	return &marketBook{
		bids:    make(map[string]*deque.Deque[*restingOrder]),
		asks:    make(map[string]*deque.Deque[*restingOrder]),
		bidHeap: newPriceHeap(func(a, b decimal.Decimal) bool { return a.GreaterThan(b) }),
		askHeap: newPriceHeap(func(a, b decimal.Decimal) bool { return a.LessThan(b) }),
		orders:  make(map[string]*restingOrder),
	}
}

// Venue is an in-memory, price-time-priority simulated exchange. One Venue
// instance represents one account's view of one or more markets; PlaceOrder
// crosses against resting orders and returns any immediate fills, resting
// the remainder (there is no FOK/IOC distinction: core.Order carries no
// time-in-force, so every order is effectively GTC, matching spec.md §6's
// CreateOrder/CancelOrder contract).
type Venue struct {
	configs map[core.MarketID]exchange.MarketConfig
	books   map[core.MarketID]*marketBook

	mu       sync.Mutex
	balances map[string]core.Balance

	seq int64

	publicCbs  []func(exchange.PublicTrade)
	privateCbs []func(exchange.PrivateTrade)
}

// NewVenue builds a Venue seeded with the given market configs and starting
// balances (keyed by currency code).
func NewVenue(configs []exchange.MarketConfig, marketIDs []core.MarketID, balances []core.Balance) *Venue {
	v := &Venue{
		configs:  make(map[core.MarketID]exchange.MarketConfig, len(configs)),
		books:    make(map[core.MarketID]*marketBook, len(configs)),
		balances: make(map[string]core.Balance, len(balances)),
	}
	for i, cfg := range configs {
		id := marketIDs[i]
		v.configs[id] = cfg
		v.books[id] = newMarketBook()
	}
	for _, b := range balances {
		v.balances[b.Currency] = b
	}
	return v
}

func (v *Venue) Markets() []core.MarketID {
	ids := make([]core.MarketID, 0, len(v.configs))
	for id := range v.configs {
		ids = append(ids, id)
	}
	return ids
}

func (v *Venue) MarketConfig(id core.MarketID) (exchange.MarketConfig, error) {
	cfg, ok := v.configs[id]
	if !ok {
		return exchange.MarketConfig{}, fmt.Errorf("simexchange: unknown market %s", id)
	}
	return cfg, nil
}

func (v *Venue) nextOrderID() string {
	n := atomic.AddInt64(&v.seq, 1)
	return fmt.Sprintf("sim-%d", n)
}

// PlaceOrder matches an incoming order against the resting book and rests
// whatever remains. It returns the assigned order ID and every fill produced
// (including the counter-order's side of each match, for callers that book
// both legs).
func (v *Venue) PlaceOrder(order core.Order) (orderID string, fills []Fill, err error) {
	book, ok := v.books[order.MarketID]
	if !ok {
		return "", nil, fmt.Errorf("simexchange: unknown market %s", order.MarketID)
	}

	if order.ID == "" {
		order.ID = v.nextOrderID()
	}

	view := &restOrderView{Order: order}
	book.mu.Lock()
	fills = v.match(book, view)
	book.mu.Unlock()
	order = view.Order

	for _, f := range fills {
		v.applyFill(order.MarketID, f)
		v.emitPrivateTrade(order.MarketID, f)
	}

	return order.ID, fills, nil
}

// match crosses order against the opposite side's resting book in
// price-time priority, then rests whatever quantity remains.
func (v *Venue) match(book *marketBook, order *restOrderView) []Fill {
	var (
		sideBook, counterBook map[string]*deque.Deque[*restingOrder]
		sideHeap, counterHeap *priceHeap
		marketable            func(restingPrice decimal.Decimal) bool
	)

	if order.Side == core.Buy {
		sideBook, counterBook = book.bids, book.asks
		sideHeap, counterHeap = book.bidHeap, book.askHeap
		marketable = func(restingPrice decimal.Decimal) bool {
			return order.Type == core.Market || order.Price.GreaterThanOrEqual(restingPrice)
		}
	} else {
		sideBook, counterBook = book.asks, book.bids
		sideHeap, counterHeap = book.askHeap, book.bidHeap
		marketable = func(restingPrice decimal.Decimal) bool {
			return order.Type == core.Market || order.Price.LessThanOrEqual(restingPrice)
		}
	}

	var fills []Fill
	for order.Amount.IsPositive() {
		bestPrice, ok := counterHeap.Peek()
		if !ok || !marketable(bestPrice) {
			break
		}
		q := counterBook[bestPrice.String()]
		if q == nil || q.Len() == 0 {
			heap.Pop(counterHeap)
			delete(counterBook, bestPrice.String())
			continue
		}

		resting := q.Front()
		matchAmount := decimal.Min(order.Amount, resting.amount)

		fills = append(fills, Fill{
			OrderID:        order.ID,
			CounterOrderID: resting.order.ID,
			Price:          bestPrice,
			Amount:         matchAmount,
			Side:           order.Side,
		})

		order.Amount = order.Amount.Sub(matchAmount)
		resting.amount = resting.amount.Sub(matchAmount)

		if resting.amount.IsZero() {
			q.PopFront()
			delete(book.orders, resting.order.ID)
			if q.Len() == 0 {
				heap.Pop(counterHeap)
				delete(counterBook, bestPrice.String())
			}
		}
	}

	if order.Amount.IsPositive() && order.Type == core.Limit {
		rest := &restingOrder{
			order:  order.toOrder(),
			amount: order.Amount,
		}
		key := order.Price.String()
		q, ok := sideBook[key]
		if !ok {
			q = &deque.Deque[*restingOrder]{}
			sideBook[key] = q
			heap.Push(sideHeap, order.Price)
		}
		q.PushBack(rest)
		book.orders[order.ID] = rest
	}

	return fills
}

// restOrderView mirrors core.Order with a mutable remaining Amount, kept
// distinct from restingOrder so match() can track the aggressor's shrinking
// quantity without aliasing a book entry.
type restOrderView struct {
	core.Order
}

func (o *restOrderView) toOrder() core.Order {
	return o.Order
}

func (v *Venue) applyFill(marketID core.MarketID, f Fill) {
	cfg, ok := v.configs[marketID]
	if !ok {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	base, quote := v.balances[cfg.Base], v.balances[cfg.Quote]
	volume := f.Price.Mul(f.Amount)
	if f.Side == core.Buy {
		base.Total = base.Total.Add(f.Amount)
		base.Free = base.Free.Add(f.Amount)
		quote.Total = quote.Total.Sub(volume)
		quote.Free = quote.Free.Sub(volume)
	} else {
		base.Total = base.Total.Sub(f.Amount)
		base.Free = base.Free.Sub(f.Amount)
		quote.Total = quote.Total.Add(volume)
		quote.Free = quote.Free.Add(volume)
	}
	base.Currency, quote.Currency = cfg.Base, cfg.Quote
	v.balances[cfg.Base] = base
	v.balances[cfg.Quote] = quote
}

// CancelOrder removes a resting order from its market's book. It is a no-op
// (not an error) if the order has already filled or been cancelled, matching
// the teacher's tolerant orderbook.CancelOrder behavior.
func (v *Venue) CancelOrder(marketID core.MarketID, orderID string) error {
	book, ok := v.books[marketID]
	if !ok {
		return fmt.Errorf("simexchange: unknown market %s", marketID)
	}

	book.mu.Lock()
	defer book.mu.Unlock()

	resting, ok := book.orders[orderID]
	if !ok {
		return nil
	}
	delete(book.orders, orderID)

	var q map[string]*deque.Deque[*restingOrder]
	if resting.order.Side == core.Buy {
		q = book.bids
	} else {
		q = book.asks
	}
	dq, ok := q[resting.order.Price.String()]
	if !ok {
		return nil
	}
	removeFromDeque(dq, orderID)
	return nil
}

func removeFromDeque(dq *deque.Deque[*restingOrder], orderID string) {
	n := dq.Len()
	for i := 0; i < n; i++ {
		o := dq.PopFront()
		if o.order.ID == orderID {
			continue
		}
		dq.PushBack(o)
	}
}

// Snapshot returns up to depth price levels per side, best price first.
func (v *Venue) Snapshot(marketID core.MarketID, depth int) (bids, asks []core.OrderbookLevel, err error) {
	book, ok := v.books[marketID]
	if !ok {
		return nil, nil, fmt.Errorf("simexchange: unknown market %s", marketID)
	}

	book.mu.Lock()
	defer book.mu.Unlock()

	bids = levelsFrom(book.bids, book.bidHeap, depth)
	asks = levelsFrom(book.asks, book.askHeap, depth)
	return bids, asks, nil
}

func levelsFrom(side map[string]*deque.Deque[*restingOrder], h *priceHeap, depth int) []core.OrderbookLevel {
	prices := make([]decimal.Decimal, len(h.prices))
	copy(prices, h.prices)

	levels := make([]core.OrderbookLevel, 0, len(prices))
	for _, p := range prices {
		q, ok := side[p.String()]
		if !ok || q.Len() == 0 {
			continue
		}
		total := decimal.Zero
		for i := 0; i < q.Len(); i++ {
			total = total.Add(q.At(i).amount)
		}
		levels = append(levels, core.OrderbookLevel{Price: p, Amount: total})
	}

	sortLevels(levels, h.less)
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	return levels
}

func sortLevels(levels []core.OrderbookLevel, less func(a, b decimal.Decimal) bool) {
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0 && less(levels[j].Price, levels[j-1].Price); j-- {
			levels[j], levels[j-1] = levels[j-1], levels[j]
		}
	}
}

// OpenOrders returns every resting order on a market.
func (v *Venue) OpenOrders(marketID core.MarketID) []core.Order {
	book, ok := v.books[marketID]
	if !ok {
		return nil
	}
	book.mu.Lock()
	defer book.mu.Unlock()

	out := make([]core.Order, 0, len(book.orders))
	for _, resting := range book.orders {
		o := resting.order
		o.Amount = resting.amount
		out = append(out, o)
	}
	return out
}

// Balances returns a snapshot of every tracked currency balance.
func (v *Venue) Balances() []core.Balance {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]core.Balance, 0, len(v.balances))
	for _, b := range v.balances {
		out = append(out, b)
	}
	return out
}

func (v *Venue) OnPublicTrade(fn func(exchange.PublicTrade)) {
	v.publicCbs = append(v.publicCbs, fn)
}

func (v *Venue) OnPrivateTrade(fn func(exchange.PrivateTrade)) {
	v.privateCbs = append(v.privateCbs, fn)
}

func (v *Venue) emitPrivateTrade(marketID core.MarketID, f Fill) {
	pt := exchange.PrivateTrade{
		ID:       v.nextOrderID(),
		OrderID:  f.OrderID,
		MarketID: marketID,
		Price:    f.Price,
		Amount:   f.Amount,
		Side:     f.Side,
		At:       time.Now(),
	}
	for _, cb := range v.privateCbs {
		cb(pt)
	}
	for _, cb := range v.publicCbs {
		cb(exchange.NewPublicTrade(marketID, f.Price, f.Amount, f.Side, pt.At))
	}
}
