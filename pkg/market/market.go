// Package market holds the Market and Account aggregates and the registries
// the reactor uses to look them up by ID (spec.md §3). Grounded on the
// teacher's pkg/oms.OMS — one struct per owned resource, a sync.Map-backed
// lookup, explicit Start/Stop lifecycle — generalized from a single order
// book manager to many independently addressable markets and accounts.
package market

import (
	"fmt"
	"sync"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/openorders"
	"github.com/orderflow-labs/mmcore/pkg/orderbook"
	"github.com/shopspring/decimal"
)

// ModeFlags is the set of booleans controlling what a market's reactor loop
// fetches or streams for it (spec.md §3).
type ModeFlags struct {
	FetchPublicOrderbook bool
	FetchPrivateBalance  bool
	ListenPublicTrades   bool
	WSPrivate            bool
	WSPublic             bool
}

// Market is `{ID, AccountRef, ModeFlags, MinAmount, Precision, Orderbook,
// OpenOrders}` (spec.md §3). Its Orderbook and OpenOrders cache are owned
// exclusively by it: only this market's own fetch/stream handlers mutate
// them (spec.md §3 Lifecycle).
type Market struct {
	ID         core.MarketID
	AccountRef core.AccountID
	Flags      ModeFlags

	MinAmount       decimal.Decimal
	PricePrecision  int32
	AmountPrecision int32

	BaseCurrency  string
	QuoteCurrency string

	Orderbook  *orderbook.Orderbook
	OpenOrders *openorders.Cache
}

// New constructs a Market with a fresh Orderbook and OpenOrders cache.
func New(id core.MarketID, accountRef core.AccountID, flags ModeFlags, minAmount decimal.Decimal, pricePrecision int32) *Market {
	return &Market{
		ID:             id,
		AccountRef:     accountRef,
		Flags:          flags,
		MinAmount:      minAmount,
		PricePrecision: pricePrecision,
		Orderbook:      orderbook.New(),
		OpenOrders:     openorders.New(),
	}
}

// WithAmountPrecision sets the market's amount precision, used by the
// scheduler to decide whether a resting order's amount has diverged enough
// from the desired amount to warrant cancellation (spec.md §4.3).
func (m *Market) WithAmountPrecision(precision int32) *Market {
	m.AmountPrecision = precision
	return m
}

// WithCurrencies sets the market's base/quote currency codes, used by
// Strategy.Call to check account balance coverage (spec.md §4.2).
func (m *Market) WithCurrencies(base, quote string) *Market {
	m.BaseCurrency = base
	m.QuoteCurrency = quote
	return m
}

// Registry is a concurrency-safe lookup of markets by ID.
type Registry struct {
	mu      sync.RWMutex
	markets map[core.MarketID]*Market
	order   []core.MarketID
}

// NewRegistry returns an empty market registry.
func NewRegistry() *Registry {
	return &Registry{markets: make(map[core.MarketID]*Market)}
}

// Put registers or replaces a market. Registering for the first time
// appends to the insertion order; replacing an already-registered market
// keeps its original position.
func (r *Registry) Put(m *Market) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markets[m.ID]; !ok {
		r.order = append(r.order, m.ID)
	}
	r.markets[m.ID] = m
}

// Get returns a market by ID, or an error if unregistered.
func (r *Registry) Get(id core.MarketID) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %s: not registered", id)
	}
	return m, nil
}

// All returns every registered market, in registration order.
func (r *Registry) All() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Market, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.markets[id])
	}
	return out
}
