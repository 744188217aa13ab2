// Package openorders is the per-market cache of outstanding orders the
// engine believes it has resting at the exchange (spec.md §3). It is a
// cache, not a source of truth: once an order is dispatched to the
// executor, the exchange owns the fact and FetchOpenOrders reconciles this
// cache against it. Grounded on the teacher's pkg/oms order_manager.go
// shape — a side-indexed store plus an order-id index — generalized to the
// price-bucketed, multi-order-per-slot cache spec.md §3 requires.
package openorders

import (
	"sync"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/shopspring/decimal"
)

// Cache is the side → price → orders map plus an order-id secondary index.
// A single (side, price) slot may transiently hold more than one order
// during a diff cycle. Reconcile does not collapse such duplicates: it
// inserts, drops and amends by order ID only, so every order in a slot
// stays cached for as long as the exchange's list still reports it.
type Cache struct {
	mu      sync.Mutex
	byPrice map[core.Side]map[string][]*core.Order
	byID    map[string]*core.Order
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		byPrice: map[core.Side]map[string][]*core.Order{
			core.Buy:  make(map[string][]*core.Order),
			core.Sell: make(map[string][]*core.Order),
		},
		byID: make(map[string]*core.Order),
	}
}

// Insert adds an order to the cache, indexing it by both (side, price) and
// ID. Inserting an ID already present replaces the prior entry in place.
func (c *Cache) Insert(o *core.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byID[o.ID]; ok {
		c.removeFromPriceSlotLocked(existing)
	}

	key := o.Price.String()
	slot := c.byPrice[o.Side]
	slot[key] = append(slot[key], o)
	c.byID[o.ID] = o
}

// Remove deletes an order from both indices by ID. No-op if absent.
func (c *Cache) Remove(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.byID[orderID]
	if !ok {
		return
	}
	c.removeFromPriceSlotLocked(o)
	delete(c.byID, orderID)
}

func (c *Cache) removeFromPriceSlotLocked(o *core.Order) {
	key := o.Price.String()
	slot := c.byPrice[o.Side]
	kept := slot[key][:0]
	for _, existing := range slot[key] {
		if existing.ID != o.ID {
			kept = append(kept, existing)
		}
	}
	if len(kept) == 0 {
		delete(slot, key)
		return
	}
	slot[key] = kept
}

// Get returns the order for an ID, or false if absent.
func (c *Cache) Get(orderID string) (*core.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.byID[orderID]
	return o, ok
}

// AtPrice returns every order resting at (side, price), oldest first.
func (c *Cache) AtPrice(side core.Side, price decimal.Decimal) []*core.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot := c.byPrice[side][price.String()]
	out := make([]*core.Order, len(slot))
	copy(out, slot)
	return out
}

// All returns every order on one side, in no particular order.
func (c *Cache) All(side core.Side) []*core.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*core.Order
	for _, slot := range c.byPrice[side] {
		out = append(out, slot...)
	}
	return out
}

// FindSides scans both sides' price buckets directly for an order with the
// given ID, bypassing the byID index. The byID index structurally cannot
// represent the same ID resting on both sides; this is the defensive check
// that actually detects that invariant violation (spec.md §4.2 notify).
func (c *Cache) FindSides(orderID string) []core.Side {
	c.mu.Lock()
	defer c.mu.Unlock()

	found := make(map[core.Side]bool, 2)
	for side, slot := range c.byPrice {
		for _, orders := range slot {
			for _, o := range orders {
				if o.ID == orderID {
					found[side] = true
				}
			}
		}
	}

	out := make([]core.Side, 0, len(found))
	for side := range found {
		out = append(out, side)
	}
	return out
}

// Len returns the total number of orders cached on both sides.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// Reconcile merges the exchange's authoritative open-order list into the
// cache (spec.md §4.4 FetchOpenOrders): orders on the exchange but missing
// from the cache are inserted, orders in the cache but missing from the
// exchange are dropped, and orders present in both but with a mismatched
// amount adopt the exchange's value. Cached orders whose ID is in
// ignoreRecent are left untouched (they may not have propagated to the
// exchange's own listing yet); the executor builds that set from the
// orders it placed within the grace window (spec.md §4.4).
func (c *Cache) Reconcile(truth []core.Order, ignoreRecent map[string]bool) (inserted, removed, amended []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	truthByID := make(map[string]core.Order, len(truth))
	for _, o := range truth {
		truthByID[o.ID] = o
	}

	for id, cached := range c.byID {
		if ignoreRecent[id] {
			continue
		}
		if exch, ok := truthByID[id]; ok {
			if !exch.Amount.Equal(cached.Amount) {
				c.removeFromPriceSlotLocked(cached)
				cached.Amount = exch.Amount
				key := cached.Price.String()
				slot := c.byPrice[cached.Side]
				slot[key] = append(slot[key], cached)
				amended = append(amended, id)
			}
			continue
		}
		c.removeFromPriceSlotLocked(cached)
		delete(c.byID, id)
		removed = append(removed, id)
	}

	for id, exch := range truthByID {
		if _, ok := c.byID[id]; ok {
			continue
		}
		o := exch
		key := o.Price.String()
		slot := c.byPrice[o.Side]
		slot[key] = append(slot[key], &o)
		c.byID[id] = &o
		inserted = append(inserted, id)
	}

	return inserted, removed, amended
}
