package simexchange

import (
	"context"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/exchange"
)

// Adapter implements exchange.Adapter directly over an in-process Venue — no
// socket, no config file, just the matching engine above. It is the fast
// path used by integration tests and local demos (spec.md §6); FixBridge
// (fixbridge.go) additionally exposes the same Venue over a real FIX
// acceptor session for end-to-end runs that want to exercise the wire
// protocol too.
type Adapter struct {
	venue *Venue
}

// NewAdapter wraps a Venue as an exchange.Adapter.
func NewAdapter(venue *Venue) *Adapter {
	return &Adapter{venue: venue}
}

func (a *Adapter) Markets() []core.MarketID { return a.venue.Markets() }

func (a *Adapter) MarketConfig(id core.MarketID) (exchange.MarketConfig, error) {
	return a.venue.MarketConfig(id)
}

func (a *Adapter) FetchOrderbook(ctx context.Context, marketID core.MarketID, depth int) (bids, asks []core.OrderbookLevel, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return a.venue.Snapshot(marketID, depth)
}

func (a *Adapter) CreateOrder(ctx context.Context, order core.Order) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	orderID, _, err := a.venue.PlaceOrder(order)
	return orderID, err
}

func (a *Adapter) CancelOrder(ctx context.Context, marketID core.MarketID, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.venue.CancelOrder(marketID, orderID)
}

func (a *Adapter) FetchOpenOrders(ctx context.Context, marketID core.MarketID) ([]core.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.venue.OpenOrders(marketID), nil
}

func (a *Adapter) FetchBalances(ctx context.Context) ([]core.Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.venue.Balances(), nil
}

func (a *Adapter) OnPublicTrade(fn func(exchange.PublicTrade)) { a.venue.OnPublicTrade(fn) }

func (a *Adapter) OnPrivateTrade(fn func(exchange.PrivateTrade)) { a.venue.OnPrivateTrade(fn) }

// Supports always reports true: the reference venue implements the full
// adapter contract so it can stand in for any production venue in tests.
func (a *Adapter) Supports(cap exchange.Capability) bool { return true }
