// Package exchange specifies the abstract adapter contract (spec.md §6).
// Concrete production venue bindings are out of scope for this module; a
// single reference/test implementation lives in pkg/simexchange.
package exchange

import (
	"context"
	"time"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/shopspring/decimal"
)

// MarketConfig describes one market's trading rules.
type MarketConfig struct {
	Base            string
	Quote           string
	MinPrice        decimal.Decimal
	MaxPrice        decimal.Decimal
	MinAmount       decimal.Decimal
	AmountPrecision int32
	PricePrecision  int32
}

// PublicTrade is a trade observed on a public stream. Volume is always
// Price*Amount computed at construction (spec.md §9 resolves the upstream
// `total` ambiguity this way); Amount is the filled base amount.
type PublicTrade struct {
	MarketID core.MarketID
	Price    decimal.Decimal
	Amount   decimal.Decimal
	Volume   decimal.Decimal
	Side     core.Side
	At       time.Time
}

// NewPublicTrade builds a PublicTrade with Volume derived from Price*Amount.
func NewPublicTrade(marketID core.MarketID, price, amount decimal.Decimal, side core.Side, at time.Time) PublicTrade {
	return PublicTrade{
		MarketID: marketID,
		Price:    price,
		Amount:   amount,
		Volume:   price.Mul(amount),
		Side:     side,
		At:       at,
	}
}

// PrivateTrade is a fill on one of the account's own orders.
type PrivateTrade struct {
	ID       string
	OrderID  string
	MarketID core.MarketID
	Price    decimal.Decimal
	Amount   decimal.Decimal
	Side     core.Side
	At       time.Time
}

// Capability is a flag an adapter or strategy can be asked about at
// construction time, replacing the source's respond_to?-style probing
// (spec.md §9).
type Capability string

const (
	CapBalances    Capability = "balances"
	CapOpenOrders  Capability = "open_orders"
	CapSourceLimit Capability = "source_limit"
)

// Adapter is the bidirectional channel to one exchange: snapshot order
// book, stream trades, stream private fills, create/cancel orders, query
// balances, query open orders.
type Adapter interface {
	Markets() []core.MarketID
	MarketConfig(id core.MarketID) (MarketConfig, error)

	FetchOrderbook(ctx context.Context, marketID core.MarketID, depth int) (bids, asks []core.OrderbookLevel, err error)

	CreateOrder(ctx context.Context, order core.Order) (orderID string, err error)
	CancelOrder(ctx context.Context, marketID core.MarketID, orderID string) error
	FetchOpenOrders(ctx context.Context, marketID core.MarketID) ([]core.Order, error)
	FetchBalances(ctx context.Context) ([]core.Balance, error)

	OnPublicTrade(fn func(PublicTrade))
	OnPrivateTrade(fn func(PrivateTrade))

	Supports(cap Capability) bool
}
