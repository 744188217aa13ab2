package core

import "github.com/shopspring/decimal"

// Side is one of buy or sell. Bid is an alias for buy, ask for sell.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"

	Bid = Buy
	Ask = Sell
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType is the order type the exchange is asked to place.
type OrderType string

const (
	Limit  OrderType = "limit"
	Market OrderType = "market"
)

// PricePoint is an externally supplied ordinate around which the desired
// book is constructed (spec.md §3).
type PricePoint struct {
	Price decimal.Decimal
}

// Order is the engine's own representation of a resting or about-to-be-sent
// order. Price is the identity of the order for compare-and-cancel
// decisions (spec.md §3): decimal.Decimal's Equal/Cmp compare by value, not
// by scale or string rendering, so the scheduler can diff directly on Price
// (and the cache index on Price.String()) without a separately frozen
// canonical rendering.
type Order struct {
	ID       string
	MarketID MarketID
	Price    decimal.Decimal
	Amount   decimal.Decimal
	Side     Side
	Type     OrderType
}

// OrderbookLevel is a single price×amount pair on one side of a book.
type OrderbookLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// Balance is one currency's balance on an account (spec.md §6).
type Balance struct {
	Currency string
	Free     decimal.Decimal
	Locked   decimal.Decimal
	Total    decimal.Decimal
}
