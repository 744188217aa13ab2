// Command benchmark fires a stream of random orders into the reference
// matching engine (pkg/simexchange.Venue) and reports throughput and
// fill counts. Grounded on the teacher's cmd/benchmark/main.go (random
// order generator, trade callback counting matches, elapsed-time
// report), retargeted from the teacher's own float64/int64
// pkg/orderbook.OrderBookManager (now superseded) onto the module's
// decimal-based Venue.
package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/exchange"
	"github.com/orderflow-labs/mmcore/pkg/simexchange"
)

const (
	numOrders = 100_000
	minPrice  = 100.0
	maxPrice  = 200.0
	minQty    = 1
	maxQty    = 100
)

func randomOrder(id int) core.Order {
	side := core.Buy
	if rand.Intn(2) == 0 {
		side = core.Sell
	}
	price := minPrice + rand.Float64()*(maxPrice-minPrice)
	qty := rand.Intn(maxQty-minQty+1) + minQty

	return core.Order{
		ID:       fmt.Sprintf("ORD-%06d", id),
		MarketID: "ABC-USD",
		Side:     side,
		Type:     core.Limit,
		Price:    decimal.NewFromFloat(price).Round(2),
		Amount:   decimal.NewFromInt(int64(qty)),
	}
}

func main() {
	venue := simexchange.NewVenue(
		[]exchange.MarketConfig{{Base: "ABC", Quote: "USD", AmountPrecision: 0, PricePrecision: 2}},
		[]core.MarketID{"ABC-USD"},
		[]core.Balance{
			{Currency: "ABC", Free: decimal.NewFromInt(1_000_000_000), Total: decimal.NewFromInt(1_000_000_000)},
			{Currency: "USD", Free: decimal.NewFromInt(1_000_000_000), Total: decimal.NewFromInt(1_000_000_000)},
		},
	)

	totalMatched := 0
	var totalQty decimal.Decimal

	start := time.Now()
	for i := 0; i < numOrders; i++ {
		order := randomOrder(i + 1)
		_, fills, err := venue.PlaceOrder(order)
		if err != nil {
			continue
		}
		for _, f := range fills {
			totalMatched++
			totalQty = totalQty.Add(f.Amount)
		}
	}
	elapsed := time.Since(start)

	fmt.Println("--------")
	fmt.Printf("total orders     : %d\n", numOrders)
	fmt.Printf("total matches    : %d\n", totalMatched)
	fmt.Printf("total matched qty: %s\n", totalQty.String())
	fmt.Printf("time taken       : %s\n", elapsed)
	fmt.Printf("orders/sec       : %.2f\n", float64(numOrders)/elapsed.Seconds())
}
