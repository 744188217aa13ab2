// Command benchmark_nats measures ledger.NATSPublisher.Publish throughput
// against a local JetStream server (spec.md §3's ledger event stream).
// Grounded on the teacher's cmd/benchmark_nats/main.go (connect, ensure
// stream, fire N messages, report messages/sec), adapted from the
// teacher's ad hoc OrderEvent payload and PublishAsync fire-and-forget
// loop to the module's own ledger.Event and the synchronous
// NATSPublisher.Publish it actually ships.
package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/ledger"
)

func main() {
	pub, err := ledger.NewNATSPublisher(natsURL(), "BENCH_LEDGER", "BENCH_LEDGER.events")
	if err != nil {
		log.Fatalf("connect nats: %v", err)
	}

	const total = 100_000
	const concurrency = 64

	ctx := context.Background()
	start := time.Now()

	var wg sync.WaitGroup
	jobs := make(chan int, concurrency)
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				event := ledger.Event{
					Kind:       ledger.KindActionDispatched,
					StrategyID: "bench-strategy",
					AccountID:  "bench-account",
					MarketID:   "BTC-USD",
					Side:       core.Buy,
					Price:      decimal.NewFromInt(1000),
					Amount:     decimal.NewFromInt(1),
					At:         time.Now(),
				}
				if err := pub.Publish(ctx, event); err != nil {
					log.Printf("publish %d failed: %v", i, err)
				}
			}
		}()
	}
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	log.Printf("published %d events in %v", total, elapsed)
	log.Printf("throughput: %.2f events/sec", float64(total)/elapsed.Seconds())
}

func natsURL() string {
	return "nats://127.0.0.1:4222"
}
