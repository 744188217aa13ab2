// Command benchmark_redis measures SETNX throughput for the ledger
// worker's at-least-once dedup check (spec.md §3, pkg/ledger/worker's
// dedupStore). Grounded on the teacher's cmd/benchmark_redis/main.go
// concurrent-transaction-benchmark shape, retargeted from an ad hoc
// Order/Trade/LogEntry Lua transaction onto the one Redis operation this
// module actually performs on its hot path, and bumped from
// go-redis/v8 to the go-redis/v9 client pkg/ledger/worker imports.
package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/orderflow-labs/mmcore/pkg/ledger/model"
	"github.com/orderflow-labs/mmcore/pkg/ledger/worker"
)

func main() {
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		fmt.Printf("redis unavailable: %v\n", err)
		return
	}

	const (
		totalOps = 10_000
		workers  = 32
	)

	var hits, misses int64
	var wg sync.WaitGroup
	wg.Add(workers)

	opsPerWorker := totalOps / workers
	start := time.Now()

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := model.DedupKey(uuid.NewString())
				ok, err := rdb.SetNX(ctx, key, 1, worker.DedupTTL).Result()
				if err != nil {
					continue
				}
				if ok {
					atomic.AddInt64(&hits, 1)
				} else {
					atomic.AddInt64(&misses, 1)
				}
			}
		}()
	}
	wg.Wait()

	duration := time.Since(start)
	fmt.Printf("executed %d SETNX dedup checks in %s (%.2f ops/sec), first-seen=%d already-seen=%d\n",
		totalOps, duration, float64(totalOps)/duration.Seconds(), hits, misses)
}
