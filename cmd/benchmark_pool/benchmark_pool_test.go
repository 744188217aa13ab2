package benchmarkpool

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/orderflow-labs/mmcore/pkg/core"
)

// orderPool pools core.Order values the way the executor's hot dispatch
// path would need to if profiling ever showed allocation pressure there;
// these benchmarks exist to answer that question, not because the
// executor pools today.
var orderPool = sync.Pool{
	New: func() interface{} {
		return &core.Order{}
	},
}

func BenchmarkNewOrder(b *testing.B) {
	arr := make([]*core.Order, 0, b.N)
	for i := 0; i < b.N; i++ {
		o := &core.Order{
			ID:       "ID",
			MarketID: "BTC-USD",
			Side:     core.Buy,
			Type:     core.Limit,
			Price:    decimal.NewFromInt(1000),
			Amount:   decimal.NewFromInt(100),
		}
		arr = append(arr, o)
		_ = o
	}
}

func BenchmarkPoolOrder(b *testing.B) {
	arr := make([]*core.Order, 0, b.N)
	for i := 0; i < b.N; i++ {
		o := orderPool.Get().(*core.Order)
		o.ID = "ID"
		o.MarketID = "BTC-USD"
		o.Side = core.Buy
		o.Type = core.Limit
		o.Price = decimal.NewFromInt(1000)
		o.Amount = decimal.NewFromInt(100)

		arr = append(arr, o)

		o.ID = ""
		o.MarketID = ""
		o.Side = ""
		o.Type = ""
		o.Price = decimal.Decimal{}
		o.Amount = decimal.Decimal{}
		orderPool.Put(o)
	}
}

var bufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 64*1024)
		return &b
	},
}

func BenchmarkNewBuffer(b *testing.B) {
	buffers := make([][]byte, 0, b.N)
	for i := 0; i < b.N; i++ {
		buf := make([]byte, 64*1024)
		buffers = append(buffers, buf)
		if len(buffers) > 1000 {
			buffers = buffers[:0]
		}
	}
}

func BenchmarkPoolBuffer(b *testing.B) {
	buffers := make([]*[]byte, 0, b.N)
	for i := 0; i < b.N; i++ {
		buf := bufPool.Get().(*[]byte)
		buffers = append(buffers, buf)
		if len(buffers) > 1000 {
			for _, bb := range buffers {
				bufPool.Put(bb)
			}
			buffers = buffers[:0]
		}
	}
}
