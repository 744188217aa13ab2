// Command fixserver stands up the reference simulated venue as a FIX 4.4
// acceptor: a local counterparty for integration tests and demos that
// speaks the wire protocol instead of being driven in-process (spec.md
// §1 item 8, §6). Grounded on the teacher's cmd/fixserver/main.go's
// Init/Start shape; the FIX application it starts is
// pkg/simexchange.FixBridge rather than the teacher's OMS-backed one,
// since this module's reference venue is pkg/simexchange, not pkg/oms.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/exchange"
	"github.com/orderflow-labs/mmcore/pkg/logging"
	"github.com/orderflow-labs/mmcore/pkg/simexchange"
)

func main() {
	var settingsFile string
	flag.StringVar(&settingsFile, "config-file", "./config/fixserver.cfg", "QuickFIX acceptor settings file")
	flag.Parse()

	log := logging.NewLogger(logging.INFO)
	ctx := context.Background()

	venue := simexchange.NewVenue(
		[]exchange.MarketConfig{
			{Base: "BTC", Quote: "USD", AmountPrecision: 8, PricePrecision: 2, MinAmount: decimal.NewFromFloat(0.0001)},
			{Base: "ETH", Quote: "USD", AmountPrecision: 8, PricePrecision: 2, MinAmount: decimal.NewFromFloat(0.001)},
		},
		[]core.MarketID{"BTC-USD", "ETH-USD"},
		[]core.Balance{
			{Currency: "BTC", Free: decimal.NewFromInt(100), Total: decimal.NewFromInt(100)},
			{Currency: "ETH", Free: decimal.NewFromInt(1000), Total: decimal.NewFromInt(1000)},
			{Currency: "USD", Free: decimal.NewFromInt(10_000_000), Total: decimal.NewFromInt(10_000_000)},
		},
	)

	bridge := simexchange.NewFixBridge(venue, log)
	if err := bridge.Start(settingsFile); err != nil {
		log.Error(ctx, "failed to start fix bridge", zap.Error(err))
		os.Exit(1)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	bridge.Stop()
}
