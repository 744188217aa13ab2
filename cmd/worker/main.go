// Command worker runs the ledger's JetStream-to-Postgres consumer as its
// own process, independent of the reactor (spec.md §1 item 8). Grounded on
// the teacher's cmd/worker/main.go (NATS connect, ensure stream, wire repo,
// start consumer, block forever), extended with graceful signal shutdown
// from cmd/oms/main.go and an optional Redis dedup store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/orderflow-labs/mmcore/config"
	postgres_wrapper "github.com/orderflow-labs/mmcore/pkg/infra/postgres"
	redis_wrapper "github.com/orderflow-labs/mmcore/pkg/infra/redis"
	"github.com/orderflow-labs/mmcore/pkg/ledger/repo"
	"github.com/orderflow-labs/mmcore/pkg/ledger/worker"
	"github.com/orderflow-labs/mmcore/pkg/logging"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	configBytes, err := json.MarshalIndent(cfg, "", "   ")
	if err != nil {
		zap.S().Warnf("could not convert config to JSON: %v", err)
	} else {
		zap.S().Debugf("load config %s", string(configBytes))
	}

	if cfg.LedgerDB == nil || cfg.NATS == nil {
		panic("ledger_db and nats must both be configured for the ledger worker")
	}

	log := logging.NewLogger(logging.INFO)

	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		zap.S().Errorf("connect nats fail: %v", err)
		panic(err)
	}
	js, err := nc.JetStream()
	if err != nil {
		zap.S().Errorf("jetstream context fail: %v", err)
		panic(err)
	}
	if _, err := js.StreamInfo("LEDGER"); err != nil {
		if _, err := js.AddStream(&nats.StreamConfig{Name: "LEDGER", Subjects: []string{cfg.NATS.Subject}}); err != nil {
			zap.S().Errorf("add stream fail: %v", err)
			panic(err)
		}
	}

	db := postgres_wrapper.InitPostgresWithBackoff(cfg.LedgerDB)
	sqlRepo := repo.NewRepo(db)

	var dedupClient *goredis.Client
	if cfg.Redis != nil {
		client, err := redis_wrapper.InitRedis(cfg.Redis)
		if err != nil {
			zap.S().Warnf("ledger worker running without Redis dedup: %v", err)
		} else {
			dedupClient = client
		}
	}

	w := worker.New(sqlRepo.Event(), dedupClient, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := w.Run(ctx, js, cfg.NATS.Subject, cfg.NATS.Durable); err != nil {
			zap.S().Errorf("ledger worker exited: %v", err)
		}
	}()

	<-sigs
	cancel()
}
