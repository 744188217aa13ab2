// Command marketmaker is the reactor process: it loads the account/
// strategy configuration document, wires accounts, markets, executors and
// orderback strategies, and runs the reactor's event loop until signalled
// to stop (spec.md §4.5, §6). Grounded on the teacher's cmd/oms/main.go
// (context+signal.Notify+cancel shutdown shape, config.Load, logger
// construction) generalized from one OMS instance to the reactor's
// account/market/strategy registries.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/orderflow-labs/mmcore/config"
	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/exchange"
	"github.com/orderflow-labs/mmcore/pkg/executor"
	"github.com/orderflow-labs/mmcore/pkg/ledger"
	"github.com/orderflow-labs/mmcore/pkg/logging"
	"github.com/orderflow-labs/mmcore/pkg/market"
	"github.com/orderflow-labs/mmcore/pkg/plugins"
	"github.com/orderflow-labs/mmcore/pkg/reactor"
	"github.com/orderflow-labs/mmcore/pkg/simexchange"
	"github.com/orderflow-labs/mmcore/pkg/strategy"
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

	log := logging.NewLogger(logging.INFO)
	ctx := context.Background()

	pub, err := buildLedgerPublisher(cfg, log)
	if err != nil {
		panic(fmt.Errorf("build ledger publisher: %w", err))
	}

	accounts := market.NewAccountRegistry()
	markets := market.NewRegistry()
	executors := make(map[core.AccountID]*executor.Executor)
	adapters := make(map[core.AccountID]exchange.Adapter)

	for _, ac := range cfg.Accounts {
		accountID := core.AccountID(ac.ID)
		marketIDs := marketIDsForAccount(cfg, ac.ID)

		adapter := buildAdapter(ac.DriverName, marketIDs)
		adapters[accountID] = adapter

		acct := market.NewAccount(accountID, ac.DriverName, ac.Flags)
		accounts.Put(acct)

		exec := executor.New(accountID, adapter, markets, log, executor.DefaultConfig())
		exec.Ledger = pub
		acct.Executor = exec
		executors[accountID] = exec

		for _, marketID := range marketIDs {
			mc, err := adapter.MarketConfig(marketID)
			if err != nil {
				log.Error(ctx, "market config lookup failed", zap.String("market_id", string(marketID)), zap.Error(err))
				continue
			}
			m := market.New(marketID, accountID, defaultModeFlags(), mc.MinAmount, mc.PricePrecision).
				WithAmountPrecision(mc.AmountPrecision).
				WithCurrencies(mc.Base, mc.Quote)
			markets.Put(m)
		}
	}

	r := reactor.New(accounts, markets, executors, log)
	r.DryRun = cfg.DryRun
	r.DelayTheFirstExecute = cfg.DelayTheFirstExecute

	for _, sc := range cfg.Strategies {
		entry, err := buildStrategyEntry(sc, accounts, markets, pub, log)
		if err != nil {
			log.Error(ctx, "skipping strategy with invalid configuration", zap.String("strategy_id", sc.ID), zap.Error(err))
			continue
		}
		r.AddStrategy(entry)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := r.Run(runCtx); err != nil {
			log.Error(ctx, "reactor exited with error", zap.Error(err))
		}
	}()

	<-sigs
	r.Stop()
	cancel()
}

// buildLedgerPublisher wires a NATSPublisher when nats is configured,
// falling back to the no-op publisher the strategy/executor types already
// default to (spec.md §3: ledger events are fire-and-forget, never a
// reason to refuse to start).
func buildLedgerPublisher(cfg *config.AppConfig, log *logging.Logger) (ledger.Publisher, error) {
	if cfg.NATS == nil {
		return ledger.NopPublisher{}, nil
	}
	pub, err := ledger.NewNATSPublisher(cfg.NATS.URL, "LEDGER", cfg.NATS.Subject)
	if err != nil {
		log.Error(context.Background(), "nats unavailable, ledger events will be dropped", zap.Error(err))
		return ledger.NopPublisher{}, nil
	}
	return pub, nil
}

// marketIDsForAccount collects every market referenced (as target or
// source) by a strategy against this account, deduplicated.
func marketIDsForAccount(cfg *config.AppConfig, accountID string) []core.MarketID {
	seen := make(map[core.MarketID]bool)
	var out []core.MarketID
	add := func(ref config.MarketRef) {
		if ref.AccountID != accountID {
			return
		}
		id := core.MarketID(ref.MarketID)
		if seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, sc := range cfg.Strategies {
		add(sc.Target)
		for _, src := range sc.Sources {
			add(src)
		}
	}
	return out
}

// buildAdapter constructs the exchange.Adapter for one account. No
// production venue binding exists in this module (spec.md Non-goals); the
// reference pkg/simexchange venue stands in for every driver name, seeded
// with the markets this account actually trades and a generous starting
// balance in every currency it touches.
func buildAdapter(driverName string, marketIDs []core.MarketID) exchange.Adapter {
	configs := make([]exchange.MarketConfig, 0, len(marketIDs))
	currencies := make(map[string]bool)
	for _, id := range marketIDs {
		mc := deriveMarketConfig(id)
		configs = append(configs, mc)
		currencies[mc.Base] = true
		currencies[mc.Quote] = true
	}

	seedAmount := decimal.NewFromInt(1_000_000)
	balances := make([]core.Balance, 0, len(currencies))
	for ccy := range currencies {
		balances = append(balances, core.Balance{Currency: ccy, Free: seedAmount, Total: seedAmount})
	}

	venue := simexchange.NewVenue(configs, marketIDs, balances)
	return simexchange.NewAdapter(venue)
}

// deriveMarketConfig recovers a market's trading rules from its ID (the
// stable "BASE-QUOTE" convention used throughout this module, e.g.
// "BTC-USD") since the configuration document deliberately only carries
// the (account_id, market_id) reference, not the full trading-rule
// document a production venue binding would supply over the wire.
func deriveMarketConfig(marketID core.MarketID) exchange.MarketConfig {
	base, quote := string(marketID), ""
	if i := strings.IndexByte(string(marketID), '-'); i >= 0 {
		base, quote = string(marketID)[:i], string(marketID)[i+1:]
	}
	return exchange.MarketConfig{
		Base:            base,
		Quote:           quote,
		MinAmount:       decimal.NewFromFloat(0.0001),
		AmountPrecision: 8,
		PricePrecision:  8,
	}
}

// defaultModeFlags fetches everything: public orderbook, private balances
// and trade streams. A production deployment would derive these per
// market from its own configuration surface; this module's configuration
// document doesn't carry one (spec.md §6 only enumerates account/strategy
// documents), so every market it builds runs in the fully-active mode.
func defaultModeFlags() market.ModeFlags {
	return market.ModeFlags{
		FetchPublicOrderbook: true,
		FetchPrivateBalance:  true,
		ListenPublicTrades:   true,
		WSPrivate:            true,
		WSPublic:             true,
	}
}

func buildStrategyEntry(sc config.StrategyConfig, accounts *market.AccountRegistry, markets *market.Registry, pub ledger.Publisher, log *logging.Logger) (*reactor.StrategyEntry, error) {
	targetMarket, err := markets.Get(core.MarketID(sc.Target.MarketID))
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	targetAccount, ok := accounts.Get(core.AccountID(sc.Target.AccountID))
	if !ok {
		return nil, fmt.Errorf("target account %s not registered", sc.Target.AccountID)
	}

	sources := make([]strategy.SourceRef, 0, len(sc.Sources))
	for _, ref := range sc.Sources {
		srcMarket, err := markets.Get(core.MarketID(ref.MarketID))
		if err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
		srcAccount, ok := accounts.Get(core.AccountID(ref.AccountID))
		if !ok {
			return nil, fmt.Errorf("source account %s not registered", ref.AccountID)
		}
		sources = append(sources, strategy.SourceRef{Market: srcMarket, Account: srcAccount})
	}

	stratCfg, err := parseOrderbackConfig(sc.Params)
	if err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	if err := stratCfg.Validate(); err != nil {
		return nil, err
	}

	if sc.Fx != nil {
		log.Error(context.Background(), "fx configured but no price provider is wired into this module; running without fx conversion", zap.String("strategy_id", sc.ID), zap.String("fx_type", sc.Fx.Type))
	}

	targetPlugin := plugins.FullBalance{BaseCurrency: targetMarket.BaseCurrency, QuoteCurrency: targetMarket.QuoteCurrency}
	var sourcePlugin plugins.Plugin = plugins.FullBalance{}
	if len(sources) == 1 {
		sourcePlugin = plugins.FullBalance{BaseCurrency: sources[0].Market.BaseCurrency, QuoteCurrency: sources[0].Market.QuoteCurrency}
	}

	strat := strategy.New(core.StrategyID(sc.ID), stratCfg, targetMarket, targetAccount, sources, targetPlugin, sourcePlugin)
	strat.Ledger = pub
	strat.Log = log

	return &reactor.StrategyEntry{
		ID:                core.StrategyID(sc.ID),
		Strategy:          strat,
		Period:            secondsToDuration(sc.Period),
		PeriodRandomDelay: secondsToDuration(sc.PeriodRandomDelay),
		DelayFirstTick:    sc.Delay > 0,
	}, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// parseOrderbackConfig reads the orderback parameter set (spec.md §4.2)
// out of a strategy document's free-form params map.
func parseOrderbackConfig(params map[string]string) (strategy.Config, error) {
	cfg := strategy.Config{
		LevelsPriceFunc:    strategy.Constant,
		LevelsCount:        1,
		Side:               strategy.SideBoth,
		OrderbackGraceTime: time.Second,
		OrderbackType:      core.Limit,
	}

	var err error
	if v, ok := params["levels_price_step"]; ok {
		if cfg.LevelsPriceStep, err = decimal.NewFromString(v); err != nil {
			return cfg, fmt.Errorf("levels_price_step: %w", err)
		}
	}
	if v, ok := params["levels_price_func"]; ok {
		cfg.LevelsPriceFunc = strategy.PriceFunc(v)
	}
	if v, ok := params["levels_count"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("levels_count: %w", err)
		}
		cfg.LevelsCount = n
	}
	if v, ok := params["spread_bids"]; ok {
		if cfg.SpreadBids, err = decimal.NewFromString(v); err != nil {
			return cfg, fmt.Errorf("spread_bids: %w", err)
		}
	}
	if v, ok := params["spread_asks"]; ok {
		if cfg.SpreadAsks, err = decimal.NewFromString(v); err != nil {
			return cfg, fmt.Errorf("spread_asks: %w", err)
		}
	}
	if v, ok := params["side"]; ok {
		cfg.Side = strategy.SideScope(v)
	}
	if v, ok := params["enable_orderback"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("enable_orderback: %w", err)
		}
		cfg.EnableOrderback = b
	}
	if v, ok := params["min_order_back_amount"]; ok {
		if cfg.MinOrderBackAmount, err = decimal.NewFromString(v); err != nil {
			return cfg, fmt.Errorf("min_order_back_amount: %w", err)
		}
	}
	if v, ok := params["orderback_grace_time"]; ok {
		seconds, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("orderback_grace_time: %w", err)
		}
		cfg.OrderbackGraceTime = secondsToDuration(seconds)
	}
	if v, ok := params["orderback_type"]; ok {
		cfg.OrderbackType = core.OrderType(v)
	}
	if v, ok := params["apply_safe_limits_on_source"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("apply_safe_limits_on_source: %w", err)
		}
		cfg.ApplySafeLimitsOnSource = b
	}
	return cfg, nil
}
