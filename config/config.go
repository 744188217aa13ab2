package config

import (
	"fmt"
	"os"

	postgres_wrapper "github.com/orderflow-labs/mmcore/pkg/infra/postgres"
	redis_wrapper "github.com/orderflow-labs/mmcore/pkg/infra/redis"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// NATSConfig configures the JetStream connection used by the ledger publisher/worker.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Durable string `yaml:"durable"`
}

// AccountConfig is the external document shape for one exchange account (§6).
type AccountConfig struct {
	ID         string   `yaml:"id"`
	DriverName string   `yaml:"driver_name"`
	RateLimit  float64  `yaml:"rate_limit_per_sec"`
	Flags      []string `yaml:"flags"`
}

// MarketRef identifies an (account, market) pair referenced by a strategy.
type MarketRef struct {
	AccountID string `yaml:"account_id"`
	MarketID  string `yaml:"market_id"`
}

// FxConfig is the external document shape for the optional FX leg of a strategy.
type FxConfig struct {
	Type   string            `yaml:"type"`
	Params map[string]string `yaml:"params"`
}

// StrategyConfig is the stable external contract enumerated in spec §6 and §4.2.
type StrategyConfig struct {
	ID                string            `yaml:"id"`
	Period            float64           `yaml:"period"`
	PeriodRandomDelay float64           `yaml:"period_random_delay"`
	Delay             float64           `yaml:"delay"`
	Target            MarketRef         `yaml:"target"`
	Sources           []MarketRef       `yaml:"sources"`
	Params            map[string]string `yaml:"params"`
	Fx                *FxConfig         `yaml:"fx"`
}

// AppConfig is the root configuration document for the reactor process.
type AppConfig struct {
	ServiceName          string            `yaml:"service_name"`
	DryRun               bool              `yaml:"dry_run"`
	DelayTheFirstExecute bool              `yaml:"delay_the_first_execute"`
	LedgerDB             *postgres_wrapper.PostgresConfig `yaml:"ledger_db"`
	Redis                *redis_wrapper.RedisConfig       `yaml:"redis"`
	NATS                 *NATSConfig                      `yaml:"nats"`
	Accounts             []AccountConfig                  `yaml:"accounts"`
	Strategies           []StrategyConfig                 `yaml:"strategies"`
}

// Load reads the config document from filePath (falling back to $CONFIG_FILE),
// expands environment variables, and unmarshals it into an AppConfig.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	sugar := zap.S().With("func", "config.Load", "filePath", filePath)
	sugar.Debug("loading config...")

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("failed to read config file")
		return nil, fmt.Errorf("read config file: %w", err)
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(configBytes, cfg); err != nil {
		sugar.Error("failed to parse config file")
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sugar.Debugf("config: %+v", cfg)
	return cfg, nil
}
