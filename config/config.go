package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// RiskConfig is the read-only risk budget consumed by sizing and the
// execution validator. Immutable for the process lifetime.
type RiskConfig struct {
	// MaxRiskPerTrade is the equity fraction risked per trade, e.g. 0.01.
	MaxRiskPerTrade float64 `yaml:"max_risk_per_trade" default:"0.01" validate:"gt=0,lte=0.5"`
	// MaxLeverage caps notional at equity * MaxLeverage.
	MaxLeverage int `yaml:"max_leverage" default:"20" validate:"gte=1,lte=125"`
	// MinOrderNotional is the smallest order value the venue accepts, in
	// quote currency.
	MinOrderNotional float64 `yaml:"min_order_notional" default:"10.0" validate:"gte=0"`
	// StopLossPct / TakeProfitPct are static exit thresholds, e.g. 0.003.
	StopLossPct   float64 `yaml:"stop_loss_pct" default:"0.003" validate:"gt=0,lte=0.2"`
	TakeProfitPct float64 `yaml:"take_profit_pct" default:"0.005" validate:"gt=0,lte=5"`
	// CircuitBreakerGapPct halts submission when the order price diverges
	// from the last known price by more than this fraction.
	CircuitBreakerGapPct float64 `yaml:"circuit_breaker_gap_pct" default:"0.05" validate:"gt=0,lte=1"`
}

// QuantityTier maps a minimum unit price to the number of quantity
// decimals used at or above that price: the more expensive the unit,
// the finer the quantity precision.
type QuantityTier struct {
	MinPrice float64 `yaml:"min_price" validate:"gte=0"`
	Decimals int     `yaml:"decimals" validate:"gte=0,lte=8"`
}

// Config is the full engine configuration.
type Config struct {
	Mode      string   `yaml:"mode" default:"paper" validate:"oneof=paper live"`
	Watchlist []string `yaml:"watchlist" validate:"min=1,dive,required"`

	ScanTimeframe   string `yaml:"scan_timeframe" default:"1m"`
	RegimeTimeframe string `yaml:"regime_timeframe" default:"4h"`
	ScanLimit       int    `yaml:"scan_limit" default:"100" validate:"gte=50"`
	RegimeLimit     int    `yaml:"regime_limit" default:"200" validate:"gte=50"`

	ScanInterval    time.Duration `yaml:"scan_interval" default:"1m"`
	SyncInterval    time.Duration `yaml:"sync_interval" default:"15m"`
	RegimeInterval  time.Duration `yaml:"regime_interval" default:"4h"`
	ExchangeTimeout time.Duration `yaml:"exchange_timeout" default:"15s"`

	Risk RiskConfig `yaml:"risk"`

	// QuantityTiers is matched from the highest MinPrice down; the first
	// tier whose MinPrice the unit price reaches decides the rounding.
	QuantityTiers []QuantityTier `yaml:"quantity_tiers"`

	LedgerPath string `yaml:"ledger_path" default:"godec.db"`

	Exchange struct {
		BaseURL   string `yaml:"base_url" default:"https://api.bybit.com"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
	} `yaml:"exchange"`
}

var validate = validator.New()

// DefaultQuantityTiers is used when the config names none.
var DefaultQuantityTiers = []QuantityTier{
	{MinPrice: 10_000, Decimals: 3},
	{MinPrice: 1_000, Decimals: 2},
	{MinPrice: 10, Decimals: 1},
	{MinPrice: 0, Decimals: 0},
}

// Load reads, defaults and validates a yaml config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.QuantityTiers) == 0 {
		cfg.QuantityTiers = append([]QuantityTier(nil), DefaultQuantityTiers...)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the cross-field constraints the struct tags cannot
// express. It returns the first encountered error so a configuration
// problem surfaces clearly before any trading starts.
func (c *Config) Validate() error {
	if c.Risk.TakeProfitPct <= 0 && c.Risk.StopLossPct <= 0 {
		return errors.New("at least one of TakeProfitPct/StopLossPct must be positive")
	}
	if c.ScanInterval <= 0 || c.SyncInterval <= 0 || c.RegimeInterval <= 0 {
		return errors.New("all task intervals must be positive")
	}
	if c.ExchangeTimeout <= 0 {
		return errors.New("ExchangeTimeout must be positive")
	}
	if c.Mode == "live" && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return errors.New("live mode requires exchange credentials")
	}
	if !sort.SliceIsSorted(c.QuantityTiers, func(i, j int) bool {
		return c.QuantityTiers[i].MinPrice > c.QuantityTiers[j].MinPrice
	}) {
		return errors.New("quantity tiers must be ordered by descending MinPrice")
	}
	return nil
}

// Decimals returns the quantity precision for an asset trading at price.
func (c *Config) Decimals(price float64) int {
	for _, t := range c.QuantityTiers {
		if price >= t.MinPrice {
			return t.Decimals
		}
	}
	return 0
}
