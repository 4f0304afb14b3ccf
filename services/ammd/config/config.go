package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for ammd.
type Config struct {
	ListenAddress string           `yaml:"listen"`
	DatabasePath  string           `yaml:"database"`
	AdminToken    string           `yaml:"admin_token"`
	Paused        bool             `yaml:"paused"`
	Quota         QuotaConfig      `yaml:"quota"`
	RateLimits    RateLimitConfig  `yaml:"rate_limits"`
	Custody       []CustodyFunding `yaml:"custody"`
	Strategies    []StrategyConfig `yaml:"strategies"`
}

// QuotaConfig throttles per-taker settlement attempts.
type QuotaConfig struct {
	MaxSwapsPerEpoch  uint32   `yaml:"max_swaps_per_epoch"`
	MaxVolumePerEpoch uint64   `yaml:"max_volume_per_epoch"`
	Epoch             Duration `yaml:"epoch"`
}

// RateLimitConfig controls per-client HTTP throttling.
type RateLimitConfig struct {
	QuotePerMinute float64 `yaml:"quote_per_minute"`
	SwapPerMinute  float64 `yaml:"swap_per_minute"`
	Burst          int     `yaml:"burst"`
}

// CustodyFunding seeds a custody balance on the in-process router at startup.
type CustodyFunding struct {
	Account string `yaml:"account"`
	Token   string `yaml:"token"`
	Amount  string `yaml:"amount"`
}

// StrategyConfig declares a strategy instance registered at startup.
type StrategyConfig struct {
	Maker         string `yaml:"maker"`
	TokenIn       string `yaml:"token_in"`
	TokenOut      string `yaml:"token_out"`
	Curve         string `yaml:"curve"`
	FeeBps        uint32 `yaml:"fee_bps"`
	PriceLow      string `yaml:"price_low"`
	PriceHigh     string `yaml:"price_high"`
	Amplification uint64 `yaml:"amplification"`
	InitialIn     string `yaml:"initial_in"`
	InitialOut    string `yaml:"initial_out"`
	Nonce         uint64 `yaml:"nonce"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/ammd.sqlite"
	}
	if cfg.Quota.Epoch.Duration == 0 {
		cfg.Quota.Epoch.Duration = time.Minute
	}
	if cfg.RateLimits.QuotePerMinute <= 0 {
		cfg.RateLimits.QuotePerMinute = 600
	}
	if cfg.RateLimits.SwapPerMinute <= 0 {
		cfg.RateLimits.SwapPerMinute = 60
	}
	if cfg.RateLimits.Burst <= 0 {
		cfg.RateLimits.Burst = 10
	}
}

func validate(cfg Config) error {
	if len(cfg.Strategies) == 0 {
		return fmt.Errorf("at least one strategy must be configured")
	}
	for i, sc := range cfg.Strategies {
		if strings.TrimSpace(sc.Maker) == "" {
			return fmt.Errorf("strategy %d: maker required", i)
		}
		if strings.TrimSpace(sc.TokenIn) == "" || strings.TrimSpace(sc.TokenOut) == "" {
			return fmt.Errorf("strategy %d: token pair required", i)
		}
		switch strings.ToLower(strings.TrimSpace(sc.Curve)) {
		case "concentrated":
			if _, err := ParseAmount(sc.PriceLow); err != nil {
				return fmt.Errorf("strategy %d: price_low: %w", i, err)
			}
			if _, err := ParseAmount(sc.PriceHigh); err != nil {
				return fmt.Errorf("strategy %d: price_high: %w", i, err)
			}
		case "stableswap":
			if sc.Amplification < 1 {
				return fmt.Errorf("strategy %d: amplification must be at least 1", i)
			}
		default:
			return fmt.Errorf("strategy %d: unknown curve %q", i, sc.Curve)
		}
		if _, err := ParseAmount(sc.InitialIn); err != nil {
			return fmt.Errorf("strategy %d: initial_in: %w", i, err)
		}
		if _, err := ParseAmount(sc.InitialOut); err != nil {
			return fmt.Errorf("strategy %d: initial_out: %w", i, err)
		}
	}
	for i, fund := range cfg.Custody {
		if strings.TrimSpace(fund.Account) == "" || strings.TrimSpace(fund.Token) == "" {
			return fmt.Errorf("custody %d: account and token required", i)
		}
		if _, err := ParseAmount(fund.Amount); err != nil {
			return fmt.Errorf("custody %d: amount: %w", i, err)
		}
	}
	return nil
}

// ParseAmount decodes a non-negative integer amount expressed in base units.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	return value, nil
}
