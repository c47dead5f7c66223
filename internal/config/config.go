package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newthinker/skinquant/internal/backtest"
	"github.com/newthinker/skinquant/internal/collector"
	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/notifier"
	"github.com/newthinker/skinquant/internal/router"
	"github.com/newthinker/skinquant/internal/storage/archive"
	"github.com/newthinker/skinquant/internal/storage/cache"
	"github.com/newthinker/skinquant/internal/storage/sqldb"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Market     MarketConfig     `mapstructure:"market"`
	Symbols    []collector.Item `mapstructure:"symbols"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Optimizer  OptimizerConfig  `mapstructure:"optimizer"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Membership MembershipConfig `mapstructure:"membership"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MarketConfig configures the item-market HTTP client.
type MarketConfig struct {
	Source            string        `mapstructure:"source"`
	BaseURL           string        `mapstructure:"base_url"`
	Platform          string        `mapstructure:"platform"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	Backoff           time.Duration `mapstructure:"backoff"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	BreakerFailures   uint32        `mapstructure:"breaker_failures"`
}

// Collector converts the section for the market client.
func (m MarketConfig) Collector() collector.Config {
	return collector.Config{
		BaseURL:      m.BaseURL,
		Platform:     m.Platform,
		Timeout:      m.Timeout,
		MaxAttempts:  m.MaxRetries,
		RateLimit:    m.RequestsPerSecond,
		BreakerTrips: m.BreakerFailures,
	}
}

type StorageConfig struct {
	Account AccountStorageConfig `mapstructure:"account"`
	Cold    archive.Config       `mapstructure:"cold"`
}

// AccountStorageConfig selects where portfolios and the audit log live.
// Driver "memory" keeps everything in process.
type AccountStorageConfig struct {
	sqldb.Config `mapstructure:",squash"`
}

type CacheConfig struct {
	cache.Config `mapstructure:",squash"`
	PriceTTL     time.Duration `mapstructure:"price_ttl"`
	DefaultPrice float64       `mapstructure:"default_price"`
}

type LedgerConfig struct {
	InitialCash       float64 `mapstructure:"initial_cash"`
	MaxItemsPerSymbol int     `mapstructure:"max_items_per_symbol"`
	LockDays          int     `mapstructure:"lock_days"`
}

// LockPeriod is the lock in days as a duration.
func (l LedgerConfig) LockPeriod() time.Duration {
	return time.Duration(l.LockDays) * 24 * time.Hour
}

type OptimizerConfig struct {
	MaxCombinations int                  `mapstructure:"max_combinations"`
	MinTraceRows    int                  `mapstructure:"min_trace_rows"`
	Timeout         time.Duration        `mapstructure:"timeout"`
	SearchSpace     backtest.SearchSpace `mapstructure:"search_space"`
}

type AnalysisConfig struct {
	OptimizeDays int `mapstructure:"optimize_days"`
	HoldoutDays  int `mapstructure:"holdout_days"`
	LiveDays     int `mapstructure:"live_days"`

	// Interval between scheduled watchlist runs; 0 disables the scheduler.
	Interval time.Duration `mapstructure:"interval"`
}

type MembershipConfig struct {
	PremiumBonus       float64 `mapstructure:"premium_bonus"`
	PremiumDays        int     `mapstructure:"premium_days"`
	RechargeExpiryDays int     `mapstructure:"recharge_expiry_days"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// NotifyConfig filters generated signals and lists where they are sent.
type NotifyConfig struct {
	router.Config `mapstructure:",squash"`
	Notifiers     []notifier.Config `mapstructure:"notifiers"`
}

// Load reads configuration from file on top of Defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if v.IsSet("symbols") {
		// a configured catalog replaces the default one entirely
		cfg.Symbols = nil
	}
	if v.IsSet("notify.enabled_actions") {
		cfg.Notify.EnabledActions = nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a complete config that runs without a file.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Log: LogConfig{Level: "info"},
		Market: MarketConfig{
			Source:            "okskins",
			BaseURL:           "https://sdt-api.ok-skins.com",
			Platform:          "YOUPIN",
			Timeout:           15 * time.Second,
			MaxRetries:        3,
			Backoff:           time.Second,
			RequestsPerSecond: 10,
			BreakerFailures:   5,
		},
		Symbols: collector.DefaultItems(),
		Storage: StorageConfig{
			Account: AccountStorageConfig{Config: sqldb.Config{
				Driver:       "memory",
				MaxOpenConns: 10,
				QueryTimeout: 5 * time.Second,
			}},
			Cold: archive.Config{Backend: "localfs", Path: "./data/reports"},
		},
		Cache: CacheConfig{
			Config:       cache.Config{Backend: "memory"},
			PriceTTL:     60 * time.Second,
			DefaultPrice: 100,
		},
		Ledger: LedgerConfig{
			InitialCash:       100000,
			MaxItemsPerSymbol: 1000,
			LockDays:          7,
		},
		Optimizer: OptimizerConfig{
			MaxCombinations: backtest.DefaultMaxCombinations,
			MinTraceRows:    backtest.DefaultMinTraceRows,
			Timeout:         5 * time.Minute,
			SearchSpace:     backtest.DefaultSearchSpace(),
		},
		Analysis: AnalysisConfig{
			OptimizeDays: 90,
			HoldoutDays:  7,
			LiveDays:     30,
			Interval:     time.Hour,
		},
		Membership: MembershipConfig{
			PremiumBonus:       900000,
			PremiumDays:        30,
			RechargeExpiryDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Notify: NotifyConfig{
			Config: router.DefaultConfig(),
		},
	}
}

func invalid(format string, args ...any) error {
	return core.WrapError(core.ErrConfigInvalid, fmt.Errorf(format, args...))
}

func missing(format string, args ...any) error {
	return core.WrapError(core.ErrConfigMissing, fmt.Errorf(format, args...))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Market.Source == "" {
		return missing("market.source is required")
	}
	if c.Market.BaseURL == "" {
		return missing("market.base_url is required")
	}
	if c.Market.MaxRetries < 1 {
		return invalid("market.max_retries must be at least 1, got %d", c.Market.MaxRetries)
	}
	if _, err := collector.NewCatalog(c.Symbols); err != nil {
		return err
	}

	switch c.Storage.Account.Driver {
	case "memory":
	case "sqlite3", "postgres":
		if c.Storage.Account.DSN == "" {
			return missing("storage.account.dsn is required for %s", c.Storage.Account.Driver)
		}
	default:
		return invalid("storage.account.driver must be memory, sqlite3 or postgres, got %q", c.Storage.Account.Driver)
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Addr == "" {
			return missing("cache.addr is required for redis")
		}
	default:
		return invalid("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.PriceTTL <= 0 || c.Cache.DefaultPrice <= 0 {
		return invalid("cache.price_ttl and cache.default_price must be positive")
	}

	if c.Ledger.InitialCash < 0 {
		return invalid("ledger.initial_cash cannot be negative, got %.2f", c.Ledger.InitialCash)
	}
	if c.Ledger.MaxItemsPerSymbol < 1 {
		return invalid("ledger.max_items_per_symbol must be positive, got %d", c.Ledger.MaxItemsPerSymbol)
	}
	if c.Ledger.LockDays < 0 {
		return invalid("ledger.lock_days cannot be negative, got %d", c.Ledger.LockDays)
	}

	if c.Optimizer.MaxCombinations < 1 {
		return invalid("optimizer.max_combinations must be positive, got %d", c.Optimizer.MaxCombinations)
	}
	if err := c.Optimizer.SearchSpace.Validate(); err != nil {
		return err
	}

	a := c.Analysis
	if a.Interval < 0 {
		return invalid("analysis.interval cannot be negative, got %s", a.Interval)
	}
	if a.HoldoutDays < 0 || a.OptimizeDays <= a.HoldoutDays || a.LiveDays < 1 {
		return invalid("analysis windows need optimize_days > holdout_days >= 0 and live_days >= 1, got %d/%d/%d",
			a.OptimizeDays, a.HoldoutDays, a.LiveDays)
	}

	if c.Membership.PremiumBonus < 0 || c.Membership.PremiumDays < 1 || c.Membership.RechargeExpiryDays < 1 {
		return invalid("membership terms must be positive")
	}

	return c.Notify.validate()
}

func (n NotifyConfig) validate() error {
	if n.MinConfidence < 0 || n.MinConfidence > 1 {
		return invalid("notify.min_confidence must be within [0,1], got %.2f", n.MinConfidence)
	}
	if n.Cooldown < 0 || n.MaxAge < 0 {
		return invalid("notify.cooldown and notify.max_age cannot be negative")
	}
	for _, a := range n.EnabledActions {
		switch a {
		case core.ActionBuy, core.ActionSell, core.ActionHold:
		default:
			return invalid("notify.enabled_actions: unknown action %q", a)
		}
	}

	for i, nc := range n.Notifiers {
		switch nc.Type {
		case "webhook":
			if nc.URL == "" {
				return missing("notify.notifiers[%d]: url is required for webhook", i)
			}
		case "telegram":
			if nc.BotToken == "" || nc.ChatID == "" {
				return missing("notify.notifiers[%d]: bot_token and chat_id are required for telegram", i)
			}
		default:
			return invalid("notify.notifiers[%d]: type must be webhook or telegram, got %q", i, nc.Type)
		}
	}
	return nil
}
