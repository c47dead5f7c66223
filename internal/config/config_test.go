package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/notifier"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9090

market:
  timeout: 10s
  max_retries: 2

symbols:
  - name: "AWP | Medusa"
    type_val: "914680597258567680"

storage:
  account:
    driver: sqlite3
    dsn: "/tmp/skinquant.db"
  cold:
    backend: localfs
    path: "/tmp/skinquant/reports"

cache:
  backend: redis
  addr: "localhost:6379"
  price_ttl: 30s

analysis:
  optimize_days: 60

notify:
  min_confidence: 0.7
  cooldown: 12h
  enabled_actions: [sell]
  notifiers:
    - type: webhook
      url: "https://hooks.example.com/skins"
      headers:
        Authorization: "Bearer abc"
      timeout: 5s
    - type: telegram
      bot_token: "123:abc"
      chat_id: "42"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Market.Timeout)
	assert.Equal(t, 2, cfg.Market.MaxRetries)
	assert.Equal(t, "https://sdt-api.ok-skins.com", cfg.Market.BaseURL, "defaults survive")

	require.Len(t, cfg.Symbols, 1)
	assert.Equal(t, "AWP | Medusa", cfg.Symbols[0].Name)
	assert.Empty(t, cfg.Symbols[0].Group, "no fields leak from the default catalog")

	assert.Equal(t, "sqlite3", cfg.Storage.Account.Driver)
	assert.Equal(t, "/tmp/skinquant.db", cfg.Storage.Account.DSN)
	assert.Equal(t, 5*time.Second, cfg.Storage.Account.QueryTimeout)
	assert.Equal(t, "/tmp/skinquant/reports", cfg.Storage.Cold.Path)

	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "localhost:6379", cfg.Cache.Addr)
	assert.Equal(t, 30*time.Second, cfg.Cache.PriceTTL)
	assert.Equal(t, 100.0, cfg.Cache.DefaultPrice)

	assert.Equal(t, 60, cfg.Analysis.OptimizeDays)
	assert.Equal(t, 7, cfg.Analysis.HoldoutDays)

	assert.Equal(t, 0.7, cfg.Notify.MinConfidence)
	assert.Equal(t, 12*time.Hour, cfg.Notify.Cooldown)
	assert.Equal(t, 48*time.Hour, cfg.Notify.MaxAge)
	assert.Equal(t, []core.Action{core.ActionSell}, cfg.Notify.EnabledActions)
	require.Len(t, cfg.Notify.Notifiers, 2)
	assert.Equal(t, "webhook", cfg.Notify.Notifiers[0].Type)
	assert.Equal(t, 5*time.Second, cfg.Notify.Notifiers[0].Timeout)
	assert.Equal(t, "42", cfg.Notify.Notifiers[1].ChatID)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("SKINQUANT_TEST_KEY", "s3cret")
	path := writeConfig(t, `
server:
  api_key: "${SKINQUANT_TEST_KEY}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Server.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100000.0, cfg.Ledger.InitialCash)
	assert.Equal(t, 1000, cfg.Ledger.MaxItemsPerSymbol)
	assert.Equal(t, 7*24*time.Hour, cfg.Ledger.LockPeriod())
	assert.Equal(t, 100, cfg.Optimizer.MaxCombinations)
	assert.Equal(t, 60*time.Second, cfg.Cache.PriceTTL)
	assert.Equal(t, 900000.0, cfg.Membership.PremiumBonus)
	assert.Equal(t, 3, cfg.Market.Collector().MaxAttempts)
	assert.NotEmpty(t, cfg.Symbols)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   *core.Error
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, core.ErrConfigInvalid},
		{"no market source", func(c *Config) { c.Market.Source = "" }, core.ErrConfigMissing},
		{"no base url", func(c *Config) { c.Market.BaseURL = "" }, core.ErrConfigMissing},
		{"no retries", func(c *Config) { c.Market.MaxRetries = 0 }, core.ErrConfigInvalid},
		{"duplicate symbol", func(c *Config) { c.Symbols = append(c.Symbols, c.Symbols[0]) }, core.ErrConfigInvalid},
		{"unknown driver", func(c *Config) { c.Storage.Account.Driver = "mysql" }, core.ErrConfigInvalid},
		{"sqlite without dsn", func(c *Config) { c.Storage.Account.Driver = "sqlite3" }, core.ErrConfigMissing},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }, core.ErrConfigMissing},
		{"zero ttl", func(c *Config) { c.Cache.PriceTTL = 0 }, core.ErrConfigInvalid},
		{"zero item cap", func(c *Config) { c.Ledger.MaxItemsPerSymbol = 0 }, core.ErrConfigInvalid},
		{"negative lock", func(c *Config) { c.Ledger.LockDays = -1 }, core.ErrConfigInvalid},
		{"bad search space", func(c *Config) { c.Optimizer.SearchSpace.K0.Step = 0 }, core.ErrConfigInvalid},
		{"holdout too long", func(c *Config) { c.Analysis.HoldoutDays = 90 }, core.ErrConfigInvalid},
		{"negative interval", func(c *Config) { c.Analysis.Interval = -time.Minute }, core.ErrConfigInvalid},
		{"no membership days", func(c *Config) { c.Membership.PremiumDays = 0 }, core.ErrConfigInvalid},
		{"confidence above one", func(c *Config) { c.Notify.MinConfidence = 1.5 }, core.ErrConfigInvalid},
		{"negative cooldown", func(c *Config) { c.Notify.Cooldown = -time.Hour }, core.ErrConfigInvalid},
		{"unknown action", func(c *Config) { c.Notify.EnabledActions = []core.Action{"strong_buy"} }, core.ErrConfigInvalid},
		{"webhook without url", func(c *Config) {
			c.Notify.Notifiers = []notifier.Config{{Type: "webhook"}}
		}, core.ErrConfigMissing},
		{"telegram without chat", func(c *Config) {
			c.Notify.Notifiers = []notifier.Config{{Type: "telegram", BotToken: "t"}}
		}, core.ErrConfigMissing},
		{"unknown notifier", func(c *Config) {
			c.Notify.Notifiers = []notifier.Config{{Type: "email"}}
		}, core.ErrConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
