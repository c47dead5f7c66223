package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/newthinker/skinquant/internal/app"
	"github.com/newthinker/skinquant/internal/backtest"
	"github.com/newthinker/skinquant/internal/broker"
	"github.com/newthinker/skinquant/internal/collector"
	"github.com/newthinker/skinquant/internal/collector/okskins"
	"github.com/newthinker/skinquant/internal/config"
	"github.com/newthinker/skinquant/internal/logger"
	"github.com/newthinker/skinquant/internal/metrics"
	"github.com/newthinker/skinquant/internal/notifier"
	"github.com/newthinker/skinquant/internal/notifier/telegram"
	"github.com/newthinker/skinquant/internal/notifier/webhook"
	"github.com/newthinker/skinquant/internal/pricing"
	"github.com/newthinker/skinquant/internal/router"
	"github.com/newthinker/skinquant/internal/session"
	"github.com/newthinker/skinquant/internal/storage/account"
	"github.com/newthinker/skinquant/internal/storage/archive"
	"github.com/newthinker/skinquant/internal/storage/audit"
	"github.com/newthinker/skinquant/internal/storage/cache"
	"github.com/newthinker/skinquant/internal/storage/signal"
	"github.com/newthinker/skinquant/internal/storage/sqldb"
	"github.com/newthinker/skinquant/internal/strategy"
	"github.com/newthinker/skinquant/internal/strategy/maposition"
	"github.com/newthinker/skinquant/internal/strategy/trendvote"
)

// signalCapacity bounds the in-process signal store.
const signalCapacity = 10000

// runtime holds the wired services shared by every command.
type runtime struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Registry
	catalog  *collector.Catalog
	market   collector.Collector
	prices   *pricing.PriceBook
	pacer    *rate.Limiter
	signals  signal.Store
	router   *router.Router
	sessions *session.Manager
	analyzer *app.Analyzer
	app      *app.App

	closers []io.Closer
}

// loadConfig reads --config or falls back to defaults, then validates.
func loadConfig(log *zap.Logger) (*config.Config, error) {
	var cfg *config.Config
	if cfgFile != "" {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
		log.Warn("no config file specified, using defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// newLogger builds the logger from --debug alone; the configured level
// applies once the config is loaded.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg == nil {
		return logger.New(debug)
	}
	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	return logger.NewWithLevel(debug || cfg.Log.Development, level)
}

// setup loads the config and wires the services.
func setup(ctx context.Context) (*runtime, error) {
	boot := logger.Must(debug)
	cfg, err := loadConfig(boot)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	return build(ctx, cfg, log)
}

// build wires the market client, price book, stores, ledger and analysis
// workflow from cfg.
func build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*runtime, error) {
	rt := &runtime{
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewRegistry(),
	}

	catalog, err := collector.NewCatalog(cfg.Symbols)
	if err != nil {
		return nil, err
	}
	rt.catalog = catalog

	sources := collector.NewRegistry()
	sources.Register(okskins.New(catalog,
		okskins.WithConfig(cfg.Market.Collector()),
		okskins.WithBackoff(cfg.Market.Backoff),
		okskins.WithObserver(rt.metrics),
		okskins.WithLogger(log.Named("okskins")),
	))
	if rt.market, err = sources.MustGet(cfg.Market.Source); err != nil {
		return nil, err
	}

	priceCache, err := cache.New(ctx, cfg.Cache.Config)
	if err != nil {
		return nil, fmt.Errorf("creating price cache: %w", err)
	}
	if c, ok := priceCache.(io.Closer); ok {
		rt.closers = append(rt.closers, c)
	}
	// catalog-wide sweeps share one pacer
	limit := rate.Inf
	if cfg.Market.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.Market.RequestsPerSecond)
	}
	rt.pacer = rate.NewLimiter(limit, 1)
	rt.prices = pricing.New(rt.market, priceCache, pricing.Config{
		TTL:          cfg.Cache.PriceTTL,
		DefaultPrice: cfg.Cache.DefaultPrice,
	},
		pricing.WithLimiter(rt.pacer),
		pricing.WithObserver(rt.metrics),
		pricing.WithLogger(log.Named("pricing")),
	)

	var (
		accounts account.Store
		auditLog audit.Log
	)
	switch cfg.Storage.Account.Driver {
	case "memory":
		accounts = account.NewMemoryStore()
		auditLog = audit.NewMemoryLog()
	default:
		db, err := sqldb.Open(ctx, cfg.Storage.Account.Config)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, db)
		timeout := cfg.Storage.Account.Timeout()
		accounts = account.NewSQLStore(db, timeout)
		auditLog = audit.NewSQLLog(db, timeout)
	}

	ledger := broker.NewLedger(
		broker.WithPriceSource(rt.prices),
		broker.WithLockPeriod(cfg.Ledger.LockPeriod()),
	)
	rt.sessions = session.NewManager(accounts, ledger, session.Config{
		InitialCash:        cfg.Ledger.InitialCash,
		MaxItemsPerSymbol:  cfg.Ledger.MaxItemsPerSymbol,
		PremiumBonus:       cfg.Membership.PremiumBonus,
		PremiumDays:        cfg.Membership.PremiumDays,
		RechargeExpiryDays: cfg.Membership.RechargeExpiryDays,
	},
		session.WithAudit(auditLog),
		session.WithQuoter(rt.prices),
		session.WithObserver(rt.metrics),
		session.WithLogger(log.Named("session")),
	)

	cold, err := archive.New(cfg.Storage.Cold)
	if err != nil {
		rt.Close()
		return nil, err
	}

	engine := strategy.NewEngine(log.Named("strategy"))
	engine.Register(trendvote.New())
	engine.Register(maposition.New())

	notifiers, err := newNotifiers(cfg.Notify.Notifiers)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.router = router.New(cfg.Notify.Config, notifiers, log.Named("router"),
		router.WithObserver(rt.metrics),
	)

	rt.signals = signal.NewMemoryStore(signalCapacity)
	rt.analyzer = app.NewAnalyzer(rt.market, app.Config{
		OptimizeDays: cfg.Analysis.OptimizeDays,
		HoldoutDays:  cfg.Analysis.HoldoutDays,
		LiveDays:     cfg.Analysis.LiveDays,
		Optimizer: backtest.OptimizerConfig{
			MaxCombinations: cfg.Optimizer.MaxCombinations,
			MinTraceRows:    cfg.Optimizer.MinTraceRows,
		},
		SearchSpace: cfg.Optimizer.SearchSpace,
		Timeout:     cfg.Optimizer.Timeout,
	},
		app.WithStrategies(engine),
		app.WithSignalStore(rt.signals),
		app.WithReports(archive.NewReports(cold)),
		app.WithRecorder(rt.metrics),
		app.WithPublisher(rt.router),
		app.WithLogger(log.Named("analysis")),
	)

	rt.app = app.New(rt.analyzer, log.Named("scheduler"))
	rt.app.SetWatchlist(catalog.Items())
	if cfg.Analysis.Interval > 0 {
		rt.app.SetInterval(cfg.Analysis.Interval)
	}

	log.Debug("runtime ready",
		zap.String("market", rt.market.Name()),
		zap.Int("symbols", len(catalog.Items())),
		zap.String("accounts", cfg.Storage.Account.Driver),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("cold", cfg.Storage.Cold.Backend),
		zap.Int("notifiers", notifiers.Len()),
	)
	return rt, nil
}

// newNotifiers builds one channel per configured entry.
func newNotifiers(cfgs []notifier.Config) (*notifier.Registry, error) {
	registry := notifier.NewRegistry()
	for _, c := range cfgs {
		var (
			n   notifier.Notifier
			err error
		)
		switch c.Type {
		case "webhook":
			n, err = webhook.New(c.URL, c.Headers, c.Timeout)
		case "telegram":
			n, err = telegram.New(c.BotToken, c.ChatID, telegram.WithTimeout(c.Timeout))
		default:
			err = fmt.Errorf("unknown notifier type %q", c.Type)
		}
		if err != nil {
			return nil, err
		}
		if err := registry.Register(n); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Close releases database and cache connections.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			rt.log.Warn("close failed", zap.Error(err))
		}
	}
	rt.closers = nil
	_ = rt.log.Sync()
}
