// internal/pricing/pricebook.go
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/skinquant/internal/collector"
	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/storage/cache"
)

const (
	DefaultTTL   = 60 * time.Second
	DefaultPrice = 100.0

	// lookback is the trailing window whose last close is the current price.
	lookback = 24 * time.Hour
)

// Quote is a current price with its provenance.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
	// Default is set when no market price was available and the
	// configured fallback was used instead.
	Default bool `json:"default"`
}

// Observer is told whether each lookup was served from the cache.
type Observer interface {
	ObservePriceCache(result string)
}

// Config tunes a PriceBook.
type Config struct {
	TTL          time.Duration
	DefaultPrice float64
}

// PriceBook serves cached current prices. It satisfies broker.PriceSource
// through Price, which only reads prices already fetched.
type PriceBook struct {
	history  collector.HistoryProvider
	cache    cache.Cache
	ttl      time.Duration
	fallback float64
	limiter  collector.Waiter
	observer Observer
	logger   *zap.Logger
	now      func() time.Time

	mu   sync.RWMutex
	last map[string]Quote
}

// Option configures a PriceBook.
type Option func(*PriceBook)

// WithLimiter paces RefreshAll.
func WithLimiter(w collector.Waiter) Option { return func(b *PriceBook) { b.limiter = w } }

// WithObserver records cache hits and misses.
func WithObserver(o Observer) Option { return func(b *PriceBook) { b.observer = o } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(b *PriceBook) { b.logger = l } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(b *PriceBook) { b.now = now } }

// New creates a PriceBook backed by history and c. A nil cache uses an
// in-memory one.
func New(history collector.HistoryProvider, c cache.Cache, cfg Config, opts ...Option) *PriceBook {
	if c == nil {
		c = cache.NewMemory()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.DefaultPrice <= 0 {
		cfg.DefaultPrice = DefaultPrice
	}
	b := &PriceBook{
		history:  history,
		cache:    c,
		ttl:      cfg.TTL,
		fallback: cfg.DefaultPrice,
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
		last:     make(map[string]Quote),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func cacheKey(symbol string) string {
	return "price:" + symbol
}

// Quote returns the current price of symbol, fetching it when the cached
// value is older than the TTL. Market data failures fall back to the
// default price; only an unknown symbol or cancellation is an error.
func (b *PriceBook) Quote(ctx context.Context, symbol string) (Quote, error) {
	if q, ok := b.cached(ctx, symbol); ok {
		b.observe("hit")
		b.remember(q)
		return q, nil
	}
	b.observe("miss")

	now := b.now()
	bars, err := b.history.FetchHistory(ctx, symbol, now.Add(-lookback), now)
	switch {
	case errors.Is(err, core.ErrSymbolNotFound):
		return Quote{Symbol: symbol}, err
	case ctx.Err() != nil:
		return Quote{Symbol: symbol}, ctx.Err()
	case err != nil || len(bars) == 0:
		b.logger.Warn("current price unavailable, using default",
			zap.String("symbol", symbol),
			zap.Float64("default_price", b.fallback),
			zap.Error(err),
		)
		q := Quote{Symbol: symbol, Price: b.fallback, UpdatedAt: now, Default: true}
		// defaults are not cached so the next lookup retries the market
		return q, nil
	}

	q := Quote{Symbol: symbol, Price: bars[len(bars)-1].Close, UpdatedAt: now}
	b.store(ctx, q)
	b.remember(q)
	return q, nil
}

// Price returns the last fetched market price, or 0 when none is known.
func (b *PriceBook) Price(symbol string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last[symbol].Price
}

// RefreshAll quotes every symbol, paced by the limiter. Failures for single
// symbols are logged and skipped.
func (b *PriceBook) RefreshAll(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))
	for _, symbol := range symbols {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return out, err
			}
		}
		q, err := b.Quote(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			b.logger.Warn("price refresh failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		out[symbol] = q
	}
	return out, nil
}

func (b *PriceBook) cached(ctx context.Context, symbol string) (Quote, bool) {
	data, ok, err := b.cache.Get(ctx, cacheKey(symbol))
	if err != nil {
		b.logger.Warn("price cache read failed", zap.String("symbol", symbol), zap.Error(err))
		return Quote{}, false
	}
	if !ok {
		return Quote{}, false
	}
	var q Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return Quote{}, false
	}
	if b.now().Sub(q.UpdatedAt) >= b.ttl {
		return Quote{}, false
	}
	return q, true
}

func (b *PriceBook) store(ctx context.Context, q Quote) {
	data, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := b.cache.Set(ctx, cacheKey(q.Symbol), data, b.ttl); err != nil {
		b.logger.Warn("price cache write failed", zap.String("symbol", q.Symbol), zap.Error(err))
	}
}

func (b *PriceBook) remember(q Quote) {
	b.mu.Lock()
	b.last[q.Symbol] = q
	b.mu.Unlock()
}

func (b *PriceBook) observe(result string) {
	if b.observer != nil {
		b.observer.ObservePriceCache(result)
	}
}
