package collector

import (
	"context"
	"time"

	"github.com/newthinker/skinquant/internal/core"
)

// Config holds collector configuration
type Config struct {
	BaseURL      string
	Platform     string
	Timeout      time.Duration
	MaxAttempts  int
	RateLimit    float64
	BreakerTrips uint32
}

// HistoryProvider fetches daily bars for a catalog symbol.
type HistoryProvider interface {
	FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]core.OHLCV, error)
}

// OnSaleProvider fetches the current listing snapshot for a catalog symbol.
type OnSaleProvider interface {
	FetchOnSale(ctx context.Context, symbol string) (*OnSaleSnapshot, error)
}

// Collector defines the interface for market data sources
type Collector interface {
	Name() string
	HistoryProvider
	OnSaleProvider
}

// PlatformListing is one marketplace's share of the on-sale supply.
type PlatformListing struct {
	Platform    string  `json:"platform"`
	OnSaleCount int     `json:"on_sale_count"`
	MinPrice    float64 `json:"min_price"`
}

// OnSaleSnapshot is the listing supply across platforms at one moment.
type OnSaleSnapshot struct {
	Symbol    string            `json:"symbol"`
	Total     int               `json:"total_on_sale"`
	Platforms []PlatformListing `json:"platforms"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// OnSaleResult is one entry of a batch fetch; Err is set on failure.
type OnSaleResult struct {
	Snapshot *OnSaleSnapshot `json:"snapshot,omitempty"`
	Err      error           `json:"-"`
	Error    string          `json:"error,omitempty"`
}

// BatchOnSale fetches snapshots for every symbol in order, waiting on
// limit between calls when it is non-nil. Individual failures are kept in
// the result; only cancellation aborts the batch.
func BatchOnSale(ctx context.Context, p OnSaleProvider, symbols []string, limit Waiter) (map[string]OnSaleResult, error) {
	results := make(map[string]OnSaleResult, len(symbols))
	for _, symbol := range symbols {
		if limit != nil {
			if err := limit.Wait(ctx); err != nil {
				return results, err
			}
		}
		snap, err := p.FetchOnSale(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			results[symbol] = OnSaleResult{Err: err, Error: err.Error()}
			continue
		}
		results[symbol] = OnSaleResult{Snapshot: snap}
	}
	return results, nil
}

// Waiter paces successive calls; *rate.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context) error
}
