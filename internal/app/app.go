package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/skinquant/internal/collector"
)

// WatchlistItem is a catalog item scheduled for periodic analysis.
type WatchlistItem struct {
	Symbol string `json:"symbol"`
	Group  string `json:"group"`
}

// Stats summarises the scheduler's activity.
type Stats struct {
	Running   bool              `json:"running"`
	Watchlist int               `json:"watchlist"`
	Cycles    int               `json:"cycles"`
	Analyses  int               `json:"analyses"`
	Failures  int               `json:"failures"`
	LastRun   time.Time         `json:"last_run"`
	LastError map[string]string `json:"last_error,omitempty"`
}

// App re-runs the analysis workflow over a watchlist on an interval.
type App struct {
	analyzer *Analyzer
	logger   *zap.Logger

	watchlistItems []WatchlistItem
	watchlistSet   map[string]struct{}
	interval       time.Duration

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	stats   Stats
}

// New creates a new App instance
func New(analyzer *Analyzer, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		analyzer:       analyzer,
		logger:         logger,
		watchlistItems: []WatchlistItem{},
		watchlistSet:   make(map[string]struct{}),
		interval:       time.Hour,
		stats:          Stats{LastError: map[string]string{}},
	}
}

// Analyzer returns the workflow the app schedules.
func (a *App) Analyzer() *Analyzer {
	return a.analyzer
}

// Analyze runs the workflow for one symbol outside the schedule.
func (a *App) Analyze(ctx context.Context, symbol string) (*Analysis, error) {
	return a.analyzer.Analyze(ctx, symbol)
}

// SetWatchlist replaces the watchlist with catalog items.
func (a *App) SetWatchlist(items []collector.Item) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.watchlistItems = make([]WatchlistItem, 0, len(items))
	a.watchlistSet = make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, dup := a.watchlistSet[it.Name]; dup {
			continue
		}
		a.watchlistItems = append(a.watchlistItems, WatchlistItem{Symbol: it.Name, Group: it.Group})
		a.watchlistSet[it.Name] = struct{}{}
	}
}

// SetInterval sets the analysis interval
func (a *App) SetInterval(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interval = d
}

// Start runs a cycle immediately and then on every tick until ctx ends.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}
	if a.interval <= 0 {
		a.mu.Unlock()
		return fmt.Errorf("analysis interval must be positive, got %s", a.interval)
	}
	a.running = true
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	interval := a.interval
	a.mu.Unlock()

	a.logger.Info("analysis scheduler starting",
		zap.Int("watchlist_count", len(a.GetWatchlist())),
		zap.Duration("interval", interval),
	)

	a.runAnalysisCycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("analysis scheduler stopping")
			a.mu.Lock()
			a.running = false
			a.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
			a.runAnalysisCycle(ctx)
		}
	}
}

// Stop stops the scheduling loop
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *App) runAnalysisCycle(ctx context.Context) {
	items := a.GetWatchlistItems()
	if len(items) == 0 {
		a.logger.Debug("no symbols in watchlist")
		return
	}

	a.logger.Debug("starting analysis cycle", zap.Int("symbols", len(items)))

	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		a.analyzeSymbol(ctx, item.Symbol)
	}

	a.mu.Lock()
	a.stats.Cycles++
	a.stats.LastRun = a.analyzer.now()
	a.mu.Unlock()
}

func (a *App) analyzeSymbol(ctx context.Context, symbol string) {
	res, err := a.analyzer.Analyze(ctx, symbol)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Analyses++
	if err != nil {
		a.stats.Failures++
		a.stats.LastError[symbol] = err.Error()
		a.logger.Warn("analysis failed",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return
	}
	delete(a.stats.LastError, symbol)

	if len(res.Signals) > 0 {
		a.logger.Info("signals generated",
			zap.String("symbol", symbol),
			zap.Int("count", len(res.Signals)),
		)
	}
}

// RunOnce performs a single analysis cycle.
func (a *App) RunOnce(ctx context.Context) {
	a.runAnalysisCycle(ctx)
}

// GetStats returns a snapshot of scheduler statistics.
func (a *App) GetStats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := a.stats
	s.Running = a.running
	s.Watchlist = len(a.watchlistItems)
	s.LastError = make(map[string]string, len(a.stats.LastError))
	for k, v := range a.stats.LastError {
		s.LastError[k] = v
	}
	return s
}

// GetWatchlist returns the current watchlist symbols.
func (a *App) GetWatchlist() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result := make([]string, len(a.watchlistItems))
	for i, item := range a.watchlistItems {
		result[i] = item.Symbol
	}
	return result
}

// GetWatchlistItems returns the full watchlist items.
func (a *App) GetWatchlistItems() []WatchlistItem {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result := make([]WatchlistItem, len(a.watchlistItems))
	copy(result, a.watchlistItems)
	return result
}

// AddToWatchlist adds a symbol to the watchlist.
func (a *App) AddToWatchlist(symbol, group string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.watchlistSet[symbol]; exists {
		return
	}
	a.watchlistSet[symbol] = struct{}{}
	a.watchlistItems = append(a.watchlistItems, WatchlistItem{Symbol: symbol, Group: group})
}

// RemoveFromWatchlist removes a symbol from the watchlist.
func (a *App) RemoveFromWatchlist(symbol string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.watchlistSet[symbol]; !exists {
		return false
	}
	delete(a.watchlistSet, symbol)
	for i, item := range a.watchlistItems {
		if item.Symbol == symbol {
			a.watchlistItems = append(a.watchlistItems[:i], a.watchlistItems[i+1:]...)
			break
		}
	}
	return true
}
