// Package router filters generated signals and fans the survivors out to
// the registered notifiers.
package router

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/notifier"
)

// Config holds router configuration
type Config struct {
	MinConfidence  float64       `mapstructure:"min_confidence"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	MaxAge         time.Duration `mapstructure:"max_age"`
	EnabledActions []core.Action `mapstructure:"enabled_actions"`
}

// DefaultConfig returns default router configuration
func DefaultConfig() Config {
	return Config{
		MinConfidence:  0.5,
		Cooldown:       6 * time.Hour,
		MaxAge:         48 * time.Hour,
		EnabledActions: []core.Action{core.ActionBuy, core.ActionSell},
	}
}

// Observer receives one outcome per notifier per batch.
type Observer interface {
	ObserveNotification(notifier string, err error)
}

// Option configures a Router.
type Option func(*Router)

// WithObserver reports deliveries.
func WithObserver(o Observer) Option {
	return func(r *Router) { r.observer = o }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// Router routes signals to notifiers with filtering
type Router struct {
	cfg       Config
	registry  *notifier.Registry
	observer  Observer
	logger    *zap.Logger
	now       func() time.Time
	cooldowns map[string]time.Time // symbol|action -> last delivery
	mu        sync.Mutex

	published int
	filtered  int
}

// New creates a new signal router
func New(cfg Config, registry *notifier.Registry, logger *zap.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = notifier.NewRegistry()
	}
	r := &Router{
		cfg:       cfg,
		registry:  registry,
		logger:    logger,
		now:       time.Now,
		cooldowns: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func cooldownKey(s core.Signal) string {
	return s.Symbol + "|" + string(s.Action)
}

// Publish sends the signals that pass the filters as one batch and returns
// how many were sent. Within a batch the newest signal per symbol and action
// wins.
func (r *Router) Publish(ctx context.Context, signals []core.Signal) int {
	if len(signals) == 0 {
		return 0
	}

	batch := r.filter(signals)
	if len(batch) == 0 {
		r.logger.Debug("all signals filtered out", zap.Int("total", len(signals)))
		return 0
	}

	errs := r.registry.NotifyAll(ctx, batch)
	for _, n := range r.registry.GetAll() {
		err := errs[n.Name()]
		if r.observer != nil {
			r.observer.ObserveNotification(n.Name(), err)
		}
		if err != nil {
			r.logger.Error("notifier failed",
				zap.String("notifier", n.Name()),
				zap.Error(err),
			)
		}
	}

	r.logger.Info("signals published",
		zap.Int("total", len(signals)),
		zap.Int("sent", len(batch)),
		zap.Int("notifiers", r.registry.Len()),
		zap.Int("errors", len(errs)),
	)
	return len(batch)
}

// filter applies confidence, action, age and cooldown checks and stamps
// the cooldown of every signal it lets through.
func (r *Router) filter(signals []core.Signal) []core.Signal {
	now := r.now()

	candidates := make([]core.Signal, 0, len(signals))
	for _, s := range signals {
		if s.Confidence < r.cfg.MinConfidence {
			continue
		}
		if len(r.cfg.EnabledActions) > 0 && !slices.Contains(r.cfg.EnabledActions, s.Action) {
			continue
		}
		if r.cfg.MaxAge > 0 && now.Sub(s.GeneratedAt) > r.cfg.MaxAge {
			continue
		}
		candidates = append(candidates, s)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].GeneratedAt.After(candidates[j].GeneratedAt)
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.Signal
	for _, s := range candidates {
		key := cooldownKey(s)
		if last, ok := r.cooldowns[key]; ok && now.Sub(last) < r.cfg.Cooldown {
			continue
		}
		r.cooldowns[key] = now
		out = append(out, s)
	}
	slices.Reverse(out)

	r.published += len(out)
	r.filtered += len(signals) - len(out)
	return out
}

// ClearCooldown removes the cooldowns of a symbol
func (r *Router) ClearCooldown(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.cooldowns {
		if strings.HasPrefix(key, symbol+"|") {
			delete(r.cooldowns, key)
		}
	}
}

// CleanupExpiredCooldowns removes cooldown entries older than 2x the cooldown duration.
func (r *Router) CleanupExpiredCooldowns() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	expiry := r.cfg.Cooldown * 2
	removed := 0

	for key, last := range r.cooldowns {
		if now.Sub(last) > expiry {
			delete(r.cooldowns, key)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine periodically drops expired cooldowns until ctx is done.
func (r *Router) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := r.CleanupExpiredCooldowns(); removed > 0 {
					r.logger.Debug("cleaned up expired cooldowns", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// Stats is a snapshot of router counters.
type Stats struct {
	Published       int     `json:"published"`
	Filtered        int     `json:"filtered"`
	CooldownsActive int     `json:"cooldowns_active"`
	Notifiers       int     `json:"notifiers"`
	MinConfidence   float64 `json:"min_confidence"`
	CooldownSeconds float64 `json:"cooldown_seconds"`
}

// GetStats returns router statistics
func (r *Router) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		Published:       r.published,
		Filtered:        r.filtered,
		CooldownsActive: len(r.cooldowns),
		Notifiers:       r.registry.Len(),
		MinConfidence:   r.cfg.MinConfidence,
		CooldownSeconds: r.cfg.Cooldown.Seconds(),
	}
}
