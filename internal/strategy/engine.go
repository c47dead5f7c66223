package strategy

import (
	"context"
	"sort"
	"sync"

	"github.com/newthinker/skinquant/internal/core"
	"go.uber.org/zap"
)

// Engine manages and runs strategies
type Engine struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	logger     *zap.Logger
}

// NewEngine creates a new strategy engine
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		strategies: make(map[string]Strategy),
		logger:     logger,
	}
}

// Register adds a strategy to the engine
func (e *Engine) Register(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[s.Name()] = s
}

// Get retrieves a strategy by name
func (e *Engine) Get(name string) (Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[name]
	return s, ok
}

// Names returns the registered strategy names in sorted order.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.strategies))
	for name := range e.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Analyze runs the named strategies, or all of them when none are named,
// over a shared indicator frame. A failing strategy is logged and skipped.
func (e *Engine) Analyze(ctx context.Context, actx AnalysisContext, names ...string) ([]core.Signal, error) {
	if len(names) == 0 {
		names = e.Names()
	}
	actx.Indicators()

	var all []core.Signal
	for _, name := range names {
		select {
		case <-ctx.Done():
			return all, ctx.Err()
		default:
		}

		s, ok := e.Get(name)
		if !ok {
			e.logger.Warn("unknown strategy", zap.String("strategy", name))
			continue
		}

		if need := s.RequiredData().PriceHistory; len(actx.Bars) < need {
			e.logger.Debug("not enough history for strategy",
				zap.String("strategy", name),
				zap.Int("bars", len(actx.Bars)),
				zap.Int("required", need),
			)
			continue
		}

		signals, err := s.Analyze(actx)
		if err != nil {
			e.logger.Warn("strategy analysis failed",
				zap.String("strategy", name),
				zap.Error(err),
			)
			continue
		}

		for i := range signals {
			signals[i].Strategy = name
		}
		all = append(all, signals...)
	}

	return all, nil
}
