package backtest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/newthinker/skinquant/internal/core"
)

// DefaultMinTraceRows is the shortest trace an optimizer trial may score on.
const DefaultMinTraceRows = 10

// OptimizerConfig tunes a parameter search.
type OptimizerConfig struct {
	MaxCombinations int
	MinTraceRows    int
	PeriodsPerYear  float64
}

// ProgressFunc is called after each evaluated combination.
type ProgressFunc func(done, total int)

// Optimizer grid-searches Params for the best Sharpe ratio.
type Optimizer struct {
	cfg      OptimizerConfig
	logger   *zap.Logger
	progress ProgressFunc
}

// NewOptimizer creates an optimizer. Zero config fields take defaults.
func NewOptimizer(cfg OptimizerConfig, logger *zap.Logger) *Optimizer {
	if cfg.MaxCombinations <= 0 {
		cfg.MaxCombinations = DefaultMaxCombinations
	}
	if cfg.MinTraceRows <= 0 {
		cfg.MinTraceRows = DefaultMinTraceRows
	}
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = DefaultPeriodsPerYear
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{cfg: cfg, logger: logger}
}

// OnProgress registers a progress callback.
func (o *Optimizer) OnProgress(fn ProgressFunc) {
	o.progress = fn
}

// Optimize evaluates every grid point against bars. Trials that fail or
// produce too short a trace are skipped; the first combination with the
// strictly highest Sharpe wins. Cancellation is checked between trials.
func (o *Optimizer) Optimize(ctx context.Context, bars []core.OHLCV, space SearchSpace) (*OptimizationResult, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}

	grid := space.Grid(o.cfg.MaxCombinations)
	result := &OptimizationResult{Trials: make([]Trial, 0, len(grid))}
	best := -1

	for i, params := range grid {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		trace, err := Simulate(bars, params)
		switch {
		case err != nil:
			o.logger.Debug("trial failed", zap.String("params", params.String()), zap.Error(err))
			result.Skipped++
		case len(trace) <= o.cfg.MinTraceRows:
			result.Skipped++
		default:
			metrics := ComputeMetrics(trace, o.cfg.PeriodsPerYear)
			result.Trials = append(result.Trials, Trial{Params: params, Metrics: metrics, Rows: len(trace)})
			if best < 0 || metrics.Sharpe > result.Trials[best].Metrics.Sharpe {
				best = len(result.Trials) - 1
			}
		}
		result.Evaluated++

		if o.progress != nil {
			o.progress(i+1, len(grid))
		}
	}

	if best < 0 {
		return nil, core.WrapError(core.ErrOptimizationEmpty,
			fmt.Errorf("%d combinations evaluated over %d bars, none usable", len(grid), len(bars)))
	}

	result.BestParams = result.Trials[best].Params
	result.BestMetrics = result.Trials[best].Metrics

	o.logger.Info("optimization complete",
		zap.Int("evaluated", result.Evaluated),
		zap.Int("skipped", result.Skipped),
		zap.String("best", result.BestParams.String()),
		zap.Float64("sharpe", result.BestMetrics.Sharpe),
	)
	return result, nil
}
