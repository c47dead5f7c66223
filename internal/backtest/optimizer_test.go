package backtest

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/skinquant/internal/core"
)

func TestRange_ValuesInclusive(t *testing.T) {
	tests := []struct {
		name  string
		r     Range
		count int
		last  float64
	}{
		{"k0", Range{Min: 3, Max: 10, Step: 0.5}, 15, 10},
		{"bias", Range{Min: 0.03, Max: 0.12, Step: 0.01}, 10, 0.12},
		{"days", Range{Min: 2, Max: 5, Step: 1}, 4, 5},
		{"drop", Range{Min: -0.10, Max: -0.03, Step: 0.01}, 8, -0.03},
		{"single", Range{Min: 1, Max: 1, Step: 1}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.r.Values()
			require.Len(t, v, tt.count)
			assert.Equal(t, tt.r.Min, v[0])
			assert.InDelta(t, tt.last, v[len(v)-1], 1e-12)
		})
	}
}

func TestRange_InvalidIsEmpty(t *testing.T) {
	assert.Empty(t, Range{Min: 1, Max: 0, Step: 1}.Values())
	assert.Empty(t, Range{Min: 0, Max: 1, Step: 0}.Values())
}

func TestSearchSpace_GridCapped(t *testing.T) {
	space := DefaultSearchSpace()
	assert.Equal(t, 4800, space.Size())

	grid := space.Grid(DefaultMaxCombinations)
	assert.LessOrEqual(t, len(grid), DefaultMaxCombinations)
	assert.Len(t, grid, 96)

	assert.Equal(t, Params{K0: 3, BiasTh: 0.03, SellDays: 2, SellDropTh: -0.10}, grid[0])
	for _, p := range grid {
		assert.GreaterOrEqual(t, p.K0, 3.0)
		assert.LessOrEqual(t, p.K0, 10.0)
		assert.GreaterOrEqual(t, p.BiasTh, 0.03)
		assert.LessOrEqual(t, p.BiasTh, 0.12+1e-12)
		assert.GreaterOrEqual(t, p.SellDays, 2)
		assert.LessOrEqual(t, p.SellDays, 5)
		assert.GreaterOrEqual(t, p.SellDropTh, -0.10)
		assert.LessOrEqual(t, p.SellDropTh, -0.03+1e-12)
	}
	assert.Equal(t, grid, space.Grid(DefaultMaxCombinations))
}

func TestSearchSpace_SmallGridNotSampled(t *testing.T) {
	space := SearchSpace{
		K0:         Range{Min: 5, Max: 6, Step: 1},
		BiasTh:     Range{Min: 0.05, Max: 0.07, Step: 0.01},
		SellDays:   Range{Min: 3, Max: 3, Step: 1},
		SellDropTh: Range{Min: -0.05, Max: -0.05, Step: 0.01},
	}
	assert.Len(t, space.Grid(100), 6)
}

func TestSearchSpace_TightCap(t *testing.T) {
	for _, limit := range []int{1, 7, 20, 50} {
		grid := DefaultSearchSpace().Grid(limit)
		assert.NotEmpty(t, grid)
		assert.LessOrEqual(t, len(grid), limit)
	}
}

func TestSearchSpace_Validate(t *testing.T) {
	require.NoError(t, DefaultSearchSpace().Validate())

	space := DefaultSearchSpace()
	space.BiasTh.Step = 0
	assert.True(t, errors.Is(space.Validate(), core.ErrConfigInvalid))
}

func TestSearchSpace_ValidateRejectsHugeRanges(t *testing.T) {
	tests := []struct {
		name string
		r    Range
	}{
		{"tiny step", Range{Min: 0, Max: 1e12, Step: 1e-9}},
		{"just over the bound", Range{Min: 0, Max: MaxRangeValues, Step: 1}},
		{"nan step", Range{Min: 0, Max: 1, Step: math.NaN()}},
		{"infinite max", Range{Min: 0, Max: math.Inf(1), Step: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			space := DefaultSearchSpace()
			space.K0 = tt.r
			assert.True(t, errors.Is(space.Validate(), core.ErrConfigInvalid))
			assert.Empty(t, tt.r.Values())
			assert.Empty(t, space.Grid(DefaultMaxCombinations))
		})
	}

	assert.Len(t, Range{Min: 1, Max: MaxRangeValues, Step: 1}.Values(), MaxRangeValues)
}

func TestOptimizer_HugeRangeRejected(t *testing.T) {
	space := DefaultSearchSpace()
	space.K0 = Range{Min: 0, Max: 1e12, Step: 1e-9}

	_, err := NewOptimizer(OptimizerConfig{}, nil).Optimize(context.Background(), barsFrom(flat(30, 50)), space)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestOptimizer_FlatSeriesPicksFirstCombination(t *testing.T) {
	opt := NewOptimizer(OptimizerConfig{}, nil)

	result, err := opt.Optimize(context.Background(), barsFrom(flat(30, 50)), DefaultSearchSpace())
	require.NoError(t, err)

	assert.Equal(t, DefaultSearchSpace().Grid(DefaultMaxCombinations)[0], result.BestParams)
	assert.Zero(t, result.BestMetrics.Sharpe)
	assert.Zero(t, result.BestMetrics.TotalReturn)
	assert.Len(t, result.Trials, 96)
	assert.Equal(t, 96, result.Evaluated)
	assert.Zero(t, result.Skipped)
}

func TestOptimizer_ExhaustedWhenTracesTooShort(t *testing.T) {
	opt := NewOptimizer(OptimizerConfig{}, nil)

	_, err := opt.Optimize(context.Background(), barsFrom(flat(25, 50)), DefaultSearchSpace())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrOptimizationEmpty))
}

func TestOptimizer_ExhaustedWhenTooFewBars(t *testing.T) {
	opt := NewOptimizer(OptimizerConfig{}, nil)

	_, err := opt.Optimize(context.Background(), barsFrom(flat(5, 50)), DefaultSearchSpace())
	assert.True(t, errors.Is(err, core.ErrOptimizationEmpty))
}

func TestOptimizer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opt := NewOptimizer(OptimizerConfig{}, nil)
	_, err := opt.Optimize(ctx, barsFrom(rising(60)), DefaultSearchSpace())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptimizer_ReportsProgress(t *testing.T) {
	opt := NewOptimizer(OptimizerConfig{MaxCombinations: 10}, nil)

	var calls, lastTotal int
	opt.OnProgress(func(done, total int) {
		calls++
		lastTotal = total
	})

	result, err := opt.Optimize(context.Background(), barsFrom(rising(60)), DefaultSearchSpace())
	require.NoError(t, err)
	assert.Equal(t, lastTotal, calls)
	assert.Equal(t, result.Evaluated, calls)
}

func TestOptimizer_BestHasHighestSharpe(t *testing.T) {
	closes := rising(80)
	for i := 30; i < 80; i += 4 {
		closes[i] *= 0.92
	}
	opt := NewOptimizer(OptimizerConfig{}, nil)

	result, err := opt.Optimize(context.Background(), barsFrom(closes), DefaultSearchSpace())
	require.NoError(t, err)
	for _, trial := range result.Trials {
		assert.LessOrEqual(t, trial.Metrics.Sharpe, result.BestMetrics.Sharpe)
	}
}

func TestTopTrials(t *testing.T) {
	trial := func(k0, sharpe float64, empty bool) Trial {
		return Trial{Params: Params{K0: k0}, Metrics: Metrics{Sharpe: sharpe, Empty: empty}}
	}
	trials := []Trial{
		trial(1, 0.5, false),
		trial(2, 1.5, false),
		trial(3, 9.0, true),
		trial(4, 1.5, false),
		trial(5, -0.2, false),
	}

	top := TopTrials(trials, 3)
	require.Len(t, top, 3)
	assert.Equal(t, []float64{2, 4, 1}, []float64{top[0].Params.K0, top[1].Params.K0, top[2].Params.K0})

	assert.Len(t, TopTrials(trials, 10), 4)
	assert.Empty(t, TopTrials(nil, 3))
}
