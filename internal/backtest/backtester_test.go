package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/skinquant/internal/core"
)

// mockProvider implements OHLCVProvider for testing
type mockProvider struct {
	data []core.OHLCV
	err  error
}

func (m *mockProvider) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]core.OHLCV, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.data, nil
}

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func barsFrom(closes []float64) []core.OHLCV {
	bars := make([]core.OHLCV, len(closes))
	for i, c := range closes {
		bars[i] = core.OHLCV{
			Symbol: "AK-47 | Redline (Field-Tested)",
			Time:   day0.AddDate(0, 0, i),
			Open:   c, High: c, Low: c, Close: c,
			Volume: 10,
		}
	}
	return bars
}

func flat(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

// rising grows 1% per bar.
func rising(n int) []float64 {
	out := make([]float64, n)
	out[0] = 100
	for i := 1; i < n; i++ {
		out[i] = out[i-1] * 1.01
	}
	return out
}

func TestSimulate_RequiresTwentyBars(t *testing.T) {
	_, err := Simulate(barsFrom(flat(19, 100)), DefaultParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInsufficientData))
}

func TestSimulate_RejectsInvalidParams(t *testing.T) {
	p := DefaultParams()
	p.SellDropTh = 0.05
	_, err := Simulate(barsFrom(flat(30, 100)), p)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestSimulate_FlatSeries(t *testing.T) {
	trace, err := Simulate(barsFrom(flat(30, 100)), DefaultParams())
	require.NoError(t, err)
	require.Len(t, trace, 11)

	for _, row := range trace {
		assert.Zero(t, row.Position)
		assert.Zero(t, row.Return)
		assert.Zero(t, row.Buy)
		assert.Zero(t, row.Sell)
	}
	assert.Equal(t, day0.AddDate(0, 0, 19), trace[0].Time)

	m := ComputeMetrics(trace, DefaultPeriodsPerYear)
	assert.Zero(t, m.TotalReturn)
	assert.Zero(t, m.Sharpe)
	assert.Zero(t, m.MaxDrawdown)
	assert.Zero(t, m.Calmar)
	assert.Equal(t, 11, m.Periods)
}

func TestSimulate_UptrendScalesInToFullPosition(t *testing.T) {
	trace, err := Simulate(barsFrom(rising(60)), DefaultParams())
	require.NoError(t, err)

	assert.InDelta(t, 0.3, trace[0].Buy, 1e-9)
	assert.InDelta(t, 0.3, trace[0].Position, 1e-9)
	assert.InDelta(t, 0.4, trace[1].Position, 1e-9)
	assert.InDelta(t, 1.0, trace[7].Position, 1e-9)

	for _, row := range trace {
		assert.LessOrEqual(t, row.Position, 1.0)
		assert.GreaterOrEqual(t, row.Position, 0.0)
		assert.Zero(t, row.Sell)
	}
	assert.Zero(t, trace[8].Buy)
}

func TestSimulate_StopLossLiquidates(t *testing.T) {
	closes := rising(30)
	closes = append(closes, closes[29]*0.9)

	trace, err := Simulate(barsFrom(closes), DefaultParams())
	require.NoError(t, err)

	last := trace[len(trace)-1]
	assert.InDelta(t, 1.0, last.Sell, 1e-9)
	assert.Zero(t, last.Position)
	assert.Zero(t, last.Return)
}

func TestSimulate_ProfitTakingSellsOldestMatureLots(t *testing.T) {
	closes := rising(30)
	closes = append(closes, closes[29]*1.15)

	trace, err := Simulate(barsFrom(closes), DefaultParams())
	require.NoError(t, err)

	last := trace[len(trace)-1]
	require.GreaterOrEqual(t, last.Bias, 0.07)
	// target is 1-exp(-0.469) ~ 0.374: the 0.3 opening lot plus one 0.1 lot
	assert.InDelta(t, 0.4, last.Sell, 1e-9)
	assert.InDelta(t, 0.6, last.Position, 1e-9)
	assert.InDelta(t, 0.6*0.15, last.Return, 1e-9)
}

func TestSimulate_PullbackBelowBiasThresholdHolds(t *testing.T) {
	closes := rising(30)
	closes = append(closes, closes[29]*0.95)

	trace, err := Simulate(barsFrom(closes), DefaultParams())
	require.NoError(t, err)

	// close under ma10 fails the buy rule, the 3-bar drop is above
	// sell_drop_th and bias is under bias_th, so no lot is sold
	last := trace[len(trace)-1]
	require.Less(t, last.Bias, 0.07)
	assert.Zero(t, last.Buy)
	assert.Zero(t, last.Sell)
	assert.InDelta(t, 1.0, last.Position, 1e-9)
	assert.InDelta(t, -0.05, last.Return, 1e-9)
}

func TestSimulate_Deterministic(t *testing.T) {
	closes := rising(40)
	for i := 25; i < 40; i += 3 {
		closes[i] *= 0.93
	}
	bars := barsFrom(closes)

	first, err := Simulate(bars, DefaultParams())
	require.NoError(t, err)
	second, err := Simulate(bars, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBacktester_Run(t *testing.T) {
	provider := &mockProvider{data: barsFrom(rising(60))}
	bt := New(provider)

	end := day0.AddDate(0, 0, 59)
	result, err := bt.Run(context.Background(), "AK-47 | Redline (Field-Tested)", day0, end, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, "AK-47 | Redline (Field-Tested)", result.Symbol)
	assert.Len(t, result.Trace, 41)
	assert.Greater(t, result.Metrics.TotalReturn, 0.0)
	assert.Equal(t, 41, result.Summary.Rows)
	assert.Equal(t, 8, result.Summary.BuyBars)
	assert.InDelta(t, 1.0, result.Summary.FinalPosition, 1e-9)
}

func TestBacktester_RunProviderError(t *testing.T) {
	bt := New(&mockProvider{err: core.ErrDataUnavailable})
	_, err := bt.Run(context.Background(), "x", day0, day0, DefaultParams())
	assert.True(t, errors.Is(err, core.ErrDataUnavailable))
}

func TestBacktester_RunShortHistory(t *testing.T) {
	bt := New(&mockProvider{data: barsFrom(flat(5, 1))})
	_, err := bt.Run(context.Background(), "x", day0, day0, DefaultParams())
	assert.True(t, errors.Is(err, core.ErrInsufficientData))
}

func TestComputeMetrics_Empty(t *testing.T) {
	m := ComputeMetrics(nil, DefaultPeriodsPerYear)
	assert.True(t, m.Empty)
	assert.Zero(t, m.Sharpe)
}

func TestComputeMetrics_KnownReturns(t *testing.T) {
	trace := Trace{{Return: 0.10}, {Return: -0.20}, {Return: 0.10}}
	m := ComputeMetrics(trace, DefaultPeriodsPerYear)

	assert.InDelta(t, 1.1*0.8*1.1-1, m.TotalReturn, 1e-12)
	assert.InDelta(t, 0.2, m.MaxDrawdown, 1e-12)
	assert.InDelta(t, math.Pow(0.968, 365.0/3)-1, m.AnnualizedReturn, 1e-9)
	assert.Greater(t, m.Volatility, 0.0)
	assert.InDelta(t, m.AnnualizedReturn/m.Volatility, m.Sharpe, 1e-12)
	assert.InDelta(t, m.AnnualizedReturn/m.MaxDrawdown, m.Calmar, 1e-12)
}

func TestComputeMetrics_SingleReturnHasNoVolatility(t *testing.T) {
	m := ComputeMetrics(Trace{{Return: 0.01}}, DefaultPeriodsPerYear)
	assert.Zero(t, m.Volatility)
	assert.Zero(t, m.Sharpe)
	assert.Zero(t, m.MaxDrawdown)
}

func TestComputeMetrics_TotalLoss(t *testing.T) {
	m := ComputeMetrics(Trace{{Return: 0.1}, {Return: -1}}, DefaultPeriodsPerYear)
	assert.InDelta(t, -1, m.TotalReturn, 1e-12)
	assert.Equal(t, -1.0, m.AnnualizedReturn)
	assert.InDelta(t, 1, m.MaxDrawdown, 1e-12)
}
