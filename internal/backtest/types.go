package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/skinquant/internal/core"
)

// Params are the four free parameters of the bias strategy.
type Params struct {
	K0         float64 `json:"k0"`           // profit-taking aggressiveness
	BiasTh     float64 `json:"bias_th"`      // close/MA5 deviation that triggers profit taking
	SellDays   int     `json:"sell_days"`    // stop-loss lookback in bars
	SellDropTh float64 `json:"sell_drop_th"` // stop-loss drop ratio, negative
}

// DefaultParams returns the parameters used when none are supplied.
func DefaultParams() Params {
	return Params{K0: 6.7, BiasTh: 0.07, SellDays: 3, SellDropTh: -0.05}
}

// Validate checks the parameter domain.
func (p Params) Validate() error {
	switch {
	case p.K0 <= 0:
		return core.Errorf(core.ErrConfigInvalid, "k0 must be positive, got %g", p.K0)
	case p.BiasTh <= 0 || p.BiasTh >= 1:
		return core.Errorf(core.ErrConfigInvalid, "bias_th must be in (0,1), got %g", p.BiasTh)
	case p.SellDays < 1:
		return core.Errorf(core.ErrConfigInvalid, "sell_days must be at least 1, got %d", p.SellDays)
	case p.SellDropTh >= 0:
		return core.Errorf(core.ErrConfigInvalid, "sell_drop_th must be negative, got %g", p.SellDropTh)
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("k0=%.2f bias_th=%.2f sell_days=%d sell_drop_th=%.2f", p.K0, p.BiasTh, p.SellDays, p.SellDropTh)
}

// TraceRow is the simulated state after trading on one bar.
type TraceRow struct {
	Time     time.Time `json:"date"`
	Position float64   `json:"position"`
	Return   float64   `json:"period_return"`
	Buy      float64   `json:"buy"`
	Sell     float64   `json:"sell"`
	Price    float64   `json:"price"`
	MA5      float64   `json:"ma5"`
	MA10     float64   `json:"ma10"`
	MA20     float64   `json:"ma20"`
	Bias     float64   `json:"bias"`
}

// Trace is the per-bar output of a simulation.
type Trace []TraceRow

// Returns extracts the period returns.
func (t Trace) Returns() []float64 {
	out := make([]float64, len(t))
	for i, r := range t {
		out[i] = r.Return
	}
	return out
}

// Metrics are risk and return statistics over a complete trace.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	Sharpe           float64 `json:"sharpe"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	Calmar           float64 `json:"calmar"`
	Periods          int     `json:"periods"`
	Empty            bool    `json:"empty,omitempty"`
}

// Summary counts trading activity in a trace.
type Summary struct {
	Rows          int     `json:"rows"`
	BuyBars       int     `json:"buy_bars"`
	SellBars      int     `json:"sell_bars"`
	FinalPosition float64 `json:"final_position"`
}

// Summarize counts the bars with buys and sells.
func Summarize(t Trace) Summary {
	s := Summary{Rows: len(t)}
	for _, r := range t {
		if r.Buy > 0 {
			s.BuyBars++
		}
		if r.Sell > 0 {
			s.SellBars++
		}
	}
	if len(t) > 0 {
		s.FinalPosition = t[len(t)-1].Position
	}
	return s
}

// Result holds the complete backtest output
type Result struct {
	Symbol    string    `json:"symbol"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Params    Params    `json:"params"`
	Trace     Trace     `json:"trace"`
	Metrics   Metrics   `json:"metrics"`
	Summary   Summary   `json:"summary"`
}

// Trial is one evaluated parameter combination.
type Trial struct {
	Params  Params  `json:"params"`
	Metrics Metrics `json:"metrics"`
	Rows    int     `json:"rows"`
}

// OptimizationResult is the outcome of a parameter search.
type OptimizationResult struct {
	BestParams  Params  `json:"best_params"`
	BestMetrics Metrics `json:"best_metrics"`
	Trials      []Trial `json:"trials"`
	Evaluated   int     `json:"evaluated"`
	Skipped     int     `json:"skipped"`
}

// TopTrials returns up to n non-empty trials by descending Sharpe. Equal
// ratios keep their search order.
func TopTrials(trials []Trial, n int) []Trial {
	out := make([]Trial, 0, len(trials))
	for _, t := range trials {
		if !t.Metrics.Empty {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metrics.Sharpe > out[j].Metrics.Sharpe
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
