package backtest

import (
	"math"
)

// DefaultPeriodsPerYear annualises daily bars of a market that trades every day.
const DefaultPeriodsPerYear = 365

// ComputeMetrics derives risk statistics from a trace. An empty trace
// yields Metrics with Empty set; degenerate ratios fall back to 0.
func ComputeMetrics(trace Trace, periodsPerYear float64) Metrics {
	returns := trace.Returns()
	n := len(returns)
	if n == 0 {
		return Metrics{Empty: true}
	}
	if periodsPerYear <= 0 {
		periodsPerYear = DefaultPeriodsPerYear
	}

	value := cumulativeValue(returns)
	final := value[n-1]

	annual := -1.0
	if final > 0 {
		annual = math.Pow(final, periodsPerYear/float64(n)) - 1
	}
	vol := sampleStd(returns) * math.Sqrt(periodsPerYear)
	maxDD := maxDrawdown(value)

	return Metrics{
		TotalReturn:      finite(final - 1),
		AnnualizedReturn: finite(annual),
		Volatility:       finite(vol),
		Sharpe:           finite(safeDiv(annual, vol)),
		MaxDrawdown:      finite(maxDD),
		Calmar:           finite(safeDiv(annual, maxDD)),
		Periods:          n,
	}
}

func cumulativeValue(returns []float64) []float64 {
	value := make([]float64, len(returns))
	acc := 1.0
	for i, r := range returns {
		acc *= 1 + r
		value[i] = acc
	}
	return value
}

// maxDrawdown measures against the running peak of the value series
// itself, so the first bar sets the initial peak.
func maxDrawdown(value []float64) float64 {
	var maxDD float64
	peak := value[0]
	for _, v := range value {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := 1 - v/peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func sampleStd(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	return math.Sqrt(variance / float64(len(returns)-1))
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
