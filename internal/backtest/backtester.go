package backtest

import (
	"context"
	"math"
	"time"

	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/indicator"
)

const (
	// MinBars is the shortest bar sequence Simulate accepts.
	MinBars = 20

	firstBar   = MinBars - 1
	openLot    = 0.3
	addLot     = 0.1
	lotMinHold = 7

	// sizes are quantised so repeated lot arithmetic cannot drift past 1
	sizeScale = 1e9
)

// OHLCVProvider defines the interface for fetching historical OHLCV data
type OHLCVProvider interface {
	FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]core.OHLCV, error)
}

// Backtester runs the bias strategy against historical data
type Backtester struct {
	provider       OHLCVProvider
	periodsPerYear float64
}

// New creates a new Backtester with the given OHLCV provider
func New(provider OHLCVProvider) *Backtester {
	return &Backtester{
		provider:       provider,
		periodsPerYear: DefaultPeriodsPerYear,
	}
}

// Run fetches history for symbol and simulates params over it.
func (b *Backtester) Run(ctx context.Context, symbol string, start, end time.Time, params Params) (*Result, error) {
	bars, err := b.provider.FetchHistory(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trace, err := Simulate(bars, params)
	if err != nil {
		return nil, err
	}

	return &Result{
		Symbol:    symbol,
		StartDate: start,
		EndDate:   end,
		Params:    params,
		Trace:     trace,
		Metrics:   ComputeMetrics(trace, b.periodsPerYear),
		Summary:   Summarize(trace),
	}, nil
}

// lot is an open slice of the position keyed by the bar that opened it.
type lot struct {
	entry int
	size  float64
}

// Simulate replays the bias strategy bar by bar from the 20th bar. The
// running position is the sum of open lots, so it stays within [0,1].
func Simulate(bars []core.OHLCV, p Params) (Trace, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(bars) < MinBars {
		return nil, core.Errorf(core.ErrInsufficientData, "need %d bars, got %d", MinBars, len(bars))
	}

	closes := core.Closes(bars)
	ma5 := indicator.SMA(closes, 5)
	ma10 := indicator.SMA(closes, 10)
	ma20 := indicator.SMA(closes, 20)
	profitShare := 1 - math.Exp(-p.K0*p.BiasTh)

	var lots []lot
	trace := make(Trace, 0, len(bars)-firstBar)

	for i := firstBar; i < len(bars); i++ {
		price := closes[i]
		m5, m10, m20 := ma5[i], ma10[i], ma20[i]
		bias := ratio(price, m5) - 1
		current := openSize(lots)

		var buy, sell float64
		if m5 > m20 && price > m10 && bias < p.BiasTh {
			switch {
			case current == 0:
				buy = openLot
			case current < 1:
				buy = math.Min(addLot, quantise(1-current))
			}
			if buy > 0 {
				lots = append(lots, lot{entry: i, size: buy})
			}
		} else if i >= p.SellDays && ratio(price, closes[i-p.SellDays])-1 < p.SellDropTh && price < m10 {
			sell = current
			lots = nil
		} else if bias >= p.BiasTh && current > 0 {
			target := current * profitShare
			kept := lots[:0]
			for _, l := range lots {
				if sell < target && i-l.entry >= lotMinHold {
					sell += l.size
					continue
				}
				kept = append(kept, l)
			}
			lots = kept
		}

		position := quantise(current + buy - sell)
		trace = append(trace, TraceRow{
			Time:     bars[i].Time,
			Position: position,
			Return:   position * barReturn(closes, i),
			Buy:      buy,
			Sell:     quantise(sell),
			Price:    price,
			MA5:      m5,
			MA10:     m10,
			MA20:     m20,
			Bias:     bias,
		})
	}

	return trace, nil
}

func openSize(lots []lot) float64 {
	var total float64
	for _, l := range lots {
		total += l.size
	}
	return quantise(total)
}

func quantise(v float64) float64 {
	return math.Round(v*sizeScale) / sizeScale
}

// ratio returns a/b, or 1 when b is zero so derived deviations read as 0.
func ratio(a, b float64) float64 {
	if b == 0 {
		return 1
	}
	return a / b
}

func barReturn(closes []float64, i int) float64 {
	if i == 0 {
		return 0
	}
	return ratio(closes[i], closes[i-1]) - 1
}
