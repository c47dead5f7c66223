package strategy

import (
	"time"

	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/indicator"
)

// Config holds strategy configuration
type Config struct {
	Enabled bool
	Params  map[string]any
}

// DataRequirements specifies what data a strategy needs
type DataRequirements struct {
	PriceHistory int // Bars of history needed before the first signal
}

// AnalysisContext provides data to strategies
type AnalysisContext struct {
	Symbol string
	Bars   []core.OHLCV
	Frame  *indicator.Frame // computed from Bars when nil
	Now    time.Time
}

// Indicators returns the frame for the context's bars, computing it once.
func (c *AnalysisContext) Indicators() *indicator.Frame {
	if c.Frame == nil || c.Frame.Len() != len(c.Bars) {
		c.Frame = indicator.Compute(c.Bars)
	}
	return c.Frame
}

// Strategy defines the interface for trading strategies
type Strategy interface {
	Name() string
	Description() string
	RequiredData() DataRequirements
	Init(cfg Config) error
	Analyze(ctx AnalysisContext) ([]core.Signal, error)
}
