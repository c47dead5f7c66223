// Package trendvote labels each bar with an MA60 trend regime and emits
// buy/sell signals only when at least two independent conditions agree.
package trendvote

import (
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/indicator"
	"github.com/newthinker/skinquant/internal/strategy"
)

const (
	// Name is the strategy name used on generated signals.
	Name = "trend_vote"
	// FirstIndex is the first bar that receives a label.
	FirstIndex = 60
	// MinVotes is the number of agreeing conditions needed for a signal.
	MinVotes = 2

	trendLookback = 5
)

// Annotation is the label assigned to a single bar.
type Annotation struct {
	Index   int         `json:"index"`
	Time    time.Time   `json:"time"`
	Close   float64     `json:"close"`
	Trend   core.Trend  `json:"trend"`
	Action  core.Action `json:"action"`
	Reasons []string    `json:"reasons,omitempty"`
}

// Generate labels every bar from FirstIndex onward.
func Generate(frame *indicator.Frame) []Annotation {
	if frame == nil || frame.Len() <= FirstIndex {
		return nil
	}

	out := make([]Annotation, 0, frame.Len()-FirstIndex)
	for i := FirstIndex; i < frame.Len(); i++ {
		cur, prev := frame.Rows[i], frame.Rows[i-1]
		trend := classify(frame, i)

		a := Annotation{
			Index:  i,
			Time:   cur.Time,
			Close:  cur.Close,
			Trend:  trend,
			Action: core.ActionHold,
		}

		var buys []string
		if trend.Bullish() {
			buys = buyConditions(cur, prev)
		}
		sells := sellConditions(cur, prev, trend)

		switch {
		case len(buys) >= MinVotes:
			a.Action = core.ActionBuy
			a.Reasons = buys
		case len(sells) >= MinVotes:
			a.Action = core.ActionSell
			a.Reasons = sells
		}
		out = append(out, a)
	}
	return out
}

// classify compares close and MA60 against MA60 five bars earlier. For the
// first five labelled bars the current MA60 stands in for the past one.
func classify(frame *indicator.Frame, i int) core.Trend {
	row := frame.Rows[i]
	ma60, ok := row.MA60.Float()
	if !ok {
		return core.TrendDown
	}
	past := ma60
	if i >= FirstIndex+trendLookback {
		if v, ok := frame.Rows[i-trendLookback].MA60.Float(); ok {
			past = v
		}
	}

	above := row.Close > ma60
	rising := ma60 > past
	switch {
	case above && rising:
		return core.TrendStrongUp
	case above:
		return core.TrendChoppyUp
	case rising:
		return core.TrendHighRange
	default:
		return core.TrendDown
	}
}

// defined reports whether every reading is available; a missing reading
// makes a condition false.
func defined(values ...indicator.Value) bool {
	for _, v := range values {
		if !v.Valid {
			return false
		}
	}
	return true
}

func buyConditions(cur, prev indicator.Row) []string {
	var reasons []string

	if defined(cur.MA5, cur.MA20, prev.MA5, prev.MA20) &&
		cur.MA5.V > cur.MA20.V && prev.MA5.V <= prev.MA20.V {
		reasons = append(reasons, "ma5 crossed above ma20")
	}
	if defined(cur.MA20, prev.MA20) &&
		cur.Close > cur.MA20.V && cur.Close < cur.MA20.V*1.03 && prev.Close <= prev.MA20.V {
		reasons = append(reasons, "rebound off ma20")
	}
	if defined(cur.RSI, prev.RSI) &&
		cur.RSI.V > 35 && cur.RSI.V < 60 && prev.RSI.V <= 35 {
		reasons = append(reasons, "rsi recovered through 35")
	}
	if defined(cur.MACD, cur.MACDSignal, prev.MACD, prev.MACDSignal) &&
		cur.MACD.V > cur.MACDSignal.V && prev.MACD.V <= prev.MACDSignal.V && cur.MACD.V > 0 {
		reasons = append(reasons, "macd crossed above signal above zero")
	}
	return reasons
}

func sellConditions(cur, prev indicator.Row, trend core.Trend) []string {
	var reasons []string

	if !trend.Bullish() && defined(cur.MA5, cur.MA20, prev.MA5, prev.MA20) &&
		cur.MA5.V < cur.MA20.V && prev.MA5.V >= prev.MA20.V {
		reasons = append(reasons, "ma5 crossed below ma20")
	}
	if defined(cur.RSI, prev.RSI) &&
		cur.RSI.V > 75 && prev.RSI.V > cur.RSI.V && cur.Close < prev.Close {
		reasons = append(reasons, "overbought rsi rolling over")
	}
	if defined(cur.MA60, prev.MA60) &&
		cur.Close < cur.MA60.V && prev.Close >= prev.MA60.V {
		reasons = append(reasons, "close broke below ma60")
	}
	if defined(cur.MACD, cur.MACDSignal, prev.MACD, prev.MACDSignal) &&
		cur.MACD.V < cur.MACDSignal.V && prev.MACD.V >= prev.MACDSignal.V && cur.MACD.V < 0 {
		reasons = append(reasons, "macd crossed below signal below zero")
	}
	return reasons
}

// TrendVote adapts Generate to the strategy interface.
type TrendVote struct{}

// New creates the trend-vote strategy
func New() *TrendVote {
	return &TrendVote{}
}

func (t *TrendVote) Name() string {
	return Name
}

func (t *TrendVote) Description() string {
	return fmt.Sprintf("MA60 trend filter with %d-of-4 condition voting", MinVotes)
}

func (t *TrendVote) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{PriceHistory: FirstIndex + 1}
}

func (t *TrendVote) Init(cfg strategy.Config) error {
	return nil
}

// Analyze returns a signal for the latest bar when it carries one.
func (t *TrendVote) Analyze(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	annotations := Generate(ctx.Indicators())
	if len(annotations) == 0 {
		return nil, nil
	}
	last := annotations[len(annotations)-1]
	if last.Action == core.ActionHold {
		return nil, nil
	}
	return []core.Signal{ToSignal(ctx.Symbol, last)}, nil
}

// ToSignal converts an annotation carrying a buy or sell into a signal.
func ToSignal(symbol string, a Annotation) core.Signal {
	return core.Signal{
		Symbol:      symbol,
		Action:      a.Action,
		Confidence:  float64(len(a.Reasons)) / 4,
		Price:       a.Close,
		Reason:      strings.Join(a.Reasons, ", "),
		GeneratedAt: a.Time,
		Metadata: map[string]any{
			"trend": string(a.Trend),
			"index": a.Index,
		},
	}
}

// Signals converts every non-hold annotation into a signal.
func Signals(symbol string, annotations []Annotation) []core.Signal {
	var out []core.Signal
	for _, a := range annotations {
		if a.Action != core.ActionHold {
			out = append(out, ToSignal(symbol, a))
		}
	}
	return out
}
