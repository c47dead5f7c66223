package maposition

import (
	"fmt"
	"time"

	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/indicator"
	"github.com/newthinker/skinquant/internal/strategy"
)

// Advice suggests how many position tranches to add at a bar.
type Advice struct {
	Index    int       `json:"index"`
	Time     time.Time `json:"time"`
	Close    float64   `json:"close"`
	Tranches int       `json:"tranches"`
	Reason   string    `json:"reason"`
}

// MAPosition sizes entries from MA5 crossovers while MA30 is rising
type MAPosition struct {
	fullTranches int
	halfTranches int
}

// New creates a new MA position strategy
func New() *MAPosition {
	return &MAPosition{fullTranches: 4, halfTranches: 2}
}

func (m *MAPosition) Name() string {
	return "ma_position"
}

func (m *MAPosition) Description() string {
	return fmt.Sprintf("MA30-gated MA5 crossovers (%d/%d tranches)", m.fullTranches, m.halfTranches)
}

func (m *MAPosition) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{PriceHistory: 31}
}

func (m *MAPosition) Init(cfg strategy.Config) error {
	if full, ok := cfg.Params["full_tranches"].(int); ok && full > 0 {
		m.fullTranches = full
	}
	if half, ok := cfg.Params["half_tranches"].(int); ok && half > 0 {
		m.halfTranches = half
	}
	return nil
}

// Advise scans the frame for entries. A cross above MA20 outranks a cross
// above MA10 on the same bar.
func (m *MAPosition) Advise(frame *indicator.Frame) []Advice {
	var out []Advice
	for i := 1; i < frame.Len(); i++ {
		cur, prev := frame.Rows[i], frame.Rows[i-1]
		if !cur.MA30.Valid || !prev.MA30.Valid || cur.MA30.V <= prev.MA30.V {
			continue
		}

		a := Advice{Index: i, Time: cur.Time, Close: cur.Close}
		switch {
		case crossedAbove(cur.MA5, cur.MA20, prev.MA5, prev.MA20):
			a.Tranches = m.fullTranches
			a.Reason = fmt.Sprintf("MA5 crossed above MA20, add %d tranches", m.fullTranches)
		case crossedAbove(cur.MA5, cur.MA10, prev.MA5, prev.MA10):
			a.Tranches = m.halfTranches
			a.Reason = fmt.Sprintf("MA5 crossed above MA10, add %d tranches", m.halfTranches)
		default:
			continue
		}
		out = append(out, a)
	}
	return out
}

func crossedAbove(fast, slow, prevFast, prevSlow indicator.Value) bool {
	if !fast.Valid || !slow.Valid || !prevFast.Valid || !prevSlow.Valid {
		return false
	}
	return fast.V > slow.V && prevFast.V <= prevSlow.V
}

// Analyze emits a buy when the latest bar carries advice.
func (m *MAPosition) Analyze(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	frame := ctx.Indicators()
	advice := m.Advise(frame)
	if len(advice) == 0 || advice[len(advice)-1].Index != frame.Len()-1 {
		return nil, nil
	}
	last := advice[len(advice)-1]

	return []core.Signal{{
		Symbol:      ctx.Symbol,
		Action:      core.ActionBuy,
		Confidence:  float64(last.Tranches) / float64(m.fullTranches),
		Price:       last.Close,
		Reason:      last.Reason,
		GeneratedAt: last.Time,
		Metadata: map[string]any{
			"tranches": last.Tranches,
		},
	}}, nil
}
