package trendvote

import (
	"testing"
	"time"

	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/indicator"
	"github.com/newthinker/skinquant/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func v(f float64) indicator.Value { return indicator.Value{V: f, Valid: true} }

// baseFrame returns n rows sitting in a flat choppy uptrend with no crossings.
func baseFrame(n int) *indicator.Frame {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]indicator.Row, n)
	for i := range rows {
		rows[i] = indicator.Row{
			OHLCV:      core.OHLCV{Time: start.AddDate(0, 0, i), Close: 100},
			MA5:        v(95),
			MA20:       v(90),
			MA60:       v(80),
			RSI:        v(50),
			MACD:       v(1),
			MACDSignal: v(0.5),
		}
	}
	return &indicator.Frame{Rows: rows}
}

func TestGenerate_TooShort(t *testing.T) {
	assert.Nil(t, Generate(baseFrame(FirstIndex)))
	assert.Len(t, Generate(baseFrame(FirstIndex+1)), 1)
}

func TestGenerate_TrendLabels(t *testing.T) {
	tests := []struct {
		name        string
		close, ma60 float64
		past        float64
		want        core.Trend
	}{
		{"above and rising", 110, 100, 90, core.TrendStrongUp},
		{"above and flat", 110, 100, 100, core.TrendChoppyUp},
		{"below and rising", 95, 100, 90, core.TrendHighRange},
		{"below and falling", 95, 100, 105, core.TrendDown},
		{"at ma60 and falling", 100, 100, 105, core.TrendDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := baseFrame(70)
			frame.Rows[64].MA60 = v(tt.past)
			frame.Rows[69].MA60 = v(tt.ma60)
			frame.Rows[69].Close = tt.close

			got := Generate(frame)
			assert.Equal(t, tt.want, got[len(got)-1].Trend)
		})
	}
}

func TestGenerate_TrendLookbackStartsAfterWarmup(t *testing.T) {
	frame := baseFrame(66)
	// lower MA60 on bars 59 and 60 would read as rising if used as the past value
	frame.Rows[59].MA60 = v(70)
	frame.Rows[60].MA60 = v(70)

	got := Generate(frame)
	require.Len(t, got, 6)
	assert.Equal(t, core.TrendChoppyUp, got[64-FirstIndex].Trend, "bar 64 compares against its own MA60")
	assert.Equal(t, core.TrendStrongUp, got[65-FirstIndex].Trend, "bar 65 compares against bar 60")
}

func TestGenerate_BuyNeedsTwoVotesInUptrend(t *testing.T) {
	frame := baseFrame(62)
	// ma5 crosses above ma20 and close rebounds off ma20
	frame.Rows[60].MA5, frame.Rows[60].MA20, frame.Rows[60].Close = v(99), v(100), 99
	frame.Rows[61].MA5, frame.Rows[61].MA20, frame.Rows[61].Close = v(101), v(100), 101

	got := Generate(frame)
	last := got[len(got)-1]
	assert.Equal(t, core.ActionBuy, last.Action)
	assert.Equal(t, []string{"ma5 crossed above ma20", "rebound off ma20"}, last.Reasons)

	// a single vote is not enough
	frame.Rows[61].Close = 110
	got = Generate(frame)
	assert.Equal(t, core.ActionHold, got[len(got)-1].Action)
}

func TestGenerate_NoBuyOutsideUptrend(t *testing.T) {
	frame := baseFrame(62)
	frame.Rows[60].MA5, frame.Rows[60].MA20, frame.Rows[60].Close = v(99), v(100), 99
	frame.Rows[61].MA5, frame.Rows[61].MA20, frame.Rows[61].Close = v(101), v(100), 101
	for i := range frame.Rows {
		frame.Rows[i].MA60 = v(120)
	}

	got := Generate(frame)
	assert.Equal(t, core.ActionHold, got[len(got)-1].Action)
}

func TestGenerate_Sell(t *testing.T) {
	frame := baseFrame(62)
	// close breaks below ma60 and macd crosses below its signal under zero
	frame.Rows[60].Close, frame.Rows[60].MACD, frame.Rows[60].MACDSignal = 85, v(-0.1), v(-0.2)
	frame.Rows[61].Close, frame.Rows[61].MACD, frame.Rows[61].MACDSignal = 75, v(-0.3), v(-0.2)

	got := Generate(frame)
	last := got[len(got)-1]
	assert.Equal(t, core.ActionSell, last.Action)
	assert.Equal(t, []string{"close broke below ma60", "macd crossed below signal below zero"}, last.Reasons)
}

func TestGenerate_BuyTakesPrecedence(t *testing.T) {
	frame := baseFrame(62)
	prev, cur := &frame.Rows[60], &frame.Rows[61]
	prev.Close, prev.MA5, prev.MA20, prev.RSI, prev.MACD, prev.MACDSignal = 100, v(100), v(101), v(80), v(-0.1), v(-0.2)
	cur.Close, cur.MA5, cur.MA20, cur.RSI, cur.MACD, cur.MACDSignal = 99.5, v(99.2), v(99), v(78), v(-0.3), v(-0.2)

	got := Generate(frame)
	last := got[len(got)-1]
	assert.Equal(t, core.ActionBuy, last.Action)
}

func TestGenerate_UndefinedReadingsNeverVote(t *testing.T) {
	frame := baseFrame(62)
	frame.Rows[60].MA5, frame.Rows[60].MA20, frame.Rows[60].Close = v(99), v(100), 99
	frame.Rows[61].MA5, frame.Rows[61].MA20, frame.Rows[61].Close = v(101), v(100), 101
	frame.Rows[60].MA20 = indicator.Value{}

	got := Generate(frame)
	assert.Equal(t, core.ActionHold, got[len(got)-1].Action)
}

func TestTrendVote_Analyze(t *testing.T) {
	s := New()
	frame := baseFrame(62)
	frame.Rows[60].MA5, frame.Rows[60].MA20, frame.Rows[60].Close = v(99), v(100), 99
	frame.Rows[61].MA5, frame.Rows[61].MA20, frame.Rows[61].Close = v(101), v(100), 101

	bars := make([]core.OHLCV, frame.Len())
	for i, r := range frame.Rows {
		bars[i] = r.OHLCV
	}

	signals, err := s.Analyze(strategy.AnalysisContext{Symbol: "mint-ft", Bars: bars, Frame: frame})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, core.ActionBuy, signals[0].Action)
	assert.Equal(t, 0.5, signals[0].Confidence)
	assert.Equal(t, "mint-ft", signals[0].Symbol)
	assert.Equal(t, 101.0, signals[0].Price)
}

func TestSignals_SkipsHold(t *testing.T) {
	annotations := []Annotation{
		{Index: 60, Action: core.ActionHold},
		{Index: 61, Action: core.ActionSell, Reasons: []string{"a", "b"}},
	}
	signals := Signals("x", annotations)
	require.Len(t, signals, 1)
	assert.Equal(t, "a, b", signals[0].Reason)
}
