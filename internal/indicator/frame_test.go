package indicator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/newthinker/skinquant/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBars(closes []float64, volume float64) []core.OHLCV {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]core.OHLCV, len(closes))
	for i, c := range closes {
		bars[i] = core.OHLCV{
			Time:   base.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: volume,
		}
	}
	return bars
}

func rising(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
	}
	return out
}

func flat(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func TestCompute_WarmupWindows(t *testing.T) {
	frame := Compute(makeBars(rising(80), 10))
	require.Equal(t, 80, frame.Len())

	tests := []struct {
		name  string
		get   func(Row) Value
		first int
	}{
		{"ma5", func(r Row) Value { return r.MA5 }, 4},
		{"ma20", func(r Row) Value { return r.MA20 }, 19},
		{"ma60", func(r Row) Value { return r.MA60 }, 59},
		{"ema12", func(r Row) Value { return r.EMA12 }, 0},
		{"macd", func(r Row) Value { return r.MACD }, 0},
		{"rsi", func(r Row) Value { return r.RSI }, 13},
		{"mfi", func(r Row) Value { return r.MFI }, 13},
		{"atr", func(r Row) Value { return r.ATR }, 13},
		{"bb_upper", func(r Row) Value { return r.BBUpper }, 19},
		{"k", func(r Row) Value { return r.K }, 8},
		{"obv", func(r Row) Value { return r.OBV }, 0},
		{"volume_ratio", func(r Row) Value { return r.VolumeRatio }, 19},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.first > 0 {
				assert.False(t, tt.get(frame.Rows[tt.first-1]).Valid, "defined before window filled")
			}
			assert.True(t, tt.get(frame.Rows[tt.first]).Valid, "undefined once window filled")
		})
	}
}

func TestCompute_NoLookahead(t *testing.T) {
	closes := rising(70)
	full := Compute(makeBars(closes, 10))
	prefix := Compute(makeBars(closes[:65], 10))

	for i := range prefix.Rows {
		assert.Equal(t, prefix.Rows[i], full.Rows[i], "row %d changed when later bars were added", i)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	bars := makeBars(rising(90), 7)
	assert.Equal(t, Compute(bars), Compute(bars))
}

func TestCompute_DegenerateSentinels(t *testing.T) {
	bars := makeBars(flat(30, 50), 0)
	for i := range bars {
		bars[i].High, bars[i].Low = 50, 50
	}
	last := Compute(bars).Rows[29]

	assert.Equal(t, Value{V: 50, Valid: true}, last.RSI)
	assert.Equal(t, Value{V: 50, Valid: true}, last.MFI)
	k, _ := last.K.Float()
	d, _ := last.D.Float()
	assert.InDelta(t, 50.0, k, 1e-9)
	assert.InDelta(t, 50.0, d, 1e-9)
	assert.Equal(t, Value{V: 0.5, Valid: true}, last.BBPosition)
	assert.Equal(t, Value{V: 0, Valid: true}, last.VolumeRatio)
}

func TestCompute_OscillatorsClamped(t *testing.T) {
	last := Compute(makeBars(rising(40), 10)).Rows[39]

	rsi, _ := last.RSI.Float()
	mfi, _ := last.MFI.Float()
	assert.Equal(t, 100.0, rsi)
	assert.Equal(t, 100.0, mfi)
}

func TestOBV(t *testing.T) {
	bars := []core.OHLCV{
		{Close: 10, Volume: 5},
		{Close: 11, Volume: 6},
		{Close: 11, Volume: 7},
		{Close: 9, Volume: 8},
	}
	assert.Equal(t, Series{0, 6, 6, -2}, OBV(bars))
}

func TestATR_ConstantRange(t *testing.T) {
	atr := ATR(makeBars(flat(20, 10), 1), 14)
	v, ok := atr.At(13)
	assert.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-12)
}

func TestValue_JSON(t *testing.T) {
	row := struct {
		A Value `json:"a"`
		B Value `json:"b"`
	}{A: Value{V: 1.5, Valid: true}}

	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1.5,"b":null}`, string(data))

	var back struct {
		A Value `json:"a"`
		B Value `json:"b"`
	}
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, row.A, back.A)
	assert.False(t, back.B.Valid)
}
