package indicator

import (
	"encoding/json"
	"strconv"

	"github.com/newthinker/skinquant/internal/core"
)

// Value is an indicator reading that may not be defined yet.
type Value struct {
	V     float64
	Valid bool
}

// Float returns the reading and whether it is defined.
func (v Value) Float() (float64, bool) {
	return v.V, v.Valid
}

// MarshalJSON renders undefined readings as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(v.V, 'g', -1, 64)), nil
}

// UnmarshalJSON accepts a number or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Value{V: f, Valid: true}
	return nil
}

func valueAt(s Series, i int) Value {
	f, ok := s.At(i)
	return Value{V: f, Valid: ok}
}

// Row is a bar together with every indicator computed up to and including it.
type Row struct {
	core.OHLCV

	MA5   Value `json:"ma5"`
	MA10  Value `json:"ma10"`
	MA20  Value `json:"ma20"`
	MA30  Value `json:"ma30"`
	MA60  Value `json:"ma60"`
	EMA12 Value `json:"ema12"`
	EMA26 Value `json:"ema26"`

	RSI        Value `json:"rsi"`
	MACD       Value `json:"macd"`
	MACDSignal Value `json:"macd_signal"`
	MACDHist   Value `json:"macd_histogram"`

	BBUpper    Value `json:"bb_upper"`
	BBMiddle   Value `json:"bb_middle"`
	BBLower    Value `json:"bb_lower"`
	BBPosition Value `json:"bb_position"`

	K Value `json:"k"`
	D Value `json:"d"`
	J Value `json:"j"`

	OBV         Value `json:"obv"`
	MFI         Value `json:"mfi"`
	ATR         Value `json:"atr"`
	VolumeMA    Value `json:"volume_ma"`
	VolumeRatio Value `json:"volume_ratio"`
}

// Frame is a bar sequence augmented with indicators, one row per bar.
type Frame struct {
	Rows []Row `json:"rows"`
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Compute derives every indicator for an ascending bar sequence. Each row
// depends only on the bars up to and including it.
func Compute(bars []core.OHLCV) *Frame {
	closes := core.Closes(bars)

	ma5 := SMA(closes, 5)
	ma10 := SMA(closes, 10)
	ma20 := SMA(closes, 20)
	ma30 := SMA(closes, 30)
	ma60 := SMA(closes, 60)
	ema12 := EMA(closes, 12)
	ema26 := EMA(closes, 26)
	rsi := RSI(closes, 14)
	macd, macdSignal, macdHist := MACD(closes, 12, 26, 9)
	bbUpper, bbMiddle, bbLower, bbPos := Bollinger(closes, 20, 2)
	k, d, j := KDJ(bars, 9, 2)
	obv := OBV(bars)
	mfi := MFI(bars, 14)
	atr := ATR(bars, 14)
	volMA, volRatio := VolumeRatio(bars, 20)

	rows := make([]Row, len(bars))
	for i, b := range bars {
		rows[i] = Row{
			OHLCV:       b,
			MA5:         valueAt(ma5, i),
			MA10:        valueAt(ma10, i),
			MA20:        valueAt(ma20, i),
			MA30:        valueAt(ma30, i),
			MA60:        valueAt(ma60, i),
			EMA12:       valueAt(ema12, i),
			EMA26:       valueAt(ema26, i),
			RSI:         valueAt(rsi, i),
			MACD:        valueAt(macd, i),
			MACDSignal:  valueAt(macdSignal, i),
			MACDHist:    valueAt(macdHist, i),
			BBUpper:     valueAt(bbUpper, i),
			BBMiddle:    valueAt(bbMiddle, i),
			BBLower:     valueAt(bbLower, i),
			BBPosition:  valueAt(bbPos, i),
			K:           valueAt(k, i),
			D:           valueAt(d, i),
			J:           valueAt(j, i),
			OBV:         valueAt(obv, i),
			MFI:         valueAt(mfi, i),
			ATR:         valueAt(atr, i),
			VolumeMA:    valueAt(volMA, i),
			VolumeRatio: valueAt(volRatio, i),
		}
	}
	return &Frame{Rows: rows}
}
