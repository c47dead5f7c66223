package indicator

import (
	"math"

	"github.com/newthinker/skinquant/internal/core"
)

// MACD returns the fast/slow EMA difference, its signal EMA and the histogram.
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist Series) {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	line = undefined(len(closes))
	for i := range closes {
		f, ok1 := fastEMA.At(i)
		s, ok2 := slowEMA.At(i)
		if ok1 && ok2 {
			line[i] = f - s
		}
	}
	sig = EMA(line, signal)
	hist = undefined(len(closes))
	for i := range closes {
		l, ok1 := line.At(i)
		s, ok2 := sig.At(i)
		if ok1 && ok2 {
			hist[i] = l - s
		}
	}
	return line, sig, hist
}

// Bollinger returns bands at width standard deviations around the period SMA
// and where the close sits inside them (0 at the lower band, 1 at the upper).
func Bollinger(closes []float64, period int, width float64) (upper, middle, lower, position Series) {
	middle = SMA(closes, period)
	std := RollingStd(closes, period)

	upper = undefined(len(closes))
	lower = undefined(len(closes))
	position = undefined(len(closes))
	for i := range closes {
		m, ok1 := middle.At(i)
		s, ok2 := std.At(i)
		if !ok1 || !ok2 {
			continue
		}
		upper[i] = m + width*s
		lower[i] = m - width*s
		if upper[i] == lower[i] {
			position[i] = 0.5
			continue
		}
		position[i] = (closes[i] - lower[i]) / (upper[i] - lower[i])
	}
	return upper, middle, lower, position
}

// ATR is the trailing mean of true range. The first bar's true range is
// its high-low span.
func ATR(bars []core.OHLCV, period int) Series {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		tr[i] = b.High - b.Low
		if i == 0 {
			continue
		}
		prevClose := bars[i-1].Close
		tr[i] = math.Max(tr[i], math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
	}
	return SMA(tr, period)
}
