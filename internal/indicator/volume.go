package indicator

import "github.com/newthinker/skinquant/internal/core"

// OBV accumulates volume signed by the direction of the close.
// Unchanged closes and the first bar add nothing.
func OBV(bars []core.OHLCV) Series {
	out := make(Series, len(bars))
	var total float64
	for i, b := range bars {
		if i > 0 {
			switch {
			case b.Close > bars[i-1].Close:
				total += b.Volume
			case b.Close < bars[i-1].Close:
				total -= b.Volume
			}
		}
		out[i] = total
	}
	return out
}

// VolumeRatio returns the trailing volume average and each bar's volume
// relative to it. A zero average yields a ratio of 0.
func VolumeRatio(bars []core.OHLCV, period int) (avg, ratio Series) {
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		volumes[i] = b.Volume
	}
	avg = SMA(volumes, period)
	ratio = undefined(len(bars))
	for i := range bars {
		a, ok := avg.At(i)
		if !ok {
			continue
		}
		if a == 0 {
			ratio[i] = 0
			continue
		}
		ratio[i] = volumes[i] / a
	}
	return avg, ratio
}
