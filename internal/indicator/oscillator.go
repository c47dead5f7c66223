package indicator

import (
	"math"

	"github.com/newthinker/skinquant/internal/core"
)

// RSI computes the relative strength index from trailing period means of
// gains and losses. The first bar contributes no change.
func RSI(closes []float64, period int) Series {
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	avgGain := SMA(gains, period)
	avgLoss := SMA(losses, period)

	out := undefined(len(closes))
	for i := range closes {
		g, ok1 := avgGain.At(i)
		l, ok2 := avgLoss.At(i)
		if !ok1 || !ok2 {
			continue
		}
		out[i] = strengthIndex(g, l)
	}
	return out
}

// strengthIndex maps an up/down pair to [0,100]. A zero denominator yields
// 100 when there was upward movement and the neutral 50 when there was none.
func strengthIndex(up, down float64) float64 {
	if down == 0 {
		if up == 0 {
			return 50
		}
		return 100
	}
	return clamp(100-100/(1+up/down), 0, 100)
}

// MFI computes the money flow index over typical price times volume.
func MFI(bars []core.OHLCV, period int) Series {
	positive := make([]float64, len(bars))
	negative := make([]float64, len(bars))
	prevTP := math.NaN()

	for i, b := range bars {
		tp := (b.High + b.Low + b.Close) / 3
		flow := tp * b.Volume
		if !math.IsNaN(prevTP) {
			if tp > prevTP {
				positive[i] = flow
			} else if tp < prevTP {
				negative[i] = flow
			}
		}
		prevTP = tp
	}

	posSum := RollingSum(positive, period)
	negSum := RollingSum(negative, period)

	out := undefined(len(bars))
	for i := range bars {
		p, ok1 := posSum.At(i)
		n, ok2 := negSum.At(i)
		if !ok1 || !ok2 {
			continue
		}
		out[i] = strengthIndex(p, n)
	}
	return out
}

// KDJ computes the stochastic K, D and J lines from a period-bar RSV
// smoothed with centre of mass com.
func KDJ(bars []core.OHLCV, period int, com float64) (k, d, j Series) {
	rsv := undefined(len(bars))
	for i := period - 1; i < len(bars); i++ {
		lowest, highest := math.Inf(1), math.Inf(-1)
		for _, b := range bars[i-period+1 : i+1] {
			lowest = math.Min(lowest, b.Low)
			highest = math.Max(highest, b.High)
		}
		if highest == lowest {
			rsv[i] = 50
			continue
		}
		rsv[i] = clamp((bars[i].Close-lowest)/(highest-lowest)*100, 0, 100)
	}

	alpha := 1 / (1 + com)
	k = EWM(rsv, alpha)
	d = EWM(k, alpha)
	j = undefined(len(bars))
	for i := range bars {
		kv, ok1 := k.At(i)
		dv, ok2 := d.At(i)
		if ok1 && ok2 {
			j[i] = 3*kv - 2*dv
		}
	}
	return k, d, j
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
