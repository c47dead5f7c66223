package indicator

import "math"

// Series is aligned with the bar sequence it was computed from.
// NaN marks bars where the window is not yet filled.
type Series []float64

// At returns the value at i and whether it is defined.
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s) || math.IsNaN(s[i]) {
		return 0, false
	}
	return s[i], true
}

func undefined(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// SMA calculates Simple Moving Average.
// Returns a series of len(prices); the first period-1 values are undefined.
func SMA(prices []float64, period int) Series {
	return rolling(prices, period, func(window []float64) float64 {
		var sum float64
		for _, v := range window {
			sum += v
		}
		return sum / float64(len(window))
	})
}

// RollingSum sums each trailing window of the given period.
func RollingSum(values []float64, period int) Series {
	return rolling(values, period, func(window []float64) float64 {
		var sum float64
		for _, v := range window {
			sum += v
		}
		return sum
	})
}

// RollingStd is the sample (n-1) standard deviation over each trailing window.
func RollingStd(values []float64, period int) Series {
	return rolling(values, period, func(window []float64) float64 {
		if len(window) < 2 {
			return math.NaN()
		}
		var sum float64
		for _, v := range window {
			sum += v
		}
		mean := sum / float64(len(window))
		var ss float64
		for _, v := range window {
			ss += (v - mean) * (v - mean)
		}
		return math.Sqrt(ss / float64(len(window)-1))
	})
}

// rolling applies fn to every complete window. Windows containing an
// undefined input stay undefined.
func rolling(values []float64, period int, fn func([]float64) float64) Series {
	out := undefined(len(values))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		if hasNaN(window) {
			continue
		}
		out[i] = fn(window)
	}
	return out
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// EMA calculates the exponential moving average for a span, using
// bias-adjusted weights from the first defined observation onwards.
func EMA(prices []float64, span int) Series {
	return EWM(prices, 2.0/float64(span+1))
}

// EWM is the adjusted exponentially weighted mean with smoothing factor alpha:
// y_t = sum((1-alpha)^i * x_{t-i}) / sum((1-alpha)^i).
// Leading undefined inputs stay undefined; later ones only decay the weights.
func EWM(values []float64, alpha float64) Series {
	out := undefined(len(values))
	decay := 1 - alpha
	var num, den float64
	started := false

	for i, x := range values {
		if math.IsNaN(x) {
			if started {
				num *= decay
				den *= decay
				out[i] = num / den
			}
			continue
		}
		num = x + decay*num
		den = 1 + decay*den
		started = true
		out[i] = num / den
	}
	return out
}
