package backtest

import (
	"math"

	"github.com/newthinker/skinquant/internal/core"
)

// DefaultMaxCombinations bounds the number of grid points evaluated.
const DefaultMaxCombinations = 100

// MaxRangeValues bounds the points a single Range may enumerate.
const MaxRangeValues = 10000

// Range is an inclusive stepped interval.
type Range struct {
	Min  float64 `json:"min" mapstructure:"min"`
	Max  float64 `json:"max" mapstructure:"max"`
	Step float64 `json:"step" mapstructure:"step"`
}

// Values enumerates the range by integer index so accumulated float
// error never adds or drops an endpoint.
// Ranges that are invalid or larger than MaxRangeValues enumerate nothing.
func (r Range) Values() []float64 {
	n, ok := r.count()
	if !ok {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = round10(r.Min + float64(i)*r.Step)
	}
	return out
}

func (r Range) count() (int, bool) {
	if !isFinite(r.Min) || !isFinite(r.Max) || !isFinite(r.Step) || r.Step <= 0 || r.Max < r.Min {
		return 0, false
	}
	n := math.Floor((r.Max-r.Min)/r.Step+1e-9) + 1
	if n > MaxRangeValues {
		return 0, false
	}
	return int(n), true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (r Range) validate(name string) error {
	if !isFinite(r.Min) || !isFinite(r.Max) || !isFinite(r.Step) {
		return core.Errorf(core.ErrConfigInvalid, "%s: bounds and step must be finite", name)
	}
	if r.Step <= 0 {
		return core.Errorf(core.ErrConfigInvalid, "%s: step must be positive", name)
	}
	if r.Max < r.Min {
		return core.Errorf(core.ErrConfigInvalid, "%s: max %g below min %g", name, r.Max, r.Min)
	}
	if _, ok := r.count(); !ok {
		return core.Errorf(core.ErrConfigInvalid, "%s: more than %d values between %g and %g", name, MaxRangeValues, r.Min, r.Max)
	}
	return nil
}

// SearchSpace is the parameter grid explored by the optimizer.
type SearchSpace struct {
	K0         Range `json:"k0" mapstructure:"k0"`
	BiasTh     Range `json:"bias_th" mapstructure:"bias_th"`
	SellDays   Range `json:"sell_days" mapstructure:"sell_days"`
	SellDropTh Range `json:"sell_drop_th" mapstructure:"sell_drop_th"`
}

// DefaultSearchSpace returns the stock parameter ranges.
func DefaultSearchSpace() SearchSpace {
	return SearchSpace{
		K0:         Range{Min: 3, Max: 10, Step: 0.5},
		BiasTh:     Range{Min: 0.03, Max: 0.12, Step: 0.01},
		SellDays:   Range{Min: 2, Max: 5, Step: 1},
		SellDropTh: Range{Min: -0.10, Max: -0.03, Step: 0.01},
	}
}

// Validate checks every range.
func (s SearchSpace) Validate() error {
	for _, d := range []struct {
		name string
		r    Range
	}{
		{"k0", s.K0}, {"bias_th", s.BiasTh}, {"sell_days", s.SellDays}, {"sell_drop_th", s.SellDropTh},
	} {
		if err := d.r.validate(d.name); err != nil {
			return err
		}
	}
	return nil
}

// Size is the number of combinations in the full grid.
func (s SearchSpace) Size() int {
	return len(s.K0.Values()) * len(s.BiasTh.Values()) * len(s.SellDays.Values()) * len(s.SellDropTh.Values())
}

// initial per-dimension sample targets: k0, bias_th, sell_days, sell_drop_th
var sampleTargets = [4]int{5, 5, 3, 5}

// Grid enumerates parameter combinations in k0, bias_th, sell_days,
// sell_drop_th order. When the full grid exceeds maxCombinations each
// dimension is strided down, shrinking the widest dimension first until
// the product fits.
func (s SearchSpace) Grid(maxCombinations int) []Params {
	dims := [4][]float64{s.K0.Values(), s.BiasTh.Values(), s.SellDays.Values(), s.SellDropTh.Values()}
	if maxCombinations <= 0 {
		maxCombinations = DefaultMaxCombinations
	}

	if product(dims) > maxCombinations {
		targets := sampleTargets
		var sampled [4][]float64
		for {
			for d := range dims {
				sampled[d] = stride(dims[d], targets[d])
			}
			if product(sampled) <= maxCombinations {
				break
			}
			widest := 0
			for d := 1; d < len(sampled); d++ {
				if len(sampled[d]) > len(sampled[widest]) {
					widest = d
				}
			}
			targets[widest] = len(sampled[widest]) - 1
		}
		dims = sampled
	}

	grid := make([]Params, 0, product(dims))
	for _, k0 := range dims[0] {
		for _, bias := range dims[1] {
			for _, days := range dims[2] {
				for _, drop := range dims[3] {
					grid = append(grid, Params{
						K0:         k0,
						BiasTh:     bias,
						SellDays:   int(math.Round(days)),
						SellDropTh: drop,
					})
				}
			}
		}
	}
	return grid
}

// stride keeps every ceil(len/target)-th value starting from the first.
func stride(values []float64, target int) []float64 {
	if target < 1 {
		target = 1
	}
	if len(values) <= target {
		return values
	}
	step := (len(values) + target - 1) / target
	out := make([]float64, 0, target)
	for i := 0; i < len(values); i += step {
		out = append(out, values[i])
	}
	return out
}

func product(dims [4][]float64) int {
	n := 1
	for _, d := range dims {
		n *= len(d)
	}
	return n
}

func round10(v float64) float64 {
	return math.Round(v*1e10) / 1e10
}
