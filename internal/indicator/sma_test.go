package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSMA_Calculate(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15}

	sma := SMA(prices, 3)

	// Aligned with the input: the first two bars have no full window.
	if len(sma) != len(prices) {
		t.Fatalf("expected %d values, got %d", len(prices), len(sma))
	}
	for i := 0; i < 2; i++ {
		if _, ok := sma.At(i); ok {
			t.Errorf("sma[%d] should be undefined", i)
		}
	}

	expected := []float64{11, 12, 13, 14}
	for i, v := range expected {
		got, ok := sma.At(i + 2)
		if !ok || got != v {
			t.Errorf("sma[%d] = %f, want %f", i+2, got, v)
		}
	}
}

func TestSMA_NotEnoughData(t *testing.T) {
	sma := SMA([]float64{10, 11}, 5)

	for i := range sma {
		if _, ok := sma.At(i); ok {
			t.Errorf("sma[%d] should be undefined", i)
		}
	}
}

func TestRollingStd_IsSampleDeviation(t *testing.T) {
	std := RollingStd([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8)

	got, ok := std.At(7)
	assert.True(t, ok)
	// population std of this set is 2; sample std is sqrt(32/7)
	assert.InDelta(t, math.Sqrt(32.0/7.0), got, 1e-12)
}

func TestEMA_AdjustedWeights(t *testing.T) {
	ema := EMA([]float64{1, 2, 3}, 3) // alpha = 0.5

	v0, _ := ema.At(0)
	v1, _ := ema.At(1)
	v2, _ := ema.At(2)

	assert.InDelta(t, 1.0, v0, 1e-12)
	assert.InDelta(t, 2.5/1.5, v1, 1e-12)
	assert.InDelta(t, (3+0.5*2+0.25*1)/(1+0.5+0.25), v2, 1e-12)
}

func TestEWM_LeadingUndefinedSkipped(t *testing.T) {
	nan := math.NaN()
	out := EWM([]float64{nan, nan, 4, 6}, 0.5)

	_, ok := out.At(1)
	assert.False(t, ok)

	v2, _ := out.At(2)
	v3, _ := out.At(3)
	assert.InDelta(t, 4.0, v2, 1e-12)
	assert.InDelta(t, (6+0.5*4)/1.5, v3, 1e-12)
}
