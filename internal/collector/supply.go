package collector

import (
	"fmt"

	"github.com/newthinker/skinquant/internal/core"
)

// SupplyLevel buckets the total on-sale count.
type SupplyLevel string

const (
	SupplyScarce SupplyLevel = "scarce"
	SupplyLow    SupplyLevel = "low"
	SupplyNormal SupplyLevel = "normal"
	SupplyAmple  SupplyLevel = "ample"
	SupplyGlut   SupplyLevel = "glut"
)

// SupplyAnalysis scores listing supply; higher scores mean scarcer supply.
type SupplyAnalysis struct {
	Total          int         `json:"total_on_sale"`
	Level          SupplyLevel `json:"supply_level"`
	Score          int         `json:"supply_score"`
	Summary        string      `json:"summary"`
	Recommendation string      `json:"recommendation"`
}

// AnalyzeSupply classifies a snapshot by its total on-sale count.
func AnalyzeSupply(s *OnSaleSnapshot) SupplyAnalysis {
	var level SupplyLevel
	var score int
	switch total := s.Total; {
	case total < 100:
		level, score = SupplyScarce, 90
	case total < 500:
		level, score = SupplyLow, 70
	case total < 1000:
		level, score = SupplyNormal, 50
	case total < 2000:
		level, score = SupplyAmple, 30
	default:
		level, score = SupplyGlut, 10
	}

	return SupplyAnalysis{
		Total:          s.Total,
		Level:          level,
		Score:          score,
		Summary:        fmt.Sprintf("%d listed, supply %s", s.Total, level),
		Recommendation: supplyRecommendation(score),
	}
}

func supplyRecommendation(score int) string {
	switch {
	case score >= 80:
		return "supply is scarce; accumulate and hold, prices may rise"
	case score >= 60:
		return "supply is thin; buying is reasonable, watch volatility"
	case score >= 40:
		return "supply is normal; wait for a better entry"
	case score >= 20:
		return "supply is ample; buy cautiously, prices may be pressured"
	default:
		return "supply is in glut; avoid buying, prices may fall"
	}
}

// MarketCondition compares listings to traded volume.
type MarketCondition string

const (
	ConditionBalanced     MarketCondition = "balanced"
	ConditionOversupplied MarketCondition = "oversupplied"
	ConditionGlut         MarketCondition = "glut"
)

// VolumeComparison relates on-sale supply to average daily volume.
type VolumeComparison struct {
	LatestPrice  float64         `json:"latest_price"`
	LatestVolume float64         `json:"latest_volume"`
	AvgVolume    float64         `json:"avg_volume"`
	OnSale       int             `json:"total_on_sale"`
	Ratio        float64         `json:"on_sale_volume_ratio"`
	Condition    MarketCondition `json:"market_condition"`
}

// CompareWithVolume divides the on-sale total by mean bar volume. The
// ratio is 0 when there is no volume.
func CompareWithVolume(s *OnSaleSnapshot, bars []core.OHLCV) (VolumeComparison, error) {
	if len(bars) == 0 {
		return VolumeComparison{}, core.Errorf(core.ErrNoData, "no bars to compare on-sale supply against")
	}

	var sum float64
	for _, b := range bars {
		sum += b.Volume
	}
	last := bars[len(bars)-1]
	vc := VolumeComparison{
		LatestPrice:  last.Close,
		LatestVolume: last.Volume,
		AvgVolume:    sum / float64(len(bars)),
		OnSale:       s.Total,
	}
	if vc.AvgVolume > 0 {
		vc.Ratio = float64(s.Total) / vc.AvgVolume
	}

	switch {
	case vc.Ratio < 5:
		vc.Condition = ConditionBalanced
	case vc.Ratio < 10:
		vc.Condition = ConditionOversupplied
	default:
		vc.Condition = ConditionGlut
	}
	return vc, nil
}
