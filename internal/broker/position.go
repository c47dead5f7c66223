package broker

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PositionValue is a position marked to the current price.
type PositionValue struct {
	Symbol              string  `json:"symbol"`
	Quantity            int     `json:"quantity"`
	AvgPrice            float64 `json:"avg_price"`
	CurrentPrice        float64 `json:"current_price"`
	MarketValue         float64 `json:"market_value"`
	CostBasis           float64 `json:"cost_basis"`
	UnrealizedPL        float64 `json:"unrealized_pl"`
	UnrealizedPLPercent float64 `json:"unrealized_pl_percent"`
	Available           int     `json:"available"`
	Locked              int     `json:"locked"`
}

// Valuation summarises a portfolio at current prices.
type Valuation struct {
	Cash                float64         `json:"cash"`
	TotalValue          float64         `json:"total_value"`
	MarketValue         float64         `json:"market_value"`
	CostBasis           float64         `json:"cost_basis"`
	UnrealizedPL        float64         `json:"unrealized_pl"`
	UnrealizedPLPercent float64         `json:"unrealized_pl_percent"`
	RealizedPL          float64         `json:"realized_pl"`
	Positions           []PositionValue `json:"positions"`
}

// Value refreshes availability and TotalValue, then marks every position
// to market. Percentages are 0 when the cost basis is 0.
func (l *Ledger) Value(p *Portfolio) Valuation {
	l.Refresh(p)
	l.Revalue(p)

	v := Valuation{
		Cash:       p.Cash,
		TotalValue: p.TotalValue,
		Positions:  make([]PositionValue, 0, len(p.Positions)),
	}

	market, basis := decimal.Zero, decimal.Zero
	for symbol, pos := range p.Positions {
		price := l.priceOf(symbol, pos)
		mv := amount(pos.Quantity, price)
		cost := amount(pos.Quantity, pos.AvgPrice)
		pl := mv.Sub(cost)

		pv := PositionValue{
			Symbol:              symbol,
			Quantity:            pos.Quantity,
			AvgPrice:            pos.AvgPrice,
			CurrentPrice:        price,
			MarketValue:         mv.InexactFloat64(),
			CostBasis:           cost.InexactFloat64(),
			UnrealizedPL:        pl.InexactFloat64(),
			UnrealizedPLPercent: percent(pl, cost),
		}
		if inv, ok := p.Inventory[symbol]; ok {
			pv.Available = inv.AvailableQuantity
			pv.Locked = inv.LockedQuantity()
		}
		v.Positions = append(v.Positions, pv)

		market = market.Add(mv)
		basis = basis.Add(cost)
	}
	sort.Slice(v.Positions, func(i, j int) bool {
		return v.Positions[i].Symbol < v.Positions[j].Symbol
	})

	realized := decimal.Zero
	for _, t := range p.TradeHistory {
		realized = realized.Add(decimal.NewFromFloat(t.PnLAmount))
	}

	pl := market.Sub(basis)
	v.MarketValue = market.InexactFloat64()
	v.CostBasis = basis.InexactFloat64()
	v.UnrealizedPL = pl.InexactFloat64()
	v.UnrealizedPLPercent = percent(pl, basis)
	v.RealizedPL = realized.InexactFloat64()
	return v
}

func percent(part, whole decimal.Decimal) float64 {
	if !whole.IsPositive() {
		return 0
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
