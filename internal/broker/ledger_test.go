package broker

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/skinquant/internal/core"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type staticPrices map[string]float64

func (s staticPrices) Price(symbol string) float64 { return s[symbol] }

func newTestLedger(clock *fakeClock, prices PriceSource) *Ledger {
	n := 0
	return NewLedger(
		WithClock(clock.Now),
		WithPriceSource(prices),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("t%d", n)
		}),
	)
}

func start() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestLedger_BuyLocksUnits(t *testing.T) {
	clock := start()
	l := newTestLedger(clock, staticPrices{"X": 10})
	p := NewPortfolio(DefaultCash, DefaultMaxItemsPerSymbol)

	out := l.Buy(p, "X", 5, 10.00)
	require.True(t, out.Accepted)
	require.NotNil(t, out.Trade)

	assert.Equal(t, 99950.0, p.Cash)
	assert.Equal(t, Position{Quantity: 5, AvgPrice: 10}, *p.Positions["X"])

	inv := p.Inventory["X"]
	assert.Equal(t, 5, inv.TotalQuantity)
	assert.Equal(t, 0, inv.AvailableQuantity)
	assert.Equal(t, 5, inv.LockedQuantity())
	require.Len(t, inv.Lots, 5)
	for _, lot := range inv.Lots {
		assert.Equal(t, 10.0, lot.Price)
		assert.Equal(t, clock.t, lot.PurchasedAt)
	}

	assert.Equal(t, core.ActionBuy, out.Trade.Action)
	assert.Equal(t, 50.0, out.Trade.Total)
	assert.Equal(t, 50.0, out.Trade.Cost)
	assert.Equal(t, "t1", out.Trade.ID)
	assert.Equal(t, 100000.0, p.TotalValue)
	assert.Len(t, p.TradeHistory, 1)
}

func TestLedger_SellLockedRejected(t *testing.T) {
	clock := start()
	l := newTestLedger(clock, nil)
	p := NewPortfolio(DefaultCash, DefaultMaxItemsPerSymbol)
	require.True(t, l.Buy(p, "X", 5, 10).Accepted)

	out := l.Sell(p, "X", 5, 12)
	require.False(t, out.Accepted)
	require.NotNil(t, out.Rejection)
	assert.Equal(t, RejectInsufficientAvailable, out.Rejection.Code)
	assert.Equal(t, 0, out.Rejection.Available)
	assert.Equal(t, 5, out.Rejection.Locked)
	assert.Contains(t, out.Rejection.Reason, "available 0, locked 5")
	assert.True(t, errors.Is(out.Rejection.Err(), core.ErrInsufficientInventory))

	assert.Equal(t, 99950.0, p.Cash)
	assert.Len(t, p.TradeHistory, 1)
}

func TestLedger_SellAfterLockRealisesFIFOPnL(t *testing.T) {
	clock := start()
	l := newTestLedger(clock, nil)
	p := NewPortfolio(DefaultCash, DefaultMaxItemsPerSymbol)
	require.True(t, l.Buy(p, "X", 5, 10).Accepted)

	clock.Advance(7 * 24 * time.Hour)
	out := l.Sell(p, "X", 5, 12)
	require.True(t, out.Accepted)

	assert.Equal(t, 100010.0, p.Cash)
	assert.Equal(t, 60.0, out.Trade.Total)
	assert.Equal(t, 50.0, out.Trade.Cost)
	assert.Equal(t, 10.0, out.Trade.PnLAmount)
	assert.Equal(t, 20.0, out.Trade.PnLPercent)
	assert.NotContains(t, p.Positions, "X")
	assert.NotContains(t, p.Inventory, "X")
	assert.Equal(t, 100010.0, p.TotalValue)
}

func TestLedger_LockBoundary(t *testing.T) {
	clock := start()
	l := newTestLedger(clock, nil)
	p := NewPortfolio(DefaultCash, DefaultMaxItemsPerSymbol)
	require.True(t, l.Buy(p, "X", 1, 10).Accepted)

	clock.Advance(7*24*time.Hour - time.Second)
	assert.False(t, l.Sell(p, "X", 1, 10).Accepted)

	clock.Advance(time.Second)
	assert.True(t, l.Sell(p, "X", 1, 10).Accepted)
}

func TestLedger_FIFOAcrossPurchases(t *testing.T) {
	clock := start()
	l := newTestLedger(clock, nil)
	p := NewPortfolio(DefaultCash, DefaultMaxItemsPerSymbol)

	require.True(t, l.Buy(p, "X", 2, 10).Accepted)
	clock.Advance(24 * time.Hour)
	require.True(t, l.Buy(p, "X", 2, 20).Accepted)
	assert.Equal(t, 15.0, p.Positions["X"].AvgPrice)

	clock.Advance(7 * 24 * time.Hour)
	out := l.Sell(p, "X", 3, 30)
	require.True(t, out.Accepted)

	// two lots at 10 then one at 20
	assert.Equal(t, 40.0, out.Trade.Cost)
	assert.Equal(t, 50.0, out.Trade.PnLAmount)
	assert.Equal(t, 125.0, out.Trade.PnLPercent)

	assert.Equal(t, 1, p.Positions["X"].Quantity)
	assert.Equal(t, 15.0, p.Positions["X"].AvgPrice, "avg price is not recomputed on sell")
	require.Len(t, p.Inventory["X"].Lots, 1)
	assert.Equal(t, 20.0, p.Inventory["X"].Lots[0].Price)
}

func TestLedger_PartialAvailability(t *testing.T) {
	clock := start()
	l := newTestLedger(clock, nil)
	p := NewPortfolio(DefaultCash, DefaultMaxItemsPerSymbol)

	require.True(t, l.Buy(p, "X", 3, 10).Accepted)
	clock.Advance(5 * 24 * time.Hour)
	require.True(t, l.Buy(p, "X", 4, 10).Accepted)
	clock.Advance(2 * 24 * time.Hour)

	out := l.Sell(p, "X", 4, 10)
	require.False(t, out.Accepted)
	assert.Equal(t, 3, out.Rejection.Available)
	assert.Equal(t, 4, out.Rejection.Locked)

	out = l.Sell(p, "X", 3, 10)
	require.True(t, out.Accepted)
	inv := p.Inventory["X"]
	assert.Equal(t, 4, inv.TotalQuantity)
	assert.Equal(t, 0, inv.AvailableQuantity)
}

func TestLedger_BuyRejections(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(p *Portfolio)
		qty    int
		price  float64
		code   RejectCode
		reason string
		err    *core.Error
	}{
		{
			name:   "zero quantity",
			qty:    0,
			price:  10,
			code:   RejectInvalidOrder,
			reason: "quantity must be positive",
			err:    core.ErrInvalidOrder,
		},
		{
			name:   "non-positive price",
			qty:    1,
			price:  0,
			code:   RejectInvalidOrder,
			reason: "price must be positive",
			err:    core.ErrInvalidOrder,
		},
		{
			name:   "inventory cap",
			setup:  func(p *Portfolio) { p.MaxItemsPerSymbol = 3 },
			qty:    4,
			price:  1,
			code:   RejectInventoryLimit,
			reason: "holding 0, max 3",
			err:    core.ErrInventoryLimit,
		},
		{
			name:   "insufficient funds",
			setup:  func(p *Portfolio) { p.Cash = 25 },
			qty:    3,
			price:  10,
			code:   RejectInsufficientFunds,
			reason: "need 30.00, available 25.00",
			err:    core.ErrInsufficientFunds,
		},
		{
			name:   "cap checked before cash",
			setup:  func(p *Portfolio) { p.Cash = 0; p.MaxItemsPerSymbol = 1 },
			qty:    2,
			price:  10,
			code:   RejectInventoryLimit,
			reason: "exceeds inventory limit",
			err:    core.ErrInventoryLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(start(), nil)
			p := NewPortfolio(DefaultCash, DefaultMaxItemsPerSymbol)
			if tt.setup != nil {
				tt.setup(p)
			}
			cash := p.Cash

			out := l.Buy(p, "X", tt.qty, tt.price)
			require.False(t, out.Accepted)
			assert.Nil(t, out.Trade)
			assert.Equal(t, tt.code, out.Rejection.Code)
			assert.Contains(t, out.Rejection.Reason, tt.reason)
			assert.True(t, errors.Is(out.Rejection.Err(), tt.err))

			assert.Equal(t, cash, p.Cash)
			assert.Empty(t, p.Positions)
			assert.Empty(t, p.TradeHistory)
		})
	}
}

func TestLedger_BuyCapHugeQuantity(t *testing.T) {
	l := newTestLedger(start(), nil)
	p := NewPortfolio(DefaultCash, DefaultMaxItemsPerSymbol)
	require.True(t, l.Buy(p, "X", 1, 10).Accepted)

	out := l.Buy(p, "X", math.MaxInt, 1e-15)
	require.False(t, out.Accepted)
	assert.Equal(t, RejectInventoryLimit, out.Rejection.Code)
	assert.Contains(t, out.Rejection.Reason, "holding 1, max 1000")
	assert.Equal(t, 1, p.Positions["X"].Quantity)
	assert.Equal(t, 1, p.Inventory["X"].TotalQuantity)
	assert.Len(t, p.TradeHistory, 1)
}

func TestLedger_SellNotHeld(t *testing.T) {
	l := newTestLedger(start(), nil)
	p := NewPortfolio(DefaultCash, DefaultMaxItemsPerSymbol)

	out := l.Sell(p, "Y", 1, 10)
	require.False(t, out.Accepted)
	assert.Equal(t, RejectNotHeld, out.Rejection.Code)
}

func TestLedger_ExactCashAllowed(t *testing.T) {
	l := newTestLedger(start(), nil)
	p := NewPortfolio(30, DefaultMaxItemsPerSymbol)

	out := l.Buy(p, "X", 3, 10)
	require.True(t, out.Accepted)
	assert.Zero(t, p.Cash)
}

func TestLedger_Conservation(t *testing.T) {
	clock := start()
	l := newTestLedger(clock, nil)
	p := NewPortfolio(DefaultCash, DefaultMaxItemsPerSymbol)

	type step struct {
		buy     bool
		qty     int
		price   float64
		advance time.Duration
	}
	steps := []step{
		{true, 4, 12.5, 0},
		{true, 3, 13.1, 48 * time.Hour},
		{false, 2, 15.2, 6 * 24 * time.Hour},
		{true, 6, 11.7, time.Hour},
		{false, 5, 9.9, 8 * 24 * time.Hour},
		{false, 10, 10, time.Hour},
		{false, 6, 10.3, 0},
	}

	total := 0
	for i, s := range steps {
		clock.Advance(s.advance)
		cash := p.Cash

		var out Outcome
		if s.buy {
			out = l.Buy(p, "X", s.qty, s.price)
		} else {
			out = l.Sell(p, "X", s.qty, s.price)
		}

		switch {
		case !out.Accepted:
			assert.Equal(t, cash, p.Cash, "step %d", i)
		case s.buy:
			total += s.qty
			assert.InDelta(t, cash-float64(s.qty)*s.price, p.Cash, 1e-9, "step %d", i)
		default:
			total -= s.qty
			assert.InDelta(t, cash+float64(s.qty)*s.price, p.Cash, 1e-9, "step %d", i)
		}

		assert.Equal(t, total, p.Quantity("X"), "step %d", i)
		if inv, ok := p.Inventory["X"]; ok {
			assert.LessOrEqual(t, inv.AvailableQuantity, inv.TotalQuantity)
			assert.Equal(t, inv.TotalQuantity, inv.AvailableQuantity+inv.LockedQuantity())
		}
		assert.GreaterOrEqual(t, p.Cash, 0.0)
	}
	assert.Zero(t, total)
}

func TestLedger_RevalueUsesCurrentPrice(t *testing.T) {
	prices := staticPrices{"X": 10}
	l := newTestLedger(start(), prices)
	p := NewPortfolio(DefaultCash, DefaultMaxItemsPerSymbol)
	require.True(t, l.Buy(p, "X", 10, 10).Accepted)

	prices["X"] = 14
	v := l.Value(p)

	assert.Equal(t, 100040.0, v.TotalValue)
	assert.Equal(t, 140.0, v.MarketValue)
	assert.Equal(t, 100.0, v.CostBasis)
	assert.Equal(t, 40.0, v.UnrealizedPL)
	assert.Equal(t, 40.0, v.UnrealizedPLPercent)
	require.Len(t, v.Positions, 1)
	assert.Equal(t, 14.0, v.Positions[0].CurrentPrice)
	assert.Equal(t, 10, v.Positions[0].Locked)
}

func TestLedger_ValueEmptyPortfolio(t *testing.T) {
	l := newTestLedger(start(), nil)
	v := l.Value(NewPortfolio(DefaultCash, 0))

	assert.Equal(t, DefaultCash, v.TotalValue)
	assert.Zero(t, v.UnrealizedPLPercent)
	assert.Empty(t, v.Positions)
}
