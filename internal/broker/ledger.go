package broker

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/newthinker/skinquant/internal/core"
)

// DefaultLockPeriod is how long a purchased unit stays unsellable.
const DefaultLockPeriod = 7 * 24 * time.Hour

// PriceSource supplies the current price used to value positions.
type PriceSource interface {
	Price(symbol string) float64
}

// Ledger applies trades to a Portfolio. It holds no portfolio state and
// is safe for concurrent use; callers serialise access per portfolio.
type Ledger struct {
	now        func() time.Time
	prices     PriceSource
	lockPeriod time.Duration
	newID      func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithPriceSource sets the source for revaluation.
func WithPriceSource(ps PriceSource) Option {
	return func(l *Ledger) { l.prices = ps }
}

// WithLockPeriod overrides the per-unit lock duration.
func WithLockPeriod(d time.Duration) Option {
	return func(l *Ledger) { l.lockPeriod = d }
}

// WithIDGenerator overrides trade ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) { l.newID = fn }
}

// NewLedger creates a ledger with a UTC wall clock, a 7 day lock and
// UUID trade IDs.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		now:        func() time.Time { return time.Now().UTC() },
		lockPeriod: DefaultLockPeriod,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LockPeriod returns the configured lock duration.
func (l *Ledger) LockPeriod() time.Duration {
	return l.lockPeriod
}

// Buy debits cash, updates the weighted average cost and adds one locked
// lot per unit.
func (l *Ledger) Buy(p *Portfolio, symbol string, qty int, price float64) Outcome {
	now := l.now()
	l.refreshAt(p, now)

	if r := checkBuy(p, symbol, qty, price); r != nil {
		return rejected(*r)
	}

	cost := amount(qty, price)
	p.Cash = decimal.NewFromFloat(p.Cash).Sub(cost).InexactFloat64()

	pos, ok := p.Positions[symbol]
	if !ok {
		p.Positions[symbol] = &Position{Quantity: qty, AvgPrice: price}
	} else {
		newQty := pos.Quantity + qty
		basis := amount(pos.Quantity, pos.AvgPrice).Add(cost)
		pos.AvgPrice = basis.Div(decimal.NewFromInt(int64(newQty))).InexactFloat64()
		pos.Quantity = newQty
	}

	inv, ok := p.Inventory[symbol]
	if !ok {
		inv = &Inventory{}
		p.Inventory[symbol] = inv
	}
	for i := 0; i < qty; i++ {
		inv.Lots = append(inv.Lots, Lot{PurchasedAt: now, Price: price})
	}
	inv.TotalQuantity += qty

	trade := TradeRecord{
		ID:       l.newID(),
		Time:     now,
		Symbol:   symbol,
		Action:   core.ActionBuy,
		Quantity: qty,
		Price:    price,
		Total:    cost.InexactFloat64(),
		Cost:     cost.InexactFloat64(),
	}
	p.TradeHistory = append(p.TradeHistory, trade)
	l.Revalue(p)

	return accepted(trade)
}

// Sell removes the oldest unlocked lots, credits cash and realises PnL
// against the lot cost. The position's average price is left unchanged.
func (l *Ledger) Sell(p *Portfolio, symbol string, qty int, price float64) Outcome {
	now := l.now()
	l.refreshAt(p, now)

	if r := checkSell(p, symbol, qty, price); r != nil {
		return rejected(*r)
	}

	inv := p.Inventory[symbol]
	sold := l.takeFIFO(inv, qty, now)

	basis := decimal.Zero
	for _, lot := range sold {
		basis = basis.Add(decimal.NewFromFloat(lot.Price))
	}
	revenue := amount(qty, price)
	pnl := revenue.Sub(basis)

	p.Cash = decimal.NewFromFloat(p.Cash).Add(revenue).InexactFloat64()

	inv.TotalQuantity -= qty
	inv.AvailableQuantity -= qty
	if inv.TotalQuantity == 0 {
		delete(p.Inventory, symbol)
	}
	if pos, ok := p.Positions[symbol]; ok {
		pos.Quantity -= qty
		if pos.Quantity <= 0 {
			delete(p.Positions, symbol)
		}
	}

	trade := TradeRecord{
		ID:         l.newID(),
		Time:       now,
		Symbol:     symbol,
		Action:     core.ActionSell,
		Quantity:   qty,
		Price:      price,
		Total:      revenue.InexactFloat64(),
		Cost:       basis.InexactFloat64(),
		PnLAmount:  pnl.InexactFloat64(),
		PnLPercent: percent(pnl, basis),
	}
	p.TradeHistory = append(p.TradeHistory, trade)
	l.Revalue(p)

	return accepted(trade)
}

// Refresh recomputes available quantities against the current time.
func (l *Ledger) Refresh(p *Portfolio) {
	l.refreshAt(p, l.now())
}

func (l *Ledger) refreshAt(p *Portfolio, now time.Time) {
	for _, inv := range p.Inventory {
		available := 0
		for _, lot := range inv.Lots {
			if l.unlocked(lot, now) {
				available++
			}
		}
		inv.TotalQuantity = len(inv.Lots)
		inv.AvailableQuantity = available
	}
}

func (l *Ledger) unlocked(lot Lot, now time.Time) bool {
	return now.Sub(lot.PurchasedAt) >= l.lockPeriod
}

// takeFIFO removes qty unlocked lots in purchase order. Lots are kept
// sorted by purchase time.
func (l *Ledger) takeFIFO(inv *Inventory, qty int, now time.Time) []Lot {
	sold := make([]Lot, 0, qty)
	kept := make([]Lot, 0, len(inv.Lots)-qty)
	for _, lot := range inv.Lots {
		if len(sold) < qty && l.unlocked(lot, now) {
			sold = append(sold, lot)
			continue
		}
		kept = append(kept, lot)
	}
	inv.Lots = kept
	return sold
}

// Revalue sets TotalValue to cash plus every position at its current price.
func (l *Ledger) Revalue(p *Portfolio) {
	total := decimal.NewFromFloat(p.Cash)
	for symbol, pos := range p.Positions {
		total = total.Add(amount(pos.Quantity, l.priceOf(symbol, pos)))
	}
	p.TotalValue = total.InexactFloat64()
}

// priceOf falls back to the average cost when no current price is known.
func (l *Ledger) priceOf(symbol string, pos *Position) float64 {
	if l.prices != nil {
		if price := l.prices.Price(symbol); price > 0 {
			return price
		}
	}
	return pos.AvgPrice
}
