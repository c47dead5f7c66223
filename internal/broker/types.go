// Package broker implements the simulated trading ledger: positions with a
// weighted average cost, per-lot inventory under a trading lock, cash and
// an append-only trade history.
package broker

import (
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/skinquant/internal/core"
)

// Portfolio defaults applied when an account has no stored state.
const (
	DefaultCash              = 100000.0
	DefaultMaxItemsPerSymbol = 1000
)

// Position is a holding with a running weighted average cost. AvgPrice is
// never recomputed on sells; realised PnL uses lot cost instead.
type Position struct {
	Quantity int     `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
}

// Lot is one purchased unit.
type Lot struct {
	PurchasedAt time.Time `json:"purchase_date"`
	Price       float64   `json:"purchase_price"`
}

// Inventory tracks every unit of a symbol. AvailableQuantity is derived
// from the lots on each refresh; the remainder are locked.
type Inventory struct {
	TotalQuantity     int   `json:"total_quantity"`
	AvailableQuantity int   `json:"available_quantity"`
	Lots              []Lot `json:"lots"`
}

// LockedQuantity is the number of units still inside the lock period.
func (inv *Inventory) LockedQuantity() int {
	return inv.TotalQuantity - inv.AvailableQuantity
}

// TradeRecord is an immutable trade log entry. Cost is the FIFO lot cost
// on sells and the amount paid on buys; PnL fields are set on sells only.
type TradeRecord struct {
	ID         string      `json:"id"`
	Time       time.Time   `json:"date"`
	Symbol     string      `json:"symbol"`
	Action     core.Action `json:"action"`
	Quantity   int         `json:"quantity"`
	Price      float64     `json:"price"`
	Total      float64     `json:"total"`
	Cost       float64     `json:"cost"`
	PnLAmount  float64     `json:"pnl_amount,omitempty"`
	PnLPercent float64     `json:"pnl_percent,omitempty"`
}

// Portfolio is the per-user aggregate mutated by the Ledger.
type Portfolio struct {
	Cash              float64               `json:"cash"`
	TotalValue        float64               `json:"total_value"`
	Positions         map[string]*Position  `json:"positions"`
	Inventory         map[string]*Inventory `json:"inventory"`
	TradeHistory      []TradeRecord         `json:"trade_history"`
	MaxItemsPerSymbol int                   `json:"max_items_per_symbol"`
}

// NewPortfolio returns the starting portfolio for a new account.
func NewPortfolio(cash float64, maxItems int) *Portfolio {
	if maxItems <= 0 {
		maxItems = DefaultMaxItemsPerSymbol
	}
	return &Portfolio{
		Cash:              cash,
		TotalValue:        cash,
		Positions:         make(map[string]*Position),
		Inventory:         make(map[string]*Inventory),
		TradeHistory:      []TradeRecord{},
		MaxItemsPerSymbol: maxItems,
	}
}

// Normalize validates a decoded portfolio and repairs structural gaps:
// nil collections are initialised, lots are ordered and inventory totals
// are recomputed from them.
func (p *Portfolio) Normalize() error {
	if p.Cash < 0 {
		return fmt.Errorf("negative cash %.2f", p.Cash)
	}
	if p.Positions == nil {
		p.Positions = make(map[string]*Position)
	}
	if p.Inventory == nil {
		p.Inventory = make(map[string]*Inventory)
	}
	if p.TradeHistory == nil {
		p.TradeHistory = []TradeRecord{}
	}
	if p.MaxItemsPerSymbol <= 0 {
		p.MaxItemsPerSymbol = DefaultMaxItemsPerSymbol
	}

	for symbol, pos := range p.Positions {
		if pos == nil || pos.Quantity == 0 {
			delete(p.Positions, symbol)
			continue
		}
		if pos.Quantity < 0 {
			return fmt.Errorf("position %q has negative quantity %d", symbol, pos.Quantity)
		}
	}
	for symbol, inv := range p.Inventory {
		if inv == nil {
			delete(p.Inventory, symbol)
			continue
		}
		sort.SliceStable(inv.Lots, func(i, j int) bool {
			return inv.Lots[i].PurchasedAt.Before(inv.Lots[j].PurchasedAt)
		})
		inv.TotalQuantity = len(inv.Lots)
		if inv.AvailableQuantity > inv.TotalQuantity || inv.AvailableQuantity < 0 {
			inv.AvailableQuantity = 0
		}
	}
	return nil
}

// Clone returns a deep copy.
func (p *Portfolio) Clone() *Portfolio {
	c := &Portfolio{
		Cash:              p.Cash,
		TotalValue:        p.TotalValue,
		Positions:         make(map[string]*Position, len(p.Positions)),
		Inventory:         make(map[string]*Inventory, len(p.Inventory)),
		TradeHistory:      append([]TradeRecord{}, p.TradeHistory...),
		MaxItemsPerSymbol: p.MaxItemsPerSymbol,
	}
	for s, pos := range p.Positions {
		cp := *pos
		c.Positions[s] = &cp
	}
	for s, inv := range p.Inventory {
		ci := *inv
		ci.Lots = append([]Lot{}, inv.Lots...)
		c.Inventory[s] = &ci
	}
	return c
}

// Quantity returns the total units held of symbol.
func (p *Portfolio) Quantity(symbol string) int {
	if inv, ok := p.Inventory[symbol]; ok {
		return inv.TotalQuantity
	}
	return 0
}

// RejectCode classifies an expected ledger rejection.
type RejectCode string

const (
	RejectInvalidOrder          RejectCode = "invalid_order"
	RejectInventoryLimit        RejectCode = "inventory_limit_exceeded"
	RejectInsufficientFunds     RejectCode = "insufficient_funds"
	RejectNotHeld               RejectCode = "not_held"
	RejectInsufficientAvailable RejectCode = "insufficient_available_inventory"
)

// Rejection explains why a trade was refused, including the limiting
// quantities.
type Rejection struct {
	Code      RejectCode `json:"code"`
	Reason    string     `json:"reason"`
	Held      int        `json:"held,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Needed    float64    `json:"needed,omitempty"`
	Cash      float64    `json:"cash,omitempty"`
	Available int        `json:"available"`
	Locked    int        `json:"locked"`
}

func (r *Rejection) Error() string {
	return r.Reason
}

// Err maps the rejection onto the shared error codes.
func (r *Rejection) Err() error {
	base := core.ErrInvalidOrder
	switch r.Code {
	case RejectInventoryLimit:
		base = core.ErrInventoryLimit
	case RejectInsufficientFunds:
		base = core.ErrInsufficientFunds
	case RejectNotHeld, RejectInsufficientAvailable:
		base = core.ErrInsufficientInventory
	}
	return core.WrapError(base, r)
}

// Outcome is the result of a Buy or Sell. Exactly one of Trade and
// Rejection is set. Durable is false until the portfolio is persisted.
type Outcome struct {
	Accepted  bool         `json:"accepted"`
	Trade     *TradeRecord `json:"trade,omitempty"`
	Rejection *Rejection   `json:"rejection,omitempty"`
	Durable   bool         `json:"durable"`
	// DefaultPrice marks a market order filled at the fallback price
	// because no quote was available.
	DefaultPrice bool `json:"default_price,omitempty"`
}

func accepted(t TradeRecord) Outcome {
	return Outcome{Accepted: true, Trade: &t}
}

func rejected(r Rejection) Outcome {
	return Outcome{Rejection: &r}
}

// Err returns nil for accepted trades and the mapped rejection otherwise.
func (o Outcome) Err() error {
	if o.Accepted || o.Rejection == nil {
		return nil
	}
	return o.Rejection.Err()
}
