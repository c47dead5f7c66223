package broker

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// checkBuy validates a buy against the portfolio. The inventory cap is
// checked before cash so the caller learns about the hard limit first.
func checkBuy(p *Portfolio, symbol string, qty int, price float64) *Rejection {
	if r := checkOrder(symbol, qty, price); r != nil {
		return r
	}

	held := p.Quantity(symbol)
	if qty > p.MaxItemsPerSymbol-held {
		return &Rejection{
			Code:   RejectInventoryLimit,
			Reason: fmt.Sprintf("exceeds inventory limit: holding %d, max %d", held, p.MaxItemsPerSymbol),
			Held:   held,
			Limit:  p.MaxItemsPerSymbol,
		}
	}

	need := amount(qty, price)
	if decimal.NewFromFloat(p.Cash).LessThan(need) {
		return &Rejection{
			Code:   RejectInsufficientFunds,
			Reason: fmt.Sprintf("insufficient funds: need %s, available %.2f", need.StringFixed(2), p.Cash),
			Needed: need.InexactFloat64(),
			Cash:   p.Cash,
		}
	}
	return nil
}

// checkSell validates a sell against refreshed inventory.
func checkSell(p *Portfolio, symbol string, qty int, price float64) *Rejection {
	if r := checkOrder(symbol, qty, price); r != nil {
		return r
	}

	inv, ok := p.Inventory[symbol]
	if !ok || inv.TotalQuantity == 0 {
		return &Rejection{
			Code:   RejectNotHeld,
			Reason: fmt.Sprintf("not held: %s", symbol),
		}
	}
	if inv.AvailableQuantity < qty {
		return &Rejection{
			Code: RejectInsufficientAvailable,
			Reason: fmt.Sprintf("insufficient available inventory: available %d, locked %d",
				inv.AvailableQuantity, inv.LockedQuantity()),
			Available: inv.AvailableQuantity,
			Locked:    inv.LockedQuantity(),
		}
	}
	return nil
}

func checkOrder(symbol string, qty int, price float64) *Rejection {
	switch {
	case strings.TrimSpace(symbol) == "":
		return &Rejection{Code: RejectInvalidOrder, Reason: "symbol is required"}
	case qty <= 0:
		return &Rejection{Code: RejectInvalidOrder, Reason: fmt.Sprintf("quantity must be positive, got %d", qty)}
	case price <= 0:
		return &Rejection{Code: RejectInvalidOrder, Reason: fmt.Sprintf("price must be positive, got %.2f", price)}
	}
	return nil
}

// amount is qty × price in exact decimal arithmetic.
func amount(qty int, price float64) decimal.Decimal {
	return decimal.NewFromInt(int64(qty)).Mul(decimal.NewFromFloat(price))
}
