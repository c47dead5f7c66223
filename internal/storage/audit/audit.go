// Package audit is the append-only trade and recharge log used for
// reporting. The ledger does not depend on it for correctness.
package audit

import (
	"context"
	"time"

	"github.com/newthinker/skinquant/internal/broker"
	"github.com/newthinker/skinquant/internal/core"
)

// Stats summarises a user's trading.
type Stats struct {
	TotalTrades     int     `json:"total_trades" db:"total_trades"`
	BuyTrades       int     `json:"buy_trades" db:"buy_trades"`
	SellTrades      int     `json:"sell_trades" db:"sell_trades"`
	ProfitableSells int     `json:"profitable_trades" db:"profitable_trades"`
	TotalPnL        float64 `json:"total_pnl" db:"total_pnl"`
	WinRate         float64 `json:"win_rate"`
}

// withWinRate sets WinRate as a percentage of sells, 0 without sells.
func (s Stats) withWinRate() Stats {
	s.WinRate = 0
	if s.SellTrades > 0 {
		s.WinRate = float64(s.ProfitableSells) / float64(s.SellTrades) * 100
	}
	return s
}

// ComputeStats derives Stats from trade records.
func ComputeStats(trades []broker.TradeRecord) Stats {
	var s Stats
	for _, t := range trades {
		s.TotalTrades++
		switch t.Action {
		case core.ActionBuy:
			s.BuyTrades++
		case core.ActionSell:
			s.SellTrades++
			s.TotalPnL += t.PnLAmount
			if t.PnLAmount > 0 {
				s.ProfitableSells++
			}
		}
	}
	return s.withWinRate()
}

// RechargeKind is the product being paid for.
type RechargeKind string

const (
	RechargeBasic   RechargeKind = "basic"
	RechargePremium RechargeKind = "premium"
)

// RechargeStatus tracks a recharge order.
type RechargeStatus string

const (
	RechargePending   RechargeStatus = "pending"
	RechargeCompleted RechargeStatus = "completed"
)

// Recharge is a payment order. Payment is confirmed manually.
type Recharge struct {
	ID          string         `json:"id" db:"id"`
	UserID      string         `json:"user_id" db:"user_id"`
	Amount      float64        `json:"amount" db:"amount"`
	Kind        RechargeKind   `json:"type" db:"kind"`
	Status      RechargeStatus `json:"status" db:"status"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at" db:"expires_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
}

// Expired reports whether the order can no longer be completed at now.
func (r *Recharge) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Membership levels.
const (
	LevelBasic   = "basic"
	LevelPremium = "premium"
)

// Membership is a user's subscription state.
type Membership struct {
	UserID        string    `json:"user_id" db:"user_id"`
	Level         string    `json:"type" db:"level"`
	Active        bool      `json:"is_active" db:"active"`
	StartedAt     time.Time `json:"start_date" db:"started_at"`
	ExpiresAt     time.Time `json:"end_date" db:"expires_at"`
	DaysRemaining int       `json:"days_remaining" db:"-"`
}

// basicMembership is reported for users who never upgraded.
func basicMembership(userID string) *Membership {
	return &Membership{UserID: userID, Level: LevelBasic}
}

// settle deactivates m if it expired at now and fills DaysRemaining. It
// reports whether the active flag changed.
func (m *Membership) settle(now time.Time) bool {
	if m.Active && !m.ExpiresAt.After(now) {
		m.Active = false
		m.DaysRemaining = 0
		return true
	}
	if m.Active {
		m.DaysRemaining = int(m.ExpiresAt.Sub(now) / (24 * time.Hour))
	}
	return false
}

// Log records trades, recharges and memberships per user.
type Log interface {
	RecordTrade(ctx context.Context, userID string, t broker.TradeRecord) error
	// Trades returns up to limit records, newest first; limit <= 0 means all.
	Trades(ctx context.Context, userID string, limit int) ([]broker.TradeRecord, error)
	Stats(ctx context.Context, userID string) (Stats, error)

	CreateRecharge(ctx context.Context, r Recharge) error
	// Recharge returns core.ErrNoData for unknown ids.
	Recharge(ctx context.Context, userID, id string) (*Recharge, error)
	// MarkCompleted moves a pending recharge to completed; it returns
	// core.ErrRechargeInvalid when the order is no longer pending.
	MarkCompleted(ctx context.Context, userID, id string, at time.Time) error
	// Recharges lists orders newest first.
	Recharges(ctx context.Context, userID string) ([]Recharge, error)

	SetMembership(ctx context.Context, m Membership) error
	// Membership returns the current state, deactivating it when expired.
	Membership(ctx context.Context, userID string, now time.Time) (*Membership, error)
}
