package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/skinquant/internal/broker"
	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/storage/audit"
)

const day = 24 * time.Hour

// CreateRecharge opens a pending order that expires after the configured
// number of days.
func (m *Manager) CreateRecharge(ctx context.Context, userID string, amount float64, kind audit.RechargeKind) (*audit.Recharge, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	if err := m.requireAudit(); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, core.Errorf(core.ErrRechargeInvalid, "amount must be positive, got %.2f", amount)
	}
	if kind != audit.RechargeBasic && kind != audit.RechargePremium {
		return nil, core.Errorf(core.ErrRechargeInvalid, "unknown recharge type %q", kind)
	}

	now := m.now()
	r := audit.Recharge{
		ID:        m.newID(),
		UserID:    userID,
		Amount:    amount,
		Kind:      kind,
		Status:    audit.RechargePending,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(m.cfg.RechargeExpiryDays) * day),
	}
	if err := m.audit.CreateRecharge(ctx, r); err != nil {
		return nil, err
	}
	return &r, nil
}

// RechargeResult reports a completed recharge.
type RechargeResult struct {
	Recharge   *audit.Recharge   `json:"recharge"`
	Membership *audit.Membership `json:"membership,omitempty"`
	Credited   float64           `json:"credited"`
}

// CompleteRecharge confirms payment. Premium orders start a membership and
// credit the premium bonus to the portfolio. The order is marked completed
// before the bonus is credited.
func (m *Manager) CompleteRecharge(ctx context.Context, userID, id string) (*RechargeResult, error) {
	if err := m.requireAudit(); err != nil {
		return nil, err
	}
	unlock := m.locks.Lock(userID)
	defer unlock()

	r, err := m.audit.Recharge(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	now := m.now()
	if r.Status != audit.RechargePending {
		return nil, core.Errorf(core.ErrRechargeInvalid, "recharge %s was already processed", id)
	}
	if r.Expired(now) {
		return nil, core.Errorf(core.ErrRechargeInvalid, "recharge %s expired at %s", id, r.ExpiresAt.Format(time.RFC3339))
	}
	if err := m.audit.MarkCompleted(ctx, userID, id, now); err != nil {
		return nil, err
	}
	r.Status = audit.RechargeCompleted
	r.CompletedAt = &now

	res := &RechargeResult{Recharge: r}
	if r.Kind != audit.RechargePremium {
		return res, nil
	}

	ms := audit.Membership{
		UserID:    userID,
		Level:     audit.LevelPremium,
		Active:    true,
		StartedAt: now,
		ExpiresAt: now.Add(time.Duration(m.cfg.PremiumDays) * day),
	}
	if err := m.audit.SetMembership(ctx, ms); err != nil {
		return nil, err
	}
	ms.DaysRemaining = m.cfg.PremiumDays
	res.Membership = &ms

	bonus := m.cfg.PremiumBonus
	_, err = m.mutate(ctx, userID, func(p *broker.Portfolio) bool {
		p.Cash += bonus
		m.ledger.Revalue(p)
		return true
	})
	if err != nil {
		m.logger.Error("premium bonus not credited", zap.String("user", userID), zap.String("recharge", id), zap.Error(err))
		return res, err
	}
	res.Credited = bonus
	return res, nil
}

// Recharges lists the user's orders, newest first.
func (m *Manager) Recharges(ctx context.Context, userID string) ([]audit.Recharge, error) {
	if err := m.requireAudit(); err != nil {
		return nil, err
	}
	return m.audit.Recharges(ctx, userID)
}

// Membership returns the user's membership, expiring it lazily.
func (m *Manager) Membership(ctx context.Context, userID string) (*audit.Membership, error) {
	if err := m.requireAudit(); err != nil {
		return nil, err
	}
	return m.audit.Membership(ctx, userID, m.now())
}
