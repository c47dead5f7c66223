package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/skinquant/internal/broker"
	"github.com/newthinker/skinquant/internal/core"
)

// MemoryLog keeps the audit trail in memory.
type MemoryLog struct {
	mu          sync.RWMutex
	trades      map[string][]broker.TradeRecord
	recharges   map[string]map[string]*Recharge
	memberships map[string]Membership
}

// NewMemoryLog creates an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		trades:      make(map[string][]broker.TradeRecord),
		recharges:   make(map[string]map[string]*Recharge),
		memberships: make(map[string]Membership),
	}
}

func (m *MemoryLog) RecordTrade(ctx context.Context, userID string, t broker.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[userID] = append(m.trades[userID], t)
	return nil
}

func (m *MemoryLog) Trades(ctx context.Context, userID string, limit int) ([]broker.TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.trades[userID]
	out := make([]broker.TradeRecord, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (m *MemoryLog) Stats(ctx context.Context, userID string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ComputeStats(m.trades[userID]), nil
}

func (m *MemoryLog) CreateRecharge(ctx context.Context, r Recharge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.recharges[r.UserID]
	if !ok {
		byID = make(map[string]*Recharge)
		m.recharges[r.UserID] = byID
	}
	if _, dup := byID[r.ID]; dup {
		return fmt.Errorf("recharge %s already exists", r.ID)
	}
	cp := r
	byID[r.ID] = &cp
	return nil
}

func (m *MemoryLog) Recharge(ctx context.Context, userID, id string) (*Recharge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recharges[userID][id]
	if !ok {
		return nil, rechargeNotFound(id)
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryLog) MarkCompleted(ctx context.Context, userID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recharges[userID][id]
	if !ok {
		return rechargeNotFound(id)
	}
	if r.Status != RechargePending {
		return alreadyProcessed(id)
	}
	r.Status = RechargeCompleted
	r.CompletedAt = &at
	return nil
}

func (m *MemoryLog) Recharges(ctx context.Context, userID string) ([]Recharge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Recharge, 0, len(m.recharges[userID]))
	for _, r := range m.recharges[userID] {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryLog) SetMembership(ctx context.Context, ms Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberships[ms.UserID] = ms
	return nil
}

func (m *MemoryLog) Membership(ctx context.Context, userID string, now time.Time) (*Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.memberships[userID]
	if !ok {
		return basicMembership(userID), nil
	}
	if ms.settle(now) {
		m.memberships[userID] = ms
	}
	return &ms, nil
}

func rechargeNotFound(id string) error {
	return core.WrapError(core.ErrNoData, fmt.Errorf("recharge %s not found", id))
}

func alreadyProcessed(id string) error {
	return core.WrapError(core.ErrRechargeInvalid, fmt.Errorf("recharge %s was already processed", id))
}
