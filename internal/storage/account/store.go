// Package account persists one Portfolio per user with an optimistic
// version counter.
package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/skinquant/internal/broker"
	"github.com/newthinker/skinquant/internal/core"
)

// Record is a stored portfolio and the version it was saved at.
type Record struct {
	UserID    string
	Version   int64
	Portfolio *broker.Portfolio
	UpdatedAt time.Time
}

// Store loads and saves portfolios.
type Store interface {
	// Load returns core.ErrNoData when the user has no stored account.
	Load(ctx context.Context, userID string) (*Record, error)
	// Save writes p if the stored version equals expected (0 creates) and
	// returns the new version, or core.ErrVersionConflict.
	Save(ctx context.Context, userID string, p *broker.Portfolio, expected int64) (int64, error)
}

// MemoryStore keeps deep copies of portfolios in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Load(ctx context.Context, userID string) (*Record, error) {
	m.mu.RLock()
	rec, ok := m.records[userID]
	m.mu.RUnlock()
	if !ok {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no account for %q", userID))
	}
	rec.Portfolio = rec.Portfolio.Clone()
	return &rec, nil
}

func (m *MemoryStore) Save(ctx context.Context, userID string, p *broker.Portfolio, expected int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.records[userID].Version
	if current != expected {
		return 0, conflict(userID, expected, current)
	}
	next := expected + 1
	m.records[userID] = Record{UserID: userID, Version: next, Portfolio: p.Clone(), UpdatedAt: m.now()}
	return next, nil
}

func conflict(userID string, expected, current int64) error {
	return core.WrapError(core.ErrVersionConflict,
		fmt.Errorf("account %q: expected version %d, stored %d", userID, expected, current))
}

// decodeFailed marks stored state that cannot be turned back into a
// valid portfolio.
func decodeFailed(userID string, err error) error {
	return core.WrapError(core.ErrPersistenceFailed, fmt.Errorf("account %q: %w", userID, err))
}
