// internal/storage/signal/memory.go
package signal

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/newthinker/skinquant/internal/core"
)

// MemoryStore is an in-memory signal store.
type MemoryStore struct {
	signals []core.Signal
	maxSize int
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store with max capacity.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryStore{
		signals: make([]core.Signal, 0, maxSize),
		maxSize: maxSize,
	}
}

// Save adds a signal to the store.
func (m *MemoryStore) Save(ctx context.Context, signal core.Signal) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(signal), nil
}

// SaveAll adds signals under one lock.
func (m *MemoryStore) SaveAll(ctx context.Context, signals []core.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range signals {
		m.add(s)
	}
	return nil
}

func (m *MemoryStore) add(signal core.Signal) string {
	if signal.ID == "" {
		signal.ID = uuid.NewString()
	}
	m.signals = append(m.signals, signal)

	// Trim if over capacity (remove oldest)
	if len(m.signals) > m.maxSize {
		m.signals = m.signals[len(m.signals)-m.maxSize:]
	}
	return signal.ID
}

// GetByID retrieves a signal by ID.
func (m *MemoryStore) GetByID(ctx context.Context, id string) (*core.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.signals {
		if m.signals[i].ID == id {
			sig := m.signals[i]
			return &sig, nil
		}
	}
	return nil, core.WrapError(core.ErrNoData, fmt.Errorf("signal %s not found", id))
}

// List returns signals matching the filter, newest first.
func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]core.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []core.Signal{}
	for _, sig := range m.signals {
		if m.matches(sig, filter) {
			result = append(result, sig)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].GeneratedAt.After(result[j].GeneratedAt)
	})

	// Apply offset and limit
	if filter.Offset >= len(result) {
		return []core.Signal{}, nil
	}
	if filter.Offset > 0 {
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Count returns the count of matching signals.
func (m *MemoryStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, sig := range m.signals {
		if m.matches(sig, filter) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) matches(sig core.Signal, filter ListFilter) bool {
	if filter.Symbol != "" && sig.Symbol != filter.Symbol {
		return false
	}
	if filter.Strategy != "" && sig.Strategy != filter.Strategy {
		return false
	}
	if filter.Action != "" && sig.Action != filter.Action {
		return false
	}
	if !filter.From.IsZero() && sig.GeneratedAt.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && sig.GeneratedAt.After(filter.To) {
		return false
	}
	return true
}
