// internal/storage/signal/memory_test.go
package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/skinquant/internal/core"
)

const redline = "AK-47 | Redline"

func TestMemoryStore_SaveAndList(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	id, err := store.Save(ctx, core.Signal{
		Symbol:      redline,
		Action:      core.ActionBuy,
		Confidence:  0.5,
		Strategy:    "trend_vote",
		GeneratedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	signals, err := store.List(ctx, ListFilter{Symbol: redline})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, id, signals[0].ID)
}

func TestMemoryStore_KeepsExistingID(t *testing.T) {
	store := NewMemoryStore(10)
	id, _ := store.Save(context.Background(), core.Signal{ID: "fixed"})
	assert.Equal(t, "fixed", id)
}

func TestMemoryStore_ListByStrategy(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	require.NoError(t, store.SaveAll(ctx, []core.Signal{
		{Symbol: redline, Strategy: "trend_vote", GeneratedAt: time.Now()},
		{Symbol: "AWP | Medusa", Strategy: "ma_position", GeneratedAt: time.Now()},
	}))

	signals, _ := store.List(ctx, ListFilter{Strategy: "trend_vote"})
	assert.Len(t, signals, 1)
}

func TestMemoryStore_ListNewestFirstWithPaging(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		store.Save(ctx, core.Signal{ID: string(rune('a' + i)), GeneratedAt: base.AddDate(0, 0, i)})
	}

	signals, _ := store.List(ctx, ListFilter{Offset: 1, Limit: 2})
	require.Len(t, signals, 2)
	assert.Equal(t, "d", signals[0].ID)
	assert.Equal(t, "c", signals[1].ID)

	signals, _ = store.List(ctx, ListFilter{Offset: 10})
	assert.NotNil(t, signals)
	assert.Empty(t, signals)
}

func TestMemoryStore_ListByTimeRange(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	now := time.Now()
	store.Save(ctx, core.Signal{Symbol: redline, GeneratedAt: now.Add(-2 * time.Hour)})
	store.Save(ctx, core.Signal{Symbol: "AWP | Medusa", GeneratedAt: now})

	signals, _ := store.List(ctx, ListFilter{From: now.Add(-1 * time.Hour)})
	assert.Len(t, signals, 1)

	count, _ := store.Count(ctx, ListFilter{To: now.Add(-1 * time.Hour)})
	assert.Equal(t, 1, count)
}

func TestMemoryStore_MaxSize(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	store.Save(ctx, core.Signal{Symbol: "A", GeneratedAt: time.Now()})
	store.Save(ctx, core.Signal{Symbol: "B", GeneratedAt: time.Now()})
	store.Save(ctx, core.Signal{Symbol: "C", GeneratedAt: time.Now()})

	signals, _ := store.List(ctx, ListFilter{})
	assert.Len(t, signals, 2)
	count, _ := store.Count(ctx, ListFilter{Symbol: "A"})
	assert.Zero(t, count)
}

func TestMemoryStore_GetByID(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	id, _ := store.Save(ctx, core.Signal{Symbol: redline, Action: core.ActionSell})
	sig, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.ActionSell, sig.Action)

	_, err = store.GetByID(ctx, "missing")
	assert.True(t, errors.Is(err, core.ErrNoData))
}
