// internal/api/job/store_test.go
package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/skinquant/internal/core"
)

func waitFor(t *testing.T, s *Store, id string, want Status) *Job {
	t.Helper()
	var got *Job
	require.Eventually(t, func() bool {
		j, err := s.Get(id)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestStore_SubmitCompletes(t *testing.T) {
	store := NewStore(100, time.Hour)

	j := store.Submit(context.Background(), "backtest", func(ctx context.Context, progress func(int)) (any, error) {
		progress(50)
		return "done", nil
	})
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, StatusPending, j.Status)

	got := waitFor(t, store, j.ID, StatusComplete)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "done", got.Result)
	assert.Nil(t, got.Error)
}

func TestStore_SubmitFails(t *testing.T) {
	store := NewStore(100, time.Hour)

	j := store.Submit(context.Background(), "backtest", func(ctx context.Context, _ func(int)) (any, error) {
		return nil, core.Errorf(core.ErrDataUnavailable, "upstream 503")
	})
	got := waitFor(t, store, j.ID, StatusFailed)
	require.NotNil(t, got.Error)
	assert.Equal(t, "DATA_UNAVAILABLE", got.Error.Code)

	j = store.Submit(context.Background(), "backtest", func(ctx context.Context, _ func(int)) (any, error) {
		return nil, errors.New("boom")
	})
	got = waitFor(t, store, j.ID, StatusFailed)
	assert.Equal(t, "JOB_FAILED", got.Error.Code)
}

func TestStore_PanicFailsJob(t *testing.T) {
	store := NewStore(100, time.Hour)

	j := store.Submit(context.Background(), "optimization", func(ctx context.Context, _ func(int)) (any, error) {
		var grid []int
		return grid[3], nil
	})
	got := waitFor(t, store, j.ID, StatusFailed)
	require.NotNil(t, got.Error)
	assert.Equal(t, "JOB_FAILED", got.Error.Code)
	assert.Contains(t, got.Error.Error(), "job panicked")

	j = store.Submit(context.Background(), "optimization", func(ctx context.Context, _ func(int)) (any, error) {
		return "ok", nil
	})
	waitFor(t, store, j.ID, StatusComplete)
}

func TestStore_Cancel(t *testing.T) {
	store := NewStore(100, time.Hour)
	started := make(chan struct{})
	stopped := make(chan struct{})

	j := store.Submit(context.Background(), "optimization", func(ctx context.Context, _ func(int)) (any, error) {
		close(started)
		<-ctx.Done()
		close(stopped)
		return nil, ctx.Err()
	})
	<-started

	got, err := store.Cancel(j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("job context was not cancelled")
	}
	assert.Equal(t, StatusCancelled, waitFor(t, store, j.ID, StatusCancelled).Status)

	_, err = store.Cancel("missing")
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestStore_CancelFinishedIsNoop(t *testing.T) {
	store := NewStore(100, time.Hour)
	j := store.Submit(context.Background(), "backtest", func(context.Context, func(int)) (any, error) {
		return 1, nil
	})
	waitFor(t, store, j.ID, StatusComplete)

	got, err := store.Cancel(j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
}

func TestStore_Update(t *testing.T) {
	store := NewStore(100, time.Hour)
	block := make(chan struct{})
	defer close(block)
	j := store.Submit(context.Background(), "backtest", func(ctx context.Context, _ func(int)) (any, error) {
		<-block
		return nil, nil
	})

	require.NoError(t, store.Update(j.ID, func(j *Job) { j.Progress = 42 }))
	got, err := store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, got.Progress)

	assert.ErrorIs(t, store.Update("nope", func(*Job) {}), core.ErrJobNotFound)
}

func TestStore_MaxSizeEvictsFinishedFirst(t *testing.T) {
	store := NewStore(2, time.Hour)
	block := make(chan struct{})
	defer close(block)

	running := store.Submit(context.Background(), "optimization", func(ctx context.Context, _ func(int)) (any, error) {
		<-block
		return nil, nil
	})
	finished := store.Submit(context.Background(), "backtest", func(context.Context, func(int)) (any, error) {
		return nil, nil
	})
	waitFor(t, store, finished.ID, StatusComplete)

	store.Submit(context.Background(), "backtest", func(context.Context, func(int)) (any, error) {
		return nil, nil
	})

	_, err := store.Get(finished.ID)
	assert.ErrorIs(t, err, core.ErrJobNotFound)
	_, err = store.Get(running.ID)
	assert.NoError(t, err)
}

func TestStore_TTLExpiresFinishedJobs(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	store := NewStore(10, time.Hour, WithClock(clock))

	j := store.Submit(context.Background(), "backtest", func(context.Context, func(int)) (any, error) {
		return nil, nil
	})
	waitFor(t, store, j.ID, StatusComplete)

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	_, err := store.Get(j.ID)
	assert.ErrorIs(t, err, core.ErrJobNotFound)
	assert.Empty(t, store.List())
}

func TestStore_ActiveFunc(t *testing.T) {
	var mu sync.Mutex
	counts := map[string]int{}
	store := NewStore(10, time.Hour, WithActiveFunc(func(jobType string, n int) {
		mu.Lock()
		defer mu.Unlock()
		counts[jobType] = n
	}))

	block := make(chan struct{})
	j := store.Submit(context.Background(), "optimization", func(ctx context.Context, _ func(int)) (any, error) {
		<-block
		return nil, nil
	})
	assert.Equal(t, 1, store.Active("optimization"))

	close(block)
	waitFor(t, store, j.ID, StatusComplete)
	assert.Equal(t, 0, store.Active("optimization"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, counts["optimization"])
}

func TestStore_List(t *testing.T) {
	store := NewStore(100, time.Hour)
	noop := func(context.Context, func(int)) (any, error) { return nil, nil }
	a := store.Submit(context.Background(), "backtest", noop)
	b := store.Submit(context.Background(), "optimization", noop)

	jobs := store.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, a.ID, jobs[0].ID)
	assert.Equal(t, b.ID, jobs[1].ID)
}

func TestStatus_Done(t *testing.T) {
	assert.False(t, StatusPending.Done())
	assert.False(t, StatusRunning.Done())
	assert.True(t, StatusComplete.Done())
	assert.True(t, StatusFailed.Done())
	assert.True(t, StatusCancelled.Done())
}
