// internal/api/job/store.go
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newthinker/skinquant/internal/core"
)

// Status represents job status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Done reports whether the status is terminal.
func (s Status) Done() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusCancelled
}

var errJobFailed = &core.Error{Code: "JOB_FAILED", Message: "job failed"}

// Job represents an async job.
type Job struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Status    Status      `json:"status"`
	Progress  int         `json:"progress"`
	Result    any         `json:"result,omitempty"`
	Error     *core.Error `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	cancel context.CancelFunc
}

// Func is the body of a job. It reports progress in percent.
type Func func(ctx context.Context, progress func(percent int)) (any, error)

// ActiveFunc is told the number of unfinished jobs of a type whenever it
// changes.
type ActiveFunc func(jobType string, active int)

// Store runs and tracks async jobs. Finished jobs expire after the TTL;
// at capacity the oldest job is evicted, finished ones first.
type Store struct {
	jobs     map[string]*Job
	order    []string
	maxSize  int
	ttl      time.Duration
	mu       sync.RWMutex
	now      func() time.Time
	onActive ActiveFunc
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithActiveFunc registers a callback for active job counts.
func WithActiveFunc(fn ActiveFunc) Option {
	return func(s *Store) { s.onActive = fn }
}

// NewStore creates a new job store.
func NewStore(maxSize int, ttl time.Duration, opts ...Option) *Store {
	if maxSize < 1 {
		maxSize = 1
	}
	s := &Store{
		jobs:    make(map[string]*Job),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit registers a job and runs fn in its own goroutine under a context
// derived from parent. The returned copy is in the pending state.
func (s *Store) Submit(parent context.Context, jobType string, fn Func) Job {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	s.purgeLocked()
	if len(s.jobs) >= s.maxSize {
		s.evictLocked()
	}
	now := s.now()
	j := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		cancel:    cancel,
	}
	s.jobs[j.ID] = j
	s.order = append(s.order, j.ID)
	s.notifyLocked(jobType)
	snapshot := *j
	s.mu.Unlock()

	go s.run(ctx, j.ID, fn)
	return snapshot
}

func (s *Store) run(ctx context.Context, id string, fn Func) {
	if !s.transition(id, func(j *Job) bool {
		if j.Status != StatusPending {
			return false
		}
		j.Status = StatusRunning
		return true
	}) {
		return
	}

	result, err := call(ctx, fn, func(percent int) {
		s.transition(id, func(j *Job) bool {
			if j.Status != StatusRunning {
				return false
			}
			j.Progress = clamp(percent)
			return true
		})
	})

	s.transition(id, func(j *Job) bool {
		if j.Status.Done() {
			return false
		}
		switch {
		case err == nil:
			j.Status = StatusComplete
			j.Progress = 100
			j.Result = result
		case errors.Is(err, context.Canceled):
			j.Status = StatusCancelled
		default:
			j.Status = StatusFailed
			j.Error = asCoreError(err)
		}
		return true
	})
}

// transition applies fn under the lock and stamps the job when fn reports
// a change. It reports false for unknown jobs.
func (s *Store) transition(id string, fn func(*Job) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || !fn(j) {
		return false
	}
	j.UpdatedAt = s.now()
	if j.Status.Done() && j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
	s.notifyLocked(j.Type)
	return true
}

// Get retrieves a copy of a job by ID.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()

	job, ok := s.jobs[id]
	if !ok {
		return nil, core.Errorf(core.ErrJobNotFound, "job %q", id)
	}
	jobCopy := *job
	return &jobCopy, nil
}

// Update modifies a job using an update function.
func (s *Store) Update(id string, fn func(*Job)) error {
	if !s.transition(id, func(j *Job) bool { fn(j); return true }) {
		return core.Errorf(core.ErrJobNotFound, "job %q", id)
	}
	return nil
}

// Cancel stops an unfinished job. Cancelling a finished job is a no-op.
func (s *Store) Cancel(id string) (*Job, error) {
	s.transition(id, func(j *Job) bool {
		if j.Status.Done() {
			return false
		}
		j.Status = StatusCancelled
		return true
	})
	return s.Get(id)
}

// List returns all jobs, oldest first.
func (s *Store) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()

	result := make([]Job, 0, len(s.jobs))
	for _, id := range s.order {
		result = append(result, *s.jobs[id])
	}
	return result
}

// Active returns the number of unfinished jobs of a type.
func (s *Store) Active(jobType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked(jobType)
}

func (s *Store) activeLocked(jobType string) int {
	n := 0
	for _, j := range s.jobs {
		if j.Type == jobType && !j.Status.Done() {
			n++
		}
	}
	return n
}

func (s *Store) notifyLocked(jobType string) {
	if s.onActive != nil {
		s.onActive(jobType, s.activeLocked(jobType))
	}
}

// purgeLocked drops finished jobs older than the TTL.
func (s *Store) purgeLocked() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	kept := s.order[:0]
	for _, id := range s.order {
		j := s.jobs[id]
		if j.Status.Done() && j.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func (s *Store) evictLocked() {
	victim := -1
	for i, id := range s.order {
		if s.jobs[id].Status.Done() {
			victim = i
			break
		}
	}
	if victim < 0 {
		victim = 0
	}

	id := s.order[victim]
	j := s.jobs[id]
	if j.cancel != nil {
		j.cancel()
	}
	delete(s.jobs, id)
	s.order = append(s.order[:victim], s.order[victim+1:]...)
	s.notifyLocked(j.Type)
}

// call runs fn and turns a panic into a failure of this job only.
func call(ctx context.Context, fn Func, progress func(int)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx, progress)
}

func asCoreError(err error) *core.Error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return coreErr
	}
	return core.WrapError(errJobFailed, err)
}

func clamp(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	}
	return percent
}
