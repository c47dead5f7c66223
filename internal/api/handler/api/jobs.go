// internal/api/handler/api/jobs.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/newthinker/skinquant/internal/api/job"
	"github.com/newthinker/skinquant/internal/api/response"
	"github.com/newthinker/skinquant/internal/backtest"
	"github.com/newthinker/skinquant/internal/core"
)

// Job types.
const (
	JobBacktest     = "backtest"
	JobOptimization = "optimization"
	JobAnalysis     = "analysis"
)

const backtestTimeout = 5 * time.Minute

// Runner executes backtests and optimisations. *app.Analyzer satisfies it.
type Runner interface {
	Backtest(ctx context.Context, symbol string, start, end time.Time, params backtest.Params) (*backtest.Result, error)
	Optimize(ctx context.Context, symbol string, start, end time.Time, space backtest.SearchSpace, progress backtest.ProgressFunc) (*backtest.OptimizationResult, error)
}

// BacktestRequest is the request body for starting a backtest.
type BacktestRequest struct {
	Symbol string           `json:"symbol"`
	Start  string           `json:"start"`
	End    string           `json:"end"`
	Params *backtest.Params `json:"params,omitempty"`
}

// OptimizationRequest is the request body for starting an optimisation.
type OptimizationRequest struct {
	Symbol string                `json:"symbol"`
	Start  string                `json:"start"`
	End    string                `json:"end"`
	Space  *backtest.SearchSpace `json:"search_space,omitempty"`
}

// JobsHandler starts and tracks backtest and optimisation jobs.
type JobsHandler struct {
	jobs   *job.Store
	runner Runner
	base   context.Context
	now    func() time.Time
}

// NewJobsHandler creates a new jobs handler. Jobs run under base, so
// cancelling it stops every job.
func NewJobsHandler(base context.Context, jobs *job.Store, runner Runner) *JobsHandler {
	return &JobsHandler{
		jobs:   jobs,
		runner: runner,
		base:   base,
		now:    time.Now,
	}
}

// CreateBacktest handles POST /api/v1/backtests
func (h *JobsHandler) CreateBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Fail(w, core.WrapError(core.ErrConfigInvalid, err))
		return
	}

	start, end, err := h.window(req.Symbol, req.Start, req.End)
	if err != nil {
		response.Fail(w, err)
		return
	}
	params := backtest.DefaultParams()
	if req.Params != nil {
		params = *req.Params
	}
	if err := params.Validate(); err != nil {
		response.Fail(w, err)
		return
	}

	j := h.jobs.Submit(h.base, JobBacktest, func(ctx context.Context, _ func(int)) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, backtestTimeout)
		defer cancel()
		return h.runner.Backtest(ctx, req.Symbol, start, end, params)
	})

	accepted(w, j)
}

// CreateOptimization handles POST /api/v1/optimizations
func (h *JobsHandler) CreateOptimization(w http.ResponseWriter, r *http.Request) {
	var req OptimizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Fail(w, core.WrapError(core.ErrConfigInvalid, err))
		return
	}

	start, end, err := h.window(req.Symbol, req.Start, req.End)
	if err != nil {
		response.Fail(w, err)
		return
	}
	var space backtest.SearchSpace
	if req.Space != nil {
		space = *req.Space
		if err := space.Validate(); err != nil {
			response.Fail(w, err)
			return
		}
	}

	j := h.jobs.Submit(h.base, JobOptimization, func(ctx context.Context, progress func(int)) (any, error) {
		return h.runner.Optimize(ctx, req.Symbol, start, end, space, func(done, total int) {
			progress(done * 100 / total)
		})
	})

	accepted(w, j)
}

// Get handles GET /api/v1/jobs/{id}
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	j, err := h.jobs.Get(id)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, jobBody(j))
}

// Cancel handles DELETE /api/v1/jobs/{id}
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request, id string) {
	j, err := h.jobs.Cancel(id)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, jobBody(j))
}

// window validates the symbol and parses the dates, defaulting to the
// last 90 days.
func (h *JobsHandler) window(symbol, from, to string) (time.Time, time.Time, error) {
	if symbol == "" {
		return time.Time{}, time.Time{}, core.Errorf(core.ErrConfigMissing, "symbol is required")
	}

	end := h.now()
	if to != "" {
		t, err := parseTime(to)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = t
	}
	start := end.AddDate(0, 0, -90)
	if from != "" {
		t, err := parseTime(from)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = t
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, core.Errorf(core.ErrConfigInvalid, "start must be before end")
	}
	return start, end, nil
}

func accepted(w http.ResponseWriter, j job.Job) {
	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"type":   j.Type,
		"status": j.Status,
	})
}

func jobBody(j *job.Job) map[string]any {
	body := map[string]any{
		"job_id":     j.ID,
		"type":       j.Type,
		"status":     j.Status,
		"progress":   j.Progress,
		"created_at": j.CreatedAt,
		"updated_at": j.UpdatedAt,
	}
	if j.Status == job.StatusComplete {
		body["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		body["error"] = response.Detail(j.Error)
	}
	return body
}
