// internal/api/handler/api/analysis.go
package api

import (
	"context"
	"net/http"

	"github.com/newthinker/skinquant/internal/api/job"
	"github.com/newthinker/skinquant/internal/api/response"
	"github.com/newthinker/skinquant/internal/app"
	"github.com/newthinker/skinquant/internal/collector"
)

// AnalysisApp defines the interface needed from app.App.
type AnalysisApp interface {
	GetWatchlist() []string
	GetStats() app.Stats
	RunOnce(ctx context.Context)
	Analyze(ctx context.Context, symbol string) (*app.Analysis, error)
}

// AnalysisHandler handles analysis API requests.
type AnalysisHandler struct {
	app     AnalysisApp
	catalog *collector.Catalog
	jobs    *job.Store
	base    context.Context
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(base context.Context, a AnalysisApp, catalog *collector.Catalog, jobs *job.Store) *AnalysisHandler {
	return &AnalysisHandler{app: a, catalog: catalog, jobs: jobs, base: base}
}

// Trigger runs a watchlist cycle in the background.
func (h *AnalysisHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	watchlist := h.app.GetWatchlist()

	go h.app.RunOnce(h.base)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"triggered":     true,
		"symbols_count": len(watchlist),
	})
}

// Stats reports the scheduler state.
func (h *AnalysisHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.app.GetStats())
}

// Analyze starts an analysis job for one symbol.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request, symbol string) {
	if _, err := h.catalog.Lookup(symbol); err != nil {
		response.Fail(w, err)
		return
	}

	j := h.jobs.Submit(h.base, JobAnalysis, func(ctx context.Context, _ func(int)) (any, error) {
		return h.app.Analyze(ctx, symbol)
	})
	accepted(w, j)
}
