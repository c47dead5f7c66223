// internal/api/handler/api/symbols.go
package api

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/skinquant/internal/api/response"
	"github.com/newthinker/skinquant/internal/collector"
	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/indicator"
	"github.com/newthinker/skinquant/internal/strategy/maposition"
	"github.com/newthinker/skinquant/internal/strategy/trendvote"
)

const (
	defaultIndicatorRows = 30
	volumeLookbackDays   = 30
)

// SymbolsHandler serves catalog, bar, indicator and on-sale data.
type SymbolsHandler struct {
	catalog *collector.Catalog
	market  collector.Collector
	logger  *zap.Logger
	now     func() time.Time
}

// NewSymbolsHandler creates a new symbols handler
func NewSymbolsHandler(catalog *collector.Catalog, market collector.Collector, logger *zap.Logger) *SymbolsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SymbolsHandler{
		catalog: catalog,
		market:  market,
		logger:  logger,
		now:     time.Now,
	}
}

// List handles GET /api/v1/symbols
func (h *SymbolsHandler) List(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")

	items := make([]collector.Item, 0)
	for _, it := range h.catalog.Items() {
		if group == "" || it.Group == group {
			items = append(items, it)
		}
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"symbols": items,
		"groups":  h.catalog.GroupNames(),
		"count":   len(items),
	})
}

// Bars handles GET /api/v1/symbols/{symbol}/bars
func (h *SymbolsHandler) Bars(w http.ResponseWriter, r *http.Request, symbol string) {
	if _, err := h.catalog.Lookup(symbol); err != nil {
		response.Fail(w, err)
		return
	}
	start, end, err := parseRange(r, h.now(), 90)
	if err != nil {
		response.Fail(w, err)
		return
	}

	bars, err := h.market.FetchHistory(r.Context(), symbol, start, end)
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"symbol": symbol,
		"start":  start,
		"end":    end,
		"bars":   bars,
	})
}

// Indicators handles GET /api/v1/symbols/{symbol}/indicators. The frame is
// computed over the whole range and its last ?rows rows are returned along
// with their trend labels.
func (h *SymbolsHandler) Indicators(w http.ResponseWriter, r *http.Request, symbol string) {
	if _, err := h.catalog.Lookup(symbol); err != nil {
		response.Fail(w, err)
		return
	}
	start, end, err := parseRange(r, h.now(), 180)
	if err != nil {
		response.Fail(w, err)
		return
	}
	rows := defaultIndicatorRows
	if v := r.URL.Query().Get("rows"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.Fail(w, core.Errorf(core.ErrConfigInvalid, "rows must be a positive integer, got %q", v))
			return
		}
		rows = n
	}

	bars, err := h.market.FetchHistory(r.Context(), symbol, start, end)
	if err != nil {
		response.Fail(w, err)
		return
	}

	frame := indicator.Compute(bars)
	from := frame.Len() - rows
	if from < 0 {
		from = 0
	}

	var trend []trendvote.Annotation
	for _, a := range trendvote.Generate(frame) {
		if a.Index >= from {
			trend = append(trend, a)
		}
	}
	var advice []maposition.Advice
	for _, a := range maposition.New().Advise(frame) {
		if a.Index >= from {
			advice = append(advice, a)
		}
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"symbol":      symbol,
		"rows":        frame.Rows[from:],
		"trend":       trend,
		"ma_position": advice,
	})
}

// OnSale handles GET /api/v1/symbols/{symbol}/onsale
func (h *SymbolsHandler) OnSale(w http.ResponseWriter, r *http.Request, symbol string) {
	if _, err := h.catalog.Lookup(symbol); err != nil {
		response.Fail(w, err)
		return
	}

	snap, err := h.market.FetchOnSale(r.Context(), symbol)
	if err != nil {
		response.Fail(w, err)
		return
	}

	body := map[string]any{
		"snapshot": snap,
		"supply":   collector.AnalyzeSupply(snap),
	}

	end := h.now()
	bars, err := h.market.FetchHistory(r.Context(), symbol, end.AddDate(0, 0, -volumeLookbackDays), end)
	if err == nil {
		var vc collector.VolumeComparison
		if vc, err = collector.CompareWithVolume(snap, bars); err == nil {
			body["volume"] = vc
		}
	}
	if err != nil {
		h.logger.Debug("volume comparison unavailable",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}

	response.JSON(w, http.StatusOK, body)
}

// parseRange reads ?start&end (dates or RFC3339) or a ?range of 1M, 3M,
// 6M or 1Y. Without either it covers the last defaultDays days.
func parseRange(r *http.Request, now time.Time, defaultDays int) (time.Time, time.Time, error) {
	q := r.URL.Query()

	end := now
	if v := q.Get("end"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = t
	}

	start := end.AddDate(0, 0, -defaultDays)
	switch q.Get("range") {
	case "":
	case "1M":
		start = end.AddDate(0, -1, 0)
	case "3M":
		start = end.AddDate(0, -3, 0)
	case "6M":
		start = end.AddDate(0, -6, 0)
	case "1Y":
		start = end.AddDate(-1, 0, 0)
	default:
		return time.Time{}, time.Time{}, core.Errorf(core.ErrConfigInvalid, "unknown range %q", q.Get("range"))
	}
	if v := q.Get("start"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = t
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, core.Errorf(core.ErrConfigInvalid, "start %s is after end %s",
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return start, end, nil
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, core.Errorf(core.ErrConfigInvalid, "invalid date %q", v)
	}
	return t, nil
}
