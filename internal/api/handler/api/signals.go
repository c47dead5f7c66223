// internal/api/handler/api/signals.go
package api

import (
	"net/http"
	"strconv"

	"github.com/newthinker/skinquant/internal/api/response"
	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/storage/signal"
)

const defaultSignalLimit = 50

// SignalsHandler handles signal-related API requests.
type SignalsHandler struct {
	store signal.Store
}

// NewSignalsHandler creates a new signals handler.
func NewSignalsHandler(store signal.Store) *SignalsHandler {
	return &SignalsHandler{store: store}
}

// List returns signals matching query parameters.
func (h *SignalsHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, r.URL.Query().Get("symbol"))
}

// ListForSymbol handles GET /api/v1/symbols/{symbol}/signals
func (h *SignalsHandler) ListForSymbol(w http.ResponseWriter, r *http.Request, symbol string) {
	h.list(w, r, symbol)
}

func (h *SignalsHandler) list(w http.ResponseWriter, r *http.Request, symbol string) {
	filter, err := parseFilter(r)
	if err != nil {
		response.Fail(w, err)
		return
	}
	filter.Symbol = symbol

	signals, err := h.store.List(r.Context(), filter)
	if err != nil {
		response.Fail(w, err)
		return
	}
	count, err := h.store.Count(r.Context(), filter)
	if err != nil {
		response.Fail(w, err)
		return
	}
	if signals == nil {
		signals = []core.Signal{}
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"signals": signals,
		"total":   count,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

func parseFilter(r *http.Request) (signal.ListFilter, error) {
	q := r.URL.Query()
	filter := signal.ListFilter{
		Strategy: q.Get("strategy"),
		Limit:    defaultSignalLimit,
	}

	switch action := core.Action(q.Get("action")); action {
	case "":
	case core.ActionBuy, core.ActionSell, core.ActionHold:
		filter.Action = action
	default:
		return filter, core.Errorf(core.ErrConfigInvalid, "unknown action %q", action)
	}

	if from := q.Get("from"); from != "" {
		t, err := parseTime(from)
		if err != nil {
			return filter, err
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := parseTime(to)
		if err != nil {
			return filter, err
		}
		filter.To = t
	}

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, core.Errorf(core.ErrConfigInvalid, "%s must be a non-negative integer, got %q", name, v)
		}
		*dst = n
	}
	return filter, nil
}

// GetByID returns a single signal by ID.
func (h *SignalsHandler) GetByID(w http.ResponseWriter, r *http.Request, id string) {
	sig, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, sig)
}
