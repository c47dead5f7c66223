// internal/api/handler/api/watchlist.go
package api

import (
	"encoding/json"
	"net/http"

	"github.com/newthinker/skinquant/internal/api/response"
	"github.com/newthinker/skinquant/internal/app"
	"github.com/newthinker/skinquant/internal/collector"
	"github.com/newthinker/skinquant/internal/core"
)

// WatchlistApp defines the interface needed from app.App.
type WatchlistApp interface {
	GetWatchlistItems() []app.WatchlistItem
	AddToWatchlist(symbol, group string)
	RemoveFromWatchlist(symbol string) bool
}

// WatchlistHandler handles watchlist API requests.
type WatchlistHandler struct {
	app     WatchlistApp
	catalog *collector.Catalog
}

// NewWatchlistHandler creates a new watchlist handler.
func NewWatchlistHandler(a WatchlistApp, catalog *collector.Catalog) *WatchlistHandler {
	return &WatchlistHandler{app: a, catalog: catalog}
}

// AddRequest is the request body for adding a symbol.
type AddRequest struct {
	Symbol string `json:"symbol"`
}

// List returns all symbols in the watchlist.
func (h *WatchlistHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.app.GetWatchlistItems()
	response.JSON(w, http.StatusOK, map[string]any{
		"symbols": items,
		"count":   len(items),
	})
}

// Add adds a catalog symbol to the watchlist.
func (h *WatchlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Fail(w, core.WrapError(core.ErrConfigInvalid, err))
		return
	}
	if req.Symbol == "" {
		response.Fail(w, core.Errorf(core.ErrConfigMissing, "symbol is required"))
		return
	}

	item, err := h.catalog.Lookup(req.Symbol)
	if err != nil {
		response.Fail(w, err)
		return
	}
	h.app.AddToWatchlist(item.Name, item.Group)

	response.JSON(w, http.StatusCreated, map[string]any{
		"symbol": item.Name,
		"group":  item.Group,
		"added":  true,
	})
}

// Remove removes a symbol from the watchlist.
func (h *WatchlistHandler) Remove(w http.ResponseWriter, r *http.Request, symbol string) {
	if !h.app.RemoveFromWatchlist(symbol) {
		response.Fail(w, core.Errorf(core.ErrSymbolNotFound, "%q is not on the watchlist", symbol))
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"symbol":  symbol,
		"removed": true,
	})
}
