// internal/api/handler/api/accounts.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/newthinker/skinquant/internal/api/response"
	"github.com/newthinker/skinquant/internal/broker"
	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/session"
	"github.com/newthinker/skinquant/internal/storage/audit"
)

// Sessions is the account surface of *session.Manager.
type Sessions interface {
	Portfolio(ctx context.Context, userID string) (*session.Snapshot, error)
	Buy(ctx context.Context, userID, symbol string, qty int, price float64) (broker.Outcome, error)
	Sell(ctx context.Context, userID, symbol string, qty int, price float64) (broker.Outcome, error)
	Trades(ctx context.Context, userID string, limit int) ([]broker.TradeRecord, error)
	Stats(ctx context.Context, userID string) (audit.Stats, error)
	CreateRecharge(ctx context.Context, userID string, amount float64, kind audit.RechargeKind) (*audit.Recharge, error)
	CompleteRecharge(ctx context.Context, userID, id string) (*session.RechargeResult, error)
	Recharges(ctx context.Context, userID string) ([]audit.Recharge, error)
	Membership(ctx context.Context, userID string) (*audit.Membership, error)
}

// TradeRequest is the request body for a buy or sell. A zero price trades
// at the current market price.
type TradeRequest struct {
	Action   core.Action `json:"action"`
	Symbol   string      `json:"symbol"`
	Quantity int         `json:"quantity"`
	Price    float64     `json:"price,omitempty"`
}

// RechargeRequest is the request body for opening a recharge order.
type RechargeRequest struct {
	Amount float64            `json:"amount"`
	Type   audit.RechargeKind `json:"type"`
}

// AccountsHandler serves portfolios, trades, stats and recharges.
type AccountsHandler struct {
	sessions Sessions
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(sessions Sessions) *AccountsHandler {
	return &AccountsHandler{sessions: sessions}
}

// Portfolio handles GET /api/v1/accounts/{user}/portfolio
func (h *AccountsHandler) Portfolio(w http.ResponseWriter, r *http.Request, user string) {
	snap, err := h.sessions.Portfolio(r.Context(), user)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, snap)
}

// Trade handles POST /api/v1/accounts/{user}/trades. Rejected orders get a
// 422 carrying the rejection; an accepted trade that could not be saved
// gets a 500 and is not durable.
func (h *AccountsHandler) Trade(w http.ResponseWriter, r *http.Request, user string) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Fail(w, core.WrapError(core.ErrInvalidOrder, err))
		return
	}

	var (
		out broker.Outcome
		err error
	)
	switch core.Action(strings.ToLower(string(req.Action))) {
	case core.ActionBuy:
		out, err = h.sessions.Buy(r.Context(), user, req.Symbol, req.Quantity, req.Price)
	case core.ActionSell:
		out, err = h.sessions.Sell(r.Context(), user, req.Symbol, req.Quantity, req.Price)
	default:
		response.Fail(w, core.Errorf(core.ErrInvalidOrder, "action must be buy or sell, got %q", req.Action))
		return
	}

	if err == nil {
		err = out.Err()
	}
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, out)
}

// Trades handles GET /api/v1/accounts/{user}/trades
func (h *AccountsHandler) Trades(w http.ResponseWriter, r *http.Request, user string) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.Fail(w, core.Errorf(core.ErrConfigInvalid, "limit must be a non-negative integer, got %q", v))
			return
		}
		limit = n
	}

	trades, err := h.sessions.Trades(r.Context(), user, limit)
	if err != nil {
		response.Fail(w, err)
		return
	}
	if trades == nil {
		trades = []broker.TradeRecord{}
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"trades": trades,
		"count":  len(trades),
	})
}

// Stats handles GET /api/v1/accounts/{user}/stats
func (h *AccountsHandler) Stats(w http.ResponseWriter, r *http.Request, user string) {
	stats, err := h.sessions.Stats(r.Context(), user)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, stats)
}

// CreateRecharge handles POST /api/v1/accounts/{user}/recharges
func (h *AccountsHandler) CreateRecharge(w http.ResponseWriter, r *http.Request, user string) {
	var req RechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Fail(w, core.WrapError(core.ErrRechargeInvalid, err))
		return
	}

	rc, err := h.sessions.CreateRecharge(r.Context(), user, req.Amount, req.Type)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, rc)
}

// Recharges handles GET /api/v1/accounts/{user}/recharges
func (h *AccountsHandler) Recharges(w http.ResponseWriter, r *http.Request, user string) {
	list, err := h.sessions.Recharges(r.Context(), user)
	if err != nil {
		response.Fail(w, err)
		return
	}
	if list == nil {
		list = []audit.Recharge{}
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"recharges": list,
		"count":     len(list),
	})
}

// CompleteRecharge handles POST /api/v1/accounts/{user}/recharges/{id}/complete
func (h *AccountsHandler) CompleteRecharge(w http.ResponseWriter, r *http.Request, user, id string) {
	res, err := h.sessions.CompleteRecharge(r.Context(), user, id)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

// Membership handles GET /api/v1/accounts/{user}/membership
func (h *AccountsHandler) Membership(w http.ResponseWriter, r *http.Request, user string) {
	m, err := h.sessions.Membership(r.Context(), user)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, m)
}
